// Package argparse registers a canonical option schema with a pflag flag set
// and parses command-line arguments against it.
//
// A Parser is configured once per schema and never changes afterwards. Every
// call to Parse or Usage builds its own flag set, so parsers built for
// different schemas (or repeated parses with one parser) share no state.
package argparse

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/scbrown/flit/internal/schema"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
)

// Extra descriptor fields understood by the parser. Anything else in
// OptionSpec.Extra is carried along untouched.
const (
	ExtraDefault = "default"
	ExtraList    = "list"
	ExtraHidden  = "hidden"
)

// Parser is the handle returned by New.
type Parser struct {
	program      string
	specs        []schema.OptionSpec
	allowUnknown bool
}

// Option configures a Parser.
type Option func(*Parser)

// AllowUnknown makes Parse skip flags the schema does not declare instead of
// failing. Used for the first pass, before task options are known.
func AllowUnknown() Option {
	return func(p *Parser) { p.allowUnknown = true }
}

// New configures a parser for s. Aliases that collide with a name or alias
// registered earlier are dropped and reported as *schema.ConfigurationError;
// the returned parser is usable either way.
func New(program string, s *schema.Schema, opts ...Option) (*Parser, error) {
	p := &Parser{program: program}
	for _, o := range opts {
		o(p)
	}
	var errs []error
	p.specs, errs = resolveConflicts(s.Specs())
	return p, errors.Join(errs...)
}

// Specs returns the registered options in schema order.
func (p *Parser) Specs() []schema.OptionSpec {
	out := make([]schema.OptionSpec, len(p.specs))
	copy(out, p.specs)
	return out
}

// Parse parses argv against the registered schema.
func (p *Parser) Parse(argv []string) (*Options, error) {
	fs := p.newFlagSet()
	bound, err := register(fs, p.specs)
	if err != nil {
		return nil, err
	}
	if err := fs.Parse(argv); err != nil {
		return nil, fmt.Errorf("parsing arguments: %w", err)
	}

	opts := &Options{
		values:  make(map[string]any),
		aliases: make(map[string]string),
		specs:   p.Specs(),
		args:    fs.Args(),
	}
	for _, b := range bound {
		if b.spec.Alias != "" {
			opts.aliases[b.spec.Alias] = b.spec.Name
		}
		if b.changed(fs) || b.hasDefault {
			opts.values[b.spec.Name] = b.get()
		}
	}
	for _, spec := range p.specs {
		if !spec.Positional() {
			continue
		}
		if spec.Position < len(opts.args) {
			opts.values[spec.Name] = opts.args[spec.Position]
		} else if def, ok := spec.Extra[ExtraDefault]; ok {
			opts.values[spec.Name] = cast.ToString(def)
		}
	}
	return opts, nil
}

// Usage renders help text for every registered option. Named options are
// listed in schema order.
func (p *Parser) Usage() string {
	fs := p.newFlagSet()
	// Conflicts were resolved in New, so registration cannot fail here.
	_, _ = register(fs, p.specs)

	var b strings.Builder
	b.WriteString("Usage: ")
	b.WriteString(p.program)
	var positional []schema.OptionSpec
	for _, spec := range p.specs {
		if spec.Positional() {
			positional = append(positional, spec)
		}
	}
	for _, spec := range positional {
		fmt.Fprintf(&b, " <%s>", spec.Name)
	}
	b.WriteString(" [options]\n")

	if len(positional) > 0 {
		b.WriteString("\nArguments:\n")
		width := 0
		for _, spec := range positional {
			width = max(width, len(spec.Name))
		}
		for _, spec := range positional {
			fmt.Fprintf(&b, "  %-*s   %s\n", width, spec.Name, spec.Help)
		}
	}

	if usages := fs.FlagUsagesWrapped(0); usages != "" {
		b.WriteString("\nOptions:\n")
		b.WriteString(usages)
	}
	return b.String()
}

// Register declares the named options of s on an existing flag set. The
// returned error joins every option that could not be registered.
func Register(fs *pflag.FlagSet, s *schema.Schema) error {
	specs, errs := resolveConflicts(s.Specs())
	if _, err := register(fs, specs); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (p *Parser) newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(p.program, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false
	fs.ParseErrorsWhitelist.UnknownFlags = p.allowUnknown
	return fs
}

// binding ties an option to the pflag value backing it.
type binding struct {
	spec       schema.OptionSpec
	get        func() any
	hasDefault bool
	longAlias  bool
}

func (b binding) changed(fs *pflag.FlagSet) bool {
	if fs.Changed(b.spec.Name) {
		return true
	}
	return b.longAlias && fs.Changed(b.spec.Alias)
}

// register defines every named spec on fs. Positional specs are skipped.
func register(fs *pflag.FlagSet, specs []schema.OptionSpec) ([]binding, error) {
	var bound []binding
	for _, spec := range specs {
		if spec.Positional() {
			continue
		}
		if fs.Lookup(spec.Name) != nil {
			return nil, &schema.ConfigurationError{Option: spec.Name, Err: errors.New("already defined")}
		}
		short := ""
		if len(spec.Alias) == 1 {
			short = spec.Alias
		}
		def, hasDefault := spec.Extra[ExtraDefault]

		b := binding{spec: spec, hasDefault: hasDefault}
		switch {
		case spec.Flag:
			v := fs.BoolP(spec.Name, short, cast.ToBool(def), spec.Help)
			b.get = func() any { return *v }
		case cast.ToBool(spec.Extra[ExtraList]):
			var init []string
			if hasDefault {
				init = cast.ToStringSlice(def)
			}
			v := fs.StringArrayP(spec.Name, short, init, spec.Help)
			b.get = func() any { return append([]string(nil), (*v)...) }
		default:
			v := fs.StringP(spec.Name, short, cast.ToString(def), spec.Help)
			b.get = func() any { return *v }
		}

		f := fs.Lookup(spec.Name)
		f.Hidden = cast.ToBool(spec.Extra[ExtraHidden])
		if len(spec.Alias) > 1 {
			af := fs.VarPF(f.Value, spec.Alias, "", spec.Help)
			af.NoOptDefVal = f.NoOptDefVal
			af.Hidden = true
			b.longAlias = true
		}
		bound = append(bound, b)
	}
	return bound, nil
}

// resolveConflicts drops aliases that collide with an earlier name or alias.
func resolveConflicts(specs []schema.OptionSpec) ([]schema.OptionSpec, []error) {
	taken := make(map[string]bool, len(specs)*2)
	for _, spec := range specs {
		if !spec.Positional() {
			taken[spec.Name] = true
		}
	}
	var errs []error
	out := make([]schema.OptionSpec, 0, len(specs))
	for _, spec := range specs {
		if spec.Alias != "" && !spec.Positional() {
			key := aliasKey(spec.Alias)
			if taken[key] {
				errs = append(errs, &schema.ConfigurationError{
					Option: spec.Name,
					Err:    fmt.Errorf("alias %q already in use", spec.Alias),
				})
				spec.Alias = ""
			} else {
				taken[key] = true
			}
		}
		out = append(out, spec)
	}
	return out, errs
}

// aliasKey keeps one-letter shorthands apart from long names in the
// collision table.
func aliasKey(alias string) string {
	if len(alias) == 1 {
		return "-" + alias
	}
	return alias
}
