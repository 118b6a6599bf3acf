package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/cast"
)

// ErrCommandOption is the cause of a ConfigurationError raised for a
// descriptor given as a function. Sub-commands are not supported.
var ErrCommandOption = errors.New("command-style options not supported")

// ConfigurationError reports a malformed option descriptor. The offending
// declaration is skipped; the rest of the schema is unaffected.
type ConfigurationError struct {
	Option string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("option %q: %v", e.Option, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Synonyms lists, per canonical field, the descriptor keys accepted for it in
// priority order. The first key present in a descriptor wins; the others are
// dropped. A "type" key only counts as a flag synonym when its value is
// "boolean"; any other type is passed through.
var Synonyms = struct {
	Alias []string
	Help  []string
	Flag  []string
}{
	Alias: []string{"shortcut", "short", "alias"},
	Help:  []string{"description", "desc", "help"},
	Flag:  []string{"flag", "boolean"},
}

const (
	typeKey     = "type"
	booleanType = "boolean"
	positionKey = "position"
)

// Normalize merges the sources in order into one canonical schema.
//
// Every descriptor is canonicalized first and then merged into any earlier
// option of the same name field by field, so a later source overrides only
// the fields it declares. Names seen for the first time are appended.
//
// Malformed descriptors produce a *ConfigurationError and are skipped. The
// returned schema is always usable; the error, if any, joins every
// configuration error encountered.
func Normalize(sources ...Source) (*Schema, error) {
	s := newSchema()
	var errs []error
	for _, src := range sources {
		if src == nil {
			continue
		}
		for _, e := range src.Entries() {
			spec, err := canonicalize(e.Name, e.Value)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if prev, ok := s.Lookup(e.Name); ok {
				spec = prev.merge(spec)
			}
			s.specs.Set(e.Name, spec)
		}
	}
	return s, errors.Join(errs...)
}

// canonicalize resolves field synonyms in a single descriptor.
func canonicalize(name string, value any) (OptionSpec, error) {
	spec := OptionSpec{Name: name}
	if strings.TrimSpace(name) == "" {
		return spec, &ConfigurationError{Option: name, Err: errors.New("empty option name")}
	}
	if value == nil {
		return spec, nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Func:
		return spec, &ConfigurationError{Option: name, Err: ErrCommandOption}
	case reflect.Map:
	default:
		return spec, &ConfigurationError{Option: name, Err: fmt.Errorf("descriptor must be a mapping, got %T", value)}
	}
	desc, err := cast.ToStringMapE(value)
	if err != nil {
		return spec, &ConfigurationError{Option: name, Err: err}
	}

	consumed := make(map[string]bool)

	if key, ok := firstKey(desc, Synonyms.Alias); ok {
		alias, err := cast.ToStringE(desc[key])
		if err != nil {
			return spec, &ConfigurationError{Option: name, Err: fmt.Errorf("%s: %w", key, err)}
		}
		spec.Alias = strings.TrimLeft(alias, "-")
		spec.set |= fieldAlias
	}
	markAll(consumed, Synonyms.Alias)

	if key, ok := firstKey(desc, Synonyms.Help); ok {
		help, err := cast.ToStringE(desc[key])
		if err != nil {
			return spec, &ConfigurationError{Option: name, Err: fmt.Errorf("%s: %w", key, err)}
		}
		spec.Help = help
		spec.set |= fieldHelp
	}
	markAll(consumed, Synonyms.Help)

	if key, ok := firstKey(desc, Synonyms.Flag); ok {
		flag, err := cast.ToBoolE(desc[key])
		if err != nil {
			return spec, &ConfigurationError{Option: name, Err: fmt.Errorf("%s: %w", key, err)}
		}
		spec.Flag = flag
		spec.set |= fieldFlag
		if isBooleanType(desc[typeKey]) {
			consumed[typeKey] = true
		}
	} else if isBooleanType(desc[typeKey]) {
		spec.Flag = true
		spec.set |= fieldFlag
		consumed[typeKey] = true
	}
	markAll(consumed, Synonyms.Flag)

	if raw, ok := desc[positionKey]; ok {
		pos, err := cast.ToIntE(raw)
		if err != nil {
			return spec, &ConfigurationError{Option: name, Err: fmt.Errorf("position: %w", err)}
		}
		if pos < 0 {
			return spec, &ConfigurationError{Option: name, Err: fmt.Errorf("position must not be negative, got %d", pos)}
		}
		spec.Position = pos
		spec.set |= fieldPosition
		consumed[positionKey] = true
	}

	for k, v := range desc {
		if consumed[k] {
			continue
		}
		if spec.Extra == nil {
			spec.Extra = make(map[string]any)
		}
		spec.Extra[k] = v
	}
	return spec, nil
}

func firstKey(desc map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if _, ok := desc[k]; ok {
			return k, true
		}
	}
	return "", false
}

func markAll(consumed map[string]bool, keys []string) {
	for _, k := range keys {
		consumed[k] = true
	}
}

func isBooleanType(v any) bool {
	s, ok := v.(string)
	return ok && strings.EqualFold(s, booleanType)
}
