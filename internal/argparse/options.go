package argparse

import (
	"encoding/json"

	"github.com/scbrown/flit/internal/schema"
)

// Options is the result of one Parse call. It is read-only.
type Options struct {
	values  map[string]any // bool, string or []string keyed by long name
	aliases map[string]string
	specs   []schema.OptionSpec
	args    []string
}

func (o *Options) resolve(name string) string {
	if _, ok := o.values[name]; ok {
		return name
	}
	if long, ok := o.aliases[name]; ok {
		return long
	}
	return name
}

// Get returns the value of an option looked up by long name or alias. The
// value is a bool for flags, a string for value options and a []string for
// list options. ok is false when the option was not supplied and has no
// default.
func (o *Options) Get(name string) (any, bool) {
	v, ok := o.values[o.resolve(name)]
	return v, ok
}

// Has reports whether the option was supplied or defaulted.
func (o *Options) Has(name string) bool {
	_, ok := o.Get(name)
	return ok
}

// Bool returns a flag's value, false when absent.
func (o *Options) Bool(name string) bool {
	v, _ := o.Get(name)
	b, _ := v.(bool)
	return b
}

// String returns a value option. For list options it returns the last value.
func (o *Options) String(name string) (string, bool) {
	v, ok := o.Get(name)
	if !ok {
		return "", false
	}
	switch v := v.(type) {
	case string:
		return v, true
	case []string:
		if len(v) == 0 {
			return "", false
		}
		return v[len(v)-1], true
	}
	return "", false
}

// Strings returns every value given for an option.
func (o *Options) Strings(name string) []string {
	v, _ := o.Get(name)
	switch v := v.(type) {
	case string:
		return []string{v}
	case []string:
		return append([]string(nil), v...)
	}
	return nil
}

// Args returns the arguments left after flags were removed.
func (o *Options) Args() []string {
	return append([]string(nil), o.args...)
}

// Specs returns the options the parser was configured with, in schema order.
func (o *Options) Specs() []schema.OptionSpec {
	out := make([]schema.OptionSpec, len(o.specs))
	copy(out, o.specs)
	return out
}

// Names returns the long and short spellings of every named option, in
// schema order, e.g. ["--help", "-h", "--base"].
func (o *Options) Names() []string {
	var out []string
	for _, spec := range o.specs {
		if spec.Positional() {
			continue
		}
		out = append(out, "--"+spec.Name)
		switch {
		case len(spec.Alias) == 1:
			out = append(out, "-"+spec.Alias)
		case spec.Alias != "":
			out = append(out, "--"+spec.Alias)
		}
	}
	return out
}

// MarshalJSON encodes the supplied values and remaining arguments.
func (o *Options) MarshalJSON() ([]byte, error) {
	args := o.args
	if args == nil {
		args = []string{}
	}
	return json.Marshal(struct {
		Options map[string]any `json:"options"`
		Args    []string       `json:"args"`
	}{o.values, args})
}
