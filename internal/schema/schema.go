// Package schema describes CLI options declaratively and merges option
// declarations from several sources into one canonical schema.
//
// Declarations are loosely shaped: the same field may be spelled with any of
// several synonyms (see Synonyms). Normalize resolves the synonyms, merges the
// declarations field by field in source order, and returns an ordered,
// immutable Schema ready for registration with an argument parser.
package schema

import (
	"maps"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Entry is one option descriptor as declared, before synonym resolution.
// Value is normally a map[string]any; a nil Value declares a plain value
// option with no other fields.
type Entry struct {
	Name  string
	Value any
}

// Raw is an ordered list of declared option descriptors.
type Raw []Entry

// Source is anything Normalize can read option descriptors from. Both Raw
// and *Schema are sources, so a normalized schema can be merged again.
type Source interface {
	Entries() []Entry
}

// Entries implements Source.
func (r Raw) Entries() []Entry { return r }

// FromMap builds a Raw from an unordered map. Keys are sorted so the result
// is deterministic.
func FromMap(m map[string]any) Raw {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	raw := make(Raw, 0, len(names))
	for _, name := range names {
		raw = append(raw, Entry{Name: name, Value: m[name]})
	}
	return raw
}

// field records which canonical fields a descriptor actually declared, so a
// merge only overrides what the later declaration set.
type field uint8

const (
	fieldAlias field = 1 << iota
	fieldHelp
	fieldFlag
	fieldPosition
)

// OptionSpec is the canonical form of one CLI option.
type OptionSpec struct {
	// Name is the long option name, unique within a schema.
	Name string
	// Alias is the short name. A single character becomes a one-dash
	// shorthand; anything longer becomes an additional long name.
	Alias string
	// Help is the text shown in usage output.
	Help string
	// Flag means the option takes no value.
	Flag bool
	// Position is the index of a positional argument. Only meaningful when
	// Positional reports true.
	Position int
	// Extra holds every other declared field, passed through verbatim.
	Extra map[string]any

	set field
}

// Positional reports whether the option is filled from positional arguments
// rather than named on the command line.
func (o OptionSpec) Positional() bool { return o.set&fieldPosition != 0 }

// merge returns o with every field declared by over replaced.
func (o OptionSpec) merge(over OptionSpec) OptionSpec {
	if over.set&fieldAlias != 0 {
		o.Alias = over.Alias
	}
	if over.set&fieldHelp != 0 {
		o.Help = over.Help
	}
	if over.set&fieldFlag != 0 {
		o.Flag = over.Flag
	}
	if over.set&fieldPosition != 0 {
		o.Position = over.Position
	}
	if len(over.Extra) > 0 {
		extra := make(map[string]any, len(o.Extra)+len(over.Extra))
		maps.Copy(extra, o.Extra)
		maps.Copy(extra, over.Extra)
		o.Extra = extra
	}
	o.set |= over.set
	return o
}

// descriptor renders o back into a canonical descriptor containing only the
// fields that were declared.
func (o OptionSpec) descriptor() map[string]any {
	d := make(map[string]any, len(o.Extra)+4)
	maps.Copy(d, o.Extra)
	if o.set&fieldAlias != 0 {
		d["alias"] = o.Alias
	}
	if o.set&fieldHelp != 0 {
		d["help"] = o.Help
	}
	if o.set&fieldFlag != 0 {
		d["flag"] = o.Flag
	}
	if o.set&fieldPosition != 0 {
		d["position"] = o.Position
	}
	return d
}

// Schema is an ordered, immutable set of canonical options. The order is
// the order in which names first appeared across the merged sources.
type Schema struct {
	specs *orderedmap.OrderedMap[string, OptionSpec]
}

func newSchema() *Schema {
	return &Schema{specs: orderedmap.New[string, OptionSpec]()}
}

// Len returns the number of options.
func (s *Schema) Len() int { return s.specs.Len() }

// Lookup returns the option with the given long name.
func (s *Schema) Lookup(name string) (OptionSpec, bool) {
	spec, ok := s.specs.Get(name)
	if !ok {
		return OptionSpec{}, false
	}
	spec.Extra = maps.Clone(spec.Extra)
	return spec, true
}

// Specs returns copies of all options in schema order.
func (s *Schema) Specs() []OptionSpec {
	out := make([]OptionSpec, 0, s.specs.Len())
	for pair := s.specs.Oldest(); pair != nil; pair = pair.Next() {
		spec := pair.Value
		spec.Extra = maps.Clone(spec.Extra)
		out = append(out, spec)
	}
	return out
}

// Names returns the long option names in schema order.
func (s *Schema) Names() []string {
	out := make([]string, 0, s.specs.Len())
	for pair := s.specs.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Entries implements Source by rendering each option as a canonical
// descriptor.
func (s *Schema) Entries() []Entry {
	out := make([]Entry, 0, s.specs.Len())
	for pair := s.specs.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, Entry{Name: pair.Key, Value: pair.Value.descriptor()})
	}
	return out
}
