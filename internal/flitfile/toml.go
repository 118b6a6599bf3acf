package flitfile

import (
	"maps"
	"slices"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/pelletier/go-toml/v2/unstable"
	"github.com/scbrown/flit/internal/model"
	"github.com/scbrown/flit/internal/schema"
)

// tomlFormat decodes TOML flitfiles. Values come from toml.Unmarshal; the
// unstable parser is run over the same bytes to recover the order in which
// options and tasks are declared.
type tomlFormat struct{}

func (tomlFormat) Name() string         { return "toml" }
func (tomlFormat) Extensions() []string { return []string{".toml"} }

type tomlDocument struct {
	Options map[string]any      `toml:"options"`
	Tasks   map[string]tomlTask `toml:"tasks"`
}

type tomlTask struct {
	Description string         `toml:"description"`
	Desc        string         `toml:"desc"`
	Options     map[string]any `toml:"options"`
}

func (tomlFormat) Decode(filename string, data []byte) (*File, error) {
	var doc tomlDocument
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	order, err := tomlKeyOrder(data)
	if err != nil {
		return nil, err
	}

	f := &File{}
	if len(doc.Options) > 0 {
		f.Options = order.raw(doc.Options, "options")
	}
	for _, name := range order.sorted(slices.Sorted(maps.Keys(doc.Tasks)), "tasks") {
		t := doc.Tasks[name]
		task := model.Task{
			Name:        name,
			Description: taskDescription(map[string]any{"description": nonEmpty(t.Description), "desc": nonEmpty(t.Desc)}),
		}
		if len(t.Options) > 0 {
			task.Options = order.raw(t.Options, "tasks", name, "options")
		}
		f.Tasks = append(f.Tasks, task)
	}
	return f, nil
}

// keyOrder maps a key path to the position where it first appears in the
// document. Parent paths are recorded with their first child.
type keyOrder map[string]int

func keyPath(parts ...string) string { return strings.Join(parts, "\x00") }

func (o keyOrder) see(path []string) {
	for i := 1; i <= len(path); i++ {
		k := keyPath(path[:i]...)
		if _, ok := o[k]; !ok {
			o[k] = len(o)
		}
	}
}

func (o keyOrder) position(prefix []string, name string) int {
	if i, ok := o[keyPath(append(slices.Clone(prefix), name)...)]; ok {
		return i
	}
	return len(o)
}

// sorted orders names by first appearance under prefix. Names the parser
// never reported keep their relative order at the end.
func (o keyOrder) sorted(names []string, prefix ...string) []string {
	sort.SliceStable(names, func(i, j int) bool {
		return o.position(prefix, names[i]) < o.position(prefix, names[j])
	})
	return names
}

// raw builds the option entries of m in declaration order.
func (o keyOrder) raw(m map[string]any, prefix ...string) schema.Raw {
	raw := schema.FromMap(m)
	sort.SliceStable(raw, func(i, j int) bool {
		return o.position(prefix, raw[i].Name) < o.position(prefix, raw[j].Name)
	})
	return raw
}

func (o keyOrder) keyValue(prefix []string, kv *unstable.Node) {
	path := append(slices.Clone(prefix), keyParts(kv.Key())...)
	o.see(path)
	if v := kv.Value(); v.Kind == unstable.InlineTable {
		it := v.Children()
		for it.Next() {
			if n := it.Node(); n.Kind == unstable.KeyValue {
				o.keyValue(path, n)
			}
		}
	}
}

// tomlKeyOrder walks the document's expressions in file order.
func tomlKeyOrder(data []byte) (keyOrder, error) {
	order := keyOrder{}
	var p unstable.Parser
	p.Reset(data)
	var table []string
	for p.NextExpression() {
		e := p.Expression()
		switch e.Kind {
		case unstable.Table, unstable.ArrayTable:
			table = keyParts(e.Key())
			order.see(table)
		case unstable.KeyValue:
			order.keyValue(table, e)
		}
	}
	return order, p.Error()
}

func keyParts(it unstable.Iterator) []string {
	var parts []string
	for it.Next() {
		parts = append(parts, string(it.Node().Data))
	}
	return parts
}
