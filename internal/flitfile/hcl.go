package flitfile

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/scbrown/flit/internal/model"
	"github.com/scbrown/flit/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// hclFormat decodes HCL flitfiles:
//
//	option "env" {
//	  desc  = "Target environment"
//	  short = "e"
//	}
//
//	task "build" {
//	  description = "Compile everything"
//	  option "watch" {
//	    alias = "w"
//	    flag  = true
//	  }
//	}
//
// Option attributes are free-form so every synonym is accepted.
type hclFormat struct{}

func (hclFormat) Name() string         { return "hcl" }
func (hclFormat) Extensions() []string { return []string{".hcl"} }

func (hclFormat) Decode(filename string, data []byte) (*File, error) {
	file, diags := hclsyntax.ParseConfig(data, filename, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, diags
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("unexpected HCL body type %T", file.Body)
	}
	if len(body.Attributes) > 0 {
		names := make([]string, 0, len(body.Attributes))
		for name := range body.Attributes {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unexpected top-level attributes: %s", strings.Join(names, ", "))
	}

	f := &File{}
	for _, blk := range body.Blocks {
		switch blk.Type {
		case "option":
			entry, err := hclOption(blk)
			if err != nil {
				return nil, err
			}
			f.Options = append(f.Options, entry)
		case "task":
			task, err := hclTask(blk)
			if err != nil {
				return nil, err
			}
			f.Tasks = append(f.Tasks, task)
		default:
			return nil, fmt.Errorf("%s: unexpected block %q", blk.TypeRange, blk.Type)
		}
	}
	return f, nil
}

func hclOption(blk *hclsyntax.Block) (schema.Entry, error) {
	if len(blk.Labels) != 1 {
		return schema.Entry{}, fmt.Errorf("%s: option block needs exactly one label", blk.TypeRange)
	}
	if len(blk.Body.Blocks) > 0 {
		return schema.Entry{}, fmt.Errorf("%s: option %q cannot contain blocks", blk.Body.Blocks[0].TypeRange, blk.Labels[0])
	}
	desc, err := hclAttributes(blk.Body)
	if err != nil {
		return schema.Entry{}, err
	}
	return schema.Entry{Name: blk.Labels[0], Value: desc}, nil
}

func hclTask(blk *hclsyntax.Block) (model.Task, error) {
	if len(blk.Labels) != 1 {
		return model.Task{}, fmt.Errorf("%s: task block needs exactly one label", blk.TypeRange)
	}
	task := model.Task{Name: blk.Labels[0]}
	fields, err := hclAttributes(blk.Body)
	if err != nil {
		return task, err
	}
	task.Description = taskDescription(fields)
	for _, inner := range blk.Body.Blocks {
		if inner.Type != "option" {
			return task, fmt.Errorf("%s: unexpected block %q in task %q", inner.TypeRange, inner.Type, task.Name)
		}
		entry, err := hclOption(inner)
		if err != nil {
			return task, err
		}
		task.Options = append(task.Options, entry)
	}
	return task, nil
}

func hclAttributes(body *hclsyntax.Body) (map[string]any, error) {
	out := make(map[string]any, len(body.Attributes))
	for name, attr := range body.Attributes {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		v, err := ctyToGo(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", attr.SrcRange, err)
		}
		out[name] = v
	}
	return out, nil
}

// ctyToGo converts a fully known cty value to plain Go values.
func ctyToGo(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known")
	}
	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString(), nil
	case t == cty.Bool:
		return v.True(), nil
	case t == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case t.IsListType(), t.IsTupleType(), t.IsSetType():
		var out []any
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			gv, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, gv)
		}
		return out, nil
	case t.IsMapType(), t.IsObjectType():
		out := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			gv, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = gv
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value type %s", t.FriendlyName())
}
