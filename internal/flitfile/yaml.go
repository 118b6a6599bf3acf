package flitfile

import (
	"fmt"

	"github.com/scbrown/flit/internal/model"
	"github.com/scbrown/flit/internal/schema"
	"gopkg.in/yaml.v3"
)

// yamlFormat decodes through yaml.Node so declaration order survives.
type yamlFormat struct{}

func (yamlFormat) Name() string         { return "yaml" }
func (yamlFormat) Extensions() []string { return []string{".yaml", ".yml"} }

func (yamlFormat) Decode(filename string, data []byte) (*File, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	f := &File{}
	if len(doc.Content) == 0 {
		return f, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: top level must be a mapping", root.Line)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		switch key.Value {
		case "options":
			raw, err := yamlOptions(val)
			if err != nil {
				return nil, err
			}
			f.Options = raw
		case "tasks":
			tasks, err := yamlTasks(val)
			if err != nil {
				return nil, err
			}
			f.Tasks = tasks
		}
	}
	return f, nil
}

func yamlOptions(n *yaml.Node) (schema.Raw, error) {
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: options must be a mapping", n.Line)
	}
	raw := make(schema.Raw, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		var v any
		if err := n.Content[i+1].Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: option %q: %w", n.Content[i].Line, n.Content[i].Value, err)
		}
		raw = append(raw, schema.Entry{Name: n.Content[i].Value, Value: v})
	}
	return raw, nil
}

func yamlTasks(n *yaml.Node) ([]model.Task, error) {
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: tasks must be a mapping", n.Line)
	}
	tasks := make([]model.Task, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		name, body := n.Content[i].Value, n.Content[i+1]
		task := model.Task{Name: name}
		if !isNull(body) {
			if body.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("line %d: task %q must be a mapping", body.Line, name)
			}
			fields := make(map[string]any)
			for j := 0; j+1 < len(body.Content); j += 2 {
				k, v := body.Content[j], body.Content[j+1]
				if k.Value == "options" {
					raw, err := yamlOptions(v)
					if err != nil {
						return nil, fmt.Errorf("task %q: %w", name, err)
					}
					task.Options = raw
					continue
				}
				if v.Kind == yaml.ScalarNode {
					fields[k.Value] = v.Value
				}
			}
			task.Description = taskDescription(fields)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func isNull(n *yaml.Node) bool {
	return n == nil || (n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null")
}
