package flitfile

import (
	"encoding/json"
	"fmt"

	"github.com/scbrown/flit/internal/model"
	"github.com/scbrown/flit/internal/schema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// jsonFormat decodes objects into ordered maps so declaration order survives.
type jsonFormat struct{}

func (jsonFormat) Name() string         { return "json" }
func (jsonFormat) Extensions() []string { return []string{".json"} }

func (jsonFormat) Decode(filename string, data []byte) (*File, error) {
	top := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(data, top); err != nil {
		return nil, err
	}
	f := &File{}
	if raw, ok := top.Get("options"); ok {
		opts, err := jsonOptions(raw)
		if err != nil {
			return nil, err
		}
		f.Options = opts
	}
	if raw, ok := top.Get("tasks"); ok && !isJSONNull(raw) {
		tasks := orderedmap.New[string, json.RawMessage]()
		if err := json.Unmarshal(raw, tasks); err != nil {
			return nil, fmt.Errorf("tasks: %w", err)
		}
		for pair := tasks.Oldest(); pair != nil; pair = pair.Next() {
			task, err := jsonTask(pair.Key, pair.Value)
			if err != nil {
				return nil, err
			}
			f.Tasks = append(f.Tasks, task)
		}
	}
	return f, nil
}

func jsonOptions(raw json.RawMessage) (schema.Raw, error) {
	if isJSONNull(raw) {
		return nil, nil
	}
	opts := orderedmap.New[string, any]()
	if err := json.Unmarshal(raw, opts); err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}
	out := make(schema.Raw, 0, opts.Len())
	for pair := opts.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, schema.Entry{Name: pair.Key, Value: pair.Value})
	}
	return out, nil
}

func jsonTask(name string, raw json.RawMessage) (model.Task, error) {
	task := model.Task{Name: name}
	if isJSONNull(raw) {
		return task, nil
	}
	var body struct {
		Description string          `json:"description"`
		Desc        string          `json:"desc"`
		Options     json.RawMessage `json:"options"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return task, fmt.Errorf("task %q: %w", name, err)
	}
	task.Description = taskDescription(map[string]any{"description": nonEmpty(body.Description), "desc": nonEmpty(body.Desc)})
	if len(body.Options) > 0 {
		opts, err := jsonOptions(body.Options)
		if err != nil {
			return task, fmt.Errorf("task %q: %w", name, err)
		}
		task.Options = opts
	}
	return task, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// nonEmpty maps "" to nil so taskDescription falls through to the next key.
func nonEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
