// Package tool loads the project-local flit install described by its
// flit.toml manifest and runs its entry point.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cast"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/mod/semver"

	"github.com/scbrown/flit/internal/argparse"
	"github.com/scbrown/flit/internal/ctxlog"
	"github.com/scbrown/flit/internal/flitfile"
	flitlog "github.com/scbrown/flit/internal/log"
	"github.com/scbrown/flit/internal/model"
	"github.com/scbrown/flit/internal/schema"
)

// Module is a loaded tool: it reports its identity, the tasks it knows
// about and the CLI options those tasks contribute, and runs the tool.
type Module interface {
	// Name returns the tool name from the manifest.
	Name() string
	// Version returns the tool version from the manifest.
	Version() string
	// Path returns the install directory.
	Path() string
	// Tasks returns the registered tasks in registration order.
	Tasks() []model.Task
	// Options returns the contributed option schemas in merge order.
	Options() []schema.Source
	// Configure applies a flitfile (or --require fragment) to the module.
	Configure(f *flitfile.File) error
	// CLI hands the parsed options to the tool.
	CLI(ctx context.Context, env *model.Env, opts *argparse.Options) error
}

// Environment variables passed to the entry point.
const (
	OptionsEnv    = "FLIT_OPTIONS"
	CwdEnv        = "FLIT_CWD"
	ConfigPathEnv = "FLIT_CONFIG_PATH"
	RunIDEnv      = "FLIT_RUN_ID"
)

// Manifest is the decoded flit.toml of a local install.
type Manifest struct {
	Name       string           `toml:"name"`
	Version    string           `toml:"version"`
	Entrypoint string           `toml:"entrypoint"`
	Options    []map[string]any `toml:"option"`
	Tasks      []ManifestTask   `toml:"task"`
}

// ManifestTask is a [[task]] entry of the manifest.
type ManifestTask struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
}

// ReadManifest decodes the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return &m, nil
}

// options converts the [[option]] array into a raw schema. Each entry names
// itself with a "name" key; the rest is the descriptor.
func (m *Manifest) options() (schema.Raw, error) {
	var raw schema.Raw
	for i, entry := range m.Options {
		name, err := cast.ToStringE(entry["name"])
		if err != nil || name == "" {
			return nil, fmt.Errorf("option #%d: missing name", i+1)
		}
		desc := make(map[string]any, len(entry)-1)
		for k, v := range entry {
			if k != "name" {
				desc[k] = v
			}
		}
		raw = append(raw, schema.Entry{Name: name, Value: desc})
	}
	return raw, nil
}

// Loader reads a local install into an ExecModule.
type Loader struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Load reads the manifest at env.ModulePath.
func (l *Loader) Load(ctx context.Context, env *model.Env) (*ExecModule, error) {
	logger := ctxlog.FromContext(ctx)
	if env.ModulePath == "" {
		return nil, errors.New("no local install to load")
	}
	m, err := ReadManifest(env.ModulePath)
	if err != nil {
		return nil, err
	}
	if m.Name == "" {
		m.Name = "flit"
	}
	if !semver.IsValid("v" + strings.TrimPrefix(m.Version, "v")) {
		logger.Warn("tool version is not valid semver",
			slog.String(flitlog.PathKey, env.ModulePath),
			slog.String("version", m.Version))
	}
	opts, err := m.options()
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", env.ModulePath, err)
	}

	mod := &ExecModule{
		manifest: m,
		dir:      filepath.Dir(env.ModulePath),
		options:  []schema.Source{opts},
		tasks:    orderedmap.New[string, model.Task](),
		stdin:    l.Stdin,
		stdout:   l.Stdout,
		stderr:   l.Stderr,
	}
	for _, t := range m.Tasks {
		if t.Name == "" {
			return nil, fmt.Errorf("manifest %s: task without name", env.ModulePath)
		}
		mod.tasks.Set(t.Name, model.Task{Name: t.Name, Description: t.Description})
	}
	logger.Debug("loaded tool",
		slog.String(flitlog.ModuleKey, m.Name),
		slog.String("version", m.Version),
		slog.Int("tasks", mod.tasks.Len()))
	return mod, nil
}

// ExecModule is a Module whose CLI runs the manifest's entry point as a
// child process.
type ExecModule struct {
	manifest *Manifest
	dir      string
	options  []schema.Source
	tasks    *orderedmap.OrderedMap[string, model.Task]

	stdin          io.Reader
	stdout, stderr io.Writer
}

func (m *ExecModule) Name() string    { return m.manifest.Name }
func (m *ExecModule) Version() string { return m.manifest.Version }
func (m *ExecModule) Path() string    { return m.dir }

func (m *ExecModule) Tasks() []model.Task {
	tasks := make([]model.Task, 0, m.tasks.Len())
	for pair := m.tasks.Oldest(); pair != nil; pair = pair.Next() {
		tasks = append(tasks, pair.Value)
	}
	return tasks
}

// Options returns the manifest options, then file-level options of each
// configured file, then each task's options in task order.
func (m *ExecModule) Options() []schema.Source {
	out := append([]schema.Source(nil), m.options...)
	for pair := m.tasks.Oldest(); pair != nil; pair = pair.Next() {
		if len(pair.Value.Options) > 0 {
			out = append(out, pair.Value.Options)
		}
	}
	return out
}

// Configure registers the file's options and tasks. A task that is already
// known keeps its position; a non-empty description replaces the old one
// and its options are appended.
func (m *ExecModule) Configure(f *flitfile.File) error {
	if f == nil {
		return nil
	}
	if len(f.Options) > 0 {
		m.options = append(m.options, f.Options)
	}
	for _, t := range f.Tasks {
		if t.Name == "" {
			return fmt.Errorf("%s: task without name", f.Path)
		}
		cur, ok := m.tasks.Get(t.Name)
		if !ok {
			m.tasks.Set(t.Name, t)
			continue
		}
		if t.Description != "" {
			cur.Description = t.Description
		}
		cur.Options = append(append(schema.Raw(nil), cur.Options...), t.Options...)
		m.tasks.Set(t.Name, cur)
	}
	return nil
}

// CLI runs the entry point with the positional arguments in env.Cwd. A
// non-zero exit is returned as *exec.ExitError.
func (m *ExecModule) CLI(ctx context.Context, env *model.Env, opts *argparse.Options) error {
	logger := ctxlog.FromContext(ctx)

	argv, err := shellquote.Split(m.manifest.Entrypoint)
	if err != nil {
		return fmt.Errorf("parsing entrypoint: %w", err)
	}
	if len(argv) == 0 {
		return fmt.Errorf("%s has no entrypoint", m.Name())
	}
	argv[0] = m.resolveProgram(argv[0])
	argv = append(argv, opts.Args()...)

	payload, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("encoding options: %w", err)
	}
	runID := uuid.New().String()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = env.Cwd
	cmd.Env = append(os.Environ(),
		OptionsEnv+"="+string(payload),
		CwdEnv+"="+env.Cwd,
		ConfigPathEnv+"="+env.ConfigPath,
		RunIDEnv+"="+runID,
		model.InitCwdEnv+"="+env.InitCwd,
	)
	cmd.Stdin = m.stdin
	cmd.Stdout = m.stdout
	cmd.Stderr = m.stderr

	logger.Debug("invoking tool",
		slog.String(flitlog.RunIDKey, runID),
		slog.String(flitlog.ModuleKey, m.Name()),
		slog.Any("argv", argv))
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr
		}
		return fmt.Errorf("running %s: %w", m.Name(), err)
	}
	return nil
}

// resolveProgram makes relative paths relative to the install directory.
// Bare names that do not exist there are left for PATH lookup.
func (m *ExecModule) resolveProgram(prog string) string {
	if filepath.IsAbs(prog) {
		return prog
	}
	candidate := filepath.Join(m.dir, prog)
	if strings.ContainsRune(prog, os.PathSeparator) || strings.Contains(prog, "/") {
		return candidate
	}
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate
	}
	return prog
}
