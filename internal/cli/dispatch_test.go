package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/scbrown/flit/internal/argparse"
	"github.com/scbrown/flit/internal/ctxlog"
	"github.com/scbrown/flit/internal/flitfile"
	flitlog "github.com/scbrown/flit/internal/log"
	"github.com/scbrown/flit/internal/model"
	"github.com/scbrown/flit/internal/project"
	"github.com/scbrown/flit/internal/schema"
	"github.com/scbrown/flit/internal/tool"
)

const projectFlitfile = `options:
  env: {desc: Target environment, short: e}
tasks:
  build:
    description: Compile everything
    options:
      watch: {alias: w, flag: true, help: Rebuild on change}
`

// fakeModule records what the dispatcher hands to the tool.
type fakeModule struct {
	name, version, path string
	tasks               []model.Task
	options             []schema.Source
	cliErr              error

	configured []*flitfile.File
	invoked    *argparse.Options
	invokedEnv *model.Env
}

func (m *fakeModule) Name() string    { return m.name }
func (m *fakeModule) Version() string { return m.version }
func (m *fakeModule) Path() string    { return m.path }

func (m *fakeModule) Tasks() []model.Task {
	tasks := append([]model.Task(nil), m.tasks...)
	for _, f := range m.configured {
		tasks = append(tasks, f.Tasks...)
	}
	return tasks
}

func (m *fakeModule) Options() []schema.Source {
	out := append([]schema.Source(nil), m.options...)
	for _, f := range m.configured {
		if len(f.Options) > 0 {
			out = append(out, f.Options)
		}
		for _, t := range f.Tasks {
			if len(t.Options) > 0 {
				out = append(out, t.Options)
			}
		}
	}
	return out
}

func (m *fakeModule) Configure(f *flitfile.File) error {
	m.configured = append(m.configured, f)
	return nil
}

func (m *fakeModule) CLI(ctx context.Context, env *model.Env, opts *argparse.Options) error {
	m.invoked = opts
	m.invokedEnv = env
	return m.cliErr
}

// exitCodeError mimics *exec.ExitError.
type exitCodeError int

func (e exitCodeError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }
func (e exitCodeError) ExitCode() int { return int(e) }

// failLocator fails the test when the dispatcher tries to locate a project.
type failLocator struct{ t *testing.T }

func (l failLocator) Locate(context.Context, model.Startup, project.Request) (*project.Result, error) {
	l.t.Fatal("Locate should not be called")
	return nil, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// newProject creates a flitfile with the given content and a local install.
func newProject(t *testing.T, flitfileContent string) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "flitfile.yaml"), flitfileContent)
	writeFile(t, filepath.Join(root, "flit_modules", "flit", "flit.toml"), "name = \"demo\"\n")
	return root
}

func demoModule(root string) *fakeModule {
	return &fakeModule{
		name:    "demo",
		version: "1.2.3",
		path:    filepath.Join(root, "flit_modules", "flit"),
	}
}

type harness struct {
	d      *Dispatcher
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	logs   *bytes.Buffer
	ctx    context.Context
}

func newHarness(t *testing.T, cwd string, mod *fakeModule) *harness {
	t.Helper()
	h := &harness{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}, logs: &bytes.Buffer{}}
	h.d = &Dispatcher{
		Startup: model.Startup{InitCwd: cwd},
		Locator: &project.Locator{},
		LoadTool: func(ctx context.Context, env *model.Env) (tool.Module, error) {
			if mod == nil {
				t.Fatal("LoadTool should not be called")
			}
			return mod, nil
		},
		Completion: func(shell string, w io.Writer) error {
			return writeCompletion(NewRootCommand(model.Startup{}), shell, w)
		},
		Stdout: h.stdout,
		Stderr: h.stderr,
		Color:  "never",
	}
	logger := slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
	h.ctx = ctxlog.WithLogger(context.Background(), logger)
	return h
}

func (h *harness) run(argv ...string) error {
	return h.d.Run(h.ctx, argv)
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %T: %v", err, err)
	}
	return exitErr.Code
}

func TestVersionVerbose(t *testing.T) {
	root := newProject(t, "")
	mod := demoModule(root)
	mod.tasks = []model.Task{{Name: "test"}, {Name: "build"}}
	mod.options = []schema.Source{schema.Raw{
		{Name: "watch", Value: map[string]any{"alias": "w", "flag": true, "help": "Rebuild on change"}},
	}}
	h := newHarness(t, root, mod)

	if err := h.run("--version", "--verbose"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "flit v1.2.3\n" +
		"Local flit installed at " + tildify(mod.path) + "\n" +
		"Available tasks: build test\n" +
		"Available options: --help -h --base --flitfile --require -r --verbose -v --version -V --completion --watch -w\n"
	if got := h.stdout.String(); got != want {
		t.Errorf("stdout:\ngot  %q\nwant %q", got, want)
	}
	if mod.invoked != nil {
		t.Error("tool CLI should not run for --version")
	}
}

func TestVersionWithoutVerbose(t *testing.T) {
	root := newProject(t, "")
	mod := demoModule(root)
	mod.version = "v2.0.0"
	h := newHarness(t, root, mod)

	if err := h.run("-V"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.stdout.String(); got != "flit v2.0.0\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestMissingInstall(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cwd := filepath.Join(home, "proj")
	writeFile(t, filepath.Join(cwd, "flitfile.yaml"), projectFlitfile)
	h := newHarness(t, cwd, nil)

	err := h.run("build")
	if code := exitCode(t, err); code != ExitFailure {
		t.Fatalf("exit code = %d, want %d", code, ExitFailure)
	}
	if !errors.Is(err, project.ErrProjectNotFound) {
		t.Errorf("expected ErrProjectNotFound, got %v", err)
	}

	out := h.stderr.String()
	if !strings.Contains(out, "Local flit not found in "+filepath.Join("~", "proj")) {
		t.Errorf("missing install message with tilde path, got %q", out)
	}
	if !strings.Contains(out, "Try installing flit under "+filepath.Join("flit_modules", "flit")) {
		t.Errorf("missing install hint, got %q", out)
	}
	if h.stdout.Len() != 0 {
		t.Errorf("unexpected stdout %q", h.stdout.String())
	}
}

func TestMissingInstallHintUsesModuleDir(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "flitfile.yaml"), "")
	h := newHarness(t, cwd, nil)
	h.d.ModuleDir = ".tools"

	if code := exitCode(t, h.run()); code != ExitFailure {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(h.stderr.String(), "Try installing flit under "+filepath.Join(".tools", "flit")) {
		t.Errorf("stderr = %q", h.stderr.String())
	}
}

func TestMissingFlitfile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "flit_modules", "flit", "flit.toml"), "")
	h := newHarness(t, root, nil)

	err := h.run()
	if code := exitCode(t, err); code != ExitFailure {
		t.Fatalf("exit code = %d, want %d", code, ExitFailure)
	}
	if !errors.Is(err, project.ErrConfigNotFound) {
		t.Errorf("expected ErrConfigNotFound, got %v", err)
	}
	if got := h.stderr.String(); got != "No flitfile found\n" {
		t.Errorf("stderr = %q", got)
	}
}

func TestMissingProjectHelp(t *testing.T) {
	h := newHarness(t, t.TempDir(), nil)

	if err := h.run("--help"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := h.stdout.String()
	if !strings.HasPrefix(out, "Usage: flit [options]\n") {
		t.Errorf("usage line missing, got %q", out)
	}
	for _, e := range BuiltinOptions {
		desc := e.Value.(map[string]any)["description"].(string)
		if !strings.Contains(out, desc) {
			t.Errorf("usage missing help text %q", desc)
		}
		if !strings.Contains(out, "--"+e.Name) {
			t.Errorf("usage missing --%s", e.Name)
		}
	}
}

func TestMissingProjectVersion(t *testing.T) {
	h := newHarness(t, t.TempDir(), nil)

	if err := h.run("--version"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := h.stdout.String(), "flit v"+cliVersion()+"\n"; got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}

	// --version prints first, then --help still shows usage.
	h = newHarness(t, t.TempDir(), nil)
	if err := h.run("-V", "-h"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.SplitN(h.stdout.String(), "\n", 2)
	if lines[0] != "flit v"+cliVersion() || !strings.HasPrefix(lines[1], "Usage: flit") {
		t.Errorf("stdout = %q", h.stdout.String())
	}
}

func TestCompletion(t *testing.T) {
	tests := []struct {
		shell string
		want  string
	}{
		{"bash", "# bash completion for flit"},
		{"zsh", "#compdef flit"},
		{"fish", "complete -c flit"},
		{"powershell", "Register-ArgumentCompleter"},
	}
	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			h := newHarness(t, t.TempDir(), nil)
			h.d.Locator = failLocator{t}

			if err := h.run("--completion", tt.shell); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(h.stdout.String(), tt.want) {
				t.Errorf("completion output missing %q", tt.want)
			}
		})
	}
}

func TestCompletionBashKnowsBuiltinFlags(t *testing.T) {
	h := newHarness(t, t.TempDir(), nil)
	h.d.Locator = failLocator{t}
	if err := h.run("--completion", "bash"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, flag := range []string{"--flitfile", "--require", "--verbose"} {
		if !strings.Contains(h.stdout.String(), flag) {
			t.Errorf("bash completion missing %s", flag)
		}
	}
}

func TestCompletionUnknownShell(t *testing.T) {
	h := newHarness(t, t.TempDir(), nil)
	h.d.Locator = failLocator{t}

	if code := exitCode(t, h.run("--completion", "tcsh")); code != ExitFailure {
		t.Fatalf("exit code = %d, want %d", code, ExitFailure)
	}
	if !strings.Contains(h.stderr.String(), `unsupported completion shell "tcsh"`) {
		t.Errorf("stderr = %q", h.stderr.String())
	}
}

func TestHelpDoesNotInvoke(t *testing.T) {
	root := newProject(t, projectFlitfile)
	mod := demoModule(root)
	h := newHarness(t, root, mod)

	if err := h.run("build", "--help"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mod.invoked != nil {
		t.Error("tool CLI should not run for --help")
	}
	out := h.stdout.String()
	for _, want := range []string{
		"Usage: flit [options]",
		"--watch", "Rebuild on change",
		"--env", "Target environment",
		"Display this help text.",
		"Tasks:", "build", "Compile everything",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q:\n%s", want, out)
		}
	}
}

func TestHelpTaskDescriptionsAreMuted(t *testing.T) {
	root := newProject(t, projectFlitfile)
	mod := demoModule(root)
	h := newHarness(t, root, mod)
	h.d.Color = "always"

	if err := h.run("--help"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := newStyles(&bytes.Buffer{}, "always").Muted.Render("Compile everything")
	if !strings.Contains(want, "\x1b[") {
		t.Fatalf("muted style rendered without color: %q", want)
	}
	if !strings.Contains(h.stdout.String(), want) {
		t.Errorf("help output missing muted description %q:\n%q", want, h.stdout.String())
	}
}

func TestInvokePassesOptions(t *testing.T) {
	root := newProject(t, projectFlitfile)
	mod := demoModule(root)
	h := newHarness(t, root, mod)

	if err := h.run("build", "-w", "-e", "prod", "--verbose"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	opts := mod.invoked
	if opts == nil {
		t.Fatal("tool CLI was not invoked")
	}
	if !opts.Bool("watch") || !opts.Bool("w") {
		t.Error("watch should be set by name and alias")
	}
	if v, _ := opts.String("env"); v != "prod" {
		t.Errorf("env = %q, want prod", v)
	}
	if !opts.Bool("verbose") {
		t.Error("verbose should be set")
	}
	if got := opts.Args(); len(got) != 1 || got[0] != "build" {
		t.Errorf("args = %v, want [build]", got)
	}
	if mod.invokedEnv.ConfigPath != filepath.Join(root, "flitfile.yaml") {
		t.Errorf("config path = %q", mod.invokedEnv.ConfigPath)
	}
	if mod.invokedEnv.Cwd != root {
		t.Errorf("cwd = %q, want %q", mod.invokedEnv.Cwd, root)
	}
	if len(mod.configured) != 1 {
		t.Errorf("flitfile should be configured once, got %d", len(mod.configured))
	}
}

func TestEmptyFlitfileIsNotConfigured(t *testing.T) {
	root := newProject(t, "")
	mod := demoModule(root)
	h := newHarness(t, root, mod)

	if err := h.run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mod.configured) != 0 {
		t.Errorf("empty flitfile should not be configured")
	}
	if mod.invoked == nil {
		t.Error("tool CLI should run")
	}
}

func TestUnknownOptionFails(t *testing.T) {
	root := newProject(t, projectFlitfile)
	mod := demoModule(root)
	h := newHarness(t, root, mod)

	if code := exitCode(t, h.run("build", "--wach")); code != ExitFailure {
		t.Fatalf("exit code = %d, want %d", code, ExitFailure)
	}
	out := h.stderr.String()
	for _, want := range []string{"unknown flag: --wach", "Did you mean --watch?", "Run 'flit --help' for usage."} {
		if !strings.Contains(out, want) {
			t.Errorf("stderr missing %q:\n%s", want, out)
		}
	}
	if mod.invoked != nil {
		t.Error("tool CLI should not run after a parse failure")
	}
}

func TestToolExitCodePropagated(t *testing.T) {
	root := newProject(t, "")
	mod := demoModule(root)
	mod.cliErr = exitCodeError(3)
	h := newHarness(t, root, mod)

	err := h.run()
	if code := exitCode(t, err); code != 3 {
		t.Fatalf("exit code = %d, want 3", code)
	}
	var stderr bytes.Buffer
	if code := reportExit(&stderr, err); code != 3 || stderr.Len() != 0 {
		t.Errorf("reportExit = %d, %q; want 3 and no output", code, stderr.String())
	}
}

func TestToolFailure(t *testing.T) {
	root := newProject(t, "")
	mod := demoModule(root)
	mod.cliErr = errors.New("entrypoint missing")
	h := newHarness(t, root, mod)

	err := h.run()
	if code := exitCode(t, err); code != ExitFailure {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(err.Error(), "running demo: entrypoint missing") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadToolFailure(t *testing.T) {
	root := newProject(t, "")
	h := newHarness(t, root, nil)
	h.d.LoadTool = func(context.Context, *model.Env) (tool.Module, error) {
		return nil, errors.New("bad manifest")
	}

	err := h.run()
	if code := exitCode(t, err); code != ExitFailure {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(err.Error(), "loading local flit from") || !strings.Contains(err.Error(), "bad manifest") {
		t.Errorf("err = %v", err)
	}
}

func TestBrokenFlitfile(t *testing.T) {
	root := newProject(t, "options: [oops\n")
	h := newHarness(t, root, demoModule(root))

	err := h.run()
	if code := exitCode(t, err); code != ExitFailure {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(err.Error(), "loading flitfile") {
		t.Errorf("err = %v", err)
	}
}

func TestConfigurationErrorsAreWarnings(t *testing.T) {
	root := newProject(t, "")
	mod := demoModule(root)
	mod.options = []schema.Source{schema.Raw{
		{Name: "deploy", Value: func() {}},
		{Name: "dry-run", Value: map[string]any{"flag": true}},
		{Name: "hard", Value: map[string]any{"alias": "h", "flag": true}},
	}}
	h := newHarness(t, root, mod)

	if err := h.run("--dry-run", "--hard"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mod.invoked == nil || !mod.invoked.Bool("dry-run") || !mod.invoked.Bool("hard") {
		t.Fatal("usable options should still be parsed")
	}
	if mod.invoked.Has("deploy") {
		t.Error("command-style option should be skipped")
	}
	logs := h.logs.String()
	for _, want := range []string{"ignoring option", "option=deploy", "option=hard", "already in use"} {
		if !strings.Contains(logs, want) {
			t.Errorf("logs missing %q:\n%s", want, logs)
		}
	}
}

func TestRequireFragmentsConfiguredBeforeFlitfile(t *testing.T) {
	root := newProject(t, projectFlitfile)
	writeFile(t, filepath.Join(root, "tasks", "lint.yaml"), "tasks:\n  lint:\n    description: Lint\n    options:\n      fix: {flag: true}\n")
	mod := demoModule(root)
	h := newHarness(t, root, mod)

	if err := h.run("-r", "tasks/*.yaml", "--require", "missing.yaml", "lint", "--fix"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mod.configured) != 2 {
		t.Fatalf("configured %d files, want 2", len(mod.configured))
	}
	if filepath.Base(mod.configured[0].Path) != "lint.yaml" {
		t.Errorf("first configured = %q, want lint.yaml", mod.configured[0].Path)
	}
	if filepath.Base(mod.configured[1].Path) != "flitfile.yaml" {
		t.Errorf("second configured = %q, want flitfile.yaml", mod.configured[1].Path)
	}
	if !mod.invoked.Bool("fix") {
		t.Error("fragment option --fix should be parsed")
	}
	if got := mod.invoked.Strings("require"); len(got) != 2 {
		t.Errorf("require = %v", got)
	}
	if !strings.Contains(h.logs.String(), "Failed to load external module") {
		t.Errorf("missing require failure log:\n%s", h.logs.String())
	}
}

func TestVerboseRebuildsLogger(t *testing.T) {
	root := newProject(t, "")
	var logs bytes.Buffer
	h := newHarness(t, root, demoModule(root))
	h.d.LogConfig = &flitlog.Config{Level: "warn", Format: flitlog.FormatText, Output: &logs}

	if err := h.run("--verbose"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(logs.String(), "state=invoking") {
		t.Errorf("expected debug state logs with --verbose:\n%s", logs.String())
	}
	if !strings.Contains(logs.String(), `msg="merged options"`) {
		t.Errorf("expected merged option count with --verbose:\n%s", logs.String())
	}

	logs.Reset()
	if err := h.run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(logs.String(), "state=") {
		t.Errorf("unexpected debug logs without --verbose:\n%s", logs.String())
	}
}
