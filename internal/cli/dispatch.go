package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/scbrown/flit/internal/argparse"
	"github.com/scbrown/flit/internal/config"
	"github.com/scbrown/flit/internal/ctxlog"
	"github.com/scbrown/flit/internal/flitfile"
	flitlog "github.com/scbrown/flit/internal/log"
	"github.com/scbrown/flit/internal/model"
	"github.com/scbrown/flit/internal/project"
	"github.com/scbrown/flit/internal/schema"
	"github.com/scbrown/flit/internal/suggest"
	"github.com/scbrown/flit/internal/tool"
)

// state is a step of a dispatcher run. States are logged at debug level.
type state string

const (
	stateParsingGlobal  state = "parsing_global_options"
	stateLocating       state = "locating_project"
	stateProjectMissing state = "project_missing"
	stateConfigMissing  state = "config_missing"
	stateLoadingTool    state = "loading_tool"
	stateReparsing      state = "reparsing_with_task_options"
	stateInvoking       state = "invoking"
)

// Locator finds the project for a run.
type Locator interface {
	Locate(ctx context.Context, startup model.Startup, req project.Request) (*project.Result, error)
}

// Dispatcher drives one flit invocation: parse the built-in options, locate
// the project, load the tool, reparse with the options the tool contributes,
// then print version or help, or hand over to the tool.
type Dispatcher struct {
	Startup  model.Startup
	Locator  Locator
	LoadTool func(ctx context.Context, env *model.Env) (tool.Module, error)

	// Completion writes the completion script for a shell.
	Completion func(shell string, w io.Writer) error

	Stdout io.Writer
	Stderr io.Writer

	// Color is the color config value (auto, always, never).
	Color string
	// ModuleDir is used in the install hint.
	ModuleDir string
	// LogConfig, when set, is used to rebuild the logger once --verbose is
	// known. Otherwise the logger in the context is used as is.
	LogConfig *flitlog.Config
}

// Run dispatches argv. The returned error is an *ExitError whenever the run
// should end with a non-zero exit code.
func (d *Dispatcher) Run(ctx context.Context, argv []string) error {
	errStyle := newStyles(d.Stderr, d.Color)

	builtin, err := schema.Normalize(BuiltinOptions)
	if err != nil {
		return &ExitError{Code: ExitFailure, Message: "invalid built-in options", Cause: err}
	}
	first, err := argparse.New(program, builtin, argparse.AllowUnknown())
	if err != nil {
		return &ExitError{Code: ExitFailure, Message: "invalid built-in options", Cause: err}
	}
	global, err := first.Parse(argv)
	if err != nil {
		return d.parseFailure(errStyle, first, err)
	}

	if d.LogConfig != nil {
		cfg := *d.LogConfig
		if global.Bool(optVerbose) {
			cfg.Level = "debug"
		}
		ctx = ctxlog.WithLogger(ctx, flitlog.New(&cfg))
	}
	d.enter(ctx, stateParsingGlobal)

	if global.Has(optCompletion) {
		shell, _ := global.String(optCompletion)
		if err := d.writeCompletion(shell); err != nil {
			fmt.Fprintln(d.Stderr, errStyle.Error.Render(err.Error()))
			return failure(err)
		}
		return nil
	}

	d.enter(ctx, stateLocating)
	req := project.Request{Require: global.Strings(optRequire)}
	req.Cwd, _ = global.String(optBase)
	req.ConfigPath, _ = global.String(optFlitfile)
	res, err := d.Locator.Locate(ctx, d.Startup, req)
	if err != nil {
		return &ExitError{Code: ExitFailure, Message: "locating project", Cause: err}
	}
	env := res.Env

	if missing := res.Missing(); missing != nil {
		return d.missing(ctx, first, global, env, missing)
	}

	d.enter(ctx, stateLoadingTool)
	mod, err := d.LoadTool(ctx, &env)
	if err != nil {
		return &ExitError{Code: ExitFailure, Message: "loading local flit from " + tildify(env.ModulePath), Cause: err}
	}
	if err := d.configure(ctx, mod, res); err != nil {
		return err
	}

	d.enter(ctx, stateReparsing)
	full, err := schema.Normalize(append([]schema.Source{builtin}, mod.Options()...)...)
	d.warnConfiguration(ctx, err)
	ctxlog.FromContext(ctx).Debug("merged options", slog.Int("options", full.Len()))
	parser, err := argparse.New(program, full)
	d.warnConfiguration(ctx, err)
	opts, err := parser.Parse(argv)
	if err != nil {
		return d.parseFailure(errStyle, parser, err)
	}

	d.enter(ctx, stateInvoking)
	if opts.Bool(optVersion) {
		d.printVersion(mod, opts)
		return nil
	}
	if opts.Bool(optHelp) {
		d.printHelp(parser, mod)
		return nil
	}
	if err := mod.CLI(ctx, &env, opts); err != nil {
		var coded interface{ ExitCode() int }
		if errors.As(err, &coded) {
			code := coded.ExitCode()
			if code <= 0 {
				code = ExitFailure
			}
			return &ExitError{Code: code, Cause: err}
		}
		return &ExitError{Code: ExitFailure, Message: "running " + mod.Name(), Cause: err}
	}
	return nil
}

func (d *Dispatcher) enter(ctx context.Context, s state) {
	ctxlog.FromContext(ctx).Debug("dispatch", slog.String("state", string(s)))
}

func (d *Dispatcher) writeCompletion(shell string) error {
	if d.Completion == nil {
		return errors.New("shell completion is not available")
	}
	return d.Completion(shell, d.Stdout)
}

// missing handles a run without a local install or without a flitfile.
// --help and --version still work; anything else is an error.
func (d *Dispatcher) missing(ctx context.Context, parser *argparse.Parser, opts *argparse.Options, env model.Env, missing error) error {
	if opts.Bool(optVersion) {
		fmt.Fprintf(d.Stdout, "%s v%s\n", program, cliVersion())
		if c := cliCommit(); c != "" && opts.Bool(optVerbose) {
			fmt.Fprintf(d.Stdout, "Built from commit %s\n", shortCommit(c))
		}
	}
	if opts.Bool(optHelp) {
		fmt.Fprint(d.Stdout, parser.Usage())
		return nil
	}
	if opts.Bool(optVersion) {
		return nil
	}

	s := newStyles(d.Stderr, d.Color)
	if errors.Is(missing, project.ErrProjectNotFound) {
		d.enter(ctx, stateProjectMissing)
		moduleDir := d.ModuleDir
		if moduleDir == "" {
			moduleDir = config.DefaultModuleDir
		}
		fmt.Fprintln(d.Stderr, s.Error.Render("Local flit not found in"), s.Path.Render(tildify(env.Cwd)))
		fmt.Fprintln(d.Stderr, s.Error.Render("Try installing flit under "+filepath.Join(moduleDir, project.InstallName)))
		return failure(missing)
	}
	d.enter(ctx, stateConfigMissing)
	fmt.Fprintln(d.Stderr, s.Error.Render("No flitfile found"))
	return failure(missing)
}

// configure applies the --require fragments, then the flitfile. A fragment
// that fails to apply is logged and skipped; a broken flitfile is fatal.
func (d *Dispatcher) configure(ctx context.Context, mod tool.Module, res *project.Result) error {
	logger := ctxlog.FromContext(ctx)
	for _, f := range res.Preloaded {
		if err := mod.Configure(f); err != nil {
			logger.Error("Failed to load external module", slog.String(flitlog.ModuleKey, f.Path), flitlog.Error(err))
		}
	}

	path := res.Env.ConfigPath
	file, err := flitfile.Load(path)
	if err != nil {
		return &ExitError{Code: ExitFailure, Message: "loading flitfile", Cause: err}
	}
	if file.Empty() {
		logger.Debug("flitfile declares nothing", slog.String(flitlog.PathKey, path))
		return nil
	}
	if err := mod.Configure(file); err != nil {
		return &ExitError{Code: ExitFailure, Message: "configuring " + tildify(path), Cause: err}
	}
	return nil
}

// warnConfiguration logs every option that was skipped while building the
// schema or the parser.
func (d *Dispatcher) warnConfiguration(ctx context.Context, err error) {
	if err == nil {
		return
	}
	logger := ctxlog.FromContext(ctx)
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		var cfgErr *schema.ConfigurationError
		if errors.As(e, &cfgErr) {
			logger.Warn("ignoring option", slog.String(flitlog.OptionKey, cfgErr.Option), flitlog.Error(cfgErr.Err))
			continue
		}
		logger.Warn("ignoring option", flitlog.Error(e))
	}
}

// parseFailure reports a parse error, suggesting close option names for an
// unknown long flag.
func (d *Dispatcher) parseFailure(s styles, parser *argparse.Parser, err error) error {
	fmt.Fprintln(d.Stderr, s.Error.Render(err.Error()))
	if _, flag, ok := strings.Cut(err.Error(), "unknown flag: --"); ok {
		var known []string
		for _, spec := range parser.Specs() {
			if !spec.Positional() {
				known = append(known, spec.Name)
			}
		}
		if names := suggest.Names(flag, known); len(names) > 0 {
			fmt.Fprintf(d.Stderr, "Did you mean --%s?\n", strings.Join(names, " or --"))
		}
	}
	fmt.Fprintf(d.Stderr, "Run '%s --help' for usage.\n", program)
	return failure(err)
}

func (d *Dispatcher) printVersion(mod tool.Module, opts *argparse.Options) {
	fmt.Fprintf(d.Stdout, "%s v%s\n", program, strings.TrimPrefix(mod.Version(), "v"))
	if !opts.Bool(optVerbose) {
		return
	}
	s := newStyles(d.Stdout, d.Color)
	var names []string
	for _, t := range mod.Tasks() {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	fmt.Fprintln(d.Stdout, "Local flit installed at", s.Path.Render(tildify(mod.Path())))
	fmt.Fprintln(d.Stdout, "Available tasks:", s.Name.Render(strings.Join(names, " ")))
	fmt.Fprintln(d.Stdout, "Available options:", s.Name.Render(strings.Join(opts.Names(), " ")))
}

func (d *Dispatcher) printHelp(parser *argparse.Parser, mod tool.Module) {
	fmt.Fprint(d.Stdout, parser.Usage())
	tasks := mod.Tasks()
	if len(tasks) == 0 {
		return
	}
	s := newStyles(d.Stdout, d.Color)
	fmt.Fprintln(d.Stdout, "\nTasks:")
	tbl := NewTable(d.Stdout)
	for _, t := range tasks {
		tbl.Row("  "+t.Name, s.Muted.Render(t.Description))
	}
	tbl.Flush()
}
