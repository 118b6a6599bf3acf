// Package cli defines the cobra root command and the dispatcher behind the
// flit CLI.
package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/scbrown/flit/internal/argparse"
	"github.com/scbrown/flit/internal/config"
	"github.com/scbrown/flit/internal/ctxlog"
	flitlog "github.com/scbrown/flit/internal/log"
	"github.com/scbrown/flit/internal/model"
	"github.com/scbrown/flit/internal/project"
	"github.com/scbrown/flit/internal/schema"
	"github.com/scbrown/flit/internal/tool"
)

// NewRootCommand builds the flit command. Flag parsing is left to the
// dispatcher because the accepted options depend on the project; the
// built-in options are still declared so completion scripts know them.
func NewRootCommand(startup model.Startup) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flit [task...] [options]",
		Short: "flit - run project tasks with the local flit install",
		Long: `flit finds the nearest flitfile and the project-local flit install, merges
the built-in options with the options your tasks contribute, and hands the
parsed options to the local install's entry point.

A flitfile is flitfile.yaml, .yml, .json, .toml or .hcl in the current or a
parent directory. The local install lives in flit_modules/flit (configurable
via module_dir in ~/.flit/config.toml).`,
		Example: `  # Run a task with a task-contributed option
  flit build --watch

  # Show the tool version, tasks and options
  flit --version --verbose

  # Pre-load task fragments
  flit -r 'tasks/**/*.yaml' lint

  # Install bash completion
  flit --completion bash > ~/.local/share/bash-completion/completions/flit`,
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		SilenceErrors:      true,
		SilenceUsage:       true,
		CompletionOptions:  cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	if builtin, err := schema.Normalize(BuiltinOptions); err == nil {
		_ = argparse.Register(cmd.Flags(), builtin)
	}

	cmd.RunE = func(c *cobra.Command, args []string) error {
		cfg, cfgErr := config.Load()
		if cfgErr != nil {
			cfg = &config.Config{}
		}

		logCfg := flitlog.DefaultConfig()
		logCfg.Output = c.ErrOrStderr()
		if cfg.LogLevel != "" {
			logCfg.Level = cfg.LogLevel
		}
		if cfg.LogFormat != "" {
			logCfg.Format = flitlog.Format(cfg.LogFormat)
		}
		logCfg = flitlog.FromEnv(logCfg)

		ctx := ctxlog.WithLogger(c.Context(), flitlog.New(logCfg))
		logger := ctxlog.FromContext(ctx)
		if cfgErr != nil {
			logger.Warn("ignoring user config",
				slog.String(flitlog.PathKey, config.Path()), flitlog.Error(cfgErr))
		}
		for _, key := range config.ValidKeys() {
			if v, err := cfg.Get(key); err == nil && v != "" {
				logger.Debug("user config", slog.String("key", key), slog.String("value", v))
			}
		}

		loader := &tool.Loader{Stdin: c.InOrStdin(), Stdout: c.OutOrStdout(), Stderr: c.ErrOrStderr()}
		d := &Dispatcher{
			Startup: startup,
			Locator: &project.Locator{ModuleDir: cfg.ModuleDirOrDefault()},
			LoadTool: func(ctx context.Context, env *model.Env) (tool.Module, error) {
				mod, err := loader.Load(ctx, env)
				if err != nil {
					return nil, err
				}
				return mod, nil
			},
			Completion: func(shell string, w io.Writer) error {
				return writeCompletion(c.Root(), shell, w)
			},
			Stdout:    c.OutOrStdout(),
			Stderr:    c.ErrOrStderr(),
			Color:     cfg.Color,
			ModuleDir: cfg.ModuleDirOrDefault(),
			LogConfig: logCfg,
		}
		return d.Run(ctx, args)
	}

	// cobra falls back to os.Args when args are nil.
	args := startup.Args
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	return cmd
}

// Execute runs the flit command for startup.
func Execute(ctx context.Context, startup model.Startup) error {
	return NewRootCommand(startup).ExecuteContext(ctx)
}
