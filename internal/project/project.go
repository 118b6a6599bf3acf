// Package project finds the flitfile and the local flit install for a working
// directory and preloads any --require fragments.
package project

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/scbrown/flit/internal/config"
	"github.com/scbrown/flit/internal/ctxlog"
	"github.com/scbrown/flit/internal/flitfile"
	flitlog "github.com/scbrown/flit/internal/log"
	"github.com/scbrown/flit/internal/model"
)

const (
	// InstallName is the directory of the local install inside the module dir.
	InstallName = "flit"
	// ManifestName is the manifest file of the local install.
	ManifestName = "flit.toml"
)

var (
	// ErrProjectNotFound means no local flit install was found above cwd.
	ErrProjectNotFound = errors.New("local flit not found")
	// ErrConfigNotFound means no flitfile was found above cwd.
	ErrConfigNotFound = errors.New("no flitfile found")
)

// ModuleLoadError reports a --require value that could not be loaded.
type ModuleLoadError struct {
	Name string
	Err  error
}

func (e *ModuleLoadError) Error() string {
	return fmt.Sprintf("failed to load external module %s: %v", e.Name, e.Err)
}

func (e *ModuleLoadError) Unwrap() error { return e.Err }

// Request carries the location-related CLI options.
type Request struct {
	Cwd        string   // --base
	ConfigPath string   // --flitfile
	Require    []string // --require
}

// Result is what Locate found.
type Result struct {
	Env       model.Env
	Preloaded []*flitfile.File
	Failed    []*ModuleLoadError
}

// Missing returns ErrProjectNotFound or ErrConfigNotFound when either file
// is absent, checking the install first.
func (r *Result) Missing() error {
	if r.Env.ModulePath == "" {
		return ErrProjectNotFound
	}
	if r.Env.ConfigPath == "" {
		return ErrConfigNotFound
	}
	return nil
}

// Locator resolves a Request against the filesystem.
type Locator struct {
	// ModuleDir is the directory name searched for the local install.
	// Empty means config.DefaultModuleDir.
	ModuleDir string
}

// Locate builds the project environment. Missing files are not errors; they
// leave the corresponding Env path empty. Only cancellation and unreadable
// paths are returned as errors.
func (l *Locator) Locate(ctx context.Context, startup model.Startup, req Request) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	cwd := startup.InitCwd
	if req.Cwd != "" {
		cwd = resolve(startup.InitCwd, req.Cwd)
	}

	env := model.Env{
		InitCwd: startup.InitCwd,
		Cwd:     cwd,
		Require: req.Require,
	}

	var err error
	if req.ConfigPath != "" {
		path := resolve(cwd, req.ConfigPath)
		if isFile(path) {
			env.ConfigPath = path
			if req.Cwd == "" {
				env.Cwd = filepath.Dir(path)
			}
		}
	} else {
		env.ConfigPath, err = findFlitfile(ctx, cwd)
		if err != nil {
			return nil, err
		}
	}
	if env.ConfigPath != "" {
		env.ConfigBase = filepath.Dir(env.ConfigPath)
	}

	env.ModulePath, err = l.findInstall(ctx, env.Cwd)
	if err != nil {
		return nil, err
	}
	if env.ModulePath != "" {
		env.ModuleDir = filepath.Dir(env.ModulePath)
	}

	logger.Debug("located project",
		slog.String("cwd", env.Cwd),
		slog.String("config_path", env.ConfigPath),
		slog.String("module_path", env.ModulePath))

	res := &Result{Env: env}
	for _, name := range req.Require {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, err := preload(env.Cwd, name)
		if err != nil {
			loadErr := &ModuleLoadError{Name: name, Err: err}
			logger.Error("Failed to load external module", slog.String(flitlog.ModuleKey, name), flitlog.Error(err))
			res.Failed = append(res.Failed, loadErr)
			continue
		}
		for _, f := range files {
			logger.Debug("Requiring external module", slog.String(flitlog.ModuleKey, f.Path))
		}
		res.Preloaded = append(res.Preloaded, files...)
	}
	return res, nil
}

func (l *Locator) moduleDir() string {
	if l.ModuleDir == "" {
		return config.DefaultModuleDir
	}
	return l.ModuleDir
}

// findInstall walks up from dir looking for <module_dir>/flit/flit.toml.
func (l *Locator) findInstall(ctx context.Context, dir string) (string, error) {
	rel := filepath.Join(l.moduleDir(), InstallName, ManifestName)
	return walkUp(ctx, dir, func(d string) string {
		if p := filepath.Join(d, rel); isFile(p) {
			return p
		}
		return ""
	})
}

// findFlitfile walks up from dir looking for flitfile.<ext>, trying
// extensions in registry order within each directory.
func findFlitfile(ctx context.Context, dir string) (string, error) {
	exts := flitfile.Extensions()
	return walkUp(ctx, dir, func(d string) string {
		for _, ext := range exts {
			if p := filepath.Join(d, flitfile.BaseName+ext); isFile(p) {
				return p
			}
		}
		return ""
	})
}

func walkUp(ctx context.Context, dir string, probe func(string) string) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if p := probe(dir); p != "" {
			return p, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// preload expands a --require glob relative to cwd and decodes every match.
// A pattern that matches nothing is reported as fs.ErrNotExist.
func preload(cwd, pattern string) ([]*flitfile.File, error) {
	var (
		matches []string
		err     error
	)
	if filepath.IsAbs(pattern) {
		matches, err = doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	} else {
		var rel []string
		rel, err = doublestar.Glob(os.DirFS(cwd), filepath.ToSlash(pattern), doublestar.WithFilesOnly())
		for _, m := range rel {
			matches = append(matches, filepath.Join(cwd, filepath.FromSlash(m)))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("expanding %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fs.ErrNotExist
	}

	files := make([]*flitfile.File, 0, len(matches))
	for _, m := range matches {
		f, err := flitfile.Load(m)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
