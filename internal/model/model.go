// Package model defines core types shared across flit: the startup context
// captured at process entry, the discovered project environment, and tasks.
package model

import (
	"fmt"
	"os"

	"github.com/scbrown/flit/internal/schema"
)

// InitCwdEnv is the environment variable that carries the original working
// directory to every process flit starts.
const InitCwdEnv = "INIT_CWD"

// Startup holds process-wide facts captured once, before any other component
// runs. It is passed by value and never changes after construction.
type Startup struct {
	// InitCwd is the working directory the process was started in.
	InitCwd string
	// Args are the command-line arguments without the program name.
	Args []string
}

// Capture records the current working directory and exports it as INIT_CWD
// so child processes see the same value even if the directory changes later.
func Capture(args []string) (Startup, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Startup{}, fmt.Errorf("reading working directory: %w", err)
	}
	if err := os.Setenv(InitCwdEnv, cwd); err != nil {
		return Startup{}, fmt.Errorf("setting %s: %w", InitCwdEnv, err)
	}
	return Startup{InitCwd: cwd, Args: args}, nil
}

// Env describes a located project. Empty ConfigPath or ModulePath means the
// corresponding file was not found.
type Env struct {
	InitCwd    string   `json:"init_cwd"`
	Cwd        string   `json:"cwd"`
	ConfigPath string   `json:"config_path,omitempty"`
	ConfigBase string   `json:"config_base,omitempty"`
	ModulePath string   `json:"module_path,omitempty"` // path to the tool manifest
	ModuleDir  string   `json:"module_dir,omitempty"`  // directory of the local install
	Require    []string `json:"require,omitempty"`
}

// Task is a named unit of work registered with the tool module, together
// with the CLI options it contributes.
type Task struct {
	Name        string
	Description string
	Options     schema.Raw
}
