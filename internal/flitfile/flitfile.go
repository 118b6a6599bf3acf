// Package flitfile decodes flitfiles: the project configuration that declares
// tasks and the CLI options they contribute. Several file formats are
// supported through a registry keyed by format name and file extension.
//
// Every format describes the same document:
//
//	options:            # options available to every task
//	  env: {desc: Target environment, short: e}
//	tasks:
//	  build:
//	    description: Compile everything
//	    options:
//	      watch: {alias: w, flag: true}
//
// Option descriptors are kept as declared; synonym resolution happens in
// package schema.
package flitfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/scbrown/flit/internal/model"
	"github.com/scbrown/flit/internal/schema"
)

// BaseName is the file name flitfiles are searched for, without extension.
const BaseName = "flitfile"

// File is a decoded flitfile or --require fragment.
type File struct {
	Path    string
	Format  string
	Options schema.Raw
	Tasks   []model.Task
}

// Empty reports whether the file declares nothing.
func (f *File) Empty() bool {
	return len(f.Options) == 0 && len(f.Tasks) == 0
}

// Format decodes one flitfile syntax.
type Format interface {
	// Name returns the unique identifier for this format (e.g., "yaml").
	Name() string

	// Extensions returns the file extensions handled, with leading dot.
	Extensions() []string

	// Decode parses data. filename is only used in error messages.
	Decode(filename string, data []byte) (*File, error)
}

var (
	mu       sync.RWMutex
	registry = make(map[string]Format)
	order    []string
)

func init() {
	Register(yamlFormat{})
	Register(jsonFormat{})
	Register(tomlFormat{})
	Register(hclFormat{})
}

// Register adds a format to the registry. It panics if a format with the
// same name is already registered.
func Register(f Format) {
	mu.Lock()
	defer mu.Unlock()
	name := f.Name()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("flitfile: duplicate registration for %q", name))
	}
	registry[name] = f
	order = append(order, name)
}

// Names returns the sorted names of all registered formats.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Extensions returns every handled extension in registration order. This is
// the order in which a directory is searched for a flitfile.
func Extensions() []string {
	mu.RLock()
	defer mu.RUnlock()
	var exts []string
	for _, name := range order {
		exts = append(exts, registry[name].Extensions()...)
	}
	return exts
}

// ForPath returns the format handling path's extension.
func ForPath(path string) (Format, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	mu.RLock()
	defer mu.RUnlock()
	for _, name := range order {
		for _, e := range registry[name].Extensions() {
			if e == ext {
				return registry[name], true
			}
		}
	}
	return nil, false
}

// ErrUnknownFormat is returned by Load for unsupported extensions.
var ErrUnknownFormat = errors.New("unsupported flitfile format")

// Load reads and decodes the file at path.
func Load(path string) (*File, error) {
	format, ok := ForPath(path)
	if !ok {
		return nil, fmt.Errorf("%s: %w (formats: %s; extensions: %s)", path, ErrUnknownFormat,
			strings.Join(Names(), ", "), strings.Join(Extensions(), ", "))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading flitfile: %w", err)
	}
	f, err := format.Decode(path, data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	f.Path = path
	f.Format = format.Name()
	return f, nil
}

// taskDescription picks the description out of a decoded task table.
func taskDescription(fields map[string]any) string {
	for _, key := range []string{"description", "desc"} {
		if s, ok := fields[key].(string); ok {
			return s
		}
	}
	return ""
}
