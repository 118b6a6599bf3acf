package cli

import "github.com/scbrown/flit/internal/schema"

// program is the name used in usage and version output.
const program = "flit"

// Built-in option names.
const (
	optHelp       = "help"
	optBase       = "base"
	optFlitfile   = "flitfile"
	optRequire    = "require"
	optVerbose    = "verbose"
	optVersion    = "version"
	optCompletion = "completion"
)

// BuiltinOptions is the option schema flit always understands, before any
// tool contributes its own.
var BuiltinOptions = schema.Raw{
	{Name: optHelp, Value: map[string]any{
		"alias":       "h",
		"flag":        true,
		"description": "Display this help text.",
	}},
	{Name: optBase, Value: map[string]any{
		"description": "Specify an alternate base path. By default, all file paths are relative to the flitfile.",
	}},
	{Name: optFlitfile, Value: map[string]any{
		"description": "Specify an alternate flitfile. By default, flit looks in the current or parent directories for the nearest flitfile.",
	}},
	{Name: optRequire, Value: map[string]any{
		"alias":       "r",
		"list":        true,
		"description": "Flitfile fragments to pre-load (glob patterns allowed).",
	}},
	{Name: optVerbose, Value: map[string]any{
		"alias":       "v",
		"flag":        true,
		"description": "Verbose mode. A lot more information output.",
	}},
	{Name: optVersion, Value: map[string]any{
		"alias":       "V",
		"flag":        true,
		"description": "Print the flit version. Combine with --verbose for more info.",
	}},
	{Name: optCompletion, Value: map[string]any{
		"description": "Output shell auto-completion rules (bash, zsh, fish, powershell).",
	}},
}
