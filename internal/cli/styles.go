package cli

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// styles renders user-facing messages for one writer.
type styles struct {
	Error lipgloss.Style // red
	Path  lipgloss.Style // magenta
	Name  lipgloss.Style // cyan
	Muted lipgloss.Style // gray
}

// newStyles builds styles for w. color is the config value: "always",
// "never", or "auto"/"" (color only when w is a terminal).
func newStyles(w io.Writer, color string) styles {
	r := lipgloss.NewRenderer(w)
	switch color {
	case "always":
		r.SetColorProfile(termenv.ANSI256)
	case "never":
		r.SetColorProfile(termenv.Ascii)
	default:
		if !isTTY(w) || os.Getenv("NO_COLOR") != "" {
			r.SetColorProfile(termenv.Ascii)
		}
	}
	return styles{
		Error: r.NewStyle().Foreground(lipgloss.Color("196")),
		Path:  r.NewStyle().Foreground(lipgloss.Color("201")),
		Name:  r.NewStyle().Foreground(lipgloss.Color("51")),
		Muted: r.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// tildify replaces the home directory prefix of path with ~.
func tildify(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	home = filepath.Clean(home)
	if path == home {
		return "~"
	}
	if rest, ok := strings.CutPrefix(path, home+string(filepath.Separator)); ok {
		return filepath.Join("~", rest)
	}
	return path
}
