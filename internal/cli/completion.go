package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// completionShells lists the shells --completion accepts.
var completionShells = []string{"bash", "zsh", "fish", "powershell"}

// writeCompletion writes the completion script for shell, generated from
// root's flags.
func writeCompletion(root *cobra.Command, shell string, w io.Writer) error {
	switch shell {
	case "bash":
		return root.GenBashCompletion(w)
	case "zsh":
		return root.GenZshCompletion(w)
	case "fish":
		return root.GenFishCompletion(w, true)
	case "powershell":
		return root.GenPowerShellCompletion(w)
	}
	return fmt.Errorf("unsupported completion shell %q (supported: %s)", shell, strings.Join(completionShells, ", "))
}
