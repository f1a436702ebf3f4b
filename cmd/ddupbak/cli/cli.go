// Package cli implements the "ddupbak" command tree: init, backup
// create/delete/restore/convert/list, and backup fs ls/cat, each a thin
// layer over internal/repository and internal/archive's public APIs.
// No flag parsing or presentation logic leaks into the core packages.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the "ddupbak" root command, wiring every
// subcommand tree. logger is passed down to every Repository/Archive
// constructor invoked while handling a command.
func NewRootCommand(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "ddupbak",
		Short:         "Deduplicating backup engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().String("dir", ".", "repository root directory")

	root.AddCommand(
		newInitCommand(logger),
		newBackupCommand(logger),
	)

	return root
}
