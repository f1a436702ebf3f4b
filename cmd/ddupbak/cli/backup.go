package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// newBackupCommand builds the "backup" subcommand tree: create, delete,
// restore, convert, list, and the "fs" inspection group.
func newBackupCommand(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage archives within a repository",
	}

	cmd.AddCommand(
		newBackupCreateCommand(logger),
		newBackupDeleteCommand(logger),
		newBackupRestoreCommand(logger),
		newBackupConvertCommand(logger),
		newBackupListCommand(logger),
		newBackupFsCommand(logger),
	)

	return cmd
}
