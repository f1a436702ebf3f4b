package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newBackupRestoreCommand(logger *slog.Logger) *cobra.Command {
	var destination string

	cmd := &cobra.Command{
		Use:   "restore <name>",
		Short: "Restore an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			repo, err := openRepository(cmd, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := requireArchive(repo, name); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "restoring backup...")

			restoredDir, err := repo.RestoreArchive(context.Background(), name,
				func(path string) { fmt.Fprintf(out, "restoring %s\n", path) },
			)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "restoring backup... DONE")

			if destination != "" {
				if err := moveRestoredTree(restoredDir, destination); err != nil {
					return err
				}
				fmt.Fprintf(out, "restored to %s\n", destination)
			} else {
				fmt.Fprintf(out, "restored to %s\n", restoredDir)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&destination, "destination", "", "move the restored tree here instead of leaving it under .ddup-bak/archives-restored")

	return cmd
}
