package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newBackupDeleteCommand(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an archive",
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
			fmt.Fprintln(out, "deleting backup...")

			err = repo.DeleteArchive(context.Background(), name,
				func(chunkID uint64, deleted bool) {
					fmt.Fprintf(out, "chunk #%d (deleted=%v)\n", chunkID, deleted)
				},
			)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "deleting backup... DONE")
			return nil
		},
	}

	return cmd
}
