package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newBackupListCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepository(cmd, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			names, err := repo.ListArchives()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, "no backups found")
				return nil
			}

			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}
