package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newBackupCreateCommand(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a new archive",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}

			repo, err := openRepository(cmd, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			if name != "" {
				if names, err := repo.ListArchives(); err == nil {
					for _, n := range names {
						if n == name {
							return fmt.Errorf("backup %q already exists", name)
						}
					}
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), "creating backup...")

			out := cmd.OutOrStdout()
			created, err := repo.CreateArchive(context.Background(), name,
				func(path string) { fmt.Fprintf(out, "chunking %s\n", path) },
				func(path string) { fmt.Fprintf(out, "archiving %s\n", path) },
			)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "creating backup... DONE (%s)\n", created)
			return nil
		},
	}

	return cmd
}
