package cli

import (
	"fmt"
	"log/slog"

	"ddupbak/internal/repository"

	"github.com/spf13/cobra"
)

// openRepository opens the repository rooted at the --dir flag's value,
// scoping it with logger. Every subcommand but init goes through this.
func openRepository(cmd *cobra.Command, logger *slog.Logger) (*repository.Repository, error) {
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return nil, err
	}

	repo, err := repository.Open(repository.Config{Dir: dir, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("repository is not initialized in %q: run \"ddupbak init\" first", dir)
	}
	return repo, nil
}

// requireArchive returns a user-facing error if name isn't an existing
// archive in repo, otherwise nil.
func requireArchive(repo *repository.Repository, name string) error {
	names, err := repo.ListArchives()
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == name {
			return nil
		}
	}
	return fmt.Errorf("backup %q does not exist", name)
}
