package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"ddupbak/internal/repository"

	"github.com/spf13/cobra"
)

func newInitCommand(logger *slog.Logger) *cobra.Command {
	var chunkSize int
	var maxChunkCount int

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			if _, err := os.Stat(filepath.Join(dir, ".ddup-bak")); err == nil {
				return fmt.Errorf(".ddup-bak already exists in %q", dir)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "initializing .ddup-bak ...")

			repo, err := repository.New(repository.Config{
				Dir:           dir,
				ChunkSize:     chunkSize,
				MaxChunkCount: maxChunkCount,
				Logger:        logger,
			})
			if err != nil {
				return err
			}
			if err := repo.Save(); err != nil {
				repo.Close()
				return err
			}
			if err := repo.Close(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "initializing .ddup-bak ... DONE")
			return nil
		},
	}

	cmd.Flags().IntVar(&chunkSize, "chunk-size", 1024*1024, "chunk size in bytes")
	cmd.Flags().IntVar(&maxChunkCount, "max-chunk-count", 0, "maximum chunk count (0 = unbounded)")

	return cmd
}
