package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/user"
	"sort"
	"strconv"

	"ddupbak/internal/archive"

	"github.com/spf13/cobra"
)

// newBackupFsCommand builds the "backup fs" inspection group: ls and
// cat, read-only views into an archive's tree that never touch the
// repository lock (OpenArchive reads the archive file directly).
func newBackupFsCommand(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fs",
		Short: "Inspect an archive's file tree",
	}

	cmd.AddCommand(newBackupFsLsCommand(logger), newBackupFsCatCommand(logger))
	return cmd
}

func newBackupFsLsCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <name> [path]",
		Short: "List entries under path inside an archive",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			path := "."
			if len(args) == 2 {
				path = args[1]
			}

			repo, err := openRepository(cmd, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			a, err := repo.OpenArchive(name)
			if err != nil {
				return err
			}
			defer a.Close()

			var entries []archive.Entry
			if path == "." {
				entries = a.Entries()
			} else {
				e, err := a.FindEntry(path)
				if err != nil {
					return fmt.Errorf("%s does not exist", path)
				}
				if dir, ok := e.(*archive.DirectoryEntry); ok {
					entries = dir.Children
				} else {
					entries = []archive.Entry{e}
				}
			}

			sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total %d entries\n", len(entries))
			for _, e := range entries {
				fmt.Fprintln(out, renderEntry(e))
			}
			return nil
		},
	}
}

func renderEntry(e archive.Entry) string {
	uid, gid := e.Owner()
	return fmt.Sprintf("%-9s %s %-8s %-8s %s %s",
		e.Kind(), renderPerms(e.Mode()), lookupUser(uid), lookupGroup(gid),
		e.MTime().Format("Jan  2 15:04"), e.Name())
}

func renderPerms(mode uint32) string {
	const bits = "rwxrwxrwx"
	out := make([]byte, 9)
	for i := range out {
		if mode&(1<<(8-uint(i))) != 0 {
			out[i] = bits[i]
		} else {
			out[i] = '-'
		}
	}
	return string(out)
}

func lookupUser(uid uint32) string {
	if u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10)); err == nil {
		return u.Username
	}
	return strconv.FormatUint(uint64(uid), 10)
}

func lookupGroup(gid uint32) string {
	if g, err := user.LookupGroupId(strconv.FormatUint(uint64(gid), 10)); err == nil {
		return g.Name
	}
	return strconv.FormatUint(uint64(gid), 10)
}

func newBackupFsCatCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <name> <path>",
		Short: "Print a file's content from inside an archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, path := args[0], args[1]

			repo, err := openRepository(cmd, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			a, err := repo.OpenArchive(name)
			if err != nil {
				return err
			}
			defer a.Close()

			e, err := a.FindEntry(path)
			if err != nil {
				return fmt.Errorf("%s does not exist", path)
			}

			fe, ok := e.(*archive.FileEntry)
			if !ok {
				return errors.New(path + " is not a file")
			}

			reader, err := archive.NewEntryReader(context.Background(), fe, repo.ChunkReader())
			if err != nil {
				return err
			}
			defer reader.Close()

			_, err = io.Copy(cmd.OutOrStdout(), reader)
			return err
		},
	}
}
