package cli

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"ddupbak/internal/archive"
	"ddupbak/internal/compress"

	"github.com/spf13/cobra"
)

// newBackupConvertCommand exports an archive to a self-contained format
// that no longer depends on the repository's chunk index: a tar file, a
// gzip-compressed tar file, or a standalone .ddup archive (the same
// container format, but with file content written directly rather than
// as a chunk-ID stream). Grounded on
// original_source/src/commands/backup/convert.rs.
func newBackupConvertCommand(logger *slog.Logger) *cobra.Command {
	var output string
	var format string

	cmd := &cobra.Command{
		Use:   "convert <name>",
		Short: "Convert an archive to tar, tar.gz, or a standalone ddup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

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

			switch format {
			case "tar", "tar.gz":
				var w io.Writer = cmd.OutOrStdout()
				var f *os.File
				if output != "" {
					f, err = os.Create(output)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				return convertToTar(context.Background(), a, repo.ChunkReader(), w, format == "tar.gz")

			case "ddup":
				if output == "" {
					return errors.New("--output is required for ddup format")
				}
				return convertToDdup(context.Background(), a, repo.ChunkReader(), output, logger)

			default:
				return fmt.Errorf("unknown format %q (want tar, tar.gz, or ddup)", format)
			}
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "output file path (defaults to stdout for tar/tar.gz)")
	cmd.Flags().StringVar(&format, "format", "tar", "output format: tar, tar.gz, or ddup")

	return cmd
}

func convertToTar(ctx context.Context, a *archive.Archive, chunks archive.ChunkReader, w io.Writer, gz bool) error {
	if gz {
		gzw := gzip.NewWriter(w)
		defer gzw.Close()
		w = gzw
	}

	tw := tar.NewWriter(w)
	defer tw.Close()

	for _, e := range a.Entries() {
		if err := tarConvertEntry(ctx, e, chunks, tw, ""); err != nil {
			return err
		}
	}
	return tw.Close()
}

func tarConvertEntry(ctx context.Context, e archive.Entry, chunks archive.ChunkReader, tw *tar.Writer, parent string) error {
	path := e.Name()
	if parent != "" {
		path = parent + "/" + path
	}
	uid, gid := e.Owner()

	switch v := e.(type) {
	case *archive.DirectoryEntry:
		hdr := &tar.Header{
			Name:     path + "/",
			Typeflag: tar.TypeDir,
			Mode:     int64(v.Mode()),
			Uid:      int(uid),
			Gid:      int(gid),
			ModTime:  v.MTime(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		for _, child := range v.Children {
			if err := tarConvertEntry(ctx, child, chunks, tw, path); err != nil {
				return err
			}
		}
		return nil

	case *archive.FileEntry:
		reader, err := archive.NewEntryReader(ctx, v, chunks)
		if err != nil {
			return err
		}
		defer reader.Close()

		hdr := &tar.Header{
			Name:     path,
			Typeflag: tar.TypeReg,
			Mode:     int64(v.Mode()),
			Uid:      int(uid),
			Gid:      int(gid),
			ModTime:  v.MTime(),
			Size:     int64(v.RealSize),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err = io.Copy(tw, reader)
		return err

	case *archive.SymlinkEntry:
		hdr := &tar.Header{
			Name:     path,
			Typeflag: tar.TypeSymlink,
			Linkname: v.Target,
			Mode:     int64(v.Mode()),
			Uid:      int(uid),
			Gid:      int(gid),
			ModTime:  v.MTime(),
		}
		return tw.WriteHeader(hdr)

	default:
		return fmt.Errorf("convert: unrecognized entry %T", e)
	}
}

func convertToDdup(ctx context.Context, src *archive.Archive, chunks archive.ChunkReader, output string, logger *slog.Logger) error {
	dst, err := archive.New(output, logger)
	if err != nil {
		return err
	}
	defer dst.Close()

	for _, e := range src.Entries() {
		if err := ddupConvertEntry(ctx, e, chunks, dst, nil); err != nil {
			return err
		}
	}
	return dst.Finalize()
}

func ddupConvertEntry(ctx context.Context, e archive.Entry, chunks archive.ChunkReader, dst *archive.Archive, parentPath []string) error {
	switch v := e.(type) {
	case *archive.DirectoryEntry:
		uid, gid := v.Owner()
		fresh := &archive.DirectoryEntry{
			EntryName: v.Name(),
			EntryMode: v.Mode(),
			UID:       uid,
			GID:       gid,
			ModTime:   v.MTime(),
		}
		if err := dst.InsertEntry(parentPath, fresh); err != nil {
			return err
		}
		childPath := append(append([]string(nil), parentPath...), v.Name())
		for _, child := range v.Children {
			if err := ddupConvertEntry(ctx, child, chunks, dst, childPath); err != nil {
				return err
			}
		}
		return nil

	case *archive.FileEntry:
		reader, err := archive.NewEntryReader(ctx, v, chunks)
		if err != nil {
			return err
		}
		defer reader.Close()

		uid, gid := v.Owner()
		entry, err := dst.WriteFileEntry(reader, v.Name(), v.Mode(), uid, gid, v.MTime().Unix(), int64(v.RealSize), v.RealSize, compress.Deflate)
		if err != nil {
			return err
		}
		return dst.InsertEntry(parentPath, entry)

	case *archive.SymlinkEntry:
		return dst.InsertEntry(parentPath, v)

	default:
		return fmt.Errorf("convert: unrecognized entry %T", e)
	}
}
