//go:build !unix

package archive

import "io/fs"

// fsOwner is a no-op on non-POSIX platforms, matching the original's
// cfg(windows) metadata_owner branch that always returns (0, 0).
func fsOwner(info fs.FileInfo) (uid, gid uint32) {
	return 0, 0
}

func fsMode(info fs.FileInfo) uint32 {
	return uint32(info.Mode().Perm())
}
