//go:build unix

package archive

import (
	"io/fs"
	"syscall"
)

// fsOwner extracts the POSIX uid/gid from info, the Go analog of the
// original's cfg(unix) metadata_owner helper.
func fsOwner(info fs.FileInfo) (uid, gid uint32) {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return st.Uid, st.Gid
	}
	return 0, 0
}

// fsMode extracts the POSIX permission bits (low bits of st_mode,
// matching the original's Permissions::mode()).
func fsMode(info fs.FileInfo) uint32 {
	return uint32(info.Mode().Perm())
}
