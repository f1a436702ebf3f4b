//go:build unix

package repository

import (
	"io/fs"
	"syscall"
)

// lchown sets path's owner without following a trailing symlink,
// matching the original's cfg(unix) chown call in recursive_restore_archive.
func lchown(path string, uid, gid uint32) error {
	return syscall.Lchown(path, int(uid), int(gid))
}

// fsOwnerFromInfo extracts the POSIX uid/gid from info.
func fsOwnerFromInfo(info fs.FileInfo) (uid, gid uint32) {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return st.Uid, st.Gid
	}
	return 0, 0
}

// fsModeFromInfo extracts the POSIX permission bits from info.
func fsModeFromInfo(info fs.FileInfo) uint32 {
	return uint32(info.Mode().Perm())
}
