//go:build linux || darwin

package fim

import (
	"io/fs"
	"syscall"
)

// ownerOf extracts uid and gid from the platform stat structure.
func ownerOf(info fs.FileInfo) (uid, gid uint32) {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return st.Uid, st.Gid
	}
	return 0, 0
}
