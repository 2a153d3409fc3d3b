//go:build !linux && !darwin

package fim

import "io/fs"

func ownerOf(info fs.FileInfo) (uid, gid uint32) {
	return 0, 0
}
