//go:build unix

package scanner

import (
	"io/fs"
	"syscall"
)

// fileID identifies a file by device and inode. Two directory paths with
// the same fileID are the same directory, however many symlinks sit in
// between.
type fileID struct {
	dev uint64
	ino uint64
}

func idOf(info fs.FileInfo) (fileID, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fileID{}, false
	}
	return fileID{dev: uint64(st.Dev), ino: uint64(st.Ino)}, true
}
