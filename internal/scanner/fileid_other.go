//go:build !unix

package scanner

import "io/fs"

// fileID is unused on platforms without stable device and inode numbers;
// the visit set falls back to resolved paths there.
type fileID struct {
	dev uint64
	ino uint64
}

func idOf(info fs.FileInfo) (fileID, bool) {
	return fileID{}, false
}
