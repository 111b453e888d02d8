package scanner

import (
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/wintermute101/integrity-checker/internal/record"
)

// hashFile streams a file through the given hash and returns the digest,
// the number of bytes hashed and the file's metadata. Metadata is taken
// from the open handle after hashing, so hash, size and mtime all describe
// the same view of the file even when it is being rewritten mid-scan.
func hashFile(path string, algorithm record.Algorithm) (record.Digest, int64, fs.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	h := algorithm.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, nil, fmt.Errorf("hash file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		return "", 0, nil, fmt.Errorf("stat file: %w", err)
	}

	return record.HexDigest(h.Sum(nil)), size, info, nil
}
