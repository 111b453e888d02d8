// Package record defines the fingerprint types shared between the scanner,
// the stores, and the diff engine.
package record

import (
	"fmt"
	"io/fs"
	"sort"
	"time"
)

// FileRecord captures one regular file as it looked at scan time.
type FileRecord struct {
	// Path is the canonical absolute path of the file and the unique key
	// within a Set.
	Path string `json:"path"`

	// Size is the byte length of the file content.
	Size int64 `json:"size"`

	// ModTime is the filesystem modification time in Unix nanoseconds.
	// Precision is platform dependent and the value is informational only.
	ModTime int64 `json:"modTime"`

	// Mode holds the permission and mode bits. Like ModTime it never
	// participates in change classification.
	Mode uint32 `json:"mode"`

	// Hash is the content digest under the algorithm recorded in the
	// store's metadata. Hash equality is the sole basis for the
	// modified/unchanged decision.
	Hash Digest `json:"hash"`
}

// Modified returns ModTime as a time.Time.
func (r FileRecord) Modified() time.Time {
	return time.Unix(0, r.ModTime)
}

// FileMode returns the recorded mode bits as an fs.FileMode.
func (r FileRecord) FileMode() fs.FileMode {
	return fs.FileMode(r.Mode)
}

func (r FileRecord) String() string {
	return fmt.Sprintf("%s hash=%s size=%d mode=%s modified=%s",
		r.Path, r.Hash, r.Size, r.FileMode(), r.Modified().Format(time.RFC3339))
}

// Set is the complete, immutable result of one scan or one store read:
// a mapping from canonical path to FileRecord. A Set carries no ordering;
// callers that need stable output sort the paths themselves.
type Set map[string]FileRecord

// Paths returns every key in the set, sorted.
func (s Set) Paths() []string {
	paths := make([]string, 0, len(s))
	for path := range s {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Hashes returns the distinct digests present in the set, sorted. Several
// paths may share one digest; the result contains it once.
func (s Set) Hashes() []Digest {
	seen := make(map[Digest]struct{}, len(s))
	for _, rec := range s {
		seen[rec.Hash] = struct{}{}
	}
	hashes := make([]Digest, 0, len(seen))
	for h := range seen {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	return hashes
}

// TotalSize sums the recorded sizes of all files in the set.
func (s Set) TotalSize() int64 {
	var total int64
	for _, rec := range s {
		total += rec.Size
	}
	return total
}

// Warning is a non-fatal problem collected while an operation runs: an
// unreadable file, a skipped root, a failed remote lookup. Operations
// return warnings alongside their result instead of aborting on them.
type Warning struct {
	// Path names what the warning is about: a file path for scan
	// problems, a hex digest for lookup problems.
	Path string `json:"path"`

	// Err is the underlying cause.
	Err error `json:"-"`

	// Message mirrors Err for serialized output.
	Message string `json:"message"`
}

// NewWarning builds a Warning from a subject and its cause.
func NewWarning(path string, err error) Warning {
	w := Warning{Path: path, Err: err}
	if err != nil {
		w.Message = err.Error()
	}
	return w
}

func (w Warning) String() string {
	if w.Message == "" {
		return w.Path
	}
	return w.Path + ": " + w.Message
}
