// Package diff classifies the differences between two record sets. Content
// hashes are the only authority for change detection; sizes, timestamps and
// permission bits never promote a record into the modified bucket on their
// own.
package diff

import (
	"github.com/wintermute101/integrity-checker/internal/record"
)

// Change pairs the stored and the observed record for one path.
type Change struct {
	Path   string            `json:"path"`
	Before record.FileRecord `json:"before"`
	After  record.FileRecord `json:"after"`
}

// Result holds one full classification. All slices are sorted by path.
type Result struct {
	// Added lists records present only in the candidate set.
	Added []record.FileRecord `json:"added"`
	// Removed lists records present only in the base set.
	Removed []record.FileRecord `json:"removed"`
	// Modified lists paths present in both sets with differing hashes.
	Modified []Change `json:"modified"`
	// Unchanged lists paths present in both sets with identical hashes.
	Unchanged []string `json:"unchanged"`
	// TimeShifted lists unchanged records whose modification time moved
	// even though the content did not. Purely informational; a touched
	// file is still an unchanged file.
	TimeShifted []Change `json:"timeShifted,omitempty"`
}

// Compare classifies the candidate set against the base set.
func Compare(base, candidate record.Set) *Result {
	result := &Result{}

	for _, path := range base.Paths() {
		before := base[path]
		after, ok := candidate[path]
		if !ok {
			result.Removed = append(result.Removed, before)
			continue
		}
		if before.Hash != after.Hash {
			result.Modified = append(result.Modified, Change{Path: path, Before: before, After: after})
			continue
		}
		result.Unchanged = append(result.Unchanged, path)
		if after.ModTime != before.ModTime {
			result.TimeShifted = append(result.TimeShifted, Change{Path: path, Before: before, After: after})
		}
	}

	for _, path := range candidate.Paths() {
		if _, ok := base[path]; !ok {
			result.Added = append(result.Added, candidate[path])
		}
	}

	return result
}

// Clean reports whether the two sets agree: nothing added, removed or
// modified. Time shifts alone do not make a result dirty.
func (r *Result) Clean() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Modified) == 0
}

// Total returns the number of classified paths.
func (r *Result) Total() int {
	return len(r.Added) + len(r.Removed) + len(r.Modified) + len(r.Unchanged)
}
