package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/wintermute101/integrity-checker/internal/diff"
	"github.com/wintermute101/integrity-checker/internal/hashlookup"
	"github.com/wintermute101/integrity-checker/internal/integrity"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderSnapshot(w io.Writer, s *integrity.Snapshot) {
	fmt.Fprintf(w, "wrote %s: %d files, %s (%s)\n",
		s.Store, s.Files, humanize.IBytes(uint64(s.TotalSize)), s.Generation.Algorithm)
	fmt.Fprintf(w, "generation %s at %s\n",
		s.Generation.ID, s.Generation.Written.Format(time.RFC3339))
}

func renderDiff(w io.Writer, d *diff.Result, compareTime bool) {
	for _, rec := range d.Added {
		fmt.Fprintf(w, "added      %s (%s)\n", rec.Path, humanize.IBytes(uint64(rec.Size)))
	}
	for _, rec := range d.Removed {
		fmt.Fprintf(w, "removed    %s\n", rec.Path)
	}
	for _, ch := range d.Modified {
		if compareTime {
			fmt.Fprintf(w, "modified   %s (%s -> %s, mtime %s -> %s)\n", ch.Path,
				ch.Before.Hash.Short(), ch.After.Hash.Short(),
				ch.Before.Modified().Format(time.RFC3339),
				ch.After.Modified().Format(time.RFC3339))
			continue
		}
		fmt.Fprintf(w, "modified   %s (%s -> %s)\n", ch.Path, ch.Before.Hash.Short(), ch.After.Hash.Short())
	}
	if compareTime {
		for _, ch := range d.TimeShifted {
			note := ""
			if ch.After.ModTime < ch.Before.ModTime {
				note = ", moved backwards"
			}
			fmt.Fprintf(w, "touched    %s (%s -> %s%s)\n", ch.Path,
				ch.Before.Modified().Format(time.RFC3339),
				ch.After.Modified().Format(time.RFC3339), note)
		}
	}

	if d.Clean() {
		fmt.Fprintf(w, "no changes: %d files unchanged\n", len(d.Unchanged))
		return
	}
	fmt.Fprintf(w, "%d added, %d removed, %d modified, %d unchanged\n",
		len(d.Added), len(d.Removed), len(d.Modified), len(d.Unchanged))
}

func renderUpdate(w io.Writer, u *integrity.UpdateOutcome) {
	renderDiff(w, u.Diff, false)
	fmt.Fprintf(w, "store %s now at generation %s (was %s), %d files\n",
		u.Store, u.Current.ID, u.Previous.ID, u.Files)
}

func renderComparison(w io.Writer, c *integrity.Comparison, compareTime bool) {
	fmt.Fprintf(w, "base  %s (generation %s, written %s)\n",
		c.Store, c.StoreGeneration.ID, humanize.Time(c.StoreGeneration.Written))
	fmt.Fprintf(w, "other %s (generation %s, written %s)\n",
		c.Other, c.OtherGeneration.ID, humanize.Time(c.OtherGeneration.Written))
	renderDiff(w, c.Diff, compareTime)
}

func renderListing(w io.Writer, l *integrity.Listing) {
	fmt.Fprintf(w, "store %s: %d files, %s, algorithm %s\n",
		l.Store, len(l.Records), humanize.IBytes(uint64(l.TotalSize)), l.Generation.Algorithm)
	if !l.Generation.Written.IsZero() {
		fmt.Fprintf(w, "generation %s, written %s\n",
			l.Generation.ID, humanize.Time(l.Generation.Written))
	}
	for _, rec := range l.Records {
		fmt.Fprintf(w, "%s  %10s  %s  %s\n",
			rec.Hash, humanize.IBytes(uint64(rec.Size)), rec.FileMode(), rec.Path)
	}
}

func renderReputation(w io.Writer, r *integrity.ReputationReport) {
	for _, f := range r.Files {
		switch f.Outcome {
		case hashlookup.OutcomeKnown:
			fmt.Fprintf(w, "known       %s (trust %d)\n", f.Path, f.Trust)
		case hashlookup.OutcomeUnknown:
			fmt.Fprintf(w, "unknown     %s (%s)\n", f.Path, f.Hash.Short())
		default:
			fmt.Fprintf(w, "unresolved  %s (%s)\n", f.Path, f.Hash.Short())
		}
	}
	fmt.Fprintf(w, "%d known, %d unknown, %d unresolved across %d files\n",
		r.Known, r.Unknown, r.Unresolved, len(r.Files))
	fmt.Fprintf(w, "cache: %d hits, %d queried, %d entries\n",
		r.CacheHits, r.Queried, r.CacheSize)
}
