// Package scanner walks file trees breadth-first and produces a record set:
// one content hash plus metadata per regular file. Directories are traversed
// in name order, symlinks are followed, and a visited set keyed on device and
// inode keeps link cycles from looping the walk forever.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/wintermute101/integrity-checker/internal/record"
)

// RootError reports a scan root that could not be used at all. Unlike the
// soft warnings collected during a walk, a bad root aborts the scan.
type RootError struct {
	Root string
	Err  error
}

func (e *RootError) Error() string { return fmt.Sprintf("scan root %s: %v", e.Root, e.Err) }

func (e *RootError) Unwrap() error { return e.Err }

// Options configures a Scanner.
type Options struct {
	// Roots are the files or directories to scan. At least one is required.
	Roots []string
	// Excludes are path prefixes to skip. A path is excluded when it equals
	// an entry or lies below one; name matching never crosses a path
	// separator boundary.
	Excludes []string
	// Algorithm selects the content hash. Empty means the default.
	Algorithm record.Algorithm
	// Workers bounds the number of concurrent hashing goroutines. Zero or
	// negative means one per CPU, capped at eight.
	Workers int
	// Logger receives progress output. Nil means the process default.
	Logger *slog.Logger
}

// Scanner walks configured roots and hashes every regular file it finds.
type Scanner struct {
	roots     []string
	excludes  []string
	algorithm record.Algorithm
	workers   int
	logger    *slog.Logger
}

// New validates the options and constructs a Scanner. Roots and excludes
// are made absolute here; symlink resolution happens at scan time so that a
// scanner built early still sees the filesystem as it is when Scan runs.
func New(opts Options) (*Scanner, error) {
	if len(opts.Roots) == 0 {
		return nil, errors.New("at least one scan root is required")
	}

	roots := make([]string, 0, len(opts.Roots))
	for _, root := range opts.Roots {
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, &RootError{Root: root, Err: err}
		}
		roots = append(roots, filepath.Clean(abs))
	}
	if len(roots) == 0 {
		return nil, errors.New("no valid scan roots provided")
	}

	excludes, err := normalizeExcludes(opts.Excludes)
	if err != nil {
		return nil, err
	}

	algorithm := opts.Algorithm
	if algorithm == "" {
		algorithm = record.DefaultAlgorithm
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > 8 {
			workers = 8
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scanner{
		roots:     roots,
		excludes:  excludes,
		algorithm: algorithm,
		workers:   workers,
		logger:    logger,
	}, nil
}

// Algorithm returns the content hash the scanner records with.
func (s *Scanner) Algorithm() record.Algorithm { return s.algorithm }

// normalizeExcludes makes every exclude absolute and, where the path exists,
// also registers its fully resolved form. Keeping both spellings means an
// exclude matches whether the walk reaches it through a symlink or not.
func normalizeExcludes(excludes []string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, exclude := range excludes {
		if exclude == "" {
			continue
		}
		abs, err := filepath.Abs(exclude)
		if err != nil {
			return nil, fmt.Errorf("exclude %s: %w", exclude, err)
		}
		abs = filepath.Clean(abs)
		seen[abs] = struct{}{}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			seen[resolved] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for exclude := range seen {
		out = append(out, exclude)
	}
	sort.Strings(out)
	return out, nil
}

// excluded reports whether path equals one of the exclude prefixes or lies
// below one.
func (s *Scanner) excluded(path string) bool {
	sep := string(filepath.Separator)
	for _, prefix := range s.excludes {
		if prefix == sep {
			return true
		}
		if path == prefix || strings.HasPrefix(path, prefix+sep) {
			return true
		}
	}
	return false
}

type scanItem struct {
	rec  *record.FileRecord
	warn *record.Warning
}

type walkOutcome struct {
	warnings []record.Warning
	err      error
}

// Scan walks all roots and returns the resulting record set together with
// the soft warnings gathered along the way. A failing root or a cancelled
// context aborts the scan with an error.
func (s *Scanner) Scan(ctx context.Context) (record.Set, []record.Warning, error) {
	jobs := make(chan string, s.workers*2)
	results := make(chan scanItem, s.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go s.hashWorker(ctx, &wg, jobs, results)
	}

	walkDone := make(chan walkOutcome, 1)
	go func() {
		warnings, err := s.walk(ctx, jobs)
		close(jobs)
		walkDone <- walkOutcome{warnings: warnings, err: err}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	set := make(record.Set)
	var hashWarnings []record.Warning
	for item := range results {
		switch {
		case item.rec != nil:
			set[item.rec.Path] = *item.rec
		case item.warn != nil:
			hashWarnings = append(hashWarnings, *item.warn)
		}
	}

	outcome := <-walkDone
	if outcome.err != nil {
		return nil, nil, outcome.err
	}
	// Cancellation can land after the walk finished but before the
	// queued hash jobs were processed.
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	warnings := append(outcome.warnings, hashWarnings...)
	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Path < warnings[j].Path })

	s.logger.Debug("scan finished",
		slog.Int("files", len(set)),
		slog.Int("warnings", len(warnings)),
		slog.String("algorithm", string(s.algorithm)))

	return set, warnings, nil
}

// walk performs the breadth-first traversal, feeding regular files to the
// hash workers. Symlinked directories are descended under their resolved
// path, so files below them are recorded under canonical paths just like
// files below a symlinked root. It returns the warnings produced by the
// walk itself; hashing warnings travel through the results channel.
func (s *Scanner) walk(ctx context.Context, jobs chan<- string) ([]record.Warning, error) {
	var warnings []record.Warning
	visited := newVisitSet()
	queue := make([]string, 0, len(s.roots))

	for _, root := range s.roots {
		resolved, err := filepath.EvalSymlinks(root)
		if err != nil {
			return nil, &RootError{Root: root, Err: err}
		}
		info, err := os.Stat(resolved)
		if err != nil {
			return nil, &RootError{Root: root, Err: err}
		}

		if s.excluded(root) || s.excluded(resolved) {
			s.logger.Warn("excluding scan root", slog.String("root", root))
			warnings = append(warnings, record.Warning{Path: root, Message: "scan root is excluded"})
			continue
		}

		switch {
		case info.IsDir():
			if !visited.visit(resolved, info) {
				queue = append(queue, resolved)
			}
		case info.Mode().IsRegular():
			if !s.send(ctx, jobs, resolved) {
				return warnings, ctx.Err()
			}
		default:
			warnings = append(warnings, record.Warning{
				Path:    root,
				Message: fmt.Sprintf("not a regular file or directory (%s)", info.Mode().Type()),
			})
		}
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return warnings, err
		}

		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir)
		if err != nil {
			warnings = append(warnings, record.NewWarning(dir, err))
			continue
		}

		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			if s.excluded(path) {
				s.logger.Debug("excluding path", slog.String("path", path))
				continue
			}

			typ := entry.Type()
			switch {
			case typ&fs.ModeSymlink != 0:
				info, err := os.Stat(path)
				if err != nil {
					warnings = append(warnings, record.NewWarning(path, err))
					continue
				}
				resolved, err := filepath.EvalSymlinks(path)
				if err != nil {
					warnings = append(warnings, record.NewWarning(path, err))
					continue
				}
				// A link may point into an excluded subtree even though its
				// own path does not.
				if s.excluded(resolved) {
					s.logger.Debug("excluding symlink by target",
						slog.String("path", path),
						slog.String("target", resolved))
					continue
				}
				switch {
				case info.IsDir():
					if visited.visit(resolved, info) {
						s.logger.Debug("skipping already visited directory", slog.String("path", path))
						continue
					}
					// Descend under the canonical path so excludes keep
					// applying below the link target.
					queue = append(queue, resolved)
				case info.Mode().IsRegular():
					if !s.send(ctx, jobs, path) {
						return warnings, ctx.Err()
					}
				default:
					warnings = append(warnings, record.Warning{
						Path:    path,
						Message: fmt.Sprintf("symlink target is not a regular file or directory (%s)", info.Mode().Type()),
					})
				}
			case typ.IsDir():
				info, err := entry.Info()
				if err != nil {
					warnings = append(warnings, record.NewWarning(path, err))
					continue
				}
				if visited.visit(path, info) {
					s.logger.Debug("skipping already visited directory", slog.String("path", path))
					continue
				}
				queue = append(queue, path)
			case typ.IsRegular():
				if !s.send(ctx, jobs, path) {
					return warnings, ctx.Err()
				}
			default:
				warnings = append(warnings, record.Warning{
					Path:    path,
					Message: fmt.Sprintf("not a regular file or directory (%s)", typ),
				})
			}
		}
	}

	return warnings, nil
}

// send enqueues a path for hashing unless the context is cancelled first.
func (s *Scanner) send(ctx context.Context, jobs chan<- string, path string) bool {
	select {
	case jobs <- path:
		return true
	case <-ctx.Done():
		return false
	}
}

// hashWorker drains the jobs channel, hashing one file at a time. Files
// that cannot be read come back as warnings rather than failing the scan; a
// file vanishing mid-scan is normal on a live system.
func (s *Scanner) hashWorker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan string, results chan<- scanItem) {
	defer wg.Done()

	for path := range jobs {
		if ctx.Err() != nil {
			continue
		}

		digest, size, info, err := hashFile(path, s.algorithm)
		if err != nil {
			warn := record.NewWarning(path, err)
			results <- scanItem{warn: &warn}
			continue
		}

		rec := record.FileRecord{
			Path:    path,
			Size:    size,
			ModTime: info.ModTime().UnixNano(),
			Mode:    uint32(info.Mode()),
			Hash:    digest,
		}
		s.logger.Debug("hashed file",
			slog.String("path", path),
			slog.Int64("size", size),
			slog.String("hash", digest.Short()))
		results <- scanItem{rec: &rec}
	}
}

// visitSet remembers directories already queued during a walk. Identity is
// the (device, inode) pair where the platform exposes one, with the resolved
// path as fallback.
type visitSet struct {
	ids   map[fileID]struct{}
	paths map[string]struct{}
}

func newVisitSet() *visitSet {
	return &visitSet{
		ids:   make(map[fileID]struct{}),
		paths: make(map[string]struct{}),
	}
}

// visit marks a directory as seen and reports whether it had been seen
// before.
func (v *visitSet) visit(path string, info fs.FileInfo) bool {
	if id, ok := idOf(info); ok {
		if _, dup := v.ids[id]; dup {
			return true
		}
		v.ids[id] = struct{}{}
		return false
	}

	canonical, err := filepath.EvalSymlinks(path)
	if err != nil {
		canonical = path
	}
	if _, dup := v.paths[canonical]; dup {
		return true
	}
	v.paths[canonical] = struct{}{}
	return false
}
