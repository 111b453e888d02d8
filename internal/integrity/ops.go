// Package integrity implements the operations behind the commands: taking
// snapshots of file trees, verifying trees against a stored snapshot,
// comparing two snapshots, and resolving stored hashes against the
// reputation service.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/wintermute101/integrity-checker/internal/config"
	"github.com/wintermute101/integrity-checker/internal/diff"
	"github.com/wintermute101/integrity-checker/internal/hashlookup"
	"github.com/wintermute101/integrity-checker/internal/record"
	"github.com/wintermute101/integrity-checker/internal/scanner"
	"github.com/wintermute101/integrity-checker/internal/storage"
)

// ErrAlgorithmMismatch is returned when an operation would mix records
// hashed under different algorithms.
var ErrAlgorithmMismatch = errors.New("algorithm mismatch")

// Checker runs the integrity operations described by one configuration.
type Checker struct {
	cfg    config.Config
	logger *slog.Logger
}

// New constructs a Checker. The configuration is expected to be finalized.
func New(cfg config.Config, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{cfg: cfg, logger: logger}
}

// Snapshot is the outcome of an operation that wrote a store.
type Snapshot struct {
	Store      string             `json:"store"`
	Generation storage.Generation `json:"generation"`
	Files      int                `json:"files"`
	TotalSize  int64              `json:"totalSize"`
	Warnings   []record.Warning   `json:"warnings,omitempty"`
}

// Create scans the configured roots and writes a fresh record store. An
// existing store is refused unless overwriting was requested, and the
// refusal happens before any scanning work is done.
func (c *Checker) Create(ctx context.Context) (*Snapshot, error) {
	if !c.cfg.Overwrite && storage.Exists(c.cfg.StorePath) {
		return nil, fmt.Errorf("%w: %s", storage.ErrStoreExists, c.cfg.StorePath)
	}

	algorithm := c.cfg.Algorithm
	if algorithm == "" {
		algorithm = record.DefaultAlgorithm
	}

	set, warnings, err := c.scan(ctx, algorithm)
	if err != nil {
		return nil, err
	}

	store, err := storage.Create(c.cfg.StorePath, algorithm, c.cfg.Overwrite)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if err := store.Replace(ctx, set); err != nil {
		return nil, err
	}
	gen, err := store.Generation()
	if err != nil {
		return nil, err
	}

	c.logger.Info("store created",
		slog.String("store", c.cfg.StorePath),
		slog.Int("files", len(set)),
		slog.String("algorithm", string(algorithm)))

	return &Snapshot{
		Store:      c.cfg.StorePath,
		Generation: gen,
		Files:      len(set),
		TotalSize:  set.TotalSize(),
		Warnings:   warnings,
	}, nil
}

// Verification is the outcome of checking a tree against its store.
type Verification struct {
	Store      string             `json:"store"`
	Generation storage.Generation `json:"generation"`
	Scanned    int                `json:"scanned"`
	Diff       *diff.Result       `json:"diff"`
	Warnings   []record.Warning   `json:"warnings,omitempty"`
}

// Check re-scans the configured roots and classifies every difference
// against the store. The store is not modified.
func (c *Checker) Check(ctx context.Context) (*Verification, error) {
	store, err := storage.Open(c.cfg.StorePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if err := c.checkAlgorithm(store.Algorithm()); err != nil {
		return nil, err
	}

	base, gen, err := store.Read(ctx)
	if err != nil {
		return nil, err
	}

	scanned, warnings, err := c.scan(ctx, store.Algorithm())
	if err != nil {
		return nil, err
	}

	result := diff.Compare(base, scanned)
	c.logger.Info("check finished",
		slog.Int("added", len(result.Added)),
		slog.Int("removed", len(result.Removed)),
		slog.Int("modified", len(result.Modified)),
		slog.Int("unchanged", len(result.Unchanged)))

	return &Verification{
		Store:      c.cfg.StorePath,
		Generation: gen,
		Scanned:    len(scanned),
		Diff:       result,
		Warnings:   warnings,
	}, nil
}

// UpdateOutcome describes an update: what changed relative to the previous
// snapshot and the generation that replaced it.
type UpdateOutcome struct {
	Store    string             `json:"store"`
	Previous storage.Generation `json:"previous"`
	Current  storage.Generation `json:"current"`
	Files    int                `json:"files"`
	Diff     *diff.Result       `json:"diff"`
	Warnings []record.Warning   `json:"warnings,omitempty"`
}

// Update re-scans the configured roots and atomically replaces the store's
// contents with the new snapshot, reporting what changed.
func (c *Checker) Update(ctx context.Context) (*UpdateOutcome, error) {
	store, err := storage.Open(c.cfg.StorePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if err := c.checkAlgorithm(store.Algorithm()); err != nil {
		return nil, err
	}

	base, previous, err := store.Read(ctx)
	if err != nil {
		return nil, err
	}

	scanned, warnings, err := c.scan(ctx, store.Algorithm())
	if err != nil {
		return nil, err
	}

	result := diff.Compare(base, scanned)
	if err := store.Replace(ctx, scanned); err != nil {
		return nil, err
	}
	current, err := store.Generation()
	if err != nil {
		return nil, err
	}

	c.logger.Info("store updated",
		slog.String("store", c.cfg.StorePath),
		slog.Int("files", len(scanned)),
		slog.Int("changed", len(result.Added)+len(result.Removed)+len(result.Modified)))

	return &UpdateOutcome{
		Store:    c.cfg.StorePath,
		Previous: previous,
		Current:  current,
		Files:    len(scanned),
		Diff:     result,
		Warnings: warnings,
	}, nil
}

// Listing is the full contents of a store.
type Listing struct {
	Store      string              `json:"store"`
	Generation storage.Generation  `json:"generation"`
	Records    []record.FileRecord `json:"records"`
	TotalSize  int64               `json:"totalSize"`
}

// List reads a store without scanning anything.
func (c *Checker) List(ctx context.Context) (*Listing, error) {
	store, err := storage.Open(c.cfg.StorePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	set, gen, err := store.Read(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]record.FileRecord, 0, len(set))
	for _, path := range set.Paths() {
		records = append(records, set[path])
	}

	return &Listing{
		Store:      c.cfg.StorePath,
		Generation: gen,
		Records:    records,
		TotalSize:  set.TotalSize(),
	}, nil
}

// Comparison is the outcome of diffing two stores.
type Comparison struct {
	Store           string             `json:"store"`
	Other           string             `json:"other"`
	StoreGeneration storage.Generation `json:"storeGeneration"`
	OtherGeneration storage.Generation `json:"otherGeneration"`
	Diff            *diff.Result       `json:"diff"`
}

// Compare diffs the configured store against a second one without touching
// the filesystem. Both stores must use the same hash algorithm; digests
// from different algorithms are not comparable.
func (c *Checker) Compare(ctx context.Context) (*Comparison, error) {
	if c.cfg.ComparePath == "" {
		return nil, errors.New("compare requires a second store")
	}

	base, err := storage.Open(c.cfg.StorePath)
	if err != nil {
		return nil, err
	}
	defer base.Close()

	other, err := storage.Open(c.cfg.ComparePath)
	if err != nil {
		return nil, err
	}
	defer other.Close()

	if base.Algorithm() != other.Algorithm() {
		return nil, fmt.Errorf("%w: %s uses %s, %s uses %s",
			ErrAlgorithmMismatch,
			c.cfg.StorePath, base.Algorithm(),
			c.cfg.ComparePath, other.Algorithm())
	}

	baseSet, baseGen, err := base.Read(ctx)
	if err != nil {
		return nil, err
	}
	otherSet, otherGen, err := other.Read(ctx)
	if err != nil {
		return nil, err
	}

	return &Comparison{
		Store:           c.cfg.StorePath,
		Other:           c.cfg.ComparePath,
		StoreGeneration: baseGen,
		OtherGeneration: otherGen,
		Diff:            diff.Compare(baseSet, otherSet),
	}, nil
}

// FileVerdict links one stored file to the reputation of its hash.
type FileVerdict struct {
	Path      string             `json:"path"`
	Hash      record.Digest      `json:"hash"`
	Outcome   hashlookup.Outcome `json:"outcome"`
	Trust     uint8              `json:"trust"`
	FromCache bool               `json:"fromCache"`
}

// ReputationReport is the outcome of resolving a store's hashes.
type ReputationReport struct {
	Store      string             `json:"store"`
	Generation storage.Generation `json:"generation"`
	Files      []FileVerdict      `json:"files"`
	Known      int                `json:"known"`
	Unknown    int                `json:"unknown"`
	Unresolved int                `json:"unresolved"`
	CacheHits  int                `json:"cacheHits"`
	Queried    int                `json:"queried"`
	CacheSize  int                `json:"cacheSize"`
	Warnings   []record.Warning   `json:"warnings,omitempty"`
}

// CirclCheck resolves every distinct hash in the store against the
// reputation service, consulting the persistent cache first. Files sharing
// a hash share one verdict and one lookup. Hashes that could not be
// resolved come back as warnings alongside the per-file verdicts, the same
// way scan problems accompany a snapshot.
func (c *Checker) CirclCheck(ctx context.Context) (*ReputationReport, error) {
	store, err := storage.Open(c.cfg.StorePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	set, gen, err := store.Read(ctx)
	if err != nil {
		return nil, err
	}

	cache, err := storage.OpenCache(c.cfg.CachePath)
	if err != nil {
		return nil, err
	}
	defer cache.Close()

	client := hashlookup.NewClient(c.cfg.BaseURL, c.logger)
	resolver := hashlookup.NewResolver(client, cache, c.cfg.LookupWorkers, c.logger)

	report, err := resolver.Resolve(ctx, store.Algorithm(), set.Hashes())
	if err != nil {
		return nil, err
	}

	out := &ReputationReport{
		Store:      c.cfg.StorePath,
		Generation: gen,
		CacheHits:  report.CacheHits,
		Queried:    report.Queried,
	}
	for _, path := range set.Paths() {
		rec := set[path]
		resolution := report.Resolutions[rec.Hash]
		out.Files = append(out.Files, FileVerdict{
			Path:      path,
			Hash:      rec.Hash,
			Outcome:   resolution.Outcome,
			Trust:     resolution.Trust,
			FromCache: resolution.FromCache,
		})
		switch resolution.Outcome {
		case hashlookup.OutcomeKnown:
			out.Known++
		case hashlookup.OutcomeUnknown:
			out.Unknown++
		case hashlookup.OutcomeUnresolved:
			out.Unresolved++
		}
	}
	for _, res := range report.Outcomes(hashlookup.OutcomeUnresolved) {
		out.Warnings = append(out.Warnings, record.NewWarning(string(res.Hash), res.Err))
	}

	if out.CacheSize, err = cache.Count(ctx); err != nil {
		return nil, err
	}

	c.logger.Info("reputation check finished",
		slog.Int("known", out.Known),
		slog.Int("unknown", out.Unknown),
		slog.Int("unresolved", out.Unresolved),
		slog.Int("cache_hits", out.CacheHits))

	return out, nil
}

// scan runs the configured scan with the store and its sidecars excluded
// unless the configuration says to include them.
func (c *Checker) scan(ctx context.Context, algorithm record.Algorithm) (record.Set, []record.Warning, error) {
	s, err := scanner.New(scanner.Options{
		Roots:     c.cfg.Roots,
		Excludes:  c.scanExcludes(),
		Algorithm: algorithm,
		Workers:   c.cfg.Workers,
		Logger:    c.logger,
	})
	if err != nil {
		return nil, nil, err
	}

	c.logger.Info("scanning",
		slog.Int("roots", len(c.cfg.Roots)),
		slog.String("algorithm", string(algorithm)))

	return s.Scan(ctx)
}

func (c *Checker) scanExcludes() []string {
	excludes := append([]string{}, c.cfg.Excludes...)
	if !c.cfg.IncludeStore {
		excludes = append(excludes, c.cfg.StorePath)
		excludes = append(excludes, storage.SidecarPaths(c.cfg.StorePath)...)
	}
	sort.Strings(excludes)
	return excludes
}

func (c *Checker) checkAlgorithm(stored record.Algorithm) error {
	if c.cfg.Algorithm != "" && c.cfg.Algorithm != stored {
		return fmt.Errorf("%w: store uses %s, requested %s", ErrAlgorithmMismatch, stored, c.cfg.Algorithm)
	}
	return nil
}
