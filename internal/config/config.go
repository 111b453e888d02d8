// Package config captures runtime configuration for the integrity checker.
// Values arrive from command line flags and, optionally, a YAML profile;
// flags always win over the profile, the profile wins over built-in
// defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wintermute101/integrity-checker/internal/record"
)

// DefaultStorePath is the record store location used when neither a flag
// nor a profile names one.
const DefaultStorePath = "integrity.db"

// Config holds everything an operation needs to run.
type Config struct {
	// Roots are the files or directories to scan.
	Roots []string

	// Excludes are path prefixes skipped during scans. The store and its
	// sidecars are appended automatically unless IncludeStore is set.
	Excludes []string

	// StorePath is the record store database.
	StorePath string

	// ComparePath is the second record store for compare operations.
	ComparePath string

	// CachePath is the reputation verdict cache database.
	CachePath string

	// Algorithm selects the content hash for new stores. Empty means
	// "unset": create falls back to the default, while operations on an
	// existing store use whatever the store was created with.
	Algorithm record.Algorithm

	// Workers bounds concurrent file hashing. Zero means one per CPU.
	Workers int

	// LookupWorkers bounds concurrent reputation queries. Zero means the
	// resolver default.
	LookupWorkers int

	// Overwrite lets create replace an existing store.
	Overwrite bool

	// CompareTime adds timestamp-movement detail to reports.
	CompareTime bool

	// IncludeStore scans the store database itself instead of excluding it.
	IncludeStore bool

	// BaseURL overrides the hashlookup endpoint. Empty means the public
	// CIRCL service.
	BaseURL string
}

// Profile is the optional YAML configuration file. Every field is optional;
// set fields act as defaults for the matching Config fields.
type Profile struct {
	Store         string   `yaml:"store"`
	Cache         string   `yaml:"cache"`
	Algorithm     string   `yaml:"algorithm"`
	Roots         []string `yaml:"roots"`
	Excludes      []string `yaml:"excludes"`
	Workers       int      `yaml:"workers"`
	LookupWorkers int      `yaml:"lookup_workers"`
	BaseURL       string   `yaml:"base_url"`
}

// LoadProfile reads and parses a YAML profile.
func LoadProfile(path string) (Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	var profile Profile
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return Profile{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return profile, nil
}

// ApplyProfile fills unset Config fields from a profile. Excludes are
// merged rather than replaced; an exclusion listed anywhere stays excluded.
func (c *Config) ApplyProfile(p Profile) error {
	if c.StorePath == "" {
		c.StorePath = p.Store
	}
	if c.CachePath == "" {
		c.CachePath = p.Cache
	}
	if c.Algorithm == "" && p.Algorithm != "" {
		algorithm, err := record.ParseAlgorithm(p.Algorithm)
		if err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		c.Algorithm = algorithm
	}
	if len(c.Roots) == 0 {
		c.Roots = append(c.Roots, p.Roots...)
	}
	if len(p.Excludes) > 0 {
		c.Excludes = append(append([]string{}, p.Excludes...), c.Excludes...)
	}
	if c.Workers == 0 {
		c.Workers = p.Workers
	}
	if c.LookupWorkers == 0 {
		c.LookupWorkers = p.LookupWorkers
	}
	if c.BaseURL == "" {
		c.BaseURL = p.BaseURL
	}
	return nil
}

// Finalize applies defaults and makes every path absolute. It must run
// after flags and profile have been merged and before the config is used.
func (c *Config) Finalize() error {
	if c.StorePath == "" {
		c.StorePath = DefaultStorePath
	}
	storePath, err := absPath(c.StorePath)
	if err != nil {
		return fmt.Errorf("resolve store path: %w", err)
	}
	c.StorePath = storePath

	if c.ComparePath != "" {
		comparePath, err := absPath(c.ComparePath)
		if err != nil {
			return fmt.Errorf("resolve compare path: %w", err)
		}
		c.ComparePath = comparePath
	}

	if c.CachePath == "" {
		cachePath, err := DefaultCachePath()
		if err != nil {
			return err
		}
		c.CachePath = cachePath
	}
	cachePath, err := absPath(c.CachePath)
	if err != nil {
		return fmt.Errorf("resolve cache path: %w", err)
	}
	c.CachePath = cachePath

	roots, err := normalizePaths(c.Roots)
	if err != nil {
		return err
	}
	c.Roots = roots

	excludes, err := normalizePaths(c.Excludes)
	if err != nil {
		return err
	}
	c.Excludes = excludes

	return nil
}

// DefaultCachePath places the verdict cache under the user cache
// directory, where it survives independently of any particular store.
func DefaultCachePath() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve user cache directory: %w", err)
	}
	return filepath.Join(base, "integrity-checker", "hashlookup.db"), nil
}

func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

func normalizePaths(paths []string) ([]string, error) {
	normalized := make([]string, 0, len(paths))
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		abs, err := absPath(trimmed)
		if err != nil {
			return nil, fmt.Errorf("resolve path %q: %w", trimmed, err)
		}
		normalized = append(normalized, abs)
	}
	return normalized, nil
}
