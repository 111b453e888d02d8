package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wintermute101/integrity-checker/internal/record"
)

func TestFinalizeDefaults(t *testing.T) {
	var cfg Config
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if !filepath.IsAbs(cfg.StorePath) {
		t.Errorf("StorePath %q is not absolute", cfg.StorePath)
	}
	if filepath.Base(cfg.StorePath) != DefaultStorePath {
		t.Errorf("StorePath %q does not end in the default name", cfg.StorePath)
	}
	if cfg.Algorithm != "" {
		t.Errorf("Algorithm = %q, want unset so operations can pick", cfg.Algorithm)
	}
	if !filepath.IsAbs(cfg.CachePath) {
		t.Errorf("CachePath %q is not absolute", cfg.CachePath)
	}
	if !strings.Contains(cfg.CachePath, "integrity-checker") {
		t.Errorf("CachePath %q is not under the application cache directory", cfg.CachePath)
	}
}

func TestFinalizeNormalizesPaths(t *testing.T) {
	cfg := Config{
		Roots:    []string{"  ./data  ", "", "sub/../other"},
		Excludes: []string{"data/skip"},
	}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if len(cfg.Roots) != 2 {
		t.Fatalf("Roots = %v, want the two non-empty entries", cfg.Roots)
	}
	for _, root := range cfg.Roots {
		if !filepath.IsAbs(root) {
			t.Errorf("root %q is not absolute", root)
		}
		if strings.Contains(root, "..") || strings.HasSuffix(root, " ") {
			t.Errorf("root %q was not cleaned", root)
		}
	}
	if len(cfg.Excludes) != 1 || !filepath.IsAbs(cfg.Excludes[0]) {
		t.Errorf("Excludes = %v, want one absolute path", cfg.Excludes)
	}
}

func TestApplyProfilePrecedence(t *testing.T) {
	profile := Profile{
		Store:     "/profile/store.db",
		Algorithm: "sha1",
		Roots:     []string{"/profile/root"},
		Excludes:  []string{"/profile/skip"},
		Workers:   7,
	}

	cfg := Config{
		StorePath: "/flag/store.db",
		Excludes:  []string{"/flag/skip"},
	}
	if err := cfg.ApplyProfile(profile); err != nil {
		t.Fatalf("ApplyProfile: %v", err)
	}

	if cfg.StorePath != "/flag/store.db" {
		t.Errorf("flag store was overridden: %q", cfg.StorePath)
	}
	if cfg.Algorithm != record.SHA1 {
		t.Errorf("Algorithm = %q, want profile's sha1", cfg.Algorithm)
	}
	if len(cfg.Roots) != 1 || cfg.Roots[0] != "/profile/root" {
		t.Errorf("Roots = %v, want profile root", cfg.Roots)
	}
	if len(cfg.Excludes) != 2 {
		t.Errorf("Excludes = %v, want profile and flag entries merged", cfg.Excludes)
	}
	if cfg.Workers != 7 {
		t.Errorf("Workers = %d, want profile's 7", cfg.Workers)
	}
}

func TestApplyProfileRejectsBadAlgorithm(t *testing.T) {
	var cfg Config
	err := cfg.ApplyProfile(Profile{Algorithm: "crc32"})
	if err == nil {
		t.Fatal("ApplyProfile accepted an unknown algorithm")
	}
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	content := `
store: /var/lib/integrity/store.db
algorithm: sha256
roots:
  - /etc
  - /usr/bin
excludes:
  - /etc/mtab
lookup_workers: 4
base_url: https://hashlookup.example.test
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	profile, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if profile.Store != "/var/lib/integrity/store.db" {
		t.Errorf("Store = %q", profile.Store)
	}
	if len(profile.Roots) != 2 || profile.Roots[1] != "/usr/bin" {
		t.Errorf("Roots = %v", profile.Roots)
	}
	if profile.LookupWorkers != 4 {
		t.Errorf("LookupWorkers = %d, want 4", profile.LookupWorkers)
	}
	if profile.BaseURL != "https://hashlookup.example.test" {
		t.Errorf("BaseURL = %q", profile.BaseURL)
	}

	if _, err := LoadProfile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadProfile succeeded on a missing file")
	}
}
