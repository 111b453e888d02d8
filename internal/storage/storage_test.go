package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/wintermute101/integrity-checker/internal/record"
)

func testSet() record.Set {
	return record.Set{
		"/data/a.txt": {
			Path:    "/data/a.txt",
			Size:    5,
			ModTime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).UnixNano(),
			Mode:    0o644,
			Hash:    record.SHA256.Sum([]byte("hello")),
		},
		"/data/b.bin": {
			Path:    "/data/b.bin",
			Size:    3,
			ModTime: time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC).UnixNano(),
			Mode:    0o600,
			Hash:    record.SHA256.Sum([]byte("abc")),
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "integrity.db")

	store, err := Create(path, record.SHA256, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := testSet()
	if err := store.Replace(ctx, want); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	store, err = Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if store.Algorithm() != record.SHA256 {
		t.Errorf("Algorithm() = %q, want %q", store.Algorithm(), record.SHA256)
	}

	got, gen, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Read returned %d records, want %d", len(got), len(want))
	}
	for path, rec := range want {
		if got[path] != rec {
			t.Errorf("record %s = %+v, want %+v", path, got[path], rec)
		}
	}
	if gen.ID == "" {
		t.Error("generation ID is empty after Replace")
	}
	if gen.Written.IsZero() {
		t.Error("generation time is zero after Replace")
	}
	if gen.Algorithm != record.SHA256 {
		t.Errorf("generation algorithm = %q, want %q", gen.Algorithm, record.SHA256)
	}
}

func TestCreateRefusesExisting(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "integrity.db")

	store, err := Create(path, record.SHA256, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Replace(ctx, testSet()); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	store.Close()

	if _, err := Create(path, record.SHA256, false); !errors.Is(err, ErrStoreExists) {
		t.Fatalf("Create on existing store: err = %v, want ErrStoreExists", err)
	}

	// The refused create must leave the old contents alone.
	store, err = Open(path)
	if err != nil {
		t.Fatalf("Open after refused create: %v", err)
	}
	got, _, err := store.Read(ctx)
	store.Close()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("refused create clobbered the store: %d records left", len(got))
	}

	store, err = Create(path, record.SHA1, true)
	if err != nil {
		t.Fatalf("Create with overwrite: %v", err)
	}
	defer store.Close()
	got, _, err = store.Read(ctx)
	if err != nil {
		t.Fatalf("Read after overwrite: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("overwritten store still holds %d records", len(got))
	}
	if store.Algorithm() != record.SHA1 {
		t.Errorf("overwritten store algorithm = %q, want %q", store.Algorithm(), record.SHA1)
	}
}

func TestOpenMissingStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.db")
	if _, err := Open(path); !errors.Is(err, ErrStoreNotFound) {
		t.Fatalf("Open(%s): err = %v, want ErrStoreNotFound", path, err)
	}
}

func TestOpenRejectsForeignDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	cache, err := OpenCache(path)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	cache.Close()

	_, err = Open(path)
	var mismatch *SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Open on cache database: err = %v, want SchemaMismatchError", err)
	}
	if mismatch.Found != 0 {
		t.Errorf("mismatch.Found = %d, want 0 for an unrecognized store", mismatch.Found)
	}
}

func TestReplaceSwapsGeneration(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "integrity.db")

	store, err := Create(path, record.SHA256, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer store.Close()

	if err := store.Replace(ctx, testSet()); err != nil {
		t.Fatalf("first Replace: %v", err)
	}
	_, first, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	next := record.Set{
		"/data/c.txt": {
			Path:    "/data/c.txt",
			Size:    1,
			ModTime: time.Now().UnixNano(),
			Mode:    0o644,
			Hash:    record.SHA256.Sum([]byte("x")),
		},
	}
	if err := store.Replace(ctx, next); err != nil {
		t.Fatalf("second Replace: %v", err)
	}

	got, second, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Replace did not swap contents: %d records left", len(got))
	}
	if _, ok := got["/data/c.txt"]; !ok {
		t.Error("replacement record missing after Replace")
	}
	if first.ID == second.ID {
		t.Errorf("generation ID unchanged across Replace: %s", first.ID)
	}
}

func TestReplaceFailureKeepsPreviousGeneration(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "integrity.db")

	store, err := Create(path, record.SHA256, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer store.Close()

	want := testSet()
	if err := store.Replace(ctx, want); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	_, before, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	next := record.Set{
		"/data/d.txt": {
			Path:    "/data/d.txt",
			Size:    2,
			ModTime: time.Now().UnixNano(),
			Mode:    0o644,
			Hash:    record.SHA256.Sum([]byte("dd")),
		},
	}
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Replace(cancelled, next); err == nil {
		t.Fatal("Replace with cancelled context succeeded")
	}

	// The failed replace must leave the previous snapshot whole: same
	// records, same generation, nothing from the aborted set.
	got, after, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read after failed Replace: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("store holds %d records after failed Replace, want %d", len(got), len(want))
	}
	for path, rec := range want {
		if got[path] != rec {
			t.Errorf("record %s = %+v, want %+v", path, got[path], rec)
		}
	}
	if _, ok := got["/data/d.txt"]; ok {
		t.Error("record from the failed Replace leaked into the store")
	}
	if after.ID != before.ID {
		t.Errorf("generation ID changed across a failed Replace: %s -> %s", before.ID, after.ID)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hashlookup.db")

	cache, err := OpenCache(path)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}

	known := CacheEntry{
		Hash:       record.SHA256.Sum([]byte("known")),
		Algorithm:  record.SHA256,
		Found:      true,
		Trust:      75,
		ObservedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	unknown := CacheEntry{
		Hash:       record.SHA256.Sum([]byte("unknown")),
		Algorithm:  record.SHA256,
		Found:      false,
		ObservedAt: time.Date(2024, 5, 1, 8, 0, 1, 0, time.UTC),
	}
	for _, entry := range []CacheEntry{known, unknown} {
		if err := cache.Put(ctx, entry); err != nil {
			t.Fatalf("Put(%s): %v", entry.Hash.Short(), err)
		}
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Entries must survive a reopen; that is the whole point of the cache.
	cache, err = OpenCache(path)
	if err != nil {
		t.Fatalf("OpenCache (reopen): %v", err)
	}
	defer cache.Close()

	got, ok, err := cache.Get(ctx, known.Hash)
	if err != nil || !ok {
		t.Fatalf("Get(known) = ok=%v, err=%v", ok, err)
	}
	if !got.Found || got.Trust != 75 {
		t.Errorf("known entry = %+v, want Found=true Trust=75", got)
	}
	if !got.ObservedAt.Equal(known.ObservedAt) {
		t.Errorf("ObservedAt = %v, want %v", got.ObservedAt, known.ObservedAt)
	}

	got, ok, err = cache.Get(ctx, unknown.Hash)
	if err != nil || !ok {
		t.Fatalf("Get(unknown) = ok=%v, err=%v", ok, err)
	}
	if got.Found {
		t.Error("not-found verdict came back as Found")
	}

	if _, ok, _ := cache.Get(ctx, record.SHA256.Sum([]byte("never seen"))); ok {
		t.Error("Get reported a hash that was never stored")
	}

	n, err := cache.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}
