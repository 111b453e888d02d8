package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/wintermute101/integrity-checker/internal/record"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS cache_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS hash_cache (
	hash        TEXT PRIMARY KEY,
	algorithm   TEXT NOT NULL,
	found       INTEGER NOT NULL,
	trust       INTEGER NOT NULL,
	observed_at INTEGER NOT NULL
);
`

const cacheMetaTable = "cache_meta"

// CacheEntry is one remembered reputation verdict. Entries are kept
// forever: a hash that was looked up once is never queried again.
type CacheEntry struct {
	Hash       record.Digest
	Algorithm  record.Algorithm
	Found      bool
	Trust      uint8
	ObservedAt time.Time
}

// Cache is the persistent verdict cache shared by all reputation lookups.
type Cache struct {
	db   *sql.DB
	path string
}

// OpenCache opens the verdict cache at path, creating the database and its
// schema on first use. An existing file written under a different schema
// version yields *SchemaMismatchError.
func OpenCache(path string) (*Cache, error) {
	existed := Exists(path)

	db, err := openDatabase(path)
	if err != nil {
		return nil, err
	}

	if existed {
		ok, err := hasTable(db, cacheMetaTable)
		if err != nil {
			db.Close()
			return nil, err
		}
		if !ok {
			db.Close()
			return nil, &SchemaMismatchError{Path: path, Want: SchemaVersion}
		}
		raw, err := readMeta(db, cacheMetaTable, metaSchemaVersion)
		if err != nil {
			db.Close()
			return nil, err
		}
		version, _ := strconv.Atoi(raw)
		if version != SchemaVersion {
			db.Close()
			return nil, &SchemaMismatchError{Path: path, Found: version, Want: SchemaVersion}
		}
		return &Cache{db: db, path: path}, nil
	}

	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	if err := writeMeta(db, cacheMetaTable, metaSchemaVersion, strconv.Itoa(SchemaVersion)); err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{db: db, path: path}, nil
}

// Path returns the location of the cache's database file.
func (c *Cache) Path() string { return c.path }

// Get returns the remembered verdict for a hash. The second return value
// reports whether the hash has ever been resolved.
func (c *Cache) Get(ctx context.Context, hash record.Digest) (CacheEntry, bool, error) {
	var (
		entry    CacheEntry
		found    int
		observed int64
		alg      string
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT hash, algorithm, found, trust, observed_at FROM hash_cache WHERE hash=?`,
		string(hash),
	).Scan(&entry.Hash, &alg, &found, &entry.Trust, &observed)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, fmt.Errorf("read cache entry: %w", err)
	}

	entry.Algorithm = record.Algorithm(alg)
	entry.Found = found != 0
	entry.ObservedAt = time.Unix(0, observed)
	return entry, true, nil
}

// Put records a verdict. Writing the same hash again overwrites the old
// entry, so replays of an already-resolved hash are harmless.
func (c *Cache) Put(ctx context.Context, entry CacheEntry) error {
	found := 0
	if entry.Found {
		found = 1
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO hash_cache(hash, algorithm, found, trust, observed_at) VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET
			algorithm=excluded.algorithm,
			found=excluded.found,
			trust=excluded.trust,
			observed_at=excluded.observed_at`,
		string(entry.Hash), string(entry.Algorithm), found, entry.Trust, entry.ObservedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Count returns the number of verdicts held by the cache.
func (c *Cache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM hash_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error { return c.db.Close() }
