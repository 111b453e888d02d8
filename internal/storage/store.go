package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/wintermute101/integrity-checker/internal/record"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS store_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS file_records (
	path     TEXT PRIMARY KEY,
	size     INTEGER NOT NULL,
	mod_time INTEGER NOT NULL,
	mode     INTEGER NOT NULL,
	hash     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_file_records_hash ON file_records(hash);
`

const (
	metaTable = "store_meta"

	metaSchemaVersion  = "schema_version"
	metaAlgorithm      = "algorithm"
	metaCreatedAt      = "created_at"
	metaGenerationID   = "generation_id"
	metaGenerationTime = "generation_time"
)

// Store is a record store: one full snapshot of a scanned tree plus the
// metadata describing how and when it was taken.
type Store struct {
	db        *sql.DB
	path      string
	algorithm record.Algorithm
}

// Generation identifies the snapshot currently held by a store. A fresh
// generation ID is assigned on every Replace.
type Generation struct {
	ID        string           `json:"id"`
	Written   time.Time        `json:"written"`
	CreatedAt time.Time        `json:"createdAt"`
	Algorithm record.Algorithm `json:"algorithm"`
}

// Create initializes a new record store at path for the given hash
// algorithm. An existing store is refused with ErrStoreExists unless
// overwrite is set, in which case the old database and its sidecars are
// removed first.
func Create(path string, algorithm record.Algorithm, overwrite bool) (*Store, error) {
	if Exists(path) {
		if !overwrite {
			return nil, fmt.Errorf("%w: %s", ErrStoreExists, path)
		}
		if err := removeDatabase(path); err != nil {
			return nil, err
		}
	}

	db, err := openDatabase(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create store schema: %w", err)
	}

	now := strconv.FormatInt(time.Now().UnixNano(), 10)
	meta := map[string]string{
		metaSchemaVersion: strconv.Itoa(SchemaVersion),
		metaAlgorithm:     string(algorithm),
		metaCreatedAt:     now,
	}
	for key, value := range meta {
		if err := writeMeta(db, metaTable, key, value); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Store{db: db, path: path, algorithm: algorithm}, nil
}

// Open opens an existing record store. A missing file yields
// ErrStoreNotFound; a file written under a different schema version yields
// *SchemaMismatchError.
func Open(path string) (*Store, error) {
	if !Exists(path) {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, path)
	}

	db, err := openDatabase(path)
	if err != nil {
		return nil, err
	}

	ok, err := hasTable(db, metaTable)
	if err != nil {
		db.Close()
		return nil, err
	}
	if !ok {
		db.Close()
		return nil, &SchemaMismatchError{Path: path, Want: SchemaVersion}
	}

	raw, err := readMeta(db, metaTable, metaSchemaVersion)
	if err != nil {
		db.Close()
		return nil, err
	}
	version, _ := strconv.Atoi(raw)
	if version != SchemaVersion {
		db.Close()
		return nil, &SchemaMismatchError{Path: path, Found: version, Want: SchemaVersion}
	}

	algRaw, err := readMeta(db, metaTable, metaAlgorithm)
	if err != nil {
		db.Close()
		return nil, err
	}
	algorithm, err := record.ParseAlgorithm(algRaw)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store %s: %w", path, err)
	}

	return &Store{db: db, path: path, algorithm: algorithm}, nil
}

// Path returns the location of the store's database file.
func (s *Store) Path() string { return s.path }

// Algorithm returns the hash algorithm every record in the store was
// produced with.
func (s *Store) Algorithm() record.Algorithm { return s.algorithm }

// Read loads the complete record set together with the generation that
// produced it.
func (s *Store) Read(ctx context.Context) (record.Set, Generation, error) {
	gen, err := s.Generation()
	if err != nil {
		return nil, Generation{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT path, size, mod_time, mode, hash FROM file_records`)
	if err != nil {
		return nil, Generation{}, fmt.Errorf("read records: %w", err)
	}
	defer rows.Close()

	set := make(record.Set)
	for rows.Next() {
		var rec record.FileRecord
		var hash string
		if err := rows.Scan(&rec.Path, &rec.Size, &rec.ModTime, &rec.Mode, &hash); err != nil {
			return nil, Generation{}, fmt.Errorf("scan record: %w", err)
		}
		rec.Hash = record.Digest(hash)
		set[rec.Path] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, Generation{}, fmt.Errorf("read records: %w", err)
	}

	return set, gen, nil
}

// Replace swaps the store's contents for the given set in a single
// transaction and stamps a new generation. On error the previous contents
// remain intact.
func (s *Store) Replace(ctx context.Context, set record.Set) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO file_records(path, size, mod_time, mode, hash) VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, path := range set.Paths() {
		rec := set[path]
		if _, err := stmt.ExecContext(ctx, rec.Path, rec.Size, rec.ModTime, rec.Mode, string(rec.Hash)); err != nil {
			return fmt.Errorf("insert record %s: %w", rec.Path, err)
		}
	}

	now := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := writeMeta(tx, metaTable, metaGenerationID, uuid.NewString()); err != nil {
		return err
	}
	if err := writeMeta(tx, metaTable, metaGenerationTime, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit records: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Generation returns the store's current generation metadata without
// loading the records.
func (s *Store) Generation() (Generation, error) {
	gen := Generation{Algorithm: s.algorithm}

	id, err := readMeta(s.db, metaTable, metaGenerationID)
	if err != nil {
		return Generation{}, err
	}
	gen.ID = id

	written, err := readMeta(s.db, metaTable, metaGenerationTime)
	if err != nil {
		return Generation{}, err
	}
	gen.Written = parseNano(written)

	created, err := readMeta(s.db, metaTable, metaCreatedAt)
	if err != nil {
		return Generation{}, err
	}
	gen.CreatedAt = parseNano(created)

	return gen, nil
}

// parseNano converts a stored UnixNano string back into a time. Missing or
// malformed values come back as the zero time.
func parseNano(raw string) time.Time {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
