// Package storage persists record sets and reputation verdicts in embedded
// SQLite databases. The record store and the cache store are independent
// files with independent lifecycles; both carry a schema version so that an
// incompatible file fails to open instead of being misread.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SchemaVersion is written into every database this build creates. Opening
// a database written under a different version fails with
// *SchemaMismatchError.
const SchemaVersion = 1

var (
	// ErrStoreExists is returned by Create when the target file is
	// already present and overwriting was not requested.
	ErrStoreExists = errors.New("store already exists")

	// ErrStoreNotFound is returned by Open when there is no store at the
	// target location.
	ErrStoreNotFound = errors.New("store not found")
)

// SchemaMismatchError reports a database whose schema version differs from
// what this build reads and writes. Found is zero when the file is not a
// store at all.
type SchemaMismatchError struct {
	Path  string
	Found int
	Want  int
}

func (e *SchemaMismatchError) Error() string {
	if e.Found == 0 {
		return fmt.Sprintf("%s is not a recognized store", e.Path)
	}
	return fmt.Sprintf("%s has schema version %d, this build requires %d", e.Path, e.Found, e.Want)
}

// Exists reports whether a database file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// SidecarPaths returns the auxiliary files SQLite may keep next to a
// database. They are removed together with the database on overwrite and
// excluded together with it during scans.
func SidecarPaths(path string) []string {
	return []string{path + "-wal", path + "-shm", path + "-journal"}
}

// openDatabase opens (creating if necessary) a SQLite database and applies
// the session pragmas. The caller owns the returned handle.
func openDatabase(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	return db, nil
}

// hasTable reports whether the database contains a table with the given
// name. Used to distinguish "not a store" from "older schema".
func hasTable(db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("inspect schema: %w", err)
	}
	return count > 0, nil
}

// readMeta returns the value stored under key in the given meta table.
func readMeta(db *sql.DB, table, key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM `+table+` WHERE key=?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read meta %s: %w", key, err)
	}
	return value, nil
}

// writeMeta upserts a key/value pair in the given meta table using the
// supplied execer (a *sql.DB or an open transaction).
func writeMeta(ex execer, table, key, value string) error {
	_, err := ex.Exec(
		`INSERT INTO `+table+`(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("write meta %s: %w", key, err)
	}
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// removeDatabase deletes a database file together with its sidecars,
// ignoring files that are already gone.
func removeDatabase(path string) error {
	targets := append([]string{path}, SidecarPaths(path)...)
	for _, target := range targets {
		if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", target, err)
		}
	}
	return nil
}
