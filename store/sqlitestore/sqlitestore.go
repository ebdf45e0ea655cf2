// Package sqlitestore is the concrete Value Store backend, grounded on
// original_source/server/database.c. The original's five-table schema
// (KeyInfo plus one value table per kind, joined through a Datatypes table)
// is collapsed into a single key_info table with one nullable column per
// kind: the on-disk schema is not a contract any caller depends on, so only
// the abstract behavior — one value per (domain, key), kind partitioning,
// atomic cross-kind replacement — is preserved.
package sqlitestore

import (
	"database/sql"
	"embed"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"krypt.co/registry/errcode"
	"krypt.co/registry/logging"
	"krypt.co/registry/store"
)

var log = logging.MustGetLogger("store/sqlitestore")

//go:embed migrations/sqlite3
var migrationFiles embed.FS

// Store is a SQLite-backed store.Store. The zero value is not usable; build
// one with Open.
type Store struct {
	db      *sqlx.DB
	blobDir string
}

// Open opens (and migrates, if needed) the SQLite database at path, and
// binds blobDir as the store's blob directory. blobDir must already exist.
func Open(path, blobDir string) (*Store, error) {
	if path == "" {
		return nil, errcode.New(errcode.INVALID_ARGUMENTS, errcode.KindArgument, "sqlitestore: empty database path")
	}
	absBlobDir, err := filepath.Abs(blobDir)
	if err != nil {
		return nil, errcode.New(errcode.DATABASE_OPEN, errcode.KindInvalidState, "sqlitestore: cannot resolve blob directory")
	}
	info, err := os.Stat(absBlobDir)
	if err != nil || !info.IsDir() {
		return nil, errcode.New(errcode.DATABASE_OPEN, errcode.KindInvalidState, "sqlitestore: blob directory must already exist")
	}

	db, err := sqlx.Connect("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", path))
	if err != nil {
		return nil, errcode.New(errcode.DATABASE_OPEN, errcode.KindInvalidState, "sqlitestore: open failed")
	}

	if err := migrateUp(db.DB, path); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, blobDir: absBlobDir}, nil
}

func migrateUp(db *sql.DB, path string) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return errcode.New(errcode.DATABASE_INVALID, errcode.KindInvalidState, "sqlitestore: migration driver init failed")
	}
	src, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return errcode.New(errcode.DATABASE_INVALID, errcode.KindInvalidState, "sqlitestore: migration source init failed")
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return errcode.New(errcode.DATABASE_INVALID, errcode.KindInvalidState, "sqlitestore: migration init failed")
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errcode.New(errcode.DATABASE_INVALID, errcode.KindInvalidState, "sqlitestore: migration failed")
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type keyRow struct {
	Kind        int64           `db:"kind"`
	IntValue    sql.NullInt64   `db:"int_value"`
	DoubleValue []byte          `db:"double_value"`
	StringValue sql.NullString  `db:"string_value"`
}

func (s *Store) lookup(domain, key string) (*keyRow, error) {
	var row keyRow
	err := s.db.Get(&row, `SELECT kind, int_value, double_value, string_value FROM key_info WHERE domain = ? AND key = ?`, domain, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errcode.New(errcode.DATABASE_IO, errcode.KindInvalidState, "sqlitestore: lookup failed")
	}
	return &row, nil
}

func validateDomainKey(domain, key string) error {
	if domain == "" || key == "" {
		return errcode.New(errcode.INVALID_ARGUMENTS, errcode.KindArgument, "sqlitestore: domain and key must be non-empty")
	}
	return nil
}

// GetInt implements store.Store.
func (s *Store) GetInt(domain, key string) (int64, error) {
	if err := validateDomainKey(domain, key); err != nil {
		return 0, err
	}
	row, err := s.lookup(domain, key)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, errcode.New(errcode.DATABASE_NO_SUCH_KEY, errcode.KindNoSuchKey, "sqlitestore: no such key")
	}
	if store.Kind(row.Kind) != store.KindInt64 {
		return 0, errcode.New(errcode.DATABASE_TYPE_MISMATCH, errcode.KindTypeMismatch, "sqlitestore: type mismatch")
	}
	return row.IntValue.Int64, nil
}

// SetInt implements store.Store.
func (s *Store) SetInt(domain, key string, value int64) error {
	if err := validateDomainKey(domain, key); err != nil {
		return err
	}
	return s.upsert(domain, key, store.KindInt64, func(tx *sqlx.Tx) error {
		_, err := tx.Exec(`INSERT INTO key_info (domain, key, kind, int_value) VALUES (?, ?, ?, ?)
			ON CONFLICT(domain, key) DO UPDATE SET kind = excluded.kind, int_value = excluded.int_value,
			double_value = NULL, string_value = NULL`,
			domain, key, int64(store.KindInt64), value)
		return err
	})
}

// GetDouble implements store.Store.
func (s *Store) GetDouble(domain, key string) (float64, error) {
	if err := validateDomainKey(domain, key); err != nil {
		return 0, err
	}
	row, err := s.lookup(domain, key)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, errcode.New(errcode.DATABASE_NO_SUCH_KEY, errcode.KindNoSuchKey, "sqlitestore: no such key")
	}
	if store.Kind(row.Kind) != store.KindDouble {
		return 0, errcode.New(errcode.DATABASE_TYPE_MISMATCH, errcode.KindTypeMismatch, "sqlitestore: type mismatch")
	}
	if len(row.DoubleValue) != 8 {
		return 0, errcode.New(errcode.DATABASE_INVALID, errcode.KindInvalidState, "sqlitestore: malformed double value")
	}
	return math.Float64frombits(binary.BigEndian.Uint64(row.DoubleValue)), nil
}

// SetDouble implements store.Store.
func (s *Store) SetDouble(domain, key string, value float64) error {
	if err := validateDomainKey(domain, key); err != nil {
		return err
	}
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], math.Float64bits(value))
	return s.upsert(domain, key, store.KindDouble, func(tx *sqlx.Tx) error {
		_, err := tx.Exec(`INSERT INTO key_info (domain, key, kind, double_value) VALUES (?, ?, ?, ?)
			ON CONFLICT(domain, key) DO UPDATE SET kind = excluded.kind, double_value = excluded.double_value,
			int_value = NULL, string_value = NULL`,
			domain, key, int64(store.KindDouble), raw[:])
		return err
	})
}

// GetString implements store.Store.
func (s *Store) GetString(domain, key string) (string, error) {
	if err := validateDomainKey(domain, key); err != nil {
		return "", err
	}
	row, err := s.lookup(domain, key)
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", errcode.New(errcode.DATABASE_NO_SUCH_KEY, errcode.KindNoSuchKey, "sqlitestore: no such key")
	}
	if store.Kind(row.Kind) != store.KindString {
		return "", errcode.New(errcode.DATABASE_TYPE_MISMATCH, errcode.KindTypeMismatch, "sqlitestore: type mismatch")
	}
	return row.StringValue.String, nil
}

// SetString implements store.Store.
func (s *Store) SetString(domain, key string, value string) error {
	if err := validateDomainKey(domain, key); err != nil {
		return err
	}
	return s.upsert(domain, key, store.KindString, func(tx *sqlx.Tx) error {
		_, err := tx.Exec(`INSERT INTO key_info (domain, key, kind, string_value) VALUES (?, ?, ?, ?)
			ON CONFLICT(domain, key) DO UPDATE SET kind = excluded.kind, string_value = excluded.string_value,
			int_value = NULL, double_value = NULL`,
			domain, key, int64(store.KindString), value)
		return err
	})
}

// GetBlob implements store.Store, reading the full blob file into memory.
func (s *Store) GetBlob(domain, key string) ([]byte, error) {
	if err := validateDomainKey(domain, key); err != nil {
		return nil, err
	}
	row, err := s.lookup(domain, key)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errcode.New(errcode.DATABASE_NO_SUCH_KEY, errcode.KindNoSuchKey, "sqlitestore: no such key")
	}
	if store.Kind(row.Kind) != store.KindBlob {
		return nil, errcode.New(errcode.DATABASE_TYPE_MISMATCH, errcode.KindTypeMismatch, "sqlitestore: type mismatch")
	}
	path, err := s.blobPath(domain, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errcode.New(errcode.DATABASE_IO, errcode.KindInvalidState, "sqlitestore: blob read failed")
	}
	return data, nil
}

// SetBlob implements store.Store: writes the payload under the store's blob
// directory, then upserts the key_info row, deleting any prior blob file on
// a cross-kind replacement.
func (s *Store) SetBlob(domain, key string, value []byte) error {
	if err := validateDomainKey(domain, key); err != nil {
		return err
	}
	path, err := s.blobPath(domain, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errcode.New(errcode.DATABASE_IO, errcode.KindInvalidState, "sqlitestore: blob directory creation failed")
	}
	if err := os.WriteFile(path, value, 0o600); err != nil {
		return errcode.New(errcode.DATABASE_IO, errcode.KindInvalidState, "sqlitestore: blob write failed")
	}
	if err := s.upsert(domain, key, store.KindBlob, func(tx *sqlx.Tx) error {
		_, err := tx.Exec(`INSERT INTO key_info (domain, key, kind) VALUES (?, ?, ?)
			ON CONFLICT(domain, key) DO UPDATE SET kind = excluded.kind,
			int_value = NULL, double_value = NULL, string_value = NULL`,
			domain, key, int64(store.KindBlob))
		return err
	}); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

// GetType implements store.Store.
func (s *Store) GetType(domain, key string) (store.Kind, error) {
	if err := validateDomainKey(domain, key); err != nil {
		return 0, err
	}
	row, err := s.lookup(domain, key)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, errcode.New(errcode.DATABASE_NO_SUCH_KEY, errcode.KindNoSuchKey, "sqlitestore: no such key")
	}
	return store.Kind(row.Kind), nil
}

// EnumKeys implements store.Store using SQLite's native GLOB operator,
// grounded directly on database_enum_keys's
// "... AND key GLOB :pat ORDER BY key ASC" statement.
func (s *Store) EnumKeys(domain, pattern string) ([]string, error) {
	if domain == "" {
		return nil, errcode.New(errcode.INVALID_ARGUMENTS, errcode.KindArgument, "sqlitestore: empty domain")
	}
	if pattern == "" {
		return nil, nil
	}
	var keys []string
	err := s.db.Select(&keys, `SELECT key FROM key_info WHERE domain = ? AND key GLOB ? ORDER BY key ASC`, domain, pattern)
	if err != nil {
		return nil, errcode.New(errcode.DATABASE_IO, errcode.KindInvalidState, "sqlitestore: enum failed")
	}
	sort.Strings(keys) // ORDER BY already guarantees this; kept for defense against collation quirks.
	return keys, nil
}

// upsert runs fn inside a transaction. If the (domain, key) pair already
// exists under a different kind and that prior kind was blob, the prior
// blob file is removed after a successful commit; a failure to remove it is
// logged, not returned, since an orphaned blob file is not a failure of the
// upsert itself.
func (s *Store) upsert(domain, key string, newKind store.Kind, fn func(tx *sqlx.Tx) error) error {
	prior, err := s.lookup(domain, key)
	if err != nil {
		return err
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return errcode.New(errcode.DATABASE_INVALID, errcode.KindInvalidState, "sqlitestore: begin failed")
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return errcode.New(errcode.DATABASE_IO, errcode.KindInvalidState, "sqlitestore: write failed")
	}
	if err := tx.Commit(); err != nil {
		return errcode.New(errcode.DATABASE_INVALID, errcode.KindInvalidState, "sqlitestore: commit failed")
	}

	if prior != nil && store.Kind(prior.Kind) != newKind && store.Kind(prior.Kind) == store.KindBlob {
		path, err := s.blobPath(domain, key)
		if err == nil {
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Warningf("orphaned blob file %s could not be removed: %v", path, rmErr)
			}
		}
	}
	return nil
}

// blobPath computes <blob-dir>/<sanitized-domain>/<sanitized-key> and
// verifies the resolved path remains within the blob directory, grounded on
// check_blob_path in database.c.
func (s *Store) blobPath(domain, key string) (string, error) {
	sanitizedDomain := sanitize(domain)
	sanitizedKey := sanitize(key)
	path := filepath.Join(s.blobDir, sanitizedDomain, sanitizedKey)

	resolved, err := filepath.Abs(path)
	if err != nil {
		return "", errcode.New(errcode.DATABASE_INVALID, errcode.KindInvalidState, "sqlitestore: cannot resolve blob path")
	}
	if !strings.HasPrefix(resolved, s.blobDir+string(filepath.Separator)) && resolved != s.blobDir {
		return "", errcode.New(errcode.DATABASE_INVALID, errcode.KindInvalidState, "sqlitestore: blob path escapes blob directory")
	}
	return resolved, nil
}

func sanitize(name string) string {
	r := strings.NewReplacer(" ", "_", string(filepath.Separator), "_", "/", "_")
	return r.Replace(name)
}

var _ store.Store = (*Store)(nil)
