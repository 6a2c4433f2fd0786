package store

import (
	"database/sql"
	"errors"
	"fmt"
	"runtime"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore implements the Store interface using SQLite.
//
// Two pools share one database file: a single-connection writer opened
// with _txlock=immediate so multi-statement transactions take the
// write lock up front, and a read pool sized to the CPU count. WAL
// lets the readers proceed while a write is in flight.
type SQLiteStore struct {
	writer *sql.DB
	reader *sql.DB
}

const connPragmas = "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// NewSQLiteStore opens (creating if necessary) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	writer, err := sql.Open("sqlite", "file:"+dbPath+"?_txlock=immediate"+connPragmas)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	reader, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro"+connPragmas)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open read pool: %w", err)
	}
	reader.SetMaxOpenConns(runtime.GOMAXPROCS(0))

	// Force database creation and WAL setup through the writer before
	// the read-only pool touches the file.
	if _, err := writer.Exec("PRAGMA journal_mode = WAL"); err != nil {
		writer.Close()
		reader.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	return &SQLiteStore{writer: writer, reader: reader}, nil
}

// NewMemoryStore opens a private in-memory database, used by tests.
// Reads and writes share the single connection.
func NewMemoryStore() (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open memory database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &SQLiteStore{writer: db, reader: db}, nil
}

// Close closes both pools.
func (s *SQLiteStore) Close() error {
	var errs []error
	if s.reader != s.writer {
		errs = append(errs, s.reader.Close())
	}
	errs = append(errs, s.writer.Close())
	return errors.Join(errs...)
}

// withTx runs fn inside a writer transaction. The writer DSN carries
// _txlock=immediate, so the write lock is held from BEGIN.
func (s *SQLiteStore) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.writer.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// mustAffect converts a zero-row update or delete into ErrNotFound.
func mustAffect(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
