package storage

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	_ "modernc.org/sqlite"

	"sunsetdb/pkg/common"
)

// SQLiteBackend holds a flat copy of the live key set in a SQLite table. The
// export tool fills it from a log so the data can be inspected with any
// SQLite client.
type SQLiteBackend struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	query := `
	CREATE TABLE IF NOT EXISTS data (
		key BLOB PRIMARY KEY,
		value BLOB
	);`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, fmt.Errorf("init table: %w", err)
	}

	_, err = db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
	`)
	if err != nil {
		log.Printf("[Storage] Warning: Failed to set PRAGMA: %v", err)
	}

	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) BatchWrite(records []common.Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO data (key, value) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		val := rec.Value
		if val == nil {
			val = []byte{}
		}
		if _, err := stmt.Exec(rec.Key, val); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteBackend) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM data").Scan(&n)
	return n, err
}

func (s *SQLiteBackend) Truncate() error {
	_, err := s.db.Exec("DELETE FROM data")
	return err
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

// Export replaces the contents of dst with the live records of src, written
// in batches of batchSize.
func Export(src *LogStore, dst *SQLiteBackend, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	records, err := src.Scan(nil, nil, 0)
	if err != nil {
		return 0, err
	}
	if err := dst.Truncate(); err != nil {
		return 0, fmt.Errorf("truncate: %w", err)
	}
	for i := 0; i < len(records); i += batchSize {
		j := min(i+batchSize, len(records))
		if err := dst.BatchWrite(records[i:j]); err != nil {
			return i, fmt.Errorf("batch write: %w", err)
		}
	}
	return len(records), nil
}
