package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"sold-listings-scraper/models"
)

// CheckpointStore keeps the records harvested so far in a SQLite file so an
// interrupted run can resume. Each Save replaces the previous checkpoint.
type CheckpointStore struct {
	db *sql.DB
}

func NewCheckpointStore(path string) (*CheckpointStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("could not create checkpoint dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &CheckpointStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *CheckpointStore) Close() error {
	return s.db.Close()
}

func (s *CheckpointStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS checkpoint (
		url TEXT PRIMARY KEY,
		record JSON NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate checkpoint: %w", err)
	}
	return nil
}

// Save overwrites the checkpoint with records.
func (s *CheckpointStore) Save(ctx context.Context, records []models.ListingRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoint`); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO checkpoint (url, record) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		data, err := json.Marshal(FromRecord(rec))
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, rec.URL, string(data)); err != nil {
			return fmt.Errorf("checkpoint %s: %w", rec.URL, err)
		}
	}
	return tx.Commit()
}

// Load returns the checkpointed records in the order they were saved.
func (s *CheckpointStore) Load(ctx context.Context) ([]models.ListingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM checkpoint ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ListingRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r Row
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decode checkpoint row: %w", err)
		}
		out = append(out, r.ToRecord())
	}
	return out, rows.Err()
}

func (s *CheckpointStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoint`)
	return err
}
