// Package cache is the durable offline projection of the record list. The
// whole list is serialized as one JSON document under a fixed key so a
// submission made without connectivity survives a process restart.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dsporty/prodtrack/internal/domain"
)

// recordsKey is the single key the record list lives under.
const recordsKey = "production_records"

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the cache database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS offline_cache (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// cachedRecord is the serialized shape. Timestamps are stored as RFC 3339
// text so they survive the round trip; field names mirror the remote table.
type cachedRecord struct {
	ID           string `json:"id"`
	Exporter     string `json:"exporter"`
	Product      string `json:"product"`
	Quantity     int    `json:"quantity"`
	MaterialID   string `json:"materialId"`
	ImageDataURL string `json:"imageDataUrl,omitempty"`
	Timestamp    string `json:"timestamp"`
	Verified     bool   `json:"verified"`
}

// Save replaces the persisted list with records. Persistence failures are
// logged and swallowed: the in-memory list stays authoritative for the
// session, so the caller has nothing useful to do with the error.
func (s *Store) Save(ctx context.Context, records []domain.ProductionRecord) {
	out := make([]cachedRecord, 0, len(records))
	for _, r := range records {
		out = append(out, cachedRecord{
			ID:           r.ID,
			Exporter:     r.Exporter,
			Product:      r.Product,
			Quantity:     r.Quantity,
			MaterialID:   r.MaterialID,
			ImageDataURL: r.ImageDataURL,
			Timestamp:    r.CreatedAt.UTC().Format(time.RFC3339Nano),
			Verified:     r.Verified,
		})
	}

	data, err := json.Marshal(out)
	if err != nil {
		s.logger.Error("failed to serialize offline cache", "error", err)
		return
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO offline_cache (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, recordsKey, string(data))
	if err != nil {
		s.logger.Error("failed to write offline cache", "error", err, "records", len(records))
	}
}

// Load returns the previously saved list. A missing or malformed payload
// yields an empty list; corruption never propagates past this boundary.
func (s *Store) Load(ctx context.Context) []domain.ProductionRecord {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM offline_cache WHERE key = ?
	`, recordsKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		s.logger.Error("failed to read offline cache", "error", err)
		return nil
	}

	var cached []cachedRecord
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		s.logger.Error("offline cache payload is malformed, ignoring", "error", err)
		return nil
	}

	records := make([]domain.ProductionRecord, 0, len(cached))
	for _, c := range cached {
		ts, err := time.Parse(time.RFC3339Nano, c.Timestamp)
		if err != nil {
			s.logger.Error("offline cache timestamp is malformed, ignoring", "id", c.ID, "error", err)
			return nil
		}
		records = append(records, domain.ProductionRecord{
			ID:           c.ID,
			Exporter:     c.Exporter,
			Product:      c.Product,
			Quantity:     c.Quantity,
			MaterialID:   c.MaterialID,
			ImageDataURL: c.ImageDataURL,
			CreatedAt:    ts,
			Verified:     c.Verified,
		})
	}
	return records
}

// Clear removes the persisted list entirely. Used by the destructive admin
// reset, so unlike Save the caller does want to know about failure.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM offline_cache WHERE key = ?`, recordsKey); err != nil {
		return fmt.Errorf("failed to clear offline cache: %w", err)
	}
	return nil
}
