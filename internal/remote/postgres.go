package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const changeChannel = "production_records_changed"

// PostgresStore implements Store against a Postgres table. CRUD goes through
// database/sql; the change feed uses a dedicated native pgx connection
// listening on a NOTIFY channel fed by a table trigger.
type PostgresStore struct {
	db     *sql.DB
	url    string
	logger *slog.Logger

	mu          sync.Mutex
	schemaReady bool
}

// OpenPostgres prepares the store. The connection is lazy: an unreachable
// remote at boot is not an error, the process starts offline and the
// connectivity monitor's probe picks the store up once it answers. Schema and
// change trigger are installed on the first successful probe.
func OpenPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open remote db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)

	s := &PostgresStore{db: db, url: databaseURL, logger: logger}
	if err := s.Ping(ctx); err != nil {
		logger.Warn("remote store unreachable at startup, continuing offline", "error", err)
	}
	return s, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS production_records (
			id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			exporter       TEXT NOT NULL,
			product        TEXT NOT NULL,
			quantity       INTEGER NOT NULL,
			"materialId"   TEXT NOT NULL,
			"imageDataUrl" TEXT,
			"timestamp"    TIMESTAMPTZ NOT NULL,
			verified       BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		fmt.Sprintf(`CREATE OR REPLACE FUNCTION production_records_notify() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify('%s', TG_OP);
			RETURN NULL;
		END;
		$$ LANGUAGE plpgsql`, changeChannel),
		`DROP TRIGGER IF EXISTS production_records_changed ON production_records`,
		`CREATE TRIGGER production_records_changed
			AFTER INSERT OR UPDATE OR DELETE ON production_records
			FOR EACH STATEMENT EXECUTE FUNCTION production_records_notify()`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure remote schema: %w", err)
		}
	}
	return nil
}

const recordColumns = `id, exporter, product, quantity, "materialId", COALESCE("imageDataUrl", ''), "timestamp", verified`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.Exporter, &r.Product, &r.Quantity, &r.MaterialID, &r.ImageDataURL, &r.Timestamp, &r.Verified)
	return r, err
}

func (s *PostgresStore) Select(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM production_records ORDER BY "timestamp" DESC
	`, recordColumns))
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error("failed to close rows", "error", err)
		}
	}()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Insert writes all records in one statement, so a failure leaves nothing
// behind. Returned rows carry the store-assigned ids, in input order.
func (s *PostgresStore) Insert(ctx context.Context, records []NewRecord) ([]Record, error) {
	if len(records) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO production_records (exporter, product, quantity, "materialId", "imageDataUrl", "timestamp", verified) VALUES `)
	args := make([]any, 0, len(records)*7)
	for i, r := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 7
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args, r.Exporter, r.Product, r.Quantity, r.MaterialID, nullable(r.ImageDataURL), r.Timestamp, r.Verified)
	}
	fmt.Fprintf(&sb, ` RETURNING %s`, recordColumns)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("insert records: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error("failed to close rows", "error", err)
		}
	}()

	inserted := make([]Record, 0, len(records))
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inserted record: %w", err)
		}
		inserted = append(inserted, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inserted records: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) UpdateVerified(ctx context.Context, id string, verified bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE production_records SET verified = $1 WHERE id = $2
	`, verified, id)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if affected == 0 {
		return errors.New("record not found")
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM production_records WHERE id = $1
	`, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// DeleteAll removes every row. The predicate is this store's concern; callers
// only see "the table is empty afterwards".
func (s *PostgresStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM production_records`); err != nil {
		return fmt.Errorf("delete all records: %w", err)
	}
	return nil
}

// feedRetryInterval paces reconnect attempts of the change feed.
const feedRetryInterval = 5 * time.Second

// Subscribe starts the change feed, invoking notify for every change signal
// until ctx is cancelled. The payload is ignored: the feed promises no
// ordering, so the only safe reaction is a full re-select. The feed
// supervises its own connection; if it cannot be opened or dies mid-session
// it keeps retrying, so a process that boots offline still picks the feed up
// once connectivity returns.
func (s *PostgresStore) Subscribe(ctx context.Context, notify func()) error {
	go func() {
		for {
			if err := s.listen(ctx, notify); err != nil && ctx.Err() == nil {
				s.logger.Warn("change feed interrupted, reconnecting", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(feedRetryInterval):
			}
		}
	}()
	return nil
}

// listen holds one listening connection open until it fails or ctx ends.
func (s *PostgresStore) listen(ctx context.Context, notify func()) error {
	conn, err := pgx.Connect(ctx, s.url)
	if err != nil {
		return fmt.Errorf("connect change feed: %w", err)
	}
	defer func() {
		_ = conn.Close(context.Background())
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		return fmt.Errorf("listen on change feed: %w", err)
	}
	for {
		if _, err := conn.WaitForNotification(ctx); err != nil {
			return fmt.Errorf("wait on change feed: %w", err)
		}
		notify()
	}
}

// Ping doubles as the connectivity probe; the first ping that succeeds also
// installs the schema so every later operation can assume it exists.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schemaReady {
		return nil
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	s.schemaReady = true
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
