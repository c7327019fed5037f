package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"alertdesk/internal/config"
	"alertdesk/internal/domain"

	_ "github.com/lib/pq"
)

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL CHECK (type IN ('fraud', 'dos')),
		ts TIMESTAMPTZ NOT NULL,
		details JSONB NOT NULL,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts (ts DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_type_ts ON alerts (type, ts DESC, id DESC)`,
}

// PostgresStore persists alerts in one table with JSONB details.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the pool, checks connectivity, and runs migrations.
// Params: context bounding startup and postgres settings.
// Returns: ready store or setup error.
func NewPostgresStore(ctx context.Context, settings config.PostgresStoreConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", settings.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(settings.MaxOpenConns)
	db.SetMaxIdleConns(settings.MaxIdleConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := &PostgresStore{db: db}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	for i, statement := range postgresMigrations {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("postgres migration %d: %w", i, err)
		}
	}
	return nil
}

// Insert writes one alert row.
// Params: normalized alert.
// Returns: stored alert or persistence error.
func (s *PostgresStore) Insert(ctx context.Context, alert domain.Alert) (domain.Alert, error) {
	stored, err := prepareInsert(alert)
	if err != nil {
		return domain.Alert{}, err
	}
	details, err := stored.DetailsJSON()
	if err != nil {
		return domain.Alert{}, domain.NewPersistenceError("insert", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, type, ts, details, resolved) VALUES ($1, $2, $3, $4, $5)`,
		stored.ID, string(stored.Type), stored.Timestamp, details, stored.Resolved,
	)
	if err != nil {
		return domain.Alert{}, domain.NewPersistenceError("insert", err)
	}
	return stored, nil
}

// List queries alerts ordered by ts desc, id desc.
// Params: type filter and limit (<=0 unbounded).
// Returns: matching alerts, never nil.
func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]domain.Alert, error) {
	query := `SELECT id, type, ts, details, resolved FROM alerts WHERE ($1 = '' OR type = $1) ORDER BY ts DESC, id DESC`
	args := []any{string(filter.Type)}
	if filter.Limit > 0 {
		query += ` LIMIT $2`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewPersistenceError("list", err)
	}
	defer rows.Close()

	out := make([]domain.Alert, 0)
	for rows.Next() {
		var (
			id       string
			rawType  string
			ts       time.Time
			details  []byte
			resolved bool
		)
		if err := rows.Scan(&id, &rawType, &ts, &details, &resolved); err != nil {
			return nil, domain.NewPersistenceError("list", fmt.Errorf("scan alert row: %w", err))
		}
		alert, err := decodeDocument(id, domain.AlertType(rawType), ts, details, resolved)
		if err != nil {
			return nil, domain.NewPersistenceError("list", err)
		}
		out = append(out, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewPersistenceError("list", err)
	}
	return out, nil
}

// CountByType counts rows with the given type.
func (s *PostgresStore) CountByType(ctx context.Context, alertType domain.AlertType) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM alerts WHERE type = $1`, string(alertType)).Scan(&count); err != nil {
		return 0, domain.NewPersistenceError("count", err)
	}
	return count, nil
}

// Ping checks pool connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return domain.NewPersistenceError("ping", s.db.PingContext(ctx))
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
