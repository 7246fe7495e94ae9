package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"ipwatch/internal/lookup/models"
)

// PostgresStore persists records in PostgreSQL. Expected schema:
//
//	CREATE TABLE ip_records (
//	    address            TEXT PRIMARY KEY,
//	    isp_name_local     TEXT NOT NULL,
//	    isp_name_canonical TEXT NOT NULL,
//	    is_vpn             BOOLEAN NOT NULL,
//	    vpn_provider       TEXT NOT NULL DEFAULT '',
//	    country            TEXT NOT NULL,
//	    city               TEXT NOT NULL,
//	    threat_level       INT NOT NULL,
//	    query_count        BIGINT NOT NULL,
//	    last_queried_at    TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE lookup_log (
//	    id           BIGSERIAL PRIMARY KEY,
//	    address      TEXT NOT NULL,
//	    country      TEXT NOT NULL,
//	    is_vpn       BOOLEAN NOT NULL,
//	    threat_level INT NOT NULL,
//	    created_at   TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db      *sql.DB
	retries int
	delay   time.Duration
}

// NewPostgres constructs a PostgreSQL-backed store with the production
// retry bounds.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:      db,
		retries: maxConflictRetries,
		delay:   conflictRetryDelay,
	}
}

// WithRetryPolicy overrides the retry bound and delay. Test hook.
func (s *PostgresStore) WithRetryPolicy(retries int, delay time.Duration) *PostgresStore {
	s.retries = retries
	s.delay = delay
	return s
}

// EnsureSchema creates the tables when they do not exist yet. Idempotent;
// run once at start-up.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS ip_records (
    address            TEXT PRIMARY KEY,
    isp_name_local     TEXT NOT NULL,
    isp_name_canonical TEXT NOT NULL,
    is_vpn             BOOLEAN NOT NULL,
    vpn_provider       TEXT NOT NULL DEFAULT '',
    country            TEXT NOT NULL,
    city               TEXT NOT NULL,
    threat_level       INT NOT NULL,
    query_count        BIGINT NOT NULL,
    last_queried_at    TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS lookup_log (
    id           BIGSERIAL PRIMARY KEY,
    address      TEXT NOT NULL,
    country      TEXT NOT NULL,
    is_vpn       BOOLEAN NOT NULL,
    threat_level INT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL
);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const recordColumns = `address, isp_name_local, isp_name_canonical, is_vpn, vpn_provider, country, city, threat_level, query_count, last_queried_at`

func (s *PostgresStore) FindByAddress(ctx context.Context, address string) (*models.LookupResult, error) {
	query := `SELECT ` + recordColumns + ` FROM ip_records WHERE address = $1`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, address))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) IncrementAndTouch(ctx context.Context, address string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE ip_records SET query_count = query_count + 1, last_queried_at = NOW() WHERE address = $1`,
		address,
	)
	if err != nil {
		return fmt.Errorf("increment record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Upsert runs the insert-or-increment transaction under the bounded
// conflict-retry loop. The record is re-read inside the transaction so a
// row created by a concurrent caller between the service's earlier read
// and this write turns into an increment instead of a duplicate insert.
func (s *PostgresStore) Upsert(ctx context.Context, result *models.LookupResult) error {
	if result == nil {
		return fmt.Errorf("lookup result is required")
	}
	return runWithConflictRetry(ctx, s.retries, s.delay, func(ctx context.Context) error {
		return s.upsertTx(ctx, result)
	})
}

func (s *PostgresStore) upsertTx(ctx context.Context, result *models.LookupResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var existing int64
	err = tx.QueryRowContext(ctx,
		`SELECT query_count FROM ip_records WHERE address = $1 FOR UPDATE`,
		result.Address,
	).Scan(&existing)

	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx,
			`UPDATE ip_records SET query_count = query_count + 1, last_queried_at = NOW() WHERE address = $1`,
			result.Address,
		); err != nil {
			return classifyWriteError("update record", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ip_records (`+recordColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, NOW())`,
			result.Address,
			result.ISPNameLocal,
			result.ISPNameCanonical,
			result.IsVPN,
			result.VPNProvider,
			result.Country,
			result.City,
			result.ThreatLevel,
		); err != nil {
			return classifyWriteError("insert record", err)
		}
	default:
		return fmt.Errorf("reread record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return classifyWriteError("commit upsert", err)
	}
	return nil
}

func (s *PostgresStore) CountRecords(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ip_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) AppendLog(ctx context.Context, entry models.LogEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lookup_log (address, country, is_vpn, threat_level, created_at) VALUES ($1, $2, $3, $4, $5)`,
		entry.Address, entry.Country, entry.IsVPN, entry.ThreatLevel, createdAt,
	)
	if err != nil {
		return fmt.Errorf("append lookup log: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountLogs(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lookup_log`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count lookup log: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ClearRecords(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ip_records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return nil
}

// classifyWriteError maps transient Postgres failures onto ErrConflict so
// the retry loop can distinguish them from permanent errors.
func classifyWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", // unique_violation: concurrent insert on the same address
			"40001", // serialization_failure
			"40P01": // deadlock_detected
			return fmt.Errorf("%s: %w", op, ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

type recordRow interface {
	Scan(dest ...any) error
}

func scanRecord(row recordRow) (*models.LookupResult, error) {
	var record models.LookupResult
	if err := row.Scan(
		&record.Address,
		&record.ISPNameLocal,
		&record.ISPNameCanonical,
		&record.IsVPN,
		&record.VPNProvider,
		&record.Country,
		&record.City,
		&record.ThreatLevel,
		&record.QueryCount,
		&record.LastQueriedAt,
	); err != nil {
		return nil, err
	}
	return &record, nil
}
