package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS machine_discovery_status (
    ip_address           TEXT PRIMARY KEY,
    port                 INTEGER NOT NULL,
    status               TEXT NOT NULL,
    running_time_minutes DOUBLE PRECISION,
    job_name             TEXT NOT NULL,
    balance_time_minutes DOUBLE PRECISION,
    filename             TEXT NOT NULL,
    raw_response         TEXT NOT NULL,
    first_seen           TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_seen            TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const selectColumns = `ip_address, port, status, running_time_minutes, job_name,
    balance_time_minutes, filename, raw_response, first_seen, last_seen`

const findByAddressSQL = `SELECT ` + selectColumns + `
FROM machine_discovery_status WHERE ip_address = $1`

const listSQL = `SELECT ` + selectColumns + `
FROM machine_discovery_status ORDER BY ip_address`

const insertSQL = `
INSERT INTO machine_discovery_status (
    ip_address, port, status, running_time_minutes, job_name,
    balance_time_minutes, filename, raw_response, first_seen, last_seen
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

const updateSQL = `
UPDATE machine_discovery_status SET
    port = $2,
    status = $3,
    running_time_minutes = $4,
    job_name = $5,
    balance_time_minutes = $6,
    filename = $7,
    raw_response = $8,
    last_seen = $9
WHERE ip_address = $1`

// xmax is zero only for a row this statement inserted
const upsertSQL = `
INSERT INTO machine_discovery_status (
    ip_address, port, status, running_time_minutes, job_name,
    balance_time_minutes, filename, raw_response, first_seen, last_seen
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
ON CONFLICT (ip_address) DO UPDATE SET
    port = EXCLUDED.port,
    status = EXCLUDED.status,
    running_time_minutes = EXCLUDED.running_time_minutes,
    job_name = EXCLUDED.job_name,
    balance_time_minutes = EXCLUDED.balance_time_minutes,
    filename = EXCLUDED.filename,
    raw_response = EXCLUDED.raw_response,
    last_seen = EXCLUDED.last_seen
RETURNING (xmax = 0) AS inserted`

// PostgresConfig configures the connection pool
type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Postgres is a Store backed by a pgx connection pool
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database and makes sure the table exists
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to initialize pool: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// EnsureSchema creates the machine_discovery_status table if missing
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("postgres: failed to create machine_discovery_status: %w", err)
	}
	return nil
}

func (p *Postgres) FindByAddress(ctx context.Context, addr string) (*Record, error) {
	rec, err := scanRecord(p.pool.QueryRow(ctx, findByAddressSQL, addr))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query %s: %w", addr, err)
	}
	return rec, nil
}

func (p *Postgres) Insert(ctx context.Context, rec *Record) error {
	firstSeen := rec.FirstSeen
	if firstSeen.IsZero() {
		firstSeen = rec.LastSeen
	}
	_, err := p.pool.Exec(ctx, insertSQL,
		rec.IPAddress, rec.Port, rec.Status, rec.RunningTimeMinutes, rec.JobName,
		rec.BalanceTimeMinutes, rec.Filename, rec.RawResponse, firstSeen, rec.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert %s: %w", rec.IPAddress, err)
	}
	return nil
}

func (p *Postgres) Update(ctx context.Context, addr string, rec *Record) error {
	tag, err := p.pool.Exec(ctx, updateSQL,
		addr, rec.Port, rec.Status, rec.RunningTimeMinutes, rec.JobName,
		rec.BalanceTimeMinutes, rec.Filename, rec.RawResponse, rec.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to update %s: %w", addr, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Upsert inserts or updates in one statement
func (p *Postgres) Upsert(ctx context.Context, rec *Record) (bool, error) {
	var inserted bool
	err := p.pool.QueryRow(ctx, upsertSQL,
		rec.IPAddress, rec.Port, rec.Status, rec.RunningTimeMinutes, rec.JobName,
		rec.BalanceTimeMinutes, rec.Filename, rec.RawResponse, rec.LastSeen,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to upsert %s: %w", rec.IPAddress, err)
	}
	return inserted, nil
}

func (p *Postgres) List(ctx context.Context) ([]*Record, error) {
	rows, err := p.pool.Query(ctx, listSQL)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list devices: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan device: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to list devices: %w", err)
	}
	return records, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	var solution int
	if err := p.pool.QueryRow(ctx, "SELECT 1 + 1").Scan(&solution); err != nil {
		return err
	}
	if solution != 2 {
		return fmt.Errorf("postgres: unexpected result %d", solution)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(
		&rec.IPAddress, &rec.Port, &rec.Status, &rec.RunningTimeMinutes, &rec.JobName,
		&rec.BalanceTimeMinutes, &rec.Filename, &rec.RawResponse, &rec.FirstSeen, &rec.LastSeen,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
