// Package storage keeps an append-only SQLite log of probe outcomes. It is
// an audit trail for the history API and the status CLI; the monitoring
// state machine never reads from it.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/avernost/depwatch/internal/checker"
)

const schema = `
CREATE TABLE IF NOT EXISTS probes (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    service    TEXT    NOT NULL,
    healthy    INTEGER NOT NULL CHECK(healthy IN (0, 1)),
    latency_ms INTEGER NOT NULL,
    error      TEXT    NOT NULL DEFAULT '',
    checked_at TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_probes_service ON probes(service);
CREATE INDEX IF NOT EXISTS idx_probes_service_checked ON probes(service, checked_at DESC);
`

// Probe is a stored probe outcome.
type Probe struct {
	ID        int64     `json:"id"`
	Service   string    `json:"service"`
	Healthy   bool      `json:"healthy"`
	LatencyMs int64     `json:"latency_ms"`
	Error     string    `json:"error"`
	CheckedAt time.Time `json:"checked_at"`
}

// DB wraps the SQLite probe log.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// InsertProbe appends one probe outcome.
func (d *DB) InsertProbe(ctx context.Context, r checker.CheckResult) error {
	healthy := 0
	if r.Healthy {
		healthy = 1
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO probes (service, healthy, latency_ms, error, checked_at) VALUES (?, ?, ?, ?, ?)`,
		r.ServiceName,
		healthy,
		r.Latency.Milliseconds(),
		r.Error,
		r.CheckedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting probe for %q: %w", r.ServiceName, err)
	}
	return nil
}

// AllLatest returns the most recent probe for each service.
func (d *DB) AllLatest(ctx context.Context) ([]Probe, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, service, healthy, latency_ms, error, checked_at
		FROM probes
		WHERE id IN (
			SELECT MAX(id) FROM probes GROUP BY service
		)
		ORDER BY service
	`)
	if err != nil {
		return nil, fmt.Errorf("querying all latest: %w", err)
	}
	defer rows.Close()
	return scanProbes(rows)
}

// ServiceHistory returns paginated probe history for a service plus the
// total count, newest first.
func (d *DB) ServiceHistory(ctx context.Context, service string, limit, offset int) ([]Probe, int, error) {
	var total int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM probes WHERE service = ?`, service,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting probes for %q: %w", service, err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, service, healthy, latency_ms, error, checked_at FROM probes WHERE service = ? ORDER BY checked_at DESC LIMIT ? OFFSET ?`,
		service, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying history for %q: %w", service, err)
	}
	defer rows.Close()

	probes, err := scanProbes(rows)
	if err != nil {
		return nil, 0, err
	}
	return probes, total, nil
}

// UptimePercent returns the percentage of healthy probes in the last N
// probes for a service.
func (d *DB) UptimePercent(ctx context.Context, service string, last int) (float64, error) {
	var total int
	var upCount sql.NullInt64
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(healthy)
		FROM (
			SELECT healthy FROM probes WHERE service = ? ORDER BY checked_at DESC LIMIT ?
		)
	`, service, last).Scan(&total, &upCount)
	if err != nil {
		return 0, fmt.Errorf("calculating uptime for %q: %w", service, err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(upCount.Int64) / float64(total) * 100, nil
}

func scanProbes(rows *sql.Rows) ([]Probe, error) {
	var probes []Probe
	for rows.Next() {
		var p Probe
		var healthy int
		var checkedAt string
		if err := rows.Scan(&p.ID, &p.Service, &healthy, &p.LatencyMs, &p.Error, &checkedAt); err != nil {
			return nil, fmt.Errorf("scanning probe row: %w", err)
		}
		p.Healthy = healthy == 1
		t, err := time.Parse(time.RFC3339Nano, checkedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing checked_at %q: %w", checkedAt, err)
		}
		p.CheckedAt = t
		probes = append(probes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating probe rows: %w", err)
	}
	return probes, nil
}
