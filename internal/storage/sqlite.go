// Package storage persists the engine's mutable state so quota
// counters, allowances, the risk window, and the incident ledger
// survive process restarts within the same calendar day.
package storage

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/webward/webward/api"
	"github.com/webward/webward/internal/policy"
)

//go:embed schema.sql
var schema string

// DB wraps the local sqlite database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error { return d.db.Close() }

// QuotaRow is one persisted (domain, date) counter.
type QuotaRow struct {
	Domain   string
	Date     string
	Elapsed  time.Duration
	Exceeded bool
}

// UpsertQuota writes one counter row.
func (d *DB) UpsertQuota(domain, date string, elapsed time.Duration, exceeded bool) error {
	_, err := d.db.Exec(
		`INSERT INTO quota_counters (domain, date, ms, exceeded) VALUES (?, ?, ?, ?)
		 ON CONFLICT(domain, date) DO UPDATE SET ms = excluded.ms, exceeded = excluded.exceeded`,
		domain, date, elapsed.Milliseconds(), boolInt(exceeded),
	)
	if err != nil {
		return fmt.Errorf("upsert quota: %w", err)
	}
	return nil
}

// LoadQuotas returns all counters for one local date.
func (d *DB) LoadQuotas(date string) ([]QuotaRow, error) {
	rows, err := d.db.Query(
		"SELECT domain, date, ms, exceeded FROM quota_counters WHERE date = ?", date)
	if err != nil {
		return nil, fmt.Errorf("load quotas: %w", err)
	}
	defer rows.Close()

	var out []QuotaRow
	for rows.Next() {
		var r QuotaRow
		var ms int64
		var exceeded int
		if err := rows.Scan(&r.Domain, &r.Date, &ms, &exceeded); err != nil {
			return nil, fmt.Errorf("scan quota: %w", err)
		}
		r.Elapsed = time.Duration(ms) * time.Millisecond
		r.Exceeded = exceeded != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// ClearQuotas removes all counters; used by the day-boundary reset.
func (d *DB) ClearQuotas() error {
	if _, err := d.db.Exec("DELETE FROM quota_counters"); err != nil {
		return fmt.Errorf("clear quotas: %w", err)
	}
	return nil
}

// SaveAllowance persists a temporary allowance.
func (d *DB) SaveAllowance(a *policy.Allowance) error {
	_, err := d.db.Exec(
		"INSERT OR REPLACE INTO allowances (id, domain, reason, granted_at, expires_at) VALUES (?, ?, ?, ?, ?)",
		a.ID, a.Domain, a.Reason, a.GrantedAt, a.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save allowance: %w", err)
	}
	return nil
}

// DeleteAllowance removes an allowance row.
func (d *DB) DeleteAllowance(id string) error {
	if _, err := d.db.Exec("DELETE FROM allowances WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete allowance: %w", err)
	}
	return nil
}

// LoadAllowances returns all persisted allowances, expired included;
// the caller filters on restore.
func (d *DB) LoadAllowances() ([]*policy.Allowance, error) {
	rows, err := d.db.Query("SELECT id, domain, reason, granted_at, expires_at FROM allowances")
	if err != nil {
		return nil, fmt.Errorf("load allowances: %w", err)
	}
	defer rows.Close()

	var out []*policy.Allowance
	for rows.Next() {
		var a policy.Allowance
		if err := rows.Scan(&a.ID, &a.Domain, &a.Reason, &a.GrantedAt, &a.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan allowance: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// SampleRow is one persisted behavioral sample.
type SampleRow struct {
	Kind  string
	Value string
	Class string
	At    time.Time
}

// AddSample appends a behavioral sample.
func (d *DB) AddSample(s SampleRow) error {
	_, err := d.db.Exec(
		"INSERT INTO risk_samples (kind, value, class, at) VALUES (?, ?, ?, ?)",
		s.Kind, s.Value, s.Class, s.At,
	)
	if err != nil {
		return fmt.Errorf("add sample: %w", err)
	}
	return nil
}

// LoadSamples returns the most recent samples of one kind since the
// cutoff, oldest first, capped at limit.
func (d *DB) LoadSamples(kind string, since time.Time, limit int) ([]SampleRow, error) {
	rows, err := d.db.Query(
		`SELECT kind, value, class, at FROM risk_samples
		 WHERE kind = ? AND at >= ?
		 ORDER BY seq DESC LIMIT ?`,
		kind, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load samples: %w", err)
	}
	defer rows.Close()

	var out []SampleRow
	for rows.Next() {
		var s SampleRow
		if err := rows.Scan(&s.Kind, &s.Value, &s.Class, &s.At); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse: query returns newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// PruneSamples deletes samples older than the cutoff.
func (d *DB) PruneSamples(before time.Time) error {
	if _, err := d.db.Exec("DELETE FROM risk_samples WHERE at < ?", before); err != nil {
		return fmt.Errorf("prune samples: %w", err)
	}
	return nil
}

// SaveIncident persists one incident.
func (d *DB) SaveIncident(inc *api.Incident) error {
	_, err := d.db.Exec(
		"INSERT OR IGNORE INTO incidents (id, at, type, severity, domain, reason, details) VALUES (?, ?, ?, ?, ?, ?, ?)",
		inc.ID, inc.Timestamp, string(inc.Type), string(inc.Severity), inc.Domain, inc.Reason, inc.Details,
	)
	if err != nil {
		return fmt.Errorf("save incident: %w", err)
	}
	return nil
}

// LoadIncidents returns the most recent incidents, oldest first.
func (d *DB) LoadIncidents(limit int) ([]*api.Incident, error) {
	rows, err := d.db.Query(
		"SELECT id, at, type, severity, domain, reason, details FROM incidents ORDER BY at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load incidents: %w", err)
	}
	defer rows.Close()

	var out []*api.Incident
	for rows.Next() {
		var inc api.Incident
		var typ, sev string
		if err := rows.Scan(&inc.ID, &inc.Timestamp, &typ, &sev, &inc.Domain, &inc.Reason, &inc.Details); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		inc.Type = api.IncidentType(typ)
		inc.Severity = api.Severity(sev)
		out = append(out, &inc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// MarkReport records that a report for (period, start) was generated.
// It returns false if the mark already existed.
func (d *DB) MarkReport(period api.ReportPeriod, start, generatedAt time.Time) (bool, error) {
	res, err := d.db.Exec(
		"INSERT OR IGNORE INTO report_marks (period, start, generated_at) VALUES (?, ?, ?)",
		string(period), start, generatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("mark report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
