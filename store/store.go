// Package store keeps a history of probe results in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Result is one recorded probe measurement.
type Result struct {
	ID   string
	Time time.Time
	X, Y float64

	// Z is NaN for failed measurements.
	Z   float64
	Err string `json:",omitempty"`
}

// OK reports whether the measurement succeeded.
func (r Result) OK() bool { return !math.IsNaN(r.Z) }

type DB struct {
	*sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// single writer
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			result_id TEXT PRIMARY KEY,
			recorded_at BIGINT NOT NULL,
			x DOUBLE NOT NULL,
			y DOUBLE NOT NULL,
			z DOUBLE,
			error TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS results_recorded_at ON results (recorded_at);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

// Record stores r, assigning an ID and time if they are unset.
func (db *DB) Record(ctx context.Context, r Result) (Result, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	var z sql.NullFloat64
	if r.OK() {
		z = sql.NullFloat64{Float64: r.Z, Valid: true}
	} else if r.Err == "" {
		return r, errors.New("store: failed result without error")
	}

	_, err := db.ExecContext(ctx,
		"INSERT INTO results (result_id, recorded_at, x, y, z, error) VALUES (?, ?, ?, ?, ?, ?)",
		r.ID, r.Time.UnixNano(), r.X, r.Y, z, r.Err,
	)
	if err != nil {
		return r, err
	}
	return r, nil
}

// Recent returns up to limit results, newest first.
func (db *DB) Recent(ctx context.Context, limit int) ([]Result, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT result_id, recorded_at, x, y, z, error FROM results ORDER BY recorded_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r  Result
			ts int64
			z  sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &ts, &r.X, &r.Y, &z, &r.Err); err != nil {
			return nil, err
		}
		r.Time = time.Unix(0, ts)
		r.Z = math.NaN()
		if z.Valid {
			r.Z = z.Float64
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
