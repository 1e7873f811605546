//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tailbot/internal/flight"
	logx "tailbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Record(ctx context.Context, pf PostedFlight) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if pf.PostedAt.IsZero() {
		pf.PostedAt = time.Now()
	}
	f := pf.Flight
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posted_flights(key, date, origin, destination, departure, arrival, duration, post_id, posted_at)
		 VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(key) DO UPDATE SET post_id=excluded.post_id, posted_at=excluded.posted_at`,
		pf.Key(), f.Date, f.Origin, f.Destination, f.Departure, f.Arrival, f.Duration,
		pf.PostID, pf.PostedAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) WasPosted(ctx context.Context, key string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	if key == "" {
		return false, nil
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM posted_flights WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) LastPosted(ctx context.Context) (*PostedFlight, error) {
	rows, err := s.RecentPosted(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *sqliteStore) RecentPosted(ctx context.Context, limit int) ([]PostedFlight, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, origin, destination, departure, arrival, duration, post_id, posted_at
		 FROM posted_flights ORDER BY posted_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PostedFlight
	for rows.Next() {
		var f flight.Flight
		var pf PostedFlight
		var ms int64
		if err := rows.Scan(&f.Date, &f.Origin, &f.Destination, &f.Departure, &f.Arrival, &f.Duration, &pf.PostID, &ms); err != nil {
			return nil, err
		}
		pf.Flight = f
		pf.PostedAt = time.UnixMilli(ms)
		out = append(out, pf)
	}
	return out, rows.Err()
}
