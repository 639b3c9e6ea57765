package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"snotify/pkg/logx"
)

// at_ns is UnixNano; history and pruning order by it.
const schema = `
CREATE TABLE IF NOT EXISTS sends (
	id        TEXT PRIMARY KEY,
	at_ns     INTEGER NOT NULL,
	source    TEXT,
	mode      TEXT NOT NULL,
	delivered TEXT,
	attempts  TEXT,
	failed    TEXT,
	skipped   TEXT,
	err       TEXT,
	took_ms   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS sends_at_ns ON sends(at_ns);
`

// Rows beyond this are pruned, oldest first.
const maxRows = 100_000

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	inserts    atomic.Uint64
	pruneEvery uint64
	keep       int
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// One writer keeps SQLite out of SQLITE_BUSY territory.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log, pruneEvery: 500, keep: maxRows}, nil
}

func (s *sqliteStore) AppendSend(ctx context.Context, r SendRecord) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sends(id, at_ns, source, mode, delivered, attempts, failed, skipped, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.At.UnixNano(), nullStr(r.Source), r.Mode, nullStr(r.Delivered),
		nullStr(joinList(r.Attempts)), nullStr(joinList(r.Failed)), nullStr(joinList(r.Skipped)),
		nullStr(r.Error), r.TookMS,
	)
	if err != nil {
		return err
	}
	if s.inserts.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		if err := s.prune(pctx); err != nil {
			s.log.Debug("audit prune failed", logx.Err(err))
		}
		cancel()
	}
	return nil
}

func (s *sqliteStore) RecentSends(ctx context.Context, limit int) ([]SendRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at_ns, source, mode, delivered, attempts, failed, skipped, err, took_ms
		 FROM sends ORDER BY at_ns DESC, rowid DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SendRecord
	for rows.Next() {
		var (
			r                                                 SendRecord
			atNS                                              int64
			source, delivered, attempts, failed, skipped, msg sql.NullString
		)
		if err := rows.Scan(&r.ID, &atNS, &source, &r.Mode, &delivered, &attempts, &failed, &skipped, &msg, &r.TookMS); err != nil {
			return nil, err
		}
		r.At = time.Unix(0, atNS).UTC()
		r.Source = source.String
		r.Delivered = delivered.String
		r.Attempts = splitList(attempts.String)
		r.Failed = splitList(failed.String)
		r.Skipped = splitList(skipped.String)
		r.Error = msg.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sends WHERE rowid IN (SELECT rowid FROM sends ORDER BY at_ns DESC, rowid DESC LIMIT -1 OFFSET ?)`, s.keep)
	return err
}

func (s *sqliteStore) Close() error { return s.db.Close() }

// Channel and fallback names never contain commas (config rejects them), so a
// comma list round-trips.
func joinList(v []string) string { return strings.Join(v, ",") }

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
