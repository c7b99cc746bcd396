// Package tracking persists one send record per recipient and answers the
// single question the dispatcher cares about: "was this recipient already
// contacted inside the dedup window?".
//
// The store is the only deduplication authority. Callers never reimplement
// the window check.
package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/RenanMaestrya/disparador-outbound/pkg/logx"
)

// DefaultWindow is the rolling dedup span: a recipient contacted inside it
// is skipped on subsequent runs.
const DefaultWindow = 24 * time.Hour

// excerptLimit bounds the stored message excerpt, in runes.
const excerptLimit = 100

const schema = `
CREATE TABLE IF NOT EXISTS send_log (
	recipient TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	excerpt   TEXT NOT NULL,
	sent_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS send_log_sent_at ON send_log(sent_at);
`

// Store is the persistence API consumed by the dispatch engine and the CLI
// reporting surface.
type Store interface {
	// HasSentWithin reports whether recipient has a record younger than
	// window. Callers treat a read error as "not yet sent" (fail open) so a
	// storage fault never blocks delivery.
	HasSentWithin(ctx context.Context, recipient string, window time.Duration) (bool, error)
	// MarkSent upserts the record for recipient with the current time.
	MarkSent(ctx context.Context, recipient, name, message string) error
	// PruneOlderThan deletes records whose send time precedes now-window.
	PruneOlderThan(ctx context.Context, window time.Duration) (int64, error)
	Stats(ctx context.Context, window time.Duration) (Stats, error)
	// Recent returns up to limit records, newest first. limit <= 0 means all.
	Recent(ctx context.Context, limit int) ([]Record, error)
	ClearAll(ctx context.Context) error
	Close() error
}

// Record is one row of the send log.
type Record struct {
	Recipient string
	Name      string
	Excerpt   string
	SentAt    time.Time
}

type Stats struct {
	CountWithinWindow int64
	LastSentAt        time.Time // zero when the log is empty
}

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

type Option func(*sqliteStore)

// WithClock injects the time source. Tests use it to move "now" across the
// dedup window without sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *sqliteStore) { s.now = now }
}

// Open initializes the sqlite-backed store, creating the schema if absent.
// Opening the same path repeatedly is safe; the schema is idempotent.
// Expired records are pruned opportunistically on open.
func Open(cfg Config, log logx.Logger, opts ...Option) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("tracking: sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, now: time.Now}
	for _, opt := range opts {
		opt(st)
	}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tracking: create schema: %w", err)
	}

	// Opportunistic cleanup; a failure here is not a reason to refuse to run.
	if removed, err := st.PruneOlderThan(context.Background(), DefaultWindow); err != nil {
		st.log.Warn("tracking: prune on open failed", logx.Err(err))
	} else if removed > 0 {
		st.log.Info("tracking: pruned expired send records", logx.Int64("removed", removed))
	}

	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) HasSentWithin(ctx context.Context, recipient string, window time.Duration) (bool, error) {
	if recipient == "" {
		return false, nil
	}
	cutoff := s.now().Add(-window).UnixMilli()
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM send_log WHERE recipient = ? AND sent_at > ?`,
		recipient, cutoff,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *sqliteStore) MarkSent(ctx context.Context, recipient, name, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO send_log(recipient, name, excerpt, sent_at) VALUES(?,?,?,?)
		 ON CONFLICT(recipient) DO UPDATE SET
		   name=excluded.name, excerpt=excluded.excerpt, sent_at=excluded.sent_at`,
		recipient, name, truncateExcerpt(message), s.now().UnixMilli(),
	)
	return err
}

func (s *sqliteStore) PruneOlderThan(ctx context.Context, window time.Duration) (int64, error) {
	cutoff := s.now().Add(-window).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM send_log WHERE sent_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *sqliteStore) Stats(ctx context.Context, window time.Duration) (Stats, error) {
	cutoff := s.now().Add(-window).UnixMilli()
	var (
		count int64
		last  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(sent_at) FROM send_log WHERE sent_at > ?`, cutoff,
	).Scan(&count, &last)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{CountWithinWindow: count}
	if last.Valid {
		st.LastSentAt = time.UnixMilli(last.Int64)
	}
	return st, nil
}

func (s *sqliteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	q := `SELECT recipient, name, excerpt, sent_at FROM send_log ORDER BY sent_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r  Record
			ms int64
		)
		if err := rows.Scan(&r.Recipient, &r.Name, &r.Excerpt, &ms); err != nil {
			return nil, err
		}
		r.SentAt = time.UnixMilli(ms)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ClearAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM send_log`)
	return err
}

func truncateExcerpt(msg string) string {
	runes := []rune(msg)
	if len(runes) <= excerptLimit {
		return msg
	}
	return string(runes[:excerptLimit])
}
