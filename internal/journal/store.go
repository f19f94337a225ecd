// Package journal keeps a history of render requests and their outcomes.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/satindergrewal/astrosonic/internal/logger"
	_ "modernc.org/sqlite"
)

type Config struct {
	Path          string        `yaml:"path" default:"data/journal.db"`
	Retention     string        `yaml:"retention" default:"persistent" validate:"oneof=persistent ephemeral"`
	MaxEntries    int           `yaml:"max_entries" default:"10000" validate:"gte=0"`
	PruneInterval time.Duration `yaml:"prune_interval" default:"5m"`
}

// Entry is one finished render.
type Entry struct {
	ID          string    `json:"id"`
	Transport   string    `json:"transport"`
	Mode        string    `json:"mode"`
	Genre       string    `json:"genre"`
	Seed        string    `json:"seed"`
	Key         string    `json:"key"`
	Tempo       float64   `json:"tempo"`
	DurationSec float64   `json:"durationSec"`
	SampleRate  int       `json:"sampleRate"`
	Frames      int       `json:"frames"`
	Bytes       int64     `json:"bytes"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	ElapsedMs   int64     `json:"elapsedMs"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store wraps a SQLite-backed render journal. In ephemeral mode it keeps
// nothing.
type Store struct {
	db    *sql.DB
	cfg   Config
	log   *logger.Logger
	clock func() time.Time
}

// Open initializes the journal according to config.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*Store, error) {
	if cfg.Retention == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("journal prune on start failed", logger.Error(err))
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS renders (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    transport TEXT NOT NULL,
    mode TEXT NOT NULL,
    genre TEXT NOT NULL,
    seed TEXT NOT NULL,
    music_key TEXT,
    tempo REAL,
    duration_sec REAL,
    sample_rate INTEGER,
    frames INTEGER,
    bytes INTEGER,
    outcome TEXT NOT NULL,
    error TEXT,
    elapsed_ms INTEGER,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_renders_created ON renders(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Enabled reports whether entries are persisted.
func (s *Store) Enabled() bool {
	return s.db != nil
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends an entry.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if s.db == nil {
		return nil
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO renders(id, transport, mode, genre, seed, music_key, tempo, duration_sec,
		 sample_rate, frames, bytes, outcome, error, elapsed_ms, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Transport, e.Mode, e.Genre, e.Seed, e.Key, e.Tempo, e.DurationSec,
		e.SampleRate, e.Frames, e.Bytes, e.Outcome, e.Error, e.ElapsedMs,
		e.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, transport, mode, genre, seed, music_key, tempo, duration_sec, sample_rate,
		 frames, bytes, outcome, error, elapsed_ms, created_at
		 FROM renders ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var key, errText sql.NullString
		var created string
		if err := rows.Scan(&e.ID, &e.Transport, &e.Mode, &e.Genre, &e.Seed, &key, &e.Tempo,
			&e.DurationSec, &e.SampleRate, &e.Frames, &e.Bytes, &e.Outcome, &errText,
			&e.ElapsedMs, &created); err != nil {
			return nil, err
		}
		e.Key = key.String
		e.Error = errText.String
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune keeps the newest MaxEntries rows.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil || s.cfg.MaxEntries <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM renders WHERE seq IN (
			SELECT seq FROM renders ORDER BY seq DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxEntries)
	return err
}

// RunPruner calls Prune every PruneInterval until ctx is done.
func (s *Store) RunPruner(ctx context.Context) {
	if s.db == nil || s.cfg.PruneInterval <= 0 {
		return
	}
	t := time.NewTicker(s.cfg.PruneInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.Prune(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("journal prune failed", logger.Error(err))
			}
		}
	}
}
