package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/video-sections/internal/section"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLite persists plans across restarts. Timestamps are stored as unix milliseconds.
type SQLite struct {
	db  *sql.DB
	ttl time.Duration
}

func NewSQLite(dbPath string, ttl time.Duration) (*SQLite, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLite{db: db, ttl: ttl}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		// embed.FS paths always use forward slashes
		content, err := migrationFiles.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename ("001_init.sql" is 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLite) Get(ctx context.Context, videoID string) (Entry, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT method, sections_json, transcript_text, created_at
		 FROM plan_cache
		 WHERE video_id = ?`,
		videoID,
	)

	var (
		method       string
		sectionsJSON string
		transcript   string
		createdAtMS  int64
	)
	if err := row.Scan(&method, &sectionsJSON, &transcript, &createdAtMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("read plan cache %s: %w", videoID, err)
	}

	createdAt := time.UnixMilli(createdAtMS).UTC()
	if expired(createdAt, s.ttl, time.Now()) {
		return Entry{}, false, nil
	}

	var sections []section.Section
	if err := json.Unmarshal([]byte(sectionsJSON), &sections); err != nil {
		return Entry{}, false, fmt.Errorf("decode cached sections %s: %w", videoID, err)
	}
	return Entry{
		Sections:       sections,
		TranscriptText: transcript,
		Method:         method,
		CreatedAt:      createdAt,
	}, true, nil
}

func (s *SQLite) Put(ctx context.Context, videoID string, entry Entry) error {
	sectionsJSON, err := json.Marshal(entry.Sections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}
	now := time.Now().UTC()
	createdAt := entry.CreatedAt.UTC()
	if entry.CreatedAt.IsZero() {
		createdAt = now
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO plan_cache (
			video_id, method, sections_json, transcript_text, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			method=excluded.method,
			sections_json=excluded.sections_json,
			transcript_text=excluded.transcript_text,
			created_at=excluded.created_at,
			updated_at=excluded.updated_at`,
		videoID,
		entry.Method,
		string(sectionsJSON),
		entry.TranscriptText,
		createdAt.UnixMilli(),
		now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("write plan cache %s: %w", videoID, err)
	}
	return nil
}

func (s *SQLite) Evict(ctx context.Context, videoID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM plan_cache WHERE video_id = ?`, videoID); err != nil {
		return fmt.Errorf("evict plan cache %s: %w", videoID, err)
	}
	return nil
}

// Sweep deletes rows older than the TTL. Without a TTL it is a no-op.
func (s *SQLite) Sweep(ctx context.Context, now time.Time) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-s.ttl).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM plan_cache WHERE created_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep plan cache: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
