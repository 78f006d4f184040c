package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/tutor-engine/internal/model"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	mu      sync.Mutex // guards entropy
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		key         TEXT PRIMARY KEY,
		id          TEXT NOT NULL,
		payload     TEXT NOT NULL,
		saved_at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_saved ON snapshots(saved_at_ms DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Put(ctx context.Context, p PutParams) (*model.Snapshot, error) {
	if strings.TrimSpace(p.Key) == "" {
		return nil, fmt.Errorf("key is required")
	}
	savedAt := p.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	savedAt = savedAt.UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (key, id, payload, saved_at_ms) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET id = excluded.id, payload = excluded.payload, saved_at_ms = excluded.saved_at_ms`,
		p.Key, s.newID(savedAt), string(p.Payload), savedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}

	return &model.Snapshot{
		Key:     p.Key,
		Payload: append([]byte(nil), p.Payload...),
		SavedAt: time.UnixMilli(savedAt.UnixMilli()).UTC(),
	}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, payload, saved_at_ms FROM snapshots WHERE key = ?`, key)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *SQLiteStore) List(ctx context.Context, p ListParams) ([]model.Snapshot, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, payload, saved_at_ms FROM snapshots
		 WHERE key LIKE ? ESCAPE '\'
		 ORDER BY saved_at_ms DESC, key
		 LIMIT ?`, likePrefix(p.Prefix), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *SQLiteStore) Rm(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key)
	return err
}

func (s *SQLiteStore) PurgeBefore(ctx context.Context, prefix string, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE key LIKE ? ESCAPE '\' AND saved_at_ms < ?`,
		likePrefix(prefix), cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row scanner) (model.Snapshot, error) {
	var snap model.Snapshot
	var payload string
	var savedAtMs int64
	if err := row.Scan(&snap.Key, &payload, &savedAtMs); err != nil {
		return snap, err
	}
	snap.Payload = []byte(payload)
	snap.SavedAt = time.UnixMilli(savedAtMs).UTC()
	return snap, nil
}

func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

// ParseTTL parses a TTL string like "7d", "24h", "30m" into a time.Duration.
var ttlRegex = regexp.MustCompile(`^(\d+)([dhms])$`)

func ParseTTL(s string) (time.Duration, error) {
	m := ttlRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid format %q (use e.g. 7d, 24h, 30m, 60s)", s)
	}
	n, _ := strconv.Atoi(m[1])
	switch m[2] {
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "s":
		return time.Duration(n) * time.Second, nil
	}
	return 0, fmt.Errorf("unknown unit %q", m[2])
}
