package store

import (
	"context"
	"os"
	"strings"
)

// Stats holds database statistics.
type Stats struct {
	DBPath         string        `json:"db_path"`
	DBSizeBytes    int64         `json:"db_size_bytes"`
	TotalSnapshots int           `json:"total_snapshots"`
	Prefixes       []PrefixStats `json:"prefixes"`
}

// PrefixStats holds per-key-family counts, e.g. "pausedQuiz".
type PrefixStats struct {
	Prefix string `json:"prefix"`
	Count  int    `json:"count"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key FROM snapshots`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	counts := map[string]int{}
	var order []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return st, err
		}
		prefix, _, _ := strings.Cut(key, ":")
		if _, ok := counts[prefix]; !ok {
			order = append(order, prefix)
		}
		counts[prefix]++
		st.TotalSnapshots++
	}

	for _, p := range order {
		st.Prefixes = append(st.Prefixes, PrefixStats{Prefix: p, Count: counts[p]})
	}
	return st, rows.Err()
}
