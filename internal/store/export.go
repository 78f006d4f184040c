package store

import (
	"context"

	"github.com/rcliao/tutor-engine/internal/model"
)

// ExportAll returns every snapshot, optionally filtered by key prefix.
func (s *SQLiteStore) ExportAll(ctx context.Context, prefix string) ([]model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, payload, saved_at_ms FROM snapshots
		 WHERE key LIKE ? ESCAPE '\' ORDER BY key`, likePrefix(prefix))
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
