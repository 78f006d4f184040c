// Package store provides the snapshot storage interface and SQLite implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rcliao/tutor-engine/internal/model"
)

// ErrNotFound is returned when no snapshot exists under a key.
var ErrNotFound = errors.New("snapshot not found")

// PutParams holds parameters for storing a snapshot.
type PutParams struct {
	Key     string
	Payload []byte
	SavedAt time.Time // zero means now
}

// ListParams holds parameters for listing snapshots.
type ListParams struct {
	Prefix string
	Limit  int
}

// Store defines the snapshot storage interface.
type Store interface {
	// Put writes a snapshot, replacing any prior snapshot under the same key.
	Put(ctx context.Context, p PutParams) (*model.Snapshot, error)

	// Get returns the snapshot stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (*model.Snapshot, error)

	// List lists snapshots whose key starts with the given prefix, newest first.
	List(ctx context.Context, p ListParams) ([]model.Snapshot, error)

	// Rm deletes a snapshot. Deleting a missing key is not an error.
	Rm(ctx context.Context, key string) error

	// PurgeBefore deletes snapshots under prefix saved before cutoff.
	PurgeBefore(ctx context.Context, prefix string, cutoff time.Time) (int, error)

	// Close closes the store.
	Close() error
}
