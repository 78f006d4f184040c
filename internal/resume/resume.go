// Package resume persists the snapshots that let a learner pick up a paused
// quiz or an interrupted lesson. Storage failures never reach the caller: a
// failed write means no resume is offered, a failed read means absent.
package resume

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/facebookgo/clock"

	"github.com/rcliao/tutor-engine/internal/logger"
	"github.com/rcliao/tutor-engine/internal/store"
)

const (
	QuizPrefix   = "pausedQuiz:"
	LessonPrefix = "lessonResume:"

	QuizMaxAge   = 7 * 24 * time.Hour
	LessonMaxAge = 24 * time.Hour
)

// QuizKey is the snapshot key of a paused quiz for topicID.
func QuizKey(topicID string) string { return QuizPrefix + topicID }

// LessonKey is the snapshot key of a lesson resume pointer for scope.
func LessonKey(scope string) string { return LessonPrefix + scope }

// MaxAge returns the retention for key, by prefix. Unknown prefixes get the
// shortest retention.
func MaxAge(key string) time.Duration {
	if strings.HasPrefix(key, QuizPrefix) {
		return QuizMaxAge
	}
	return LessonMaxAge
}

// Store reads and writes resume snapshots on a snapshot backend.
type Store struct {
	backend store.Store
	clock   clock.Clock
	log     *logger.Logger
}

// New returns a Store over backend.
func New(backend store.Store, clk clock.Clock, log *logger.Logger) *Store {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{backend: backend, clock: clk, log: log.With("component", "ResumeStore")}
}

// Save serializes v under key, replacing any earlier snapshot, and tags it
// with the current time. It reports whether the snapshot was written.
func (s *Store) Save(ctx context.Context, key string, v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		s.log.Warn("resume snapshot not serializable", "key", key, "error", err)
		return false
	}
	if _, err := s.backend.Put(ctx, store.PutParams{Key: key, Payload: payload, SavedAt: s.clock.Now()}); err != nil {
		s.log.Warn("resume snapshot not saved", "key", key, "error", err)
		return false
	}
	s.log.Debug("resume snapshot saved", "key", key, "bytes", len(payload))
	return true
}

// Load decodes the snapshot under key into v. It reports false when the
// snapshot is absent, older than MaxAge(key), unreadable or undecodable.
// Stale and undecodable snapshots are deleted.
func (s *Store) Load(ctx context.Context, key string, v any) bool {
	snap, err := s.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("resume snapshot unreadable", "key", key, "error", err)
		}
		return false
	}

	age := s.clock.Now().Sub(snap.SavedAt)
	if age > MaxAge(key) {
		s.log.Info("discarding stale resume snapshot", "key", key, "age", age.Round(time.Second).String())
		s.Clear(ctx, key)
		return false
	}
	if err := json.Unmarshal(snap.Payload, v); err != nil {
		s.log.Warn("discarding corrupt resume snapshot", "key", key, "error", err)
		s.Clear(ctx, key)
		return false
	}
	return true
}

// Clear removes the snapshot under key.
func (s *Store) Clear(ctx context.Context, key string) {
	if err := s.backend.Rm(ctx, key); err != nil {
		s.log.Warn("resume snapshot not cleared", "key", key, "error", err)
	}
}

// Purge deletes every snapshot older than its retention and returns how many
// were removed.
func (s *Store) Purge(ctx context.Context) (int, error) {
	now := s.clock.Now()
	total := 0
	for _, p := range []struct {
		prefix string
		maxAge time.Duration
	}{
		{QuizPrefix, QuizMaxAge},
		{LessonPrefix, LessonMaxAge},
	} {
		n, err := s.backend.PurgeBefore(ctx, p.prefix, now.Add(-p.maxAge))
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
