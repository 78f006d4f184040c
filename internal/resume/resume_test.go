package resume

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/facebookgo/clock"

	"github.com/rcliao/tutor-engine/internal/model"
	"github.com/rcliao/tutor-engine/internal/store"
)

func newTestStore(t *testing.T) (*Store, *store.SQLiteStore, *clock.Mock) {
	t.Helper()
	backend, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "resume.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	clk := clock.NewMock()
	clk.Add(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).Sub(clk.Now()))
	return New(backend, clk, nil), backend, clk
}

func TestSaveLoadClear(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	snap := model.PausedQuizSnapshot{TopicID: "fractions", Score: 3, RemainingSecondsAtPause: 42, WrongQuestionIndices: []int{1}}
	if !s.Save(ctx, QuizKey("fractions"), snap) {
		t.Fatal("expected save to succeed")
	}

	var got model.PausedQuizSnapshot
	if !s.Load(ctx, QuizKey("fractions"), &got) {
		t.Fatal("expected snapshot present")
	}
	if got.Score != 3 || got.RemainingSecondsAtPause != 42 || len(got.WrongQuestionIndices) != 1 {
		t.Errorf("unexpected snapshot %+v", got)
	}

	snap.Score = 4
	s.Save(ctx, QuizKey("fractions"), snap)
	s.Load(ctx, QuizKey("fractions"), &got)
	if got.Score != 4 {
		t.Errorf("expected overwrite, got score %d", got.Score)
	}

	s.Clear(ctx, QuizKey("fractions"))
	if s.Load(ctx, QuizKey("fractions"), &got) {
		t.Error("expected absent after clear")
	}
}

func TestQuizSnapshotAging(t *testing.T) {
	ctx := context.Background()

	s, _, clk := newTestStore(t)
	s.Save(ctx, QuizKey("t"), model.PausedQuizSnapshot{TopicID: "t"})
	clk.Add(6*24*time.Hour + 23*time.Hour)
	var got model.PausedQuizSnapshot
	if !s.Load(ctx, QuizKey("t"), &got) {
		t.Error("expected snapshot loadable at 6d23h")
	}

	s, backend, clk := newTestStore(t)
	s.Save(ctx, QuizKey("t"), model.PausedQuizSnapshot{TopicID: "t"})
	clk.Add(7*24*time.Hour + time.Hour)
	if s.Load(ctx, QuizKey("t"), &got) {
		t.Error("expected snapshot absent at 7d1h")
	}
	if _, err := backend.Get(ctx, QuizKey("t")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected stale snapshot deleted, got %v", err)
	}
}

func TestLessonPointerAging(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newTestStore(t)

	s.Save(ctx, LessonKey("lesson-1"), model.LessonResume{LessonID: "lesson-1", StepIndex: 3})
	clk.Add(23 * time.Hour)
	var got model.LessonResume
	if !s.Load(ctx, LessonKey("lesson-1"), &got) || got.StepIndex != 3 {
		t.Fatalf("expected pointer at 23h, got %+v", got)
	}
	clk.Add(2 * time.Hour)
	if s.Load(ctx, LessonKey("lesson-1"), &got) {
		t.Error("expected pointer absent after 25h")
	}
}

func TestLoadCorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	s, backend, clk := newTestStore(t)

	backend.Put(ctx, store.PutParams{Key: QuizKey("bad"), Payload: []byte(`"not an object"`), SavedAt: clk.Now()})
	var got model.PausedQuizSnapshot
	if s.Load(ctx, QuizKey("bad"), &got) {
		t.Error("expected corrupt snapshot treated as absent")
	}
	if _, err := backend.Get(ctx, QuizKey("bad")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected corrupt snapshot deleted, got %v", err)
	}
}

type failingBackend struct{ store.Store }

var errUnavailable = errors.New("quota exceeded")

func (failingBackend) Put(context.Context, store.PutParams) (*model.Snapshot, error) {
	return nil, errUnavailable
}
func (failingBackend) Get(context.Context, string) (*model.Snapshot, error) {
	return nil, errUnavailable
}
func (failingBackend) Rm(context.Context, string) error { return errUnavailable }

func TestBackendFailuresAreNonFatal(t *testing.T) {
	ctx := context.Background()
	s := New(failingBackend{}, clock.NewMock(), nil)

	if s.Save(ctx, QuizKey("t"), model.PausedQuizSnapshot{}) {
		t.Error("expected save to report failure")
	}
	var got model.PausedQuizSnapshot
	if s.Load(ctx, QuizKey("t"), &got) {
		t.Error("expected absent on read failure")
	}
	s.Clear(ctx, QuizKey("t"))
}

func TestSaveUnserializable(t *testing.T) {
	s, _, _ := newTestStore(t)
	if s.Save(context.Background(), LessonKey("x"), make(chan int)) {
		t.Error("expected unserializable value to be rejected")
	}
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newTestStore(t)

	s.Save(ctx, QuizKey("old"), model.PausedQuizSnapshot{})
	s.Save(ctx, LessonKey("old"), model.LessonResume{})
	clk.Add(2 * 24 * time.Hour)
	s.Save(ctx, LessonKey("new"), model.LessonResume{})

	n, err := s.Purge(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Errorf("expected only the old lesson pointer purged, got %d", n)
	}
	var q model.PausedQuizSnapshot
	if !s.Load(ctx, QuizKey("old"), &q) {
		t.Error("expected 2-day-old quiz snapshot kept")
	}
}

func TestMaxAge(t *testing.T) {
	tests := []struct {
		key  string
		want time.Duration
	}{
		{QuizKey("a"), 7 * 24 * time.Hour},
		{LessonKey("a"), 24 * time.Hour},
		{"other", 24 * time.Hour},
	}
	for _, tt := range tests {
		if got := MaxAge(tt.key); got != tt.want {
			t.Errorf("MaxAge(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestSweeperRejectsBadSpec(t *testing.T) {
	s, _, _ := newTestStore(t)
	if _, err := NewSweeper(s, "not a schedule"); err == nil {
		t.Error("expected invalid spec error")
	}
	sw, err := NewSweeper(s, "")
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	sw.Start()
	sw.Stop()
}
