// Package engine wires one learner's lesson playback, doubts and resume
// pointer together.
//
// Raising a doubt pauses playback; a verification quiz surfacing for a
// resolved doubt pauses it again, since the learner may have resumed while the
// answer was being generated.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"

	"github.com/rcliao/tutor-engine/internal/bus"
	"github.com/rcliao/tutor-engine/internal/doubt"
	"github.com/rcliao/tutor-engine/internal/lesson"
	"github.com/rcliao/tutor-engine/internal/logger"
	"github.com/rcliao/tutor-engine/internal/model"
	"github.com/rcliao/tutor-engine/internal/narration"
	"github.com/rcliao/tutor-engine/internal/playback"
	"github.com/rcliao/tutor-engine/internal/resume"
)

// Params configures a Session.
type Params struct {
	Lesson   model.Lesson
	Scope    string // resume pointer scope; the lesson id when empty
	Narrator narration.Narrator
	Resolver doubt.Resolver
	Resume   *resume.Store // nil disables the resume pointer
	Bus      *bus.Bus
	Clock    clock.Clock
	Logger   *logger.Logger

	Playback      playback.Options
	Doubt         doubt.Options
	ContextBudget int // tokens of lesson context sent with a doubt

	// OnQuiz is called after playback has been paused for a surfaced quiz.
	OnQuiz func(doubtID string, q model.QuizQuestion)
}

// Session is one learner's run through a lesson.
type Session struct {
	ID string

	ctrl   *playback.Controller
	doubts *doubt.Coordinator
	resume *resume.Store
	bus    *bus.Bus
	log    *logger.Logger

	lesson     model.Lesson
	scope      string
	budget     int
	startIndex int
	resumed    bool
	onQuiz     func(string, model.QuizQuestion)

	endOnce sync.Once
}

// New builds a session positioned at the learner's resume pointer, if a
// fresh one matches the lesson, or at the first step.
func New(ctx context.Context, p Params) (*Session, error) {
	if len(p.Lesson.Steps) == 0 {
		return nil, lesson.ErrNoSteps
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Clock == nil {
		p.Clock = clock.New()
	}
	if p.Bus == nil {
		p.Bus = bus.New(p.Logger, p.Clock, 0)
	}
	if p.Scope == "" {
		p.Scope = p.Lesson.ID
	}

	s := &Session{
		ID:     uuid.NewString(),
		resume: p.Resume,
		bus:    p.Bus,
		lesson: p.Lesson,
		scope:  p.Scope,
		budget: p.ContextBudget,
		onQuiz: p.OnQuiz,
	}
	s.log = p.Logger.With("component", "Engine", "session_id", s.ID, "lesson", p.Lesson.ID)
	s.startIndex, s.resumed = s.loadPointer(ctx)

	ctrl, err := playback.New(playback.Params{
		Session:     model.LessonSession{ID: s.ID, Lesson: p.Lesson, CurrentStepIndex: s.startIndex},
		Narrator:    p.Narrator,
		Bus:         p.Bus,
		Clock:       p.Clock,
		Logger:      p.Logger,
		Options:     p.Playback,
		OnStepStart: s.stepStarted,
		OnComplete:  s.completed,
	})
	if err != nil {
		return nil, fmt.Errorf("playback: %w", err)
	}
	doubts, err := doubt.New(doubt.Params{
		SessionID: s.ID,
		Resolver:  p.Resolver,
		Bus:       p.Bus,
		Clock:     p.Clock,
		Logger:    p.Logger,
		Options:   p.Doubt,
		OnQuiz:    s.quizSurfaced,
	})
	if err != nil {
		ctrl.EndSession()
		return nil, fmt.Errorf("doubts: %w", err)
	}
	s.ctrl = ctrl
	s.doubts = doubts
	return s, nil
}

func (s *Session) loadPointer(ctx context.Context) (int, bool) {
	if s.resume == nil {
		return 0, false
	}
	var ptr model.LessonResume
	if !s.resume.Load(ctx, resume.LessonKey(s.scope), &ptr) {
		return 0, false
	}
	if ptr.LessonID != s.lesson.ID || ptr.StepIndex < 0 || ptr.StepIndex >= len(s.lesson.Steps) ||
		s.lesson.Steps[ptr.StepIndex].ID != ptr.StepID {
		s.log.Info("ignoring resume pointer for a different lesson revision", "step_index", ptr.StepIndex, "step_id", ptr.StepID)
		return 0, false
	}
	s.log.Info("resuming lesson", "step_index", ptr.StepIndex)
	return ptr.StepIndex, true
}

func (s *Session) stepStarted(index int, step model.LessonStep) {
	if s.resume == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.resume.Save(ctx, resume.LessonKey(s.scope), model.LessonResume{LessonID: s.lesson.ID, StepIndex: index, StepID: step.ID})
}

func (s *Session) completed() {
	s.log.Info("lesson complete")
	if s.resume == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.resume.Clear(ctx, resume.LessonKey(s.scope))
}

func (s *Session) quizSurfaced(doubtID string, q model.QuizQuestion) {
	s.ctrl.Pause()
	if s.onQuiz != nil {
		s.onQuiz(doubtID, q)
	}
}

// StartIndex returns the step playback starts from and whether it came from a
// resume pointer.
func (s *Session) StartIndex() (int, bool) { return s.startIndex, s.resumed }

// Start begins narrating the current step.
func (s *Session) Start() error { return s.ctrl.Start() }

func (s *Session) Pause() { s.ctrl.Pause() }
func (s *Session) Resume() error { return s.ctrl.Resume() }
func (s *Session) Next() error { return s.ctrl.Next() }
func (s *Session) Prev() error { return s.ctrl.Prev() }
func (s *Session) GoTo(index int) error { return s.ctrl.GoTo(index) }
func (s *Session) VisibilityHidden() { s.ctrl.VisibilityHidden() }
func (s *Session) VisibilityVisible() bool { return s.ctrl.VisibilityVisible() }

// RaiseDoubt pauses playback and records question against the current step.
func (s *Session) RaiseDoubt(question string) (model.Doubt, error) {
	s.ctrl.Pause()
	index := s.ctrl.CurrentIndex()
	step := s.ctrl.CurrentStep()
	lessonContext := lesson.Context(&s.lesson, index, s.budget).String()
	return s.doubts.Raise(question, model.DoubtContext{StepNumber: index + 1, StepTitle: step.Title}, lessonContext)
}

// RetryDoubt asks the backend again for a doubt whose resolution failed.
func (s *Session) RetryDoubt(ctx context.Context, id string) error {
	return s.doubts.Retry(ctx, id)
}

// ConfirmUnderstanding acknowledges a resolution and withdraws its quiz.
func (s *Session) ConfirmUnderstanding(id string) error {
	return s.doubts.ConfirmUnderstanding(id)
}

// HideQuiz dismisses the visible verification quiz.
func (s *Session) HideQuiz() { s.doubts.HideQuiz() }

// AnswerQuiz grades option against the visible verification quiz. A correct
// answer confirms understanding; either way the quiz is dismissed.
func (s *Session) AnswerQuiz(option int) (bool, error) {
	vq, ok := s.doubts.VisibleQuiz()
	if !ok {
		return false, fmt.Errorf("no quiz visible")
	}
	if option < 0 || option >= len(vq.Question.Options) {
		return false, fmt.Errorf("option %d out of range", option)
	}
	if option != vq.Question.CorrectIndex {
		s.doubts.HideQuiz()
		return false, nil
	}
	return true, s.doubts.ConfirmUnderstanding(vq.DoubtID)
}

// Doubts returns the session's doubts in the order they were raised.
func (s *Session) Doubts() []model.Doubt { return s.doubts.Doubts() }

// VisibleQuiz returns the verification quiz currently shown, if any.
func (s *Session) VisibleQuiz() (doubt.VisibleQuiz, bool) { return s.doubts.VisibleQuiz() }

// Playback returns the externally visible playback state.
func (s *Session) Playback() model.PlaybackState { return s.ctrl.Snapshot() }

// State returns the playback state machine position.
func (s *Session) State() playback.State { return s.ctrl.State() }

// CurrentStep returns the index and copy of the current step.
func (s *Session) CurrentStep() (int, model.LessonStep) {
	return s.ctrl.CurrentIndex(), s.ctrl.CurrentStep()
}

// Bus returns the bus the session publishes on.
func (s *Session) Bus() *bus.Bus { return s.bus }

// End tears down narration, timers and doubts. The resume pointer is kept so
// the learner can pick up later.
func (s *Session) End() {
	s.endOnce.Do(func() {
		s.ctrl.EndSession()
		s.doubts.Close()
		s.log.Info("session ended")
	})
}
