// Package quiz runs timed multiple-choice quizzes that can be paused, left,
// and resumed later with the countdown shrunk by the time spent away.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"github.com/rcliao/tutor-engine/internal/countdown"
	"github.com/rcliao/tutor-engine/internal/logger"
	"github.com/rcliao/tutor-engine/internal/model"
	"github.com/rcliao/tutor-engine/internal/resume"
	"github.com/rcliao/tutor-engine/internal/timers"
)

const keyTimeUp = "time-up"

var (
	ErrFinished         = errors.New("quiz finished")
	ErrPaused           = errors.New("quiz paused")
	ErrNotStarted       = errors.New("quiz not started")
	ErrNoQuestions      = errors.New("quiz has no questions")
	ErrOptionOutOfRange = errors.New("option out of range")
)

// Result summarizes a finished quiz.
type Result struct {
	TopicID  string              `json:"topicId"`
	Score    int                 `json:"score"`
	Total    int                 `json:"total"`
	Answered int                 `json:"answered"`
	Wrong    []model.WrongAnswer `json:"wrong"`
	TimedOut bool                `json:"timedOut"`
}

// Params holds the collaborators of a Session.
type Params struct {
	TopicID          string
	Quiz             model.Quiz
	TimeLimitMinutes int
	Resume           *resume.Store
	Clock            clock.Clock
	Logger           *logger.Logger

	// OnFinish is called, outside the session lock, once the quiz completes or
	// runs out of time.
	OnFinish func(Result)
}

// Session is one learner's run through a timed quiz. The pause action is the
// only writer of the topic's paused-quiz snapshot.
type Session struct {
	mu       sync.Mutex
	clock    clock.Clock
	timers   *timers.Registry
	resume   *resume.Store
	log      *logger.Logger
	onFinish func(Result)

	topicID   string
	quiz      model.Quiz
	limitMins int

	started       bool
	current       int
	score         int
	wrong         []int
	answeredWrong []model.WrongAnswer
	startTime     time.Time
	deadline      time.Time

	paused           bool
	remainingAtPause int
	pausedAt         time.Time

	finished bool
	result   Result
}

// New returns an unstarted session.
func New(p Params) (*Session, error) {
	if len(p.Quiz.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	if p.TopicID == "" {
		return nil, fmt.Errorf("topic id required")
	}
	if p.TimeLimitMinutes <= 0 {
		p.TimeLimitMinutes = 10
	}
	if p.Clock == nil {
		p.Clock = clock.New()
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	return &Session{
		clock:     p.Clock,
		timers:    timers.New(p.Clock),
		resume:    p.Resume,
		log:       p.Logger.With("component", "QuizSession", "topic", p.TopicID),
		onFinish:  p.OnFinish,
		topicID:   p.TopicID,
		quiz:      p.Quiz,
		limitMins: p.TimeLimitMinutes,
	}, nil
}

// Start enters the quiz. A paused snapshot for the topic, if one is present
// and fresh, is restored with its countdown reduced by the wall-clock time
// since the pause; otherwise the quiz starts from the first question with the
// full time limit. It reports whether a snapshot was restored.
func (s *Session) Start(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return false, fmt.Errorf("quiz already started")
	}
	s.started = true

	var snap model.PausedQuizSnapshot
	restored := s.resume != nil && s.resume.Load(ctx, resume.QuizKey(s.topicID), &snap) && s.compatible(snap)
	now := s.clock.Now()
	if !restored {
		s.resetLocked(now)
		s.log.Info("quiz started", "questions", len(s.quiz.Questions), "limit_min", s.limitMins)
		s.mu.Unlock()
		return false, nil
	}

	s.current = snap.CurrentQuestionIndex
	s.score = snap.Score
	s.wrong = append([]int(nil), snap.WrongQuestionIndices...)
	s.answeredWrong = append([]model.WrongAnswer(nil), snap.AnsweredWrong...)
	s.startTime = snap.StartTime
	remaining := countdown.Remaining(snap.RemainingSecondsAtPause, snap.PausedAt, now)
	s.log.Info("quiz resumed from snapshot", "question", s.current, "remaining_at_pause", snap.RemainingSecondsAtPause, "remaining", remaining)
	if remaining == 0 {
		res := s.finishLocked(ctx, true)
		s.mu.Unlock()
		s.notify(res)
		return true, nil
	}
	s.runLocked(remaining, now)
	s.mu.Unlock()
	return true, nil
}

// compatible reports whether snap was taken against a quiz with the same
// shape as the one loaded, so restored indices stay in range.
func (s *Session) compatible(snap model.PausedQuizSnapshot) bool {
	if snap.TopicID != s.topicID ||
		snap.CurrentQuestionIndex < 0 || snap.CurrentQuestionIndex >= len(s.quiz.Questions) ||
		len(snap.Quiz.Questions) != len(s.quiz.Questions) {
		return false
	}
	for i, q := range s.quiz.Questions {
		if len(snap.Quiz.Questions[i].Options) != len(q.Options) {
			return false
		}
	}
	for _, wa := range snap.AnsweredWrong {
		if wa.QuestionIndex < 0 || wa.QuestionIndex >= len(s.quiz.Questions) {
			return false
		}
		if n := len(s.quiz.Questions[wa.QuestionIndex].Options); wa.Selected < 0 || wa.Selected >= n {
			return false
		}
	}
	return true
}

func (s *Session) resetLocked(now time.Time) {
	s.current = 0
	s.score = 0
	s.wrong = nil
	s.answeredWrong = nil
	s.startTime = now
	s.finished = false
	s.runLocked(s.limitMins*60, now)
}

func (s *Session) runLocked(remaining int, now time.Time) {
	s.paused = false
	s.deadline = countdown.Deadline(remaining, now)
	s.timers.Install(keyTimeUp, s.deadline.Sub(now), s.timeUp)
}

func (s *Session) timeUp() {
	s.mu.Lock()
	if s.finished || s.paused {
		s.mu.Unlock()
		return
	}
	s.log.Info("quiz time limit reached", "question", s.current)
	res := s.finishLocked(context.Background(), true)
	s.mu.Unlock()
	s.notify(res)
}

// Answer records the selected option for the current question and moves on.
// Answering the last question finishes the quiz.
func (s *Session) Answer(ctx context.Context, option int) (bool, error) {
	s.mu.Lock()
	if err := s.activeLocked(); err != nil {
		s.mu.Unlock()
		return false, err
	}
	q := s.quiz.Questions[s.current]
	if option < 0 || option >= len(q.Options) {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %d", ErrOptionOutOfRange, option)
	}

	correct := option == q.CorrectIndex
	if correct {
		s.score++
	} else {
		s.wrong = append(s.wrong, s.current)
		s.answeredWrong = append(s.answeredWrong, model.WrongAnswer{QuestionIndex: s.current, Selected: option, Correct: q.CorrectIndex})
	}
	s.current++
	if s.current < len(s.quiz.Questions) {
		s.mu.Unlock()
		return correct, nil
	}
	res := s.finishLocked(ctx, false)
	s.mu.Unlock()
	s.notify(res)
	return correct, nil
}

func (s *Session) activeLocked() error {
	switch {
	case !s.started:
		return ErrNotStarted
	case s.finished:
		return ErrFinished
	case s.paused:
		return ErrPaused
	}
	return nil
}

// Remaining returns the seconds left on the countdown. The limit is wall-clock
// time, so a paused countdown keeps shrinking; it just cannot expire until the
// quiz is resumed.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !s.started, s.finished:
		return 0
	case s.paused:
		return countdown.Remaining(s.remainingAtPause, s.pausedAt, s.clock.Now())
	}
	return countdown.SecondsUntil(s.deadline, s.clock.Now())
}

// Pause stops the countdown and persists a snapshot of the quiz. A snapshot
// that cannot be persisted only costs the ability to resume after leaving.
func (s *Session) Pause(ctx context.Context) (model.PausedQuizSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.activeLocked(); err != nil {
		return model.PausedQuizSnapshot{}, err
	}

	now := s.clock.Now()
	s.timers.Cancel(keyTimeUp)
	s.paused = true
	s.remainingAtPause = countdown.SecondsUntil(s.deadline, now)
	s.pausedAt = now

	snap := model.PausedQuizSnapshot{
		TopicID:                 s.topicID,
		Quiz:                    s.quiz,
		CurrentQuestionIndex:    s.current,
		Score:                   s.score,
		WrongQuestionIndices:    append([]int{}, s.wrong...),
		AnsweredWrong:           append([]model.WrongAnswer{}, s.answeredWrong...),
		StartTime:               s.startTime,
		RemainingSecondsAtPause: s.remainingAtPause,
		PausedAt:                now,
		TimeLimitMinutes:        s.limitMins,
	}
	if s.resume != nil {
		s.resume.Save(ctx, resume.QuizKey(s.topicID), snap)
	}
	s.log.Info("quiz paused", "question", s.current, "remaining", s.remainingAtPause)
	return snap, nil
}

// Resume restarts the countdown of a paused session, shrunk by the time spent
// paused.
func (s *Session) Resume() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if s.finished {
		s.mu.Unlock()
		return ErrFinished
	}
	if !s.paused {
		s.mu.Unlock()
		return nil
	}
	now := s.clock.Now()
	remaining := countdown.Remaining(s.remainingAtPause, s.pausedAt, now)
	if remaining == 0 {
		res := s.finishLocked(context.Background(), true)
		s.mu.Unlock()
		s.notify(res)
		return nil
	}
	s.runLocked(remaining, now)
	s.mu.Unlock()
	return nil
}

// Restart discards progress and any paused snapshot and starts over with the
// full time limit.
func (s *Session) Restart(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	if s.resume != nil {
		s.resume.Clear(ctx, resume.QuizKey(s.topicID))
	}
	s.resetLocked(s.clock.Now())
	s.log.Info("quiz restarted")
}

// Finish ends the quiz early and returns its result.
func (s *Session) Finish(ctx context.Context) Result {
	s.mu.Lock()
	if s.finished {
		res := s.result
		s.mu.Unlock()
		return res
	}
	res := s.finishLocked(ctx, false)
	s.mu.Unlock()
	s.notify(res)
	return res
}

func (s *Session) finishLocked(ctx context.Context, timedOut bool) Result {
	s.finished = true
	s.paused = false
	s.timers.Cancel(keyTimeUp)
	if s.resume != nil {
		s.resume.Clear(ctx, resume.QuizKey(s.topicID))
	}
	s.result = Result{
		TopicID:  s.topicID,
		Score:    s.score,
		Total:    len(s.quiz.Questions),
		Answered: s.current,
		Wrong:    append([]model.WrongAnswer(nil), s.answeredWrong...),
		TimedOut: timedOut,
	}
	s.log.Info("quiz finished", "score", s.score, "total", s.result.Total, "timed_out", timedOut)
	return s.result
}

func (s *Session) notify(res Result) {
	if s.onFinish != nil {
		s.onFinish(res)
	}
}

// Current returns the index and copy of the question awaiting an answer.
func (s *Session) Current() (int, model.QuizQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return 0, model.QuizQuestion{}, ErrNotStarted
	}
	if s.finished {
		return 0, model.QuizQuestion{}, ErrFinished
	}
	return s.current, s.quiz.Questions[s.current].Clone(), nil
}

// Paused reports whether the countdown is paused.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Result returns the result of a finished quiz.
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.finished
}

// Close stops the countdown timer without touching the snapshot.
func (s *Session) Close() {
	s.timers.Close()
}
