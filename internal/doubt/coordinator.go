// Package doubt runs the lifecycle of learner doubts: pending, resolving and
// resolved, with a debounce before automatic resolution and a delayed
// verification quiz once an answer arrives.
package doubt

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/oklog/ulid/v2"

	"github.com/rcliao/tutor-engine/internal/bus"
	"github.com/rcliao/tutor-engine/internal/logger"
	"github.com/rcliao/tutor-engine/internal/model"
	"github.com/rcliao/tutor-engine/internal/timers"
)

const (
	DefaultDebounceDelay    = 2 * time.Second
	DefaultQuizSurfaceDelay = 1200 * time.Millisecond
	DefaultResolveTimeout   = 30 * time.Second

	keyQuizSurface = "quiz-surface"
)

var (
	ErrNotFound          = errors.New("doubt not found")
	ErrInvalidTransition = errors.New("invalid doubt transition")
	ErrEmptyQuestion     = errors.New("question is required")
	ErrClosed            = errors.New("doubt coordinator closed")
)

// Resolver answers a question given free-text lesson context.
type Resolver interface {
	Resolve(ctx context.Context, question, lessonContext string) (*model.Resolution, error)
}

// Options tunes the coordinator's delays.
type Options struct {
	DebounceDelay    time.Duration
	QuizSurfaceDelay time.Duration
	ResolveTimeout   time.Duration
}

// Params holds the collaborators of a Coordinator.
type Params struct {
	SessionID string
	Resolver  Resolver
	Bus       *bus.Bus
	Clock     clock.Clock
	Logger    *logger.Logger
	Options   Options

	// OnQuiz is called, outside the coordinator lock, when a verification
	// quiz becomes visible.
	OnQuiz func(doubtID string, q model.QuizQuestion)
}

// VisibleQuiz is the verification quiz currently shown to the learner.
type VisibleQuiz struct {
	DoubtID  string             `json:"doubtId"`
	Question model.QuizQuestion `json:"question"`
}

// Coordinator is the sole writer of a session's doubts.
type Coordinator struct {
	mu       sync.Mutex
	clock    clock.Clock
	timers   *timers.Registry
	resolver Resolver
	bus      *bus.Bus
	log      *logger.Logger
	opts     Options
	onQuiz   func(string, model.QuizQuestion)
	entropy  *rand.Rand

	sessionID string
	doubts    []*model.Doubt
	byID      map[string]*model.Doubt
	contexts  map[string]string
	activeID  string
	visible   *VisibleQuiz

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// New returns a coordinator for one session.
func New(p Params) (*Coordinator, error) {
	if p.Resolver == nil {
		return nil, fmt.Errorf("resolver required")
	}
	if p.Clock == nil {
		p.Clock = clock.New()
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Bus == nil {
		p.Bus = bus.New(p.Logger, p.Clock, 0)
	}
	if p.Options.DebounceDelay <= 0 {
		p.Options.DebounceDelay = DefaultDebounceDelay
	}
	if p.Options.QuizSurfaceDelay <= 0 {
		p.Options.QuizSurfaceDelay = DefaultQuizSurfaceDelay
	}
	if p.Options.ResolveTimeout <= 0 {
		p.Options.ResolveTimeout = DefaultResolveTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		clock:     p.Clock,
		timers:    timers.New(p.Clock),
		resolver:  p.Resolver,
		bus:       p.Bus,
		log:       p.Logger.With("component", "DoubtCoordinator", "session_id", p.SessionID),
		opts:      p.Options,
		onQuiz:    p.OnQuiz,
		entropy:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sessionID: p.SessionID,
		byID:      make(map[string]*model.Doubt),
		contexts:  make(map[string]string),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func resolveKey(id string) string { return "resolve:" + id }

// Raise records a new pending doubt and makes it the active one. The previous
// active doubt's auto-resolve timer is cancelled before the new one is
// installed. The returned copy can be rendered immediately.
func (c *Coordinator) Raise(question string, dctx model.DoubtContext, lessonContext string) (model.Doubt, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return model.Doubt{}, ErrEmptyQuestion
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return model.Doubt{}, ErrClosed
	}

	now := c.clock.Now()
	d := &model.Doubt{
		ID:        ulid.MustNew(ulid.Timestamp(now), c.entropy).String(),
		SessionID: c.sessionID,
		Question:  question,
		RaisedAt:  now,
		Context:   dctx,
		Status:    model.DoubtPending,
	}
	c.doubts = append(c.doubts, d)
	c.byID[d.ID] = d
	c.contexts[d.ID] = lessonContext

	if c.activeID != "" {
		c.timers.Cancel(resolveKey(c.activeID))
	}
	c.activeID = d.ID
	id := d.ID
	c.timers.Install(resolveKey(id), c.opts.DebounceDelay, func() { c.autoResolve(id) })

	c.log.Info("doubt raised", "doubt_id", id, "step", dctx.StepNumber)
	c.bus.Publish(bus.Event{Type: bus.EventDoubtRaised, DoubtID: id, Text: question, State: string(d.Status)})
	return d.Clone(), nil
}

func (c *Coordinator) autoResolve(id string) {
	c.mu.Lock()
	d := c.byID[id]
	if c.closed || d == nil || c.activeID != id || d.Status != model.DoubtPending {
		c.log.Debug("dropping stale auto-resolve", "doubt_id", id)
		c.mu.Unlock()
		return
	}
	req, err := c.beginResolveLocked(d)
	c.mu.Unlock()
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.opts.ResolveTimeout)
	defer cancel()
	c.finishResolve(ctx, req)
}

// Retry moves a pending doubt back into resolution and calls the backend. The
// backend error, if any, is returned after the doubt has been reverted to
// pending.
func (c *Coordinator) Retry(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	d := c.byID[id]
	if d == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.timers.Cancel(resolveKey(id))
	req, err := c.beginResolveLocked(d)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.ResolveTimeout)
	defer cancel()
	return c.finishResolve(ctx, req)
}

type resolveRequest struct {
	id            string
	question      string
	lessonContext string
}

func (c *Coordinator) beginResolveLocked(d *model.Doubt) (resolveRequest, error) {
	if err := c.transitionLocked(d, model.DoubtResolving); err != nil {
		return resolveRequest{}, err
	}
	return resolveRequest{id: d.ID, question: d.Question, lessonContext: c.contexts[d.ID]}, nil
}

func (c *Coordinator) finishResolve(ctx context.Context, req resolveRequest) error {
	res, err := c.resolver.Resolve(ctx, req.question, req.lessonContext)
	if err == nil && (res == nil || strings.TrimSpace(res.Explanation) == "") {
		err = fmt.Errorf("empty resolution")
	}
	if err != nil {
		c.fail(req.id, err)
		return err
	}
	if err := c.Resolve(req.id, *res); err != nil {
		c.log.Debug("resolution arrived for a doubt that moved on", "doubt_id", req.id, "error", err)
		return err
	}
	return nil
}

func (c *Coordinator) fail(id string, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.byID[id]
	if d == nil || d.Status != model.DoubtResolving {
		return
	}
	c.transitionLocked(d, model.DoubtPending)
	c.log.Warn("doubt resolution failed, awaiting retry", "doubt_id", id, "error", cause)
	c.bus.Publish(bus.Event{Type: bus.EventDoubtFailed, DoubtID: id, State: string(d.Status), Error: cause.Error()})
}

// Resolve attaches a resolution to a resolving doubt. A verification quiz in
// the resolution is surfaced after the quiz surface delay.
func (c *Coordinator) Resolve(id string, res model.Resolution) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	d := c.byID[id]
	if d == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !d.Status.CanTransition(model.DoubtResolved) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, model.DoubtResolved)
	}

	r := res
	r.Examples = append([]string(nil), res.Examples...)
	r.ResolvedAt = c.clock.Now()
	r.UnderstandingConfirmed = false
	if res.QuizQuestion != nil {
		q := res.QuizQuestion.Clone()
		r.QuizQuestion = &q
	}
	d.Resolution = &r
	c.transitionLocked(d, model.DoubtResolved)

	if q := r.QuizQuestion; q != nil {
		c.timers.Install(keyQuizSurface, c.opts.QuizSurfaceDelay, func() { c.surfaceQuiz(id, q) })
	}
	return nil
}

func (c *Coordinator) surfaceQuiz(id string, q *model.QuizQuestion) {
	c.mu.Lock()
	d := c.byID[id]
	if c.closed || d == nil || d.Status != model.DoubtResolved || d.Resolution == nil ||
		d.Resolution.QuizQuestion != q || d.Resolution.UnderstandingConfirmed {
		c.log.Debug("dropping stale quiz surface", "doubt_id", id)
		c.mu.Unlock()
		return
	}
	vq := VisibleQuiz{DoubtID: id, Question: q.Clone()}
	c.visible = &vq
	c.bus.Publish(bus.Event{Type: bus.EventQuizSurfaced, DoubtID: id, Text: q.Question})
	hook := c.onQuiz
	c.mu.Unlock()

	if hook != nil {
		hook(id, vq.Question.Clone())
	}
}

// ConfirmUnderstanding records that the learner understood the resolution and
// withdraws any verification quiz for it.
func (c *Coordinator) ConfirmUnderstanding(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.byID[id]
	if d == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if d.Status != model.DoubtResolved || d.Resolution == nil {
		return fmt.Errorf("%w: cannot confirm a %s doubt", ErrInvalidTransition, d.Status)
	}
	d.Resolution.UnderstandingConfirmed = true
	c.timers.Cancel(keyQuizSurface)
	if c.visible != nil && c.visible.DoubtID == id {
		c.hideLocked()
	}
	c.bus.Publish(bus.Event{Type: bus.EventDoubtStatus, DoubtID: id, State: string(d.Status), Text: "understanding-confirmed"})
	return nil
}

// HideQuiz dismisses the visible verification quiz and cancels any quiz about
// to surface.
func (c *Coordinator) HideQuiz() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers.Cancel(keyQuizSurface)
	c.hideLocked()
}

func (c *Coordinator) hideLocked() {
	if c.visible == nil {
		return
	}
	id := c.visible.DoubtID
	c.visible = nil
	c.bus.Publish(bus.Event{Type: bus.EventQuizHidden, DoubtID: id})
}

func (c *Coordinator) transitionLocked(d *model.Doubt, next model.DoubtStatus) error {
	if !d.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, next)
	}
	d.Status = next
	c.bus.Publish(bus.Event{Type: bus.EventDoubtStatus, DoubtID: d.ID, State: string(next)})
	return nil
}

// Get returns a copy of the doubt with id.
func (c *Coordinator) Get(id string) (model.Doubt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.byID[id]
	if d == nil {
		return model.Doubt{}, false
	}
	return d.Clone(), true
}

// Doubts returns copies of all doubts in the order they were raised.
func (c *Coordinator) Doubts() []model.Doubt {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Doubt, 0, len(c.doubts))
	for _, d := range c.doubts {
		out = append(out, d.Clone())
	}
	return out
}

// ActiveID returns the id of the most recently raised doubt.
func (c *Coordinator) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// VisibleQuiz returns the quiz currently shown, if any.
func (c *Coordinator) VisibleQuiz() (VisibleQuiz, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.visible == nil {
		return VisibleQuiz{}, false
	}
	return VisibleQuiz{DoubtID: c.visible.DoubtID, Question: c.visible.Question.Clone()}, true
}

// ClearSession drops every doubt of the session and cancels their timers.
func (c *Coordinator) ClearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers.CancelAll()
	c.doubts = nil
	c.byID = make(map[string]*model.Doubt)
	c.contexts = make(map[string]string)
	c.activeID = ""
	c.hideLocked()
}

// Close cancels every timer and in-flight backend call.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.timers.Close()
	c.cancel()
}
