// Package playback drives narrated lesson steps forward.
//
// The Controller is the only writer of the playback state. It is a state
// machine over Idle, Speaking, PausedExplicit and PausedByVisibility; every
// transition out of Speaking cancels the live narration and any pending
// auto-advance. Narration signals and timer callbacks re-check the narration
// sequence number before acting, so anything produced by a superseded
// narration is dropped.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"github.com/rcliao/tutor-engine/internal/bus"
	"github.com/rcliao/tutor-engine/internal/logger"
	"github.com/rcliao/tutor-engine/internal/model"
	"github.com/rcliao/tutor-engine/internal/narration"
	"github.com/rcliao/tutor-engine/internal/timers"
)

type State string

const (
	StateIdle               State = "idle"
	StateSpeaking           State = "speaking"
	StatePausedExplicit     State = "paused"
	StatePausedByVisibility State = "paused-visibility"
)

// DefaultAutoAdvanceDelay is the pause between a step's narration ending and
// the next step starting.
const DefaultAutoAdvanceDelay = 1500 * time.Millisecond

const keyAutoAdvance = "auto-advance"

var (
	ErrEnded          = errors.New("playback session ended")
	ErrEmptyLesson    = errors.New("lesson has no steps")
	ErrStepOutOfRange = errors.New("step index out of range")
)

// Options tunes narration and pacing.
type Options struct {
	AutoAdvanceDelay time.Duration
	Rate             float64
	Pitch            float64
	Volume           float64
	Voice            string
}

// Params holds the collaborators of a Controller.
type Params struct {
	Session  model.LessonSession
	Narrator narration.Narrator
	Bus      *bus.Bus
	Clock    clock.Clock
	Logger   *logger.Logger
	Options  Options

	// OnStepStart is called, outside the controller lock, whenever narration
	// of a step begins.
	OnStepStart func(index int, step model.LessonStep)

	// OnComplete is called, outside the controller lock, when narration of the
	// last step ends.
	OnComplete func()
}

// Controller owns the narration lifecycle of one lesson session.
type Controller struct {
	mu       sync.Mutex
	narrator narration.Narrator
	bus      *bus.Bus
	log      *logger.Logger
	timers   *timers.Registry
	opts     Options
	onStep   func(int, model.LessonStep)
	onDone   func()

	session  model.LessonSession
	state    State
	speaking bool
	activeID string
	seq      uint64
	cancel   context.CancelFunc
	ended    bool
}

// New returns an idle controller positioned at p.Session.CurrentStepIndex.
func New(p Params) (*Controller, error) {
	if len(p.Session.Lesson.Steps) == 0 {
		return nil, ErrEmptyLesson
	}
	if p.Narrator == nil {
		return nil, fmt.Errorf("narrator required")
	}
	if p.Session.CurrentStepIndex < 0 || p.Session.CurrentStepIndex >= len(p.Session.Lesson.Steps) {
		p.Session.CurrentStepIndex = 0
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Bus == nil {
		p.Bus = bus.New(p.Logger, p.Clock, 0)
	}
	if p.Options.AutoAdvanceDelay <= 0 {
		p.Options.AutoAdvanceDelay = DefaultAutoAdvanceDelay
	}

	return &Controller{
		narrator: p.Narrator,
		bus:      p.Bus,
		log:      p.Logger.With("component", "PlaybackController", "session_id", p.Session.ID),
		timers:   timers.New(p.Clock),
		opts:     p.Options,
		onStep:   p.OnStepStart,
		onDone:   p.OnComplete,
		session:  p.Session,
		state:    StateIdle,
	}, nil
}

// Start begins narration of the current step.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return ErrEnded
	}
	launch := c.beginLocked()
	c.mu.Unlock()
	launch()
	return nil
}

// Pause stops narration and any pending auto-advance.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.haltLocked()
	c.setStateLocked(StatePausedExplicit)
}

// Resume restarts narration of the current step from its beginning. It only
// acts on a paused controller; resuming while speaking or idle is a no-op, so
// a pending auto-advance is left alone.
func (c *Controller) Resume() error {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return ErrEnded
	}
	if c.state != StatePausedExplicit && c.state != StatePausedByVisibility {
		c.mu.Unlock()
		return nil
	}
	launch := c.beginLocked()
	c.mu.Unlock()
	launch()
	return nil
}

// VisibilityHidden pauses playback because the learner can no longer see it.
// It only acts while playback is progressing: speaking, or idle between steps
// with an auto-advance pending.
func (c *Controller) VisibilityHidden() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	if c.state != StateSpeaking && !(c.state == StateIdle && c.timers.Pending(keyAutoAdvance)) {
		return
	}
	c.haltLocked()
	c.setStateLocked(StatePausedByVisibility)
}

// VisibilityVisible notifies listeners that playback was paused while hidden.
// Playback is not resumed. It reports whether a notice was published.
func (c *Controller) VisibilityVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended || c.state != StatePausedByVisibility {
		return false
	}
	c.bus.Publish(bus.Event{Type: bus.EventVisibilityNotice, StepID: c.currentStepLocked().ID, State: string(c.state)})
	return true
}

// Next moves to the following step.
func (c *Controller) Next() error {
	c.mu.Lock()
	idx := c.session.CurrentStepIndex + 1
	c.mu.Unlock()
	return c.GoTo(idx)
}

// Prev moves to the preceding step.
func (c *Controller) Prev() error {
	c.mu.Lock()
	idx := c.session.CurrentStepIndex - 1
	c.mu.Unlock()
	return c.GoTo(idx)
}

// GoTo cancels current narration and moves to step index. Narration of the
// new step starts unless playback is paused.
func (c *Controller) GoTo(index int) error {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return ErrEnded
	}
	if index < 0 || index >= len(c.session.Lesson.Steps) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrStepOutOfRange, index)
	}

	c.haltLocked()
	c.session.CurrentStepIndex = index
	if c.state == StatePausedExplicit || c.state == StatePausedByVisibility {
		c.activeID = c.currentStepLocked().ID
		c.publishStateLocked()
		c.mu.Unlock()
		return nil
	}
	launch := c.beginLocked()
	c.mu.Unlock()
	launch()
	return nil
}

// EndSession tears down narration, timers and the session. It is idempotent.
func (c *Controller) EndSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.haltLocked()
	c.timers.Close()
	c.ended = true
	c.activeID = ""
	c.setStateLocked(StateIdle)
}

// State returns the current state machine position.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the externally visible playback state.
func (c *Controller) Snapshot() model.PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.PlaybackState{
		IsPaused:     c.state == StatePausedExplicit || c.state == StatePausedByVisibility,
		IsSpeaking:   c.speaking,
		ActiveStepID: c.activeID,
	}
}

// CurrentIndex returns the index of the current step.
func (c *Controller) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.CurrentStepIndex
}

// CurrentStep returns a copy of the current step.
func (c *Controller) CurrentStep() model.LessonStep {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.currentStepLocked()
}

// Session returns a copy of the session.
func (c *Controller) Session() model.LessonSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// AutoAdvancePending reports whether an auto-advance timer is live.
func (c *Controller) AutoAdvancePending() bool {
	return c.timers.Pending(keyAutoAdvance)
}

// Ended reports whether EndSession has been called.
func (c *Controller) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

func (c *Controller) currentStepLocked() *model.LessonStep {
	return &c.session.Lesson.Steps[c.session.CurrentStepIndex]
}

// beginLocked cancels whatever is live and prepares narration of the current
// step. The returned func starts it and must be called after unlocking.
func (c *Controller) beginLocked() func() {
	c.haltLocked()

	c.seq++
	seq := c.seq
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	index := c.session.CurrentStepIndex
	step := *c.currentStepLocked()
	c.activeID = step.ID
	c.speaking = true
	c.setStateLocked(StateSpeaking)

	req := narration.DefaultRequest(narration.Request{
		StepID: step.ID,
		Text:   step.SpokenContent,
		Rate:   c.opts.Rate,
		Pitch:  c.opts.Pitch,
		Volume: c.opts.Volume,
		Voice:  c.opts.Voice,
	})
	c.log.Debug("narration starting", "step_id", step.ID, "seq", seq)

	return func() {
		if c.onStep != nil {
			c.onStep(index, step)
		}
		c.narrator.Speak(ctx, req, func(s narration.Signal) { c.onSignal(seq, s) })
	}
}

// haltLocked cancels the live narration and any pending auto-advance.
func (c *Controller) haltLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.speaking = false
	c.timers.Cancel(keyAutoAdvance)
}

func (c *Controller) onSignal(seq uint64, s narration.Signal) {
	c.mu.Lock()
	completed := c.handleSignalLocked(seq, s)
	c.mu.Unlock()
	if completed && c.onDone != nil {
		c.onDone()
	}
}

// handleSignalLocked applies s and reports whether it completed the lesson.
func (c *Controller) handleSignalLocked(seq uint64, s narration.Signal) bool {
	if c.ended || seq != c.seq || c.state != StateSpeaking || s.StepID != c.activeID {
		c.log.Debug("dropping stale narration signal", "kind", s.Kind, "step_id", s.StepID, "seq", seq, "current_seq", c.seq)
		return false
	}

	ev := bus.Event{StepID: s.StepID, Seq: seq, Text: s.Text, CharIndex: s.CharIndex, Progress: s.Progress}
	switch s.Kind {
	case narration.SignalStart:
		ev.Type = bus.EventNarrationStart
		c.bus.Publish(ev)

	case narration.SignalBoundary:
		ev.Type = bus.EventNarrationBoundary
		c.bus.Publish(ev)

	case narration.SignalEnd:
		c.haltLocked()
		c.setStateLocked(StateIdle)
		ev.Type = bus.EventNarrationEnd
		ev.Progress = 100
		c.bus.Publish(ev)

		if c.session.IsLastStep() {
			c.bus.Publish(bus.Event{Type: bus.EventLessonComplete, StepID: s.StepID})
			return true
		}
		index := c.session.CurrentStepIndex
		c.timers.Install(keyAutoAdvance, c.opts.AutoAdvanceDelay, func() { c.autoAdvance(seq, index) })

	case narration.SignalError:
		c.haltLocked()
		c.setStateLocked(StateIdle)
		errMsg := "narration failed"
		if s.Err != nil {
			errMsg = s.Err.Error()
		}
		c.log.Warn("narration failed, halting playback", "step_id", s.StepID, "error", errMsg)
		ev.Type = bus.EventNarrationError
		ev.Error = errMsg
		c.bus.Publish(ev)
	}
	return false
}

func (c *Controller) autoAdvance(seq uint64, index int) {
	c.mu.Lock()
	if c.ended || c.state != StateIdle || c.seq != seq || c.session.CurrentStepIndex != index {
		c.log.Debug("dropping stale auto-advance", "seq", seq, "index", index)
		c.mu.Unlock()
		return
	}
	c.session.CurrentStepIndex = index + 1
	launch := c.beginLocked()
	c.mu.Unlock()
	launch()
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.publishStateLocked()
}

func (c *Controller) publishStateLocked() {
	c.bus.Publish(bus.Event{Type: bus.EventPlaybackState, StepID: c.activeID, State: string(c.state)})
}
