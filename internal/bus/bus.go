// Package bus is the in-process publish/subscribe channel between the playback
// engine and its renderers. Every event carries the identity of the step or
// doubt it belongs to so subscribers can drop events that arrive late.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"

	"github.com/rcliao/tutor-engine/internal/logger"
)

type EventType string

const (
	EventNarrationStart    EventType = "narration-start"
	EventNarrationBoundary EventType = "narration-boundary"
	EventNarrationEnd      EventType = "narration-end"
	EventNarrationError    EventType = "narration-error"

	EventPlaybackState    EventType = "playback-state"
	EventVisibilityNotice EventType = "playback-visibility-notice"
	EventLessonComplete   EventType = "lesson-complete"

	EventDoubtRaised  EventType = "doubt-raised"
	EventDoubtStatus  EventType = "doubt-status"
	EventDoubtFailed  EventType = "doubt-failed"
	EventQuizSurfaced EventType = "quiz-surfaced"
	EventQuizHidden   EventType = "quiz-hidden"
)

// Event is a tagged message on the bus. StepID and Seq tag narration events:
// Seq is the narration instance that produced the event, so two narrations of
// the same step are distinguishable.
type Event struct {
	Type      EventType `json:"type"`
	StepID    string    `json:"stepId,omitempty"`
	Seq       uint64    `json:"seq,omitempty"`
	DoubtID   string    `json:"doubtId,omitempty"`
	Text      string    `json:"text,omitempty"`
	CharIndex int       `json:"charIndex,omitempty"`
	Progress  float64   `json:"progress,omitempty"`
	State     string    `json:"state,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Mirror receives a copy of every published event, e.g. to fan out to other
// processes.
type Mirror interface {
	Mirror(ctx context.Context, ev Event) error
	Close() error
}

// Subscription is one subscriber's view of the bus.
type Subscription struct {
	ID    uuid.UUID
	C     <-chan Event
	ch    chan Event
	types map[EventType]bool
	once  sync.Once
}

func (s *Subscription) wants(t EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

// Bus fans events out to subscriptions without blocking the publisher. A
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	log    *logger.Logger
	clock  clock.Clock
	subs   map[uuid.UUID]*Subscription
	mirror *forwarder
	buffer int
	closed bool
}

// forwarder hands events to a Mirror one at a time, in publish order.
type forwarder struct {
	m     Mirror
	queue chan Event
	done  chan struct{}
}

// New returns a bus whose subscriptions buffer up to buffer events. Events
// published without a timestamp are stamped from clk.
func New(log *logger.Logger, clk clock.Clock, buffer int) *Bus {
	if log == nil {
		log = logger.Nop()
	}
	if clk == nil {
		clk = clock.New()
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		log:    log.With("component", "Bus"),
		clock:  clk,
		subs:   make(map[uuid.UUID]*Subscription),
		buffer: buffer,
	}
}

// SetMirror installs m as the mirror for subsequent events. A mirror already
// installed is drained and detached but not closed.
func (b *Bus) SetMirror(m Mirror) {
	f := &forwarder{m: m, queue: make(chan Event, b.buffer), done: make(chan struct{})}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	prev := b.mirror
	b.mirror = f
	if prev != nil {
		close(prev.queue)
	}
	b.mu.Unlock()

	go b.forward(f)
	if prev != nil {
		<-prev.done
	}
}

// Subscribe returns a subscription receiving the given event types, or every
// type when none are given.
func (b *Bus) Subscribe(types ...EventType) *Subscription {
	ch := make(chan Event, b.buffer)
	sub := &Subscription{ID: uuid.New(), C: ch, ch: ch, types: map[EventType]bool{}}
	for _, t := range types {
		sub.types[t] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub.ID] = sub
	b.log.Debug("subscribed", "subscription", sub.ID, "types", len(types))
	return sub
}

// Unsubscribe detaches sub and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.ID]; ok {
		delete(b.subs, sub.ID)
		sub.once.Do(func() { close(sub.ch) })
	}
}

// Publish delivers ev to every interested subscription.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = b.clock.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if !sub.wants(ev.Type) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.log.Warn("subscriber buffer full, dropping event", "subscription", sub.ID, "type", ev.Type)
		}
	}
	if b.mirror != nil {
		select {
		case b.mirror.queue <- ev:
		default:
			b.log.Warn("mirror queue full, dropping event", "type", ev.Type)
		}
	}
}

func (b *Bus) forward(f *forwarder) {
	defer close(f.done)
	for ev := range f.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := f.m.Mirror(ctx, ev); err != nil {
			b.log.Warn("mirror publish failed", "type", ev.Type, "error", err)
		}
		cancel()
	}
}

// Close detaches all subscriptions, then flushes queued events to the mirror
// before closing it.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.once.Do(func() { close(sub.ch) })
	}
	f := b.mirror
	b.mirror = nil
	if f != nil {
		close(f.queue)
	}
	b.mu.Unlock()

	if f == nil {
		return nil
	}
	<-f.done
	return f.m.Close()
}
