package narration

import (
	"context"
	"strings"
	"time"

	"github.com/facebookgo/clock"

	"github.com/rcliao/tutor-engine/internal/caption"
	"github.com/rcliao/tutor-engine/internal/logger"
)

// DefaultWordsPerMinute is a comfortable narration pace at rate 1.
const DefaultWordsPerMinute = 170

// Timed is a Narrator that paces caption segments by word count instead of
// producing audio. It stands in for a host speech engine in terminals and
// tests.
type Timed struct {
	clock          clock.Clock
	log            *logger.Logger
	wordsPerMinute int
	captions       caption.Options
}

// NewTimed returns a narrator pacing speech at wordsPerMinute on clk.
func NewTimed(clk clock.Clock, log *logger.Logger, wordsPerMinute int) *Timed {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = logger.Nop()
	}
	if wordsPerMinute <= 0 {
		wordsPerMinute = DefaultWordsPerMinute
	}
	return &Timed{
		clock:          clk,
		log:            log.With("component", "TimedNarrator"),
		wordsPerMinute: wordsPerMinute,
		captions:       caption.DefaultOptions(),
	}
}

func (n *Timed) Speak(ctx context.Context, req Request, emit func(Signal)) {
	req = DefaultRequest(req)
	go n.run(ctx, req, emit)
}

func (n *Timed) run(ctx context.Context, req Request, emit func(Signal)) {
	if strings.TrimSpace(req.Text) == "" {
		emit(Signal{Kind: SignalError, StepID: req.StepID, Err: ErrEmptyUtterance})
		return
	}
	if ctx.Err() != nil {
		return
	}

	segments := caption.Split(req.Text, n.captions)
	total := len([]rune(req.Text))
	emit(Signal{Kind: SignalStart, StepID: req.StepID})

	for _, seg := range segments {
		emit(Signal{
			Kind:      SignalBoundary,
			StepID:    req.StepID,
			Text:      seg.Text,
			CharIndex: seg.Start,
			Progress:  caption.Progress(seg.Start, total),
		})
		t := n.clock.Timer(n.duration(seg.Words, req.Rate))
		select {
		case <-ctx.Done():
			t.Stop()
			n.log.Debug("utterance cancelled", "step_id", req.StepID)
			return
		case <-t.C:
		}
	}

	if ctx.Err() != nil {
		return
	}
	emit(Signal{Kind: SignalEnd, StepID: req.StepID, CharIndex: total, Progress: 100})
}

func (n *Timed) duration(words int, rate float64) time.Duration {
	if words <= 0 {
		words = 1
	}
	perWord := time.Minute / time.Duration(n.wordsPerMinute)
	return time.Duration(float64(perWord) * float64(words) / rate)
}
