package narration

import (
	"context"
	"errors"
	"testing"
	"time"
)

func collect(t *testing.T, ch <-chan Signal, until SignalKind) []Signal {
	t.Helper()
	var got []Signal
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			got = append(got, s)
			if s.Kind == until {
				return got
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s, got %+v", until, got)
		}
	}
}

func TestTimedSpeaksToEnd(t *testing.T) {
	n := NewTimed(nil, nil, 600_000)
	ch := make(chan Signal, 32)

	n.Speak(context.Background(), Request{StepID: "s1", Text: "Cells divide. Then they grow again."}, func(s Signal) { ch <- s })
	got := collect(t, ch, SignalEnd)

	if got[0].Kind != SignalStart {
		t.Errorf("expected start first, got %s", got[0].Kind)
	}
	boundaries := 0
	for _, s := range got {
		if s.StepID != "s1" {
			t.Errorf("signal not tagged with step: %+v", s)
		}
		if s.Kind == SignalBoundary {
			boundaries++
		}
	}
	if boundaries == 0 {
		t.Error("expected at least one boundary")
	}
	if last := got[len(got)-1]; last.Progress != 100 {
		t.Errorf("expected end progress 100, got %f", last.Progress)
	}
}

func TestTimedCancelSuppressesEnd(t *testing.T) {
	n := NewTimed(nil, nil, 1)
	ch := make(chan Signal, 32)
	ctx, cancel := context.WithCancel(context.Background())

	n.Speak(ctx, Request{StepID: "s1", Text: "A very slow sentence."}, func(s Signal) { ch <- s })
	collect(t, ch, SignalBoundary)
	cancel()

	select {
	case s := <-ch:
		if s.Kind == SignalEnd {
			t.Errorf("cancelled utterance emitted end")
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimedEmptyText(t *testing.T) {
	n := NewTimed(nil, nil, 0)
	ch := make(chan Signal, 1)
	n.Speak(context.Background(), Request{StepID: "s1", Text: "  "}, func(s Signal) { ch <- s })

	got := collect(t, ch, SignalError)
	if !errors.Is(got[0].Err, ErrEmptyUtterance) {
		t.Errorf("expected ErrEmptyUtterance, got %v", got[0].Err)
	}
}

func TestDefaultRequest(t *testing.T) {
	r := DefaultRequest(Request{Rate: 1.5})
	if r.Rate != 1.5 || r.Pitch != 1 || r.Volume != 1 {
		t.Errorf("unexpected defaults %+v", r)
	}
}
