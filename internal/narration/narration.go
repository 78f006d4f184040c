// Package narration defines the contract with the speech engine that voices
// lesson steps, and a clock-driven engine that simulates one.
package narration

import (
	"context"
	"errors"
)

// SignalKind is the lifecycle signal a narration emits.
type SignalKind string

const (
	SignalStart    SignalKind = "start"
	SignalBoundary SignalKind = "boundary"
	SignalEnd      SignalKind = "end"
	SignalError    SignalKind = "error"
)

// ErrEmptyUtterance is reported when there is nothing to speak.
var ErrEmptyUtterance = errors.New("empty utterance")

// Request is one utterance for a step.
type Request struct {
	StepID string
	Text   string
	Rate   float64
	Pitch  float64
	Volume float64
	Voice  string
}

// Signal is emitted by a narrator while it speaks a request. Every signal
// carries the step id of the request that produced it.
type Signal struct {
	Kind      SignalKind
	StepID    string
	Text      string
	CharIndex int
	Progress  float64
	Err       error
}

// Narrator speaks requests. Speak returns without waiting for speech to
// finish and reports progress through emit, from any goroutine. Cancelling
// ctx stops the utterance; a narrator must not emit end for a cancelled
// utterance, although a signal already in flight may still arrive.
type Narrator interface {
	Speak(ctx context.Context, req Request, emit func(Signal))
}

// DefaultRequest fills unset voice parameters.
func DefaultRequest(req Request) Request {
	if req.Rate <= 0 {
		req.Rate = 1
	}
	if req.Pitch <= 0 {
		req.Pitch = 1
	}
	if req.Volume <= 0 {
		req.Volume = 1
	}
	return req
}
