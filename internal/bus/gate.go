package bus

// StepGate is the subscriber-side check that drops narration events which do
// not belong to the step the subscriber is currently rendering. A
// narration-start event moves the gate to the new narration.
type StepGate struct {
	stepID string
	seq    uint64
}

// Current returns the step and narration instance the gate accepts.
func (g *StepGate) Current() (string, uint64) {
	return g.stepID, g.seq
}

// Accept reports whether ev should be rendered.
func (g *StepGate) Accept(ev Event) bool {
	switch ev.Type {
	case EventNarrationStart:
		if ev.Seq < g.seq {
			return false
		}
		g.stepID, g.seq = ev.StepID, ev.Seq
		return true
	case EventNarrationBoundary, EventNarrationEnd, EventNarrationError:
		return ev.StepID == g.stepID && ev.Seq == g.seq
	default:
		return true
	}
}
