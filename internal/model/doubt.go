package model

import "time"

// DoubtStatus is the lifecycle position of a doubt.
type DoubtStatus string

const (
	DoubtPending   DoubtStatus = "pending"
	DoubtResolving DoubtStatus = "resolving"
	DoubtResolved  DoubtStatus = "resolved"
)

// CanTransition reports whether a doubt may move from s to next. The only legal
// moves are pending->resolving, resolving->resolved and resolving->pending.
func (s DoubtStatus) CanTransition(next DoubtStatus) bool {
	switch s {
	case DoubtPending:
		return next == DoubtResolving
	case DoubtResolving:
		return next == DoubtResolved || next == DoubtPending
	default:
		return false
	}
}

// DoubtContext locates the doubt inside the lesson.
type DoubtContext struct {
	StepNumber int    `json:"stepNumber"`
	StepTitle  string `json:"stepTitle"`
}

// Doubt is one learner question raised mid-lesson.
type Doubt struct {
	ID         string       `json:"id"`
	SessionID  string       `json:"sessionId"`
	Question   string       `json:"question"`
	RaisedAt   time.Time    `json:"raisedAt"`
	Context    DoubtContext `json:"context"`
	Status     DoubtStatus  `json:"status"`
	Resolution *Resolution  `json:"resolution,omitempty"`
}

// Resolution is the backend's answer to a doubt.
type Resolution struct {
	Explanation            string        `json:"explanation"`
	Examples               []string      `json:"examples"`
	QuizQuestion           *QuizQuestion `json:"quizQuestion,omitempty"`
	ResolvedAt             time.Time     `json:"resolvedAt"`
	UnderstandingConfirmed bool          `json:"understandingConfirmed"`
}

// Clone returns a deep copy safe to hand to callers.
func (d *Doubt) Clone() Doubt {
	out := *d
	if d.Resolution != nil {
		r := *d.Resolution
		r.Examples = append([]string(nil), d.Resolution.Examples...)
		if d.Resolution.QuizQuestion != nil {
			q := d.Resolution.QuizQuestion.Clone()
			r.QuizQuestion = &q
		}
		out.Resolution = &r
	}
	return out
}
