// Package model defines the data types shared by the playback, doubt and quiz engines.
package model

// LessonStep is one narrated unit of a lesson. Steps are never mutated once a
// session starts.
type LessonStep struct {
	ID            string  `json:"id" yaml:"id"`
	Title         string  `json:"title" yaml:"title"`
	SpokenContent string  `json:"spokenContent" yaml:"spokenContent"`
	Visual        *Visual `json:"visual,omitempty" yaml:"visual,omitempty"`
}

// Visual is an opaque descriptor handed to visual renderers.
type Visual struct {
	Kind   string            `json:"kind" yaml:"kind"`
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// Lesson is an ordered, read-only sequence of steps.
type Lesson struct {
	ID    string       `json:"id" yaml:"id"`
	Title string       `json:"title" yaml:"title"`
	Steps []LessonStep `json:"steps" yaml:"steps"`
}

// LessonSession is an active lesson plus the index of the step being played.
type LessonSession struct {
	ID               string `json:"id"`
	Lesson           Lesson `json:"lesson"`
	CurrentStepIndex int    `json:"currentStepIndex"`
}

// CurrentStep returns the active step, or nil for an empty lesson.
func (s *LessonSession) CurrentStep() *LessonStep {
	if s == nil || s.CurrentStepIndex < 0 || s.CurrentStepIndex >= len(s.Lesson.Steps) {
		return nil
	}
	return &s.Lesson.Steps[s.CurrentStepIndex]
}

// IsLastStep reports whether the current step is the final one.
func (s *LessonSession) IsLastStep() bool {
	return s.CurrentStepIndex >= len(s.Lesson.Steps)-1
}

// PlaybackState is the externally visible state of the playback controller.
type PlaybackState struct {
	IsPaused     bool   `json:"isPaused"`
	IsSpeaking   bool   `json:"isSpeaking"`
	ActiveStepID string `json:"activeStepId,omitempty"`
}

// LessonResume points at the step a learner last reached.
type LessonResume struct {
	LessonID  string `json:"lessonId"`
	StepIndex int    `json:"stepIndex"`
	StepID    string `json:"stepId"`
}
