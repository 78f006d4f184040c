package model

import "time"

// QuizQuestion is a single multiple-choice question.
type QuizQuestion struct {
	Question     string   `json:"question" yaml:"question"`
	Options      []string `json:"options" yaml:"options"`
	CorrectIndex int      `json:"correctIndex" yaml:"correctIndex"`
	Explanation  string   `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// Clone copies the question including its options.
func (q QuizQuestion) Clone() QuizQuestion {
	q.Options = append([]string(nil), q.Options...)
	return q
}

// Quiz is an ordered set of questions for a topic.
type Quiz struct {
	Title     string         `json:"title" yaml:"title"`
	Questions []QuizQuestion `json:"questions" yaml:"questions"`
}

// WrongAnswer records a question the learner missed.
type WrongAnswer struct {
	QuestionIndex int `json:"questionIndex"`
	Selected      int `json:"selected"`
	Correct       int `json:"correct"`
}

// PausedQuizSnapshot is the persisted state of a paused timed quiz.
type PausedQuizSnapshot struct {
	TopicID                 string        `json:"topicId"`
	Quiz                    Quiz          `json:"quiz"`
	CurrentQuestionIndex    int           `json:"currentQuestionIndex"`
	Score                   int           `json:"score"`
	WrongQuestionIndices    []int         `json:"wrongQuestionIndices"`
	AnsweredWrong           []WrongAnswer `json:"answeredWrong"`
	StartTime               time.Time     `json:"startTime"`
	RemainingSecondsAtPause int           `json:"remainingSecondsAtPause"`
	PausedAt                time.Time     `json:"pausedAt"`
	TimeLimitMinutes        int           `json:"timeLimitMinutes"`
}
