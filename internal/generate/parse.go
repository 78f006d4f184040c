package generate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rcliao/tutor-engine/internal/model"
)

type rawResolution struct {
	Explanation  string              `json:"explanation"`
	Examples     []string            `json:"examples"`
	QuizQuestion *model.QuizQuestion `json:"quizQuestion"`
}

// ParseResolution extracts a resolution from a model reply. The reply may be
// wrapped in a markdown code fence or surrounded by prose. A quiz question
// with fewer than two options or an out-of-range answer is dropped rather than
// failing the whole resolution.
func ParseResolution(reply string) (*model.Resolution, error) {
	body := stripFence(strings.TrimSpace(reply))
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrMalformed)
	}

	var raw rawResolution
	if err := json.Unmarshal([]byte(body[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	raw.Explanation = strings.TrimSpace(raw.Explanation)
	if raw.Explanation == "" {
		return nil, fmt.Errorf("%w: empty explanation", ErrMalformed)
	}

	res := &model.Resolution{Explanation: raw.Explanation}
	for _, ex := range raw.Examples {
		if ex = strings.TrimSpace(ex); ex != "" {
			res.Examples = append(res.Examples, ex)
		}
	}
	if q := raw.QuizQuestion; q != nil && validQuiz(q) {
		res.QuizQuestion = q
	}
	return res, nil
}

func validQuiz(q *model.QuizQuestion) bool {
	return strings.TrimSpace(q.Question) != "" &&
		len(q.Options) >= 2 &&
		q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options)
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
