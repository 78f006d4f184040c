package lesson

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rcliao/tutor-engine/internal/model"
)

// DefaultContextBudget is the token budget used when none is given.
const DefaultContextBudget = 1000

// ContextStep is one step's contribution to a doubt's lesson context.
type ContextStep struct {
	Index   int     `json:"index"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Excerpt bool    `json:"excerpt,omitempty"`
}

// ContextResult is the assembled lesson context.
type ContextResult struct {
	Budget int           `json:"budget"`
	Used   int           `json:"used"`
	Steps  []ContextStep `json:"steps"`
}

// Context packs the steps the learner has heard, up to and including current,
// into budget tokens (1 token ≈ 4 chars). Steps closer to current are packed
// first; the result is ordered by step index.
func Context(l *model.Lesson, current, budget int) *ContextResult {
	if budget <= 0 {
		budget = DefaultContextBudget
	}
	charBudget := budget * 4
	result := &ContextResult{Budget: budget, Steps: []ContextStep{}}
	if l == nil || len(l.Steps) == 0 {
		return result
	}
	if current >= len(l.Steps) {
		current = len(l.Steps) - 1
	}

	type scored struct {
		index int
		score float64
	}
	var candidates []scored
	for i := 0; i <= current; i++ {
		// Proximity decays with distance from the step being played.
		candidates = append(candidates, scored{index: i, score: math.Exp(-0.5 * float64(current-i))})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	used := 0
	for _, c := range candidates {
		step := l.Steps[c.index]
		content := []rune(step.SpokenContent)
		if used+len(content) <= charBudget {
			result.Steps = append(result.Steps, ContextStep{
				Index:   c.index,
				Title:   step.Title,
				Content: step.SpokenContent,
				Score:   math.Round(c.score*100) / 100,
			})
			used += len(content)
			continue
		}
		if remaining := charBudget - used; remaining >= 100 {
			result.Steps = append(result.Steps, ContextStep{
				Index:   c.index,
				Title:   step.Title,
				Content: string(content[:remaining]) + "...",
				Score:   math.Round(c.score*100) / 100,
				Excerpt: true,
			})
			used += remaining
		}
		break
	}

	sort.Slice(result.Steps, func(i, j int) bool {
		return result.Steps[i].Index < result.Steps[j].Index
	})
	result.Used = used / 4
	return result
}

// String renders the context as plain text for a resolution prompt.
func (r *ContextResult) String() string {
	var b strings.Builder
	for _, s := range r.Steps {
		fmt.Fprintf(&b, "Step %d: %s\n%s\n\n", s.Index+1, s.Title, s.Content)
	}
	return strings.TrimSpace(b.String())
}
