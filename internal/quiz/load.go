package quiz

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/tutor-engine/internal/model"
)

// Load reads a quiz from a .json, .yaml or .yml file and checks that every
// question has at least two options and an answer among them.
func Load(path string) (*model.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quiz: %w", err)
	}
	var q model.Quiz
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &q)
	default:
		err = json.Unmarshal(data, &q)
	}
	if err != nil {
		return nil, fmt.Errorf("parse quiz %s: %w", path, err)
	}
	if len(q.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	for i, qq := range q.Questions {
		if len(qq.Options) < 2 {
			return nil, fmt.Errorf("question %d: need at least two options", i+1)
		}
		if qq.CorrectIndex < 0 || qq.CorrectIndex >= len(qq.Options) {
			return nil, fmt.Errorf("question %d: %w: correct index %d", i+1, ErrOptionOutOfRange, qq.CorrectIndex)
		}
	}
	return &q, nil
}
