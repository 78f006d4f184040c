// Package lesson loads lesson files and assembles the lesson context sent
// along with a doubt.
package lesson

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/tutor-engine/internal/model"
)

var ErrNoSteps = errors.New("lesson has no steps")

// Load reads a lesson from a .json, .yaml or .yml file.
func Load(path string) (*model.Lesson, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lesson: %w", err)
	}
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	l, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if l.ID == "" {
		l.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return l, nil
}

// Parse decodes a lesson in the given format ("json" or "yaml") and
// normalizes it.
func Parse(data []byte, format string) (*model.Lesson, error) {
	var l model.Lesson
	var err error
	switch format {
	case "yaml":
		err = yaml.Unmarshal(data, &l)
	case "json":
		err = json.Unmarshal(data, &l)
	default:
		return nil, fmt.Errorf("unknown lesson format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse lesson: %w", err)
	}
	if err := Normalize(&l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Normalize trims step text, assigns ids to steps without one and rejects
// lessons with no steps or duplicate step ids.
func Normalize(l *model.Lesson) error {
	if len(l.Steps) == 0 {
		return ErrNoSteps
	}
	seen := make(map[string]bool, len(l.Steps))
	for i := range l.Steps {
		s := &l.Steps[i]
		s.Title = strings.TrimSpace(s.Title)
		s.SpokenContent = strings.TrimSpace(s.SpokenContent)
		if s.ID == "" {
			s.ID = fmt.Sprintf("step-%d", i+1)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate step id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}
