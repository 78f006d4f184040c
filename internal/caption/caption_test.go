package caption

import (
	"strings"
	"testing"
)

func TestSplit_EmptyInput(t *testing.T) {
	if got := Split("", DefaultOptions()); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	if got := Split("   \n ", DefaultOptions()); got != nil {
		t.Errorf("expected nil for whitespace, got %v", got)
	}
}

func TestSplit_ShortText(t *testing.T) {
	text := "  Photosynthesis turns light into sugar. "
	got := Split(text, DefaultOptions())
	if len(got) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(got))
	}
	if got[0].Text != "Photosynthesis turns light into sugar." {
		t.Errorf("unexpected text %q", got[0].Text)
	}
	if string([]rune(text)[got[0].Start:got[0].End]) != got[0].Text {
		t.Error("offsets do not match the original text")
	}
	if got[0].Words != 5 {
		t.Errorf("expected 5 words, got %d", got[0].Words)
	}
}

func TestSplit_MergesShortSentences(t *testing.T) {
	text := "Hi. This is a test. Another sentence here that is a bit longer than the rest of them. End."
	got := Split(text, Options{TargetSize: 40, MinSize: 10, MaxSize: 100})
	if len(got) < 2 {
		t.Fatalf("expected multiple segments, got %d", len(got))
	}
	if !strings.HasPrefix(got[0].Text, "Hi. This is a test.") {
		t.Errorf("expected short leading sentences merged, got %q", got[0].Text)
	}
	runes := []rune(text)
	prevEnd := 0
	for _, s := range got {
		if s.Start < prevEnd {
			t.Errorf("segments overlap: %+v", s)
		}
		if string(runes[s.Start:s.End]) != s.Text {
			t.Errorf("segment offsets wrong: %+v", s)
		}
		prevEnd = s.End
	}
}

func TestSplit_HardSplitsLongSentence(t *testing.T) {
	text := strings.Repeat("word ", 60) + "done."
	opts := Options{TargetSize: 50, MinSize: 10, MaxSize: 80}
	got := Split(text, opts)
	if len(got) < 5 {
		t.Fatalf("expected long sentence split, got %d segments", len(got))
	}
	for _, s := range got {
		if len([]rune(s.Text)) > opts.TargetSize {
			t.Errorf("segment too long (%d): %q", len(s.Text), s.Text)
		}
		if strings.HasPrefix(s.Text, " ") || strings.HasSuffix(s.Text, " ") {
			t.Errorf("segment not trimmed: %q", s.Text)
		}
	}
	if got[len(got)-1].End != len([]rune(text)) {
		t.Errorf("expected last segment to reach end of text")
	}
}

func TestSplit_UnicodeOffsets(t *testing.T) {
	text := "Ça va? Très bien. Merci beaucoup, à bientôt!"
	got := Split(text, Options{TargetSize: 12, MinSize: 1, MaxSize: 30})
	runes := []rune(text)
	for _, s := range got {
		if string(runes[s.Start:s.End]) != s.Text {
			t.Errorf("rune offsets wrong for %q", s.Text)
		}
	}
}

func TestProgress(t *testing.T) {
	if p := Progress(50, 100); p != 50 {
		t.Errorf("expected 50, got %f", p)
	}
	if p := Progress(120, 100); p != 100 {
		t.Errorf("expected clamp to 100, got %f", p)
	}
	if p := Progress(0, 0); p != 100 {
		t.Errorf("expected 100 for empty text, got %f", p)
	}
}
