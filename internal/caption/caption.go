// Package caption splits a step's spoken content into caption segments.
package caption

import (
	"strings"
	"unicode"
)

const (
	DefaultTargetSize = 80
	DefaultMinSize    = 20
	DefaultMaxSize    = 140
)

// Options configures segmentation, in characters.
type Options struct {
	TargetSize int
	MinSize    int
	MaxSize    int
}

// DefaultOptions returns default segmentation options.
func DefaultOptions() Options {
	return Options{
		TargetSize: DefaultTargetSize,
		MinSize:    DefaultMinSize,
		MaxSize:    DefaultMaxSize,
	}
}

// Segment is a caption line with its rune offsets into the original text.
// End is exclusive.
type Segment struct {
	Text  string
	Start int
	End   int
	Words int
}

// Split breaks text into caption segments. Short text (<= MaxSize) is a single
// segment. Offsets always refer to the untrimmed input.
func Split(text string, opts Options) []Segment {
	if opts.TargetSize == 0 {
		opts = DefaultOptions()
	}

	runes := []rune(text)
	sentences := splitSentences(runes)
	if len(sentences) == 0 {
		return nil
	}

	return mergeSentences(runes, sentences, opts)
}

// span is a [start, end) rune range with no leading or trailing space.
type span struct {
	start int
	end   int
}

func (s span) len() int { return s.end - s.start }

// splitSentences splits on terminal punctuation followed by whitespace and on
// blank lines.
func splitSentences(runes []rune) []span {
	var out []span
	start := -1

	flush := func(end int) {
		if start < 0 {
			return
		}
		for end > start && unicode.IsSpace(runes[end-1]) {
			end--
		}
		if end > start {
			out = append(out, span{start: start, end: end})
		}
		start = -1
	}

	for i, r := range runes {
		if start < 0 {
			if unicode.IsSpace(r) {
				continue
			}
			start = i
		}
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		switch {
		case (r == '.' || r == '!' || r == '?') && (next == 0 || unicode.IsSpace(next)):
			flush(i + 1)
		case r == '\n' && next == '\n':
			flush(i)
		}
	}
	flush(len(runes))
	return out
}

// mergeSentences combines short sentences up to TargetSize and splits
// sentences longer than MaxSize.
func mergeSentences(runes []rune, sentences []span, opts Options) []Segment {
	var out []Segment
	acc := span{start: -1}

	emit := func(s span) {
		if s.len() > opts.MaxSize {
			out = append(out, hardSplit(runes, s, opts)...)
			return
		}
		out = append(out, newSegment(runes, s))
	}

	for _, s := range sentences {
		if acc.start < 0 {
			acc = s
			continue
		}
		combined := span{start: acc.start, end: s.end}
		if combined.len() <= opts.TargetSize || acc.len() < opts.MinSize {
			acc = combined
			continue
		}
		emit(acc)
		acc = s
	}
	if acc.start >= 0 {
		emit(acc)
	}
	return out
}

// hardSplit breaks an oversized sentence on word boundaries near TargetSize.
func hardSplit(runes []rune, s span, opts Options) []Segment {
	var out []Segment
	cur := s.start
	for cur < s.end {
		for cur < s.end && unicode.IsSpace(runes[cur]) {
			cur++
		}
		if cur >= s.end {
			break
		}
		limit := cur + opts.TargetSize
		if limit >= s.end {
			out = append(out, newSegment(runes, span{start: cur, end: s.end}))
			break
		}
		cut := limit
		for cut > cur && !unicode.IsSpace(runes[cut]) {
			cut--
		}
		if cut == cur {
			cut = limit
		}
		end := cut
		for end > cur && unicode.IsSpace(runes[end-1]) {
			end--
		}
		out = append(out, newSegment(runes, span{start: cur, end: end}))
		cur = cut
	}
	return out
}

func newSegment(runes []rune, s span) Segment {
	text := string(runes[s.start:s.end])
	return Segment{
		Text:  text,
		Start: s.start,
		End:   s.end,
		Words: len(strings.Fields(text)),
	}
}

// Progress returns the percentage of text covered once the segment ending at
// end has been spoken.
func Progress(end, total int) float64 {
	if total <= 0 {
		return 100
	}
	p := float64(end) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return p
}
