package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rcliao/tutor-engine/internal/bus"
)

// newBus returns a bus mirrored to Redis when REDIS_ADDR is set. A mirror that
// cannot connect is logged and skipped.
func newBus() *bus.Bus {
	b := bus.New(log, nil, 256)
	if cfg.RedisAddr == "" {
		return b
	}
	m, err := bus.NewRedisMirror(log, cfg.RedisAddr, cfg.RedisChannel)
	if err != nil {
		log.Warn("redis mirror disabled", "addr", cfg.RedisAddr, "error", err)
		return b
	}
	b.SetMirror(m)
	return b
}

// readLines feeds trimmed non-empty input lines to the returned channel until
// r is exhausted. The channel is closed at EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				lines <- line
			}
		}
	}()
	return lines
}

// render prints one bus event as a terminal line. Narration events rejected
// by gate belong to a superseded narration and are skipped.
func render(w io.Writer, gate *bus.StepGate, ev bus.Event) {
	if gate != nil && !gate.Accept(ev) {
		return
	}
	switch ev.Type {
	case bus.EventNarrationStart:
		fmt.Fprintf(w, "\n▶ [%s]\n", ev.StepID)
	case bus.EventNarrationBoundary:
		fmt.Fprintf(w, "  %s  (%.0f%%)\n", ev.Text, ev.Progress)
	case bus.EventNarrationEnd:
		fmt.Fprintf(w, "  ■ end of %s\n", ev.StepID)
	case bus.EventNarrationError:
		fmt.Fprintf(w, "  ! narration failed: %s (type resume to retry)\n", ev.Error)
	case bus.EventPlaybackState:
		fmt.Fprintf(w, "  · %s\n", ev.State)
	case bus.EventVisibilityNotice:
		fmt.Fprintln(w, "  Playback was paused while you were away. Type resume to continue.")
	case bus.EventLessonComplete:
		fmt.Fprintln(w, "\n✓ Lesson complete.")
	case bus.EventDoubtRaised:
		fmt.Fprintf(w, "  ? doubt %s: %s\n", ev.DoubtID, ev.Text)
	case bus.EventDoubtStatus:
		if ev.Text != "" {
			fmt.Fprintf(w, "  ? doubt %s: %s\n", ev.DoubtID, ev.Text)
			return
		}
		fmt.Fprintf(w, "  ? doubt %s is %s\n", ev.DoubtID, ev.State)
	case bus.EventDoubtFailed:
		fmt.Fprintf(w, "  ! doubt %s failed: %s (type retry %s)\n", ev.DoubtID, ev.Error, ev.DoubtID)
	case bus.EventQuizSurfaced:
		fmt.Fprintf(w, "  ✎ quiz: %s\n", ev.Text)
	case bus.EventQuizHidden:
		fmt.Fprintln(w, "  ✎ quiz closed")
	}
}

// follow renders events from sub until ctx is done or the bus closes.
func follow(ctx context.Context, w io.Writer, sub *bus.Subscription) error {
	var gate bus.StepGate
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			render(w, &gate, ev)
		}
	}
}
