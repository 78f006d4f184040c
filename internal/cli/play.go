package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/tutor-engine/internal/doubt"
	"github.com/rcliao/tutor-engine/internal/engine"
	"github.com/rcliao/tutor-engine/internal/generate"
	"github.com/rcliao/tutor-engine/internal/lesson"
	"github.com/rcliao/tutor-engine/internal/model"
	"github.com/rcliao/tutor-engine/internal/narration"
	"github.com/rcliao/tutor-engine/internal/playback"
	"github.com/rcliao/tutor-engine/internal/resume"
)

const playHelp = `commands: next | prev | goto <n> | pause | resume | hide | show
          doubt <question> | retry <id> | confirm <id> | answer <n> | dismiss | doubts | quit`

func init() {
	cmd := &cobra.Command{
		Use:   "play <lesson-file>",
		Short: "Play a narrated lesson",
		Long:  "Narrate a lesson step by step with auto-advance. Commands are read from stdin:\n" + playHelp,
		Args:  cobra.ExactArgs(1),
		Run:   runPlay,
	}

	cmd.Flags().String("scope", "", "Resume pointer scope (default: lesson id)")
	cmd.Flags().IntP("budget", "b", lesson.DefaultContextBudget, "Max tokens of lesson context sent with a doubt")

	RootCmd.AddCommand(cmd)
}

func runPlay(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	budget, _ := cmd.Flags().GetInt("budget")

	l, err := lesson.Load(args[0])
	if err != nil {
		exitErr("load lesson", err)
	}

	rs, closeResume := openSessionResume()
	defer closeResume()
	if rs != nil {
		sweeper, err := resume.NewSweeper(rs, "")
		if err != nil {
			exitErr("sweeper", err)
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	resolver, err := generate.New(cfg.Generate, log)
	if err != nil {
		exitErr("generation backend", err)
	}
	b := newBus()
	defer b.Close()
	sub := b.Subscribe()

	out := cmd.OutOrStdout()
	sess, err := engine.New(cmd.Context(), engine.Params{
		Lesson:        *l,
		Scope:         scope,
		Narrator:      narration.NewTimed(nil, log, cfg.WordsPerMinute),
		Resolver:      resolver,
		Resume:        rs,
		Bus:           b,
		Logger:        log,
		Playback:      playback.Options{AutoAdvanceDelay: cfg.AutoAdvanceDelay},
		Doubt:         doubt.Options{DebounceDelay: cfg.DoubtDebounce, QuizSurfaceDelay: cfg.QuizSurfaceDelay, ResolveTimeout: cfg.ResolveTimeout},
		ContextBudget: budget,
		OnQuiz: func(id string, q model.QuizQuestion) {
			fmt.Fprintf(out, "  ✎ %s\n", q.Question)
			for i, o := range q.Options {
				fmt.Fprintf(out, "     %d) %s\n", i+1, o)
			}
			fmt.Fprintln(out, "     (answer <n> or dismiss)")
		},
	})
	if err != nil {
		exitErr("start session", err)
	}
	defer sess.End()

	fmt.Fprintf(out, "%s (%d steps)\n%s\n", l.Title, len(l.Steps), playHelp)
	if idx, resumed := sess.StartIndex(); resumed {
		fmt.Fprintf(out, "Resuming at step %d.\n", idx+1)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return follow(ctx, out, sub) })
	g.Go(func() error {
		defer cancel()
		if err := sess.Start(); err != nil {
			return err
		}
		lines := readLines(os.Stdin)
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if quit := playCommand(ctx, sess, line, out); quit {
					return nil
				}
			}
		}
	})
	if err := g.Wait(); err != nil {
		exitErr("play", err)
	}
}

// playCommand applies one input line to the session and reports whether the
// learner asked to quit.
func playCommand(ctx context.Context, sess *engine.Session, line string, out io.Writer) bool {
	verb, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch strings.ToLower(verb) {
	case "quit", "exit", "q":
		return true
	case "next", "n":
		err = sess.Next()
	case "prev", "p":
		err = sess.Prev()
	case "goto":
		var n int
		if n, err = strconv.Atoi(arg); err == nil {
			err = sess.GoTo(n - 1)
		}
	case "pause":
		sess.Pause()
	case "resume", "r":
		err = sess.Resume()
	case "hide":
		sess.VisibilityHidden()
	case "show":
		sess.VisibilityVisible()
	case "doubt", "?":
		var d model.Doubt
		if d, err = sess.RaiseDoubt(arg); err == nil {
			fmt.Fprintf(out, "  doubt %s recorded at step %d; playback paused\n", d.ID, d.Context.StepNumber)
		}
	case "retry":
		err = sess.RetryDoubt(ctx, arg)
	case "confirm":
		err = sess.ConfirmUnderstanding(arg)
	case "answer":
		var n int
		var correct bool
		if n, err = strconv.Atoi(arg); err == nil {
			if correct, err = sess.AnswerQuiz(n - 1); err == nil && correct {
				fmt.Fprintln(out, "  correct!")
			} else if err == nil {
				fmt.Fprintln(out, "  not quite; review the explanation above")
			}
		}
	case "dismiss":
		sess.HideQuiz()
	case "doubts":
		for _, d := range sess.Doubts() {
			fmt.Fprintf(out, "  %s [%s] step %d: %s\n", d.ID, d.Status, d.Context.StepNumber, d.Question)
			if d.Resolution != nil {
				fmt.Fprintf(out, "      %s\n", d.Resolution.Explanation)
				for _, ex := range d.Resolution.Examples {
					fmt.Fprintf(out, "      e.g. %s\n", ex)
				}
			}
		}
	default:
		fmt.Fprintln(out, playHelp)
	}

	switch {
	case err == nil:
	case errors.Is(err, generate.ErrDisabled):
		fmt.Fprintln(out, "  no generation backend configured (set TUTOR_GEN_PROVIDER)")
	default:
		fmt.Fprintf(out, "  error: %v\n", err)
	}
	return false
}
