package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/tutor-engine/internal/countdown"
	"github.com/rcliao/tutor-engine/internal/model"
	"github.com/rcliao/tutor-engine/internal/quiz"
	"github.com/rcliao/tutor-engine/internal/resume"
)

func init() {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Timed quizzes that can be paused and resumed later",
	}

	run := &cobra.Command{
		Use:   "run <quiz-file>",
		Short: "Take a timed quiz",
		Long:  "Answer with the option number. Type pause to save and leave; running the same topic again resumes with the time spent away taken off the clock. Type restart or quit.",
		Args:  cobra.ExactArgs(1),
		Run:   runQuiz,
	}
	run.Flags().StringP("topic", "t", "", "Topic id (default: quiz file name)")
	run.Flags().IntP("minutes", "m", 10, "Time limit in minutes")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show a paused quiz and its remaining time",
		Run:   runQuizStatus,
	}
	status.Flags().StringP("topic", "t", "", "Topic id (required)")
	status.MarkFlagRequired("topic")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard a paused quiz",
		Run:   runQuizClear,
	}
	clearCmd.Flags().StringP("topic", "t", "", "Topic id (required)")
	clearCmd.MarkFlagRequired("topic")

	cmd.AddCommand(run, status, clearCmd)
	RootCmd.AddCommand(cmd)
}

func runQuiz(cmd *cobra.Command, args []string) {
	topic, _ := cmd.Flags().GetString("topic")
	minutes, _ := cmd.Flags().GetInt("minutes")

	q, err := quiz.Load(args[0])
	if err != nil {
		exitErr("load quiz", err)
	}
	if topic == "" {
		topic = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	}

	rs, closeResume := openSessionResume()
	defer closeResume()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	out := cmd.OutOrStdout()

	finished := make(chan quiz.Result, 1)
	sess, err := quiz.New(quiz.Params{
		TopicID:          topic,
		Quiz:             *q,
		TimeLimitMinutes: minutes,
		Resume:           rs,
		Logger:           log,
		OnFinish: func(r quiz.Result) {
			select {
			case finished <- r:
			default:
			}
		},
	})
	if err != nil {
		exitErr("quiz", err)
	}
	defer sess.Close()

	resumed, err := sess.Start(ctx)
	if err != nil {
		exitErr("start quiz", err)
	}
	if resumed {
		fmt.Fprintf(out, "Resuming %q with %s left.\n", q.Title, clockText(sess.Remaining()))
	} else {
		fmt.Fprintf(out, "%s: %d questions, %d minutes.\n", q.Title, len(q.Questions), minutes)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case r := <-finished:
			printResult(out, q, r)
			cancel()
		case <-ctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		lines := readLines(os.Stdin)
		for {
			if idx, qq, err := sess.Current(); err == nil {
				fmt.Fprintf(out, "\n[%s] Q%d. %s\n", clockText(sess.Remaining()), idx+1, qq.Question)
				for i, o := range qq.Options {
					fmt.Fprintf(out, "   %d) %s\n", i+1, o)
				}
			}
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				switch strings.ToLower(line) {
				case "quit", "q":
					sess.Finish(ctx)
					return nil
				case "pause":
					snap, err := sess.Pause(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Paused at question %d with %s left. Run again to resume.\n", snap.CurrentQuestionIndex+1, clockText(snap.RemainingSecondsAtPause))
					cancel()
					return nil
				case "restart":
					sess.Restart(ctx)
					continue
				}
				n, err := strconv.Atoi(line)
				if err != nil {
					fmt.Fprintln(out, "answer with an option number, or pause, restart, quit")
					continue
				}
				correct, err := sess.Answer(ctx, n-1)
				switch {
				case err != nil:
					fmt.Fprintf(out, "  %v\n", err)
				case correct:
					fmt.Fprintln(out, "  correct")
				default:
					fmt.Fprintln(out, "  wrong")
				}
			}
		}
	})
	if err := g.Wait(); err != nil {
		exitErr("quiz", err)
	}
}

func printResult(w io.Writer, q *model.Quiz, r quiz.Result) {
	if r.TimedOut {
		fmt.Fprintln(w, "\nTime is up.")
	}
	fmt.Fprintf(w, "Score: %d/%d\n", r.Score, r.Total)
	for _, wa := range r.Wrong {
		qq := q.Questions[wa.QuestionIndex]
		fmt.Fprintf(w, "  Q%d %s\n     you: %s, answer: %s\n", wa.QuestionIndex+1, qq.Question, qq.Options[wa.Selected], qq.Options[wa.Correct])
		if qq.Explanation != "" {
			fmt.Fprintf(w, "     %s\n", qq.Explanation)
		}
	}
}

func runQuizStatus(cmd *cobra.Command, args []string) {
	topic, _ := cmd.Flags().GetString("topic")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	var snap model.PausedQuizSnapshot
	if !openResume(s).Load(cmd.Context(), resume.QuizKey(topic), &snap) {
		fmt.Printf(`{"topic":%q,"paused":false}`+"\n", topic)
		return
	}

	status := struct {
		Topic            string `json:"topic"`
		Paused           bool   `json:"paused"`
		Question         int    `json:"question"`
		Score            int    `json:"score"`
		RemainingAtPause int    `json:"remainingAtPause"`
		RemainingNow     int    `json:"remainingNow"`
		PausedAt         string `json:"pausedAt"`
	}{
		Topic:            topic,
		Paused:           true,
		Question:         snap.CurrentQuestionIndex + 1,
		Score:            snap.Score,
		RemainingAtPause: snap.RemainingSecondsAtPause,
		RemainingNow:     countdown.Remaining(snap.RemainingSecondsAtPause, snap.PausedAt, time.Now()),
		PausedAt:         snap.PausedAt.Format(time.RFC3339),
	}
	b, _ := json.MarshalIndent(status, "", "  ")
	fmt.Println(string(b))
}

func runQuizClear(cmd *cobra.Command, args []string) {
	topic, _ := cmd.Flags().GetString("topic")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	openResume(s).Clear(cmd.Context(), resume.QuizKey(topic))
	fmt.Printf(`{"ok":true,"topic":%q}`+"\n", topic)
}

func clockText(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
