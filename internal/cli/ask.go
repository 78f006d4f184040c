package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rcliao/tutor-engine/internal/generate"
	"github.com/rcliao/tutor-engine/internal/lesson"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Resolve a single question with the generation backend",
		Long:  "Send a question, optionally with the context of a lesson step, to the configured backend and print the resolution.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAsk,
	}

	cmd.Flags().String("lesson", "", "Lesson file to take context from")
	cmd.Flags().IntP("step", "s", 1, "Step number the question is about (1-based)")

	RootCmd.AddCommand(cmd)
}

func runAsk(cmd *cobra.Command, args []string) {
	lessonPath, _ := cmd.Flags().GetString("lesson")
	step, _ := cmd.Flags().GetInt("step")
	question := strings.Join(args, " ")

	var lessonContext string
	if lessonPath != "" {
		l, err := lesson.Load(lessonPath)
		if err != nil {
			exitErr("load lesson", err)
		}
		lessonContext = lesson.Context(l, step-1, 0).String()
	}

	resolver, err := generate.New(cfg.Generate, log)
	if err != nil {
		exitErr("generation backend", err)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ResolveTimeout)
	defer cancel()

	res, err := resolver.Resolve(ctx, question, lessonContext)
	if err != nil {
		exitErr("ask", err)
	}

	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))
}
