package cli

import (
	"encoding/json"
	"fmt"

	"github.com/rcliao/tutor-engine/internal/lesson"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context <lesson-file>",
		Short: "Show the lesson context a doubt at a step would carry",
		Long:  "Pack the steps heard up to --step, newest first, into a token budget, as sent with a doubt.",
		Args:  cobra.ExactArgs(1),
		Run:   runContext,
	}

	cmd.Flags().IntP("step", "s", 1, "Step number the doubt is raised at (1-based)")
	cmd.Flags().IntP("budget", "b", lesson.DefaultContextBudget, "Max tokens in output")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	step, _ := cmd.Flags().GetInt("step")
	budget, _ := cmd.Flags().GetInt("budget")

	l, err := lesson.Load(args[0])
	if err != nil {
		exitErr("load lesson", err)
	}
	if step < 1 || step > len(l.Steps) {
		exitErr("context", fmt.Errorf("step %d out of range 1..%d", step, len(l.Steps)))
	}

	result := lesson.Context(l, step-1, budget)
	b, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(b))
}
