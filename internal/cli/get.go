package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show a stored snapshot",
		Run:   runGet,
	}

	cmd.Flags().StringP("key", "k", "", "Snapshot key, e.g. pausedQuiz:fractions (required)")
	cmd.MarkFlagRequired("key")

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	key, _ := cmd.Flags().GetString("key")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	snap, err := s.Get(cmd.Context(), key)
	if err != nil {
		exitErr("get", err)
	}

	b, _ := json.MarshalIndent(snap, "", "  ")
	fmt.Println(string(b))
}
