package cli

import (
	"encoding/json"
	"fmt"

	"github.com/rcliao/tutor-engine/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		Run:   runList,
	}

	cmd.Flags().StringP("prefix", "p", "", "Filter by key prefix, e.g. pausedQuiz:")
	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.Flags().Bool("keys-only", false, "Only output keys")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	prefix, _ := cmd.Flags().GetString("prefix")
	limit, _ := cmd.Flags().GetInt("limit")
	keysOnly, _ := cmd.Flags().GetBool("keys-only")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	snaps, err := s.List(cmd.Context(), store.ListParams{Prefix: prefix, Limit: limit})
	if err != nil {
		exitErr("list", err)
	}

	if keysOnly {
		for _, sn := range snaps {
			fmt.Println(sn.Key)
		}
		return
	}

	b, _ := json.MarshalIndent(snaps, "", "  ")
	fmt.Println(string(b))
}
