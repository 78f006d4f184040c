package cli

import (
	"fmt"
	"time"

	"github.com/rcliao/tutor-engine/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete stale snapshots",
		Long:  "Delete quiz snapshots older than 7 days and lesson resume pointers older than 24 hours. With --older-than, delete every snapshot under --prefix older than the given age (7d, 24h, 30m, 60s).",
		Run:   runPurge,
	}

	cmd.Flags().String("older-than", "", "Age cutoff, e.g. 7d")
	cmd.Flags().StringP("prefix", "p", "", "Key prefix the cutoff applies to")

	RootCmd.AddCommand(cmd)
}

func runPurge(cmd *cobra.Command, args []string) {
	olderThan, _ := cmd.Flags().GetString("older-than")
	prefix, _ := cmd.Flags().GetString("prefix")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	var n int
	if olderThan == "" {
		n, err = openResume(s).Purge(cmd.Context())
	} else {
		var age time.Duration
		if age, err = store.ParseTTL(olderThan); err != nil {
			exitErr("parse --older-than", err)
		}
		n, err = s.PurgeBefore(cmd.Context(), prefix, time.Now().Add(-age))
	}
	if err != nil {
		exitErr("purge", err)
	}

	fmt.Printf(`{"ok":true,"purged":%d}`+"\n", n)
}
