package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export snapshots as JSON",
		Long:  "Export snapshots, with their save times, as a JSON array. Filter by key prefix with -p.",
		Run:   runExport,
	}

	cmd.Flags().StringP("prefix", "p", "", "Filter by key prefix")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	prefix, _ := cmd.Flags().GetString("prefix")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	snaps, err := s.ExportAll(cmd.Context(), prefix)
	if err != nil {
		exitErr("export", err)
	}

	b, _ := json.MarshalIndent(snaps, "", "  ")
	fmt.Println(string(b))
}
