package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/leadgen"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent generation runs for an owner",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		owner, _ := cmd.Flags().GetString("owner")
		limit, _ := cmd.Flags().GetInt("limit")
		if err := requireOwner(owner); err != nil {
			return err
		}
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRunLogs(ctx, owner, limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func formatRunsList(out io.Writer, runs []leadgen.RunLog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tINDUSTRY\tLOCATION\tGENERATED\tDUPES\tFAILED\tCOST\tSTARTED")
	_, _ = fmt.Fprintln(w, "--\t------\t--------\t--------\t---------\t-----\t------\t----\t-------")

	for _, r := range runs {
		location := r.Location
		if r.District != "" {
			location = r.District + ", " + r.Location
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t$%.4f\t%s\n",
			truncateID(r.ID),
			r.Status,
			truncate(r.Industry, 24),
			truncate(location, 30),
			r.LeadsGenerated,
			r.SkippedDuplicates,
			r.FailedLeads,
			r.CostUSD,
			r.StartedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	runsCmd.Flags().String("owner", "", "owner ID (required)")
	runsCmd.Flags().Int("limit", 20, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)
}
