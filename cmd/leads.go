package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/leadgen"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect and update stored leads",
}

// -- leads list --

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an owner's leads, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		owner, _ := cmd.Flags().GetString("owner")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		if err := requireOwner(owner); err != nil {
			return err
		}
		if status != "" && !leadgen.LeadStatus(status).Valid() {
			return eris.Errorf("unknown status %q", status)
		}
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads, err := st.ListLeads(ctx, owner, leadgen.LeadFilter{
			Status: leadgen.LeadStatus(status),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return err
		}

		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}

		formatLeadsList(os.Stdout, leads)
		return nil
	},
}

// -- leads status --

var leadsStatusCmd = &cobra.Command{
	Use:   "status <lead-id> <status>",
	Short: "Move a lead to a new lifecycle status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		owner, _ := cmd.Flags().GetString("owner")
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

		lead, err := leadgen.UpdateLeadStatus(ctx, st, owner, args[0], leadgen.LeadStatus(args[1]), time.Now().UTC())
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "%s (%s) is now %s\n", lead.CompanyName, lead.ID, lead.Status)
		return nil
	},
}

func formatLeadsList(out io.Writer, leads []leadgen.EnrichedLead) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCOMPANY\tPHONE\tCITY\tSCORE\tPRIORITY\tSTATUS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-------\t-----\t----\t-----\t--------\t------\t-------")

	for _, l := range leads {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			truncateID(l.ID),
			truncate(l.CompanyName, 30),
			l.Phone,
			l.City,
			l.LeadScore,
			l.Priority,
			l.Status,
			l.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func init() {
	leadsListCmd.Flags().String("owner", "", "owner ID (required)")
	leadsListCmd.Flags().String("status", "", "filter by status")
	leadsListCmd.Flags().Int("limit", 50, "maximum leads to list")
	leadsListCmd.Flags().Int("offset", 0, "leads to skip")

	leadsStatusCmd.Flags().String("owner", "", "owner ID (required)")

	leadsCmd.AddCommand(leadsListCmd, leadsStatusCmd)
	rootCmd.AddCommand(leadsCmd)
}
