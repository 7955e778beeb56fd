package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/leadgen"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one lead generation pass and print its events",
	Long:  "Runs the pipeline for one owner and prints each event as a JSON line. Empty --industry or --location are filled from the owner's lead sources.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		owner, _ := cmd.Flags().GetString("owner")
		industry, _ := cmd.Flags().GetString("industry")
		location, _ := cmd.Flags().GetString("location")
		limit, _ := cmd.Flags().GetInt("limit")
		if err := requireOwner(owner); err != nil {
			return err
		}

		e, err := initEnv(ctx, "generate")
		if err != nil {
			return err
		}
		defer e.Close()

		plan, err := e.Orchestrator.Prepare(ctx, leadgen.GenerateRequest{
			OwnerID:  owner,
			Industry: industry,
			Location: location,
			Limit:    limit,
		})
		if err != nil {
			return err
		}

		s := e.Orchestrator.Start(ctx, plan)
		go func() {
			// The run keeps going after an interrupt; only printing stops.
			<-ctx.Done()
			s.Detach()
		}()

		for ev := range s.Events() {
			if err := writeEvent(os.Stdout, ev); err != nil {
				zap.L().Warn("write event", zap.Error(err))
				s.Detach()
				break
			}
		}

		sum, err := s.Wait()
		if err != nil {
			return eris.Wrapf(err, "generate: run %s", plan.RunID)
		}
		fmt.Fprintf(os.Stderr, "Run %s: %d generated, %d duplicates, %d failed in %.1fs\n",
			plan.RunID, sum.LeadsGenerated, sum.SkippedDuplicates, sum.FailedLeads, sum.DurationSeconds)
		return nil
	},
}

// eventLine is the JSON-lines rendering of a run event.
type eventLine struct {
	Event leadgen.EventType `json:"event"`
	Data  json.RawMessage   `json:"data"`
}

func writeEvent(w io.Writer, ev leadgen.Event) error {
	data, err := ev.JSON()
	if err != nil {
		return err
	}
	b, err := json.Marshal(eventLine{Event: ev.Type, Data: data})
	if err != nil {
		return eris.Wrap(err, "encode event line")
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

func init() {
	generateCmd.Flags().String("owner", "", "owner ID (required)")
	generateCmd.Flags().String("industry", "", "target industry")
	generateCmd.Flags().String("location", "", "target city")
	generateCmd.Flags().Int("limit", 0, "maximum leads to generate (default from config)")
	rootCmd.AddCommand(generateCmd)
}
