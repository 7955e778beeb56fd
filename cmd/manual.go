package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadgen-cli/internal/leadgen"
)

var manualCmd = &cobra.Command{
	Use:   "manual",
	Short: "Enrich, score and save hand-entered leads from a YAML or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		owner, _ := cmd.Flags().GetString("owner")
		file, _ := cmd.Flags().GetString("file")
		if err := requireOwner(owner); err != nil {
			return err
		}

		leads, err := readManualFile(file)
		if err != nil {
			return err
		}

		e, err := initEnv(ctx, "manual")
		if err != nil {
			return err
		}
		defer e.Close()

		saved, failed := e.Orchestrator.ProcessManual(ctx, owner, leads)
		if failed == nil {
			failed = []leadgen.ManualFailure{}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{"leads": saved, "failed": failed}); err != nil {
			return eris.Wrap(err, "manual: encode result")
		}
		fmt.Fprintf(os.Stderr, "%d saved, %d failed\n", len(saved), len(failed))
		return nil
	},
}

// manualFile is the YAML layout accepted by --file.
type manualFile struct {
	Leads []leadgen.ManualLead `yaml:"leads"`
}

func readManualFile(path string) ([]leadgen.ManualLead, error) {
	if path == "" {
		return nil, eris.New("--file is required")
	}
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return readManualXLSX(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "manual: read file")
	}
	var f manualFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "manual: parse file")
	}
	if len(f.Leads) == 0 {
		return nil, eris.Errorf("manual: %s has no leads", path)
	}
	return f.Leads, nil
}

func init() {
	manualCmd.Flags().String("owner", "", "owner ID (required)")
	manualCmd.Flags().String("file", "", "YAML file with a leads list, or an .xlsx sheet with a header row (required)")
	rootCmd.AddCommand(manualCmd)
}
