package main

import (
	"context"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadgen-cli/internal/leadgen"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load city districts and lead sources from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		file, _ := cmd.Flags().GetString("file")
		sf, err := readSeedFile(file)
		if err != nil {
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

		districts, sources, err := applySeed(ctx, st, sf)
		if err != nil {
			return err
		}

		zap.L().Info("seed complete",
			zap.Int64("districts", districts),
			zap.Int("lead_sources", sources),
		)
		return nil
	},
}

// seedDistrict is one district row in a seed file.
type seedDistrict struct {
	City         string  `yaml:"city" validate:"required"`
	Name         string  `yaml:"name" validate:"required"`
	Latitude     float64 `yaml:"latitude" validate:"latitude"`
	Longitude    float64 `yaml:"longitude" validate:"longitude"`
	RadiusMeters float64 `yaml:"radius_meters" validate:"gte=0"`
}

// seedSource is one lead-source row in a seed file. An empty ID gets a
// generated one.
type seedSource struct {
	ID        string `yaml:"id"`
	OwnerID   string `yaml:"owner_id" validate:"required"`
	Industry  string `yaml:"industry" validate:"required"`
	Location  string `yaml:"location" validate:"required"`
	DayOfWeek *int   `yaml:"day_of_week" validate:"omitempty,gte=0,lte=6"`
	Priority  int    `yaml:"priority"`
	Active    *bool  `yaml:"active"`
}

type seedFile struct {
	Districts   []seedDistrict `yaml:"districts" validate:"dive"`
	LeadSources []seedSource   `yaml:"lead_sources" validate:"dive"`
}

func readSeedFile(path string) (*seedFile, error) {
	if path == "" {
		return nil, eris.New("--file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "seed: read file")
	}
	return parseSeed(data)
}

func parseSeed(data []byte) (*seedFile, error) {
	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, eris.Wrap(err, "seed: parse file")
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&sf); err != nil {
		return nil, eris.Wrap(err, "seed: validate")
	}
	return &sf, nil
}

// seedStore is the slice of the store the seed command writes to.
type seedStore interface {
	UpsertDistricts(ctx context.Context, districts []leadgen.District) (int64, error)
	UpsertLeadSource(ctx context.Context, src leadgen.LeadSource) error
}

func applySeed(ctx context.Context, st seedStore, sf *seedFile) (int64, int, error) {
	var districts int64
	if len(sf.Districts) > 0 {
		rows := make([]leadgen.District, 0, len(sf.Districts))
		for _, d := range sf.Districts {
			rows = append(rows, leadgen.District{
				City:         strings.TrimSpace(d.City),
				Name:         strings.TrimSpace(d.Name),
				Latitude:     d.Latitude,
				Longitude:    d.Longitude,
				RadiusMeters: d.RadiusMeters,
			})
		}
		n, err := st.UpsertDistricts(ctx, rows)
		if err != nil {
			return 0, 0, err
		}
		districts = n
	}

	for _, s := range sf.LeadSources {
		src := leadgen.LeadSource{
			ID:        s.ID,
			OwnerID:   s.OwnerID,
			Industry:  strings.TrimSpace(s.Industry),
			Location:  strings.TrimSpace(s.Location),
			DayOfWeek: s.DayOfWeek,
			Priority:  s.Priority,
			Active:    s.Active == nil || *s.Active,
		}
		if src.ID == "" {
			src.ID = uuid.NewString()
		}
		if err := st.UpsertLeadSource(ctx, src); err != nil {
			return districts, 0, eris.Wrapf(err, "seed: lead source %s", src.ID)
		}
	}

	return districts, len(sf.LeadSources), nil
}

func init() {
	seedCmd.Flags().String("file", "", "YAML file with districts and lead_sources (required)")
	rootCmd.AddCommand(seedCmd)
}
