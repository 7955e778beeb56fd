package leadgen

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/monitoring"
)

// ManualLead is a lead typed in by a user. Company name and phone are
// required; ProcessManual reports leads missing either one.
type ManualLead struct {
	CompanyName string `json:"company_name" yaml:"company_name"`
	Phone       string `json:"phone" yaml:"phone"`
	Email       string `json:"email,omitempty" yaml:"email" validate:"omitempty,email"`
	Website     string `json:"website,omitempty" yaml:"website"`
	Address     string `json:"address,omitempty" yaml:"address"`
	City        string `json:"city,omitempty" yaml:"city"`
	State       string `json:"state,omitempty" yaml:"state"`
	Category    string `json:"category,omitempty" yaml:"category"`
}

// ManualFailure reports a manual lead that was not saved.
type ManualFailure struct {
	Index       int    `json:"index"`
	CompanyName string `json:"company_name"`
	Error       string `json:"error"`
}

func (m ManualLead) input() LeadInput {
	in := LeadInput{
		CompanyName: strings.TrimSpace(m.CompanyName),
		Phone:       strings.TrimSpace(m.Phone),
		Email:       strings.TrimSpace(m.Email),
		Website:     strings.TrimSpace(m.Website),
		Address:     strings.TrimSpace(m.Address),
		City:        strings.TrimSpace(m.City),
		State:       strings.TrimSpace(m.State),
		Category:    strings.TrimSpace(m.Category),
	}
	if in.City == "" || in.State == "" {
		city, state := ParseAddress(in.Address)
		if in.City == "" {
			in.City = city
		}
		if in.State == "" {
			in.State = state
		}
	}
	return in
}

// ProcessManual enriches, scores and saves manual leads in order. Search,
// detail and duplicate checks are skipped. Leads that are missing a name or
// phone, or that fail to persist, are reported as failures.
func (o *Orchestrator) ProcessManual(ctx context.Context, ownerID string, leads []ManualLead) ([]EnrichedLead, []ManualFailure) {
	log := zap.L().With(zap.String("owner_id", ownerID))
	saved := make([]EnrichedLead, 0, len(leads))
	var failures []ManualFailure

	for i, m := range leads {
		in := m.input()
		switch {
		case in.CompanyName == "":
			failures = append(failures, ManualFailure{Index: i, Error: "company_name is required"})
			continue
		case NormalizePhone(in.Phone) == "":
			failures = append(failures, ManualFailure{Index: i, CompanyName: in.CompanyName, Error: "phone is required"})
			continue
		}

		out := o.processor.Process(ctx, ownerID, "", in, ProvenanceManualEntry)
		if out.Err != nil {
			monitoring.RecordOutcome(monitoring.OutcomePersistFailed)
			failures = append(failures, ManualFailure{Index: i, CompanyName: in.CompanyName, Error: out.Err.Error()})
			continue
		}
		monitoring.RecordOutcome(monitoring.OutcomePersisted)
		saved = append(saved, *out.Lead)
	}

	log.Info("manual leads processed", zap.Int("saved", len(saved)), zap.Int("failed", len(failures)))
	return saved, failures
}
