package leadgen

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

var allowedTransitions = map[LeadStatus][]LeadStatus{
	LeadStatusNew:       {LeadStatusContacted},
	LeadStatusContacted: {LeadStatusContacted, LeadStatusQualified, LeadStatusRejected},
	LeadStatusQualified: {LeadStatusConverted},
}

// TransitionStatus reports whether a lead may move from one status to
// another. contacted -> contacted is allowed so repeat contacts are logged.
func TransitionStatus(from, to LeadStatus) error {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return nil
		}
	}
	return eris.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
}

// UpdateLeadStatus loads an owner's lead, applies the transition and saves
// it. Moving to contacted bumps the contact counter.
func UpdateLeadStatus(ctx context.Context, store LeadStore, ownerID, leadID string, to LeadStatus, now time.Time) (*EnrichedLead, error) {
	lead, err := store.GetLead(ctx, ownerID, leadID)
	if err != nil {
		return nil, err
	}
	if err := TransitionStatus(lead.Status, to); err != nil {
		return nil, err
	}

	lead.Status = to
	lead.UpdatedAt = now
	if to == LeadStatusContacted {
		lead.ContactCount++
		lead.LastContactedAt = &now
	}
	if err := store.UpdateLeadStatus(ctx, lead); err != nil {
		return nil, eris.Wrapf(err, "leadgen: update status of %s", leadID)
	}
	return lead, nil
}
