package leadgen

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// EventType names a streamed run event.
type EventType string

// Run events in the order they can appear.
const (
	EventStart    EventType = "start"
	EventLead     EventType = "lead"
	EventProgress EventType = "progress"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// Event is one message on a run stream. Data is one of the *Data types or
// Summary.
type Event struct {
	Type EventType
	Data any
}

// JSON encodes the event payload.
func (e Event) JSON() ([]byte, error) {
	b, err := json.Marshal(e.Data)
	if err != nil {
		return nil, eris.Wrapf(err, "leadgen: encode %s event", e.Type)
	}
	return b, nil
}

// StartData opens a stream once the qualified candidates are known.
type StartData struct {
	Total    int    `json:"total"`
	Industry string `json:"industry"`
	Location string `json:"location"`
}

// LeadData carries a persisted lead.
type LeadData struct {
	Current int           `json:"current"`
	Total   int           `json:"total"`
	Lead    *EnrichedLead `json:"lead"`
}

// ProgressData reports a candidate that was skipped or failed.
type ProgressData struct {
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	Skipped     bool   `json:"skipped,omitempty"`
	Failed      bool   `json:"failed,omitempty"`
	CompanyName string `json:"company_name"`
}

// ErrorData reports a fatal mid-run failure.
type ErrorData struct {
	Message string `json:"message"`
}

// Summary is the payload of the done event and the result of a
// non-streaming run.
type Summary struct {
	RunID             string  `json:"-"`
	LeadsGenerated    int     `json:"leads_generated"`
	SkippedDuplicates int     `json:"skipped_duplicates"`
	FailedLeads       int     `json:"failed_leads"`
	TotalProcessed    int     `json:"total_processed"`
	DurationSeconds   float64 `json:"duration_seconds"`
}
