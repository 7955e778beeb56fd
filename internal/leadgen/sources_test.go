package leadgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestSelectLeadSource(t *testing.T) {
	t.Parallel()

	monday := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	require.Equal(t, time.Monday, monday.Weekday())

	tests := []struct {
		name    string
		sources []LeadSource
		wantID  string
		wantOK  bool
	}{
		{name: "none", wantOK: false},
		{
			name:    "inactive only",
			sources: []LeadSource{{ID: "a", Priority: 9}},
			wantOK:  false,
		},
		{
			name: "today's schedule beats priority",
			sources: []LeadSource{
				{ID: "high", Priority: 10, Active: true},
				{ID: "monday", Priority: 1, Active: true, DayOfWeek: intPtr(1)},
			},
			wantID: "monday", wantOK: true,
		},
		{
			name: "other weekday falls back to priority",
			sources: []LeadSource{
				{ID: "tuesday", Priority: 20, Active: true, DayOfWeek: intPtr(2)},
				{ID: "high", Priority: 10, Active: true},
			},
			wantID: "tuesday", wantOK: true,
		},
		{
			name: "inactive today source is ignored",
			sources: []LeadSource{
				{ID: "monday", Priority: 50, DayOfWeek: intPtr(1)},
				{ID: "low", Priority: 1, Active: true},
			},
			wantID: "low", wantOK: true,
		},
		{
			name: "tie goes to least used",
			sources: []LeadSource{
				{ID: "busy", Priority: 5, Active: true, UsageCount: 8},
				{ID: "fresh", Priority: 5, Active: true, UsageCount: 1},
			},
			wantID: "fresh", wantOK: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src, ok := SelectLeadSource(tt.sources, monday)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				require.NotNil(t, src)
				assert.Equal(t, tt.wantID, src.ID)
			}
		})
	}
}
