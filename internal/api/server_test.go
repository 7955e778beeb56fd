package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/auth"
	"github.com/sells-group/leadgen-cli/internal/leadgen"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/pkg/google"
	"github.com/sells-group/leadgen-cli/pkg/google/mocks"
)

const testToken = "test-token"

type stubEnricher struct{}

func (stubEnricher) Enrich(_ context.Context, _ leadgen.LeadInput) (leadgen.Enrichment, error) {
	return leadgen.Enrichment{
		PotentialNeeds: []string{"Shelf labels"},
		EstimatedValue: 20000,
		SuggestedPitch: "Custom shelf labels for your aisles",
		Insights:       "High footfall",
	}, nil
}

type stubScorer struct{}

func (stubScorer) Score(_ context.Context, _ leadgen.LeadInput, _ leadgen.Enrichment) (leadgen.Score, error) {
	return leadgen.Score{Score: 80, Priority: leadgen.PriorityHot, Confidence: leadgen.ConfidenceHigh}, nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("db down") }

type testAPI struct {
	store   *store.SQLiteStore
	places  *mocks.MockClient
	handler http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	places := mocks.NewMockClient(t)
	var found []google.Place
	for i := 1; i <= 3; i++ {
		found = append(found, google.Place{
			ID:             fmt.Sprintf("place-%d", i),
			DisplayName:    google.DisplayName{Text: fmt.Sprintf("Andheri Mart %d", i)},
			BusinessStatus: google.BusinessStatusOperational,
			Location:       &google.LatLng{Latitude: 19.11, Longitude: 72.83},
		})
	}
	places.On("SearchText", mock.Anything, mock.Anything).
		Return(&google.SearchTextResponse{Places: found}, nil).Maybe()
	places.On("PlaceDetails", mock.Anything, mock.Anything).
		Return(func(_ context.Context, id string) (*google.PlaceDetails, error) {
			return &google.PlaceDetails{
				ID:                       id,
				InternationalPhoneNumber: "+91 98200 0000" + id[len(id)-1:],
				FormattedAddress:         "Link Road, Andheri West, Mumbai, Maharashtra 400053, India",
			}, nil
		}).Maybe()

	orch := leadgen.NewOrchestrator(leadgen.Deps{
		Store:    st,
		Places:   places,
		Enricher: stubEnricher{},
		Scorer:   stubScorer{},
	}, leadgen.Options{
		Places: leadgen.PlacesConfig{
			MaxPages: 1,
			Retry:    resilience.RetryConfig{MaxAttempts: 1},
		},
	})

	srv := NewServer(orch, st, st, auth.NewStaticVerifier(map[string]string{testToken: "owner-1"}), Config{})
	return &testAPI{store: st, places: places, handler: srv.Router()}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

type sseFrame struct {
	Event string
	Data  string
}

func parseSSE(body string) []sseFrame {
	var frames []sseFrame
	for _, block := range strings.Split(body, "\n\n") {
		var f sseFrame
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				f.Event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				f.Data = strings.TrimPrefix(line, "data: ")
			}
		}
		if f.Event != "" {
			frames = append(frames, f)
		}
	}
	return frames
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	rr := a.do(t, http.MethodGet, "/health", nil, map[string]string{"Authorization": ""})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rr)["status"])
}

func TestHealth_Unavailable(t *testing.T) {
	srv := NewServer(nil, nil, failingPinger{}, nil, Config{})
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestAuth_Required(t *testing.T) {
	a := newTestAPI(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic " + testToken},
		{"unknown token", "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := a.do(t, http.MethodGet, "/v1/leads", nil, map[string]string{"Authorization": tt.header})
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Equal(t, "unauthorized", decode[map[string]string](t, rr)["error"])
		})
	}
}

func TestGenerate_Streams(t *testing.T) {
	a := newTestAPI(t)

	rr := a.do(t, http.MethodPost, "/v1/leads/generate",
		map[string]any{"targetIndustry": "retail", "targetLocation": "Mumbai", "limit": 2}, nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	assert.NotEmpty(t, rr.Header().Get("X-Run-Id"))

	frames := parseSSE(rr.Body.String())
	var types []string
	for _, f := range frames {
		types = append(types, f.Event)
	}
	assert.Equal(t, []string{"start", "lead", "lead", "done"}, types)

	assert.JSONEq(t, `{"total":2,"industry":"retail","location":"Mumbai"}`, frames[0].Data)

	var lead leadgen.LeadData
	require.NoError(t, json.Unmarshal([]byte(frames[1].Data), &lead))
	assert.Equal(t, 1, lead.Current)
	assert.Equal(t, 2, lead.Total)
	assert.Equal(t, "Andheri Mart 1", lead.Lead.CompanyName)
	assert.Equal(t, leadgen.PriorityHot, lead.Lead.Priority)

	var done map[string]any
	require.NoError(t, json.Unmarshal([]byte(frames[3].Data), &done))
	assert.EqualValues(t, 2, done["leads_generated"])
	assert.EqualValues(t, 0, done["skipped_duplicates"])
	assert.EqualValues(t, 2, done["total_processed"])

	runs, err := a.store.ListRunLogs(context.Background(), "owner-1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, leadgen.RunStatusCompleted, runs[0].Status)
}

func TestGenerate_ClientDisconnectFinishesRun(t *testing.T) {
	a := newTestAPI(t)
	ts := httptest.NewServer(a.handler)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/v1/leads/generate",
		strings.NewReader(`{"targetIndustry":"retail","targetLocation":"Mumbai","limit":3}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+testToken)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	runID := resp.Header.Get("X-Run-Id")
	require.NotEmpty(t, runID)

	// Hang up before reading any events.
	cancel()
	resp.Body.Close() //nolint:errcheck

	require.Eventually(t, func() bool {
		runs, err := a.store.ListRunLogs(context.Background(), "owner-1", 10)
		if err != nil || len(runs) != 1 {
			return false
		}
		return runs[0].Status == leadgen.RunStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	leads, err := a.store.ListLeads(context.Background(), "owner-1", leadgen.LeadFilter{})
	require.NoError(t, err)
	assert.Len(t, leads, 3)
}

func TestGenerate_JSONFallback(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		header map[string]string
	}{
		{"accept header", "/v1/leads/generate", map[string]string{"Accept": "application/json"}},
		{"query param", "/v1/leads/generate?stream=false", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAPI(t)
			rr := a.do(t, http.MethodPost, tt.path,
				map[string]any{"targetIndustry": "retail", "targetLocation": "Mumbai", "limit": 2}, tt.header)

			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
			body := decode[map[string]any](t, rr)
			assert.EqualValues(t, 2, body["leads_generated"])
			assert.NotEmpty(t, body["run_id"])
		})
	}
}

func TestGenerate_SecondRunSkipsDuplicates(t *testing.T) {
	a := newTestAPI(t)
	req := map[string]any{"targetIndustry": "retail", "targetLocation": "Mumbai", "limit": 2}
	hdr := map[string]string{"Accept": "application/json"}

	first := decode[map[string]any](t, a.do(t, http.MethodPost, "/v1/leads/generate", req, hdr))
	assert.EqualValues(t, 2, first["leads_generated"])

	second := decode[map[string]any](t, a.do(t, http.MethodPost, "/v1/leads/generate", req, hdr))
	assert.EqualValues(t, 0, second["leads_generated"])
	assert.EqualValues(t, 2, second["skipped_duplicates"])
}

func TestGenerate_MissingSource(t *testing.T) {
	a := newTestAPI(t)

	rr := a.do(t, http.MethodPost, "/v1/leads/generate", map[string]any{"limit": 5}, nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Contains(t, decode[map[string]string](t, rr)["error"], "industry and location are required")
}

func TestGenerate_MissingProvider(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	orch := leadgen.NewOrchestrator(leadgen.Deps{Store: st, Enricher: stubEnricher{}, Scorer: stubScorer{}}, leadgen.Options{})
	srv := NewServer(orch, st, st, auth.NewStaticVerifier(map[string]string{testToken: "owner-1"}), Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/leads/generate", strings.NewReader(`{"targetIndustry":"retail","targetLocation":"Mumbai"}`))
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "places API key is not configured")
}

func TestGenerate_InvalidBody(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/leads/generate", strings.NewReader(`{"limit":`))
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = a.do(t, http.MethodPost, "/v1/leads/generate", map[string]any{"limit": -1}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "limit is invalid", decode[map[string]string](t, rr)["error"])
}

func TestManual(t *testing.T) {
	a := newTestAPI(t)

	rr := a.do(t, http.MethodPost, "/v1/leads/manual", map[string]any{
		"leads": []map[string]string{
			{"company_name": "Kumar Provisions", "phone": "098200 11122", "address": "12 MG Road, Pune, Maharashtra 411001, India"},
			{"company_name": "No Phone Traders"},
		},
	}, nil)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[manualResponse](t, rr)
	require.Len(t, resp.Leads, 1)
	assert.Equal(t, leadgen.ProvenanceManualEntry, resp.Leads[0].Source)
	assert.Equal(t, "Pune", resp.Leads[0].City)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, 1, resp.Failed[0].Index)
	assert.Equal(t, "phone is required", resp.Failed[0].Error)
}

func TestManual_Validation(t *testing.T) {
	a := newTestAPI(t)

	rr := a.do(t, http.MethodPost, "/v1/leads/manual", map[string]any{"leads": []any{}}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = a.do(t, http.MethodPost, "/v1/leads/manual", map[string]any{
		"leads": []map[string]string{{"company_name": "A", "phone": "9820011122", "email": "not-an-email"}},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "leads[0].email is invalid", decode[map[string]string](t, rr)["error"])

	rr = a.do(t, http.MethodPost, "/v1/leads/manual", map[string]any{
		"leads": []map[string]string{
			{"company_name": "A", "phone": "9820011122", "email": "a@example.in"},
			{"company_name": "B", "phone": "9820011123", "email": "b@"},
		},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "leads[1].email is invalid", decode[map[string]string](t, rr)["error"])
}

func manualLead(t *testing.T, a *testAPI) leadgen.EnrichedLead {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/v1/leads/manual", map[string]any{
		"leads": []map[string]string{{"company_name": "Kumar Provisions", "phone": "9820011122"}},
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[manualResponse](t, rr)
	require.Len(t, resp.Leads, 1)
	return resp.Leads[0]
}

func TestListLeads(t *testing.T) {
	a := newTestAPI(t)
	lead := manualLead(t, a)

	rr := a.do(t, http.MethodGet, "/v1/leads?status=new&limit=10", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[map[string][]leadgen.EnrichedLead](t, rr)
	require.Len(t, body["leads"], 1)
	assert.Equal(t, lead.ID, body["leads"][0].ID)

	rr = a.do(t, http.MethodGet, "/v1/leads?status=contacted", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[map[string][]leadgen.EnrichedLead](t, rr)["leads"])

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/v1/leads?status=bogus", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/v1/leads?limit=abc", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/v1/leads?limit=1000", nil, nil).Code)
}

func TestUpdateStatus(t *testing.T) {
	a := newTestAPI(t)
	lead := manualLead(t, a)
	path := "/v1/leads/" + lead.ID + "/status"

	rr := a.do(t, http.MethodPatch, path, map[string]string{"status": "contacted"}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[leadgen.EnrichedLead](t, rr)
	assert.Equal(t, leadgen.LeadStatusContacted, updated.Status)
	assert.Equal(t, 1, updated.ContactCount)
	assert.NotNil(t, updated.LastContactedAt)

	rr = a.do(t, http.MethodPatch, path, map[string]string{"status": "new"}, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = a.do(t, http.MethodPatch, path, map[string]string{"status": "archived"}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decode[map[string]string](t, rr)["error"], "status must be one of")

	rr = a.do(t, http.MethodPatch, "/v1/leads/missing/status", map[string]string{"status": "contacted"}, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListRuns_Empty(t *testing.T) {
	a := newTestAPI(t)

	rr := a.do(t, http.MethodGet, "/v1/runs", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"runs":[]}`, rr.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.do(t, http.MethodGet, "/health", nil, nil)

	rr := a.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "leadgen_http_request_duration_seconds")
}

func TestWantsStream(t *testing.T) {
	tests := []struct {
		accept string
		query  string
		want   bool
	}{
		{"", "", true},
		{"text/event-stream", "", true},
		{"application/json", "", false},
		{"application/json", "stream=true", true},
		{"", "stream=false", false},
		{"", "stream=maybe", true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodPost, "/v1/leads/generate?"+tt.query, nil)
		if tt.accept != "" {
			r.Header.Set("Accept", tt.accept)
		}
		assert.Equal(t, tt.want, wantsStream(r), "accept=%q query=%q", tt.accept, tt.query)
	}
}
