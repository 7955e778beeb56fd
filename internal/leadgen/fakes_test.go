package leadgen

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sells-group/leadgen-cli/pkg/google"
)

// memStore is an in-memory Store for pipeline tests.
type memStore struct {
	mu        sync.Mutex
	cursors   map[string]SearchCursor
	districts map[string][]District
	sources   map[string][]LeadSource
	leads     []EnrichedLead
	runs      map[string]RunLog
	usage     map[string]int

	insertErr func(*EnrichedLead) error
	lookupErr error
}

func newMemStore() *memStore {
	return &memStore{
		cursors:   map[string]SearchCursor{},
		districts: map[string][]District{},
		sources:   map[string][]LeadSource{},
		runs:      map[string]RunLog{},
		usage:     map[string]int{},
	}
}

func cursorID(owner, city, industry string) string { return owner + "|" + city + "|" + industry }

func (m *memStore) GetCursor(_ context.Context, owner, city, industry string) (*SearchCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cursors[cursorID(owner, city, industry)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memStore) UpsertCursor(_ context.Context, c SearchCursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[cursorID(c.OwnerID, c.City, c.Industry)] = c
	return nil
}

func (m *memStore) ListDistricts(_ context.Context, city string) ([]District, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.districts[strings.ToLower(city)], nil
}

func (m *memStore) UpsertDistricts(_ context.Context, ds []District) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range ds {
		key := strings.ToLower(d.City)
		m.districts[key] = append(m.districts[key], d)
	}
	return int64(len(ds)), nil
}

func (m *memStore) ListLeadSources(_ context.Context, owner string) ([]LeadSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LeadSource(nil), m.sources[owner]...), nil
}

func (m *memStore) RecordSourceUsage(_ context.Context, owner, id string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage[owner+"|"+id]++
	return nil
}

func (m *memStore) UpsertLeadSource(_ context.Context, src LeadSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[src.OwnerID] = append(m.sources[src.OwnerID], src)
	return nil
}

func (m *memStore) LeadExistsByPlaceID(_ context.Context, owner, placeID string) (bool, error) {
	return m.exists(owner, func(l EnrichedLead) bool { return l.PlaceID == placeID })
}

func (m *memStore) LeadExistsByPhone(_ context.Context, owner, normalized, tail string) (bool, error) {
	return m.exists(owner, func(l EnrichedLead) bool {
		return l.NormalizedPhone == normalized || (tail != "" && PhoneTail(l.NormalizedPhone) == tail)
	})
}

func (m *memStore) LeadExistsByName(_ context.Context, owner, key string) (bool, error) {
	return m.exists(owner, func(l EnrichedLead) bool { return NameKey(l.CompanyName) == key })
}

func (m *memStore) exists(owner string, match func(EnrichedLead) bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return false, m.lookupErr
	}
	for _, l := range m.leads {
		if l.OwnerID == owner && match(l) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) InsertLead(_ context.Context, lead *EnrichedLead) error {
	if m.insertErr != nil {
		if err := m.insertErr(lead); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads = append(m.leads, *lead)
	return nil
}

func (m *memStore) GetLead(_ context.Context, owner, id string) (*EnrichedLead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.leads {
		if l.OwnerID == owner && l.ID == id {
			return &l, nil
		}
	}
	return nil, ErrLeadNotFound
}

func (m *memStore) ListLeads(_ context.Context, owner string, f LeadFilter) ([]EnrichedLead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EnrichedLead
	for _, l := range m.leads {
		if l.OwnerID == owner && (f.Status == "" || l.Status == f.Status) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) UpdateLeadStatus(_ context.Context, lead *EnrichedLead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.leads {
		if m.leads[i].ID == lead.ID && m.leads[i].OwnerID == lead.OwnerID {
			m.leads[i] = *lead
			return nil
		}
	}
	return ErrLeadNotFound
}

func (m *memStore) CreateRunLog(_ context.Context, r *RunLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = *r
	return nil
}

func (m *memStore) FinishRunLog(_ context.Context, r *RunLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = *r
	return nil
}

func (m *memStore) ListRunLogs(_ context.Context, owner string, _ int) ([]RunLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RunLog
	for _, r := range m.runs {
		if r.OwnerID == owner {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) leadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leads)
}

// fakePlaces serves scripted search pages and details.
type fakePlaces struct {
	mu       sync.Mutex
	pages    map[string][]google.SearchTextResponse // by query text
	details  map[string]*google.PlaceDetails
	failText map[string]bool
	queries  []google.SearchTextRequest
	detailed []string
}

func newFakePlaces() *fakePlaces {
	return &fakePlaces{
		pages:    map[string][]google.SearchTextResponse{},
		details:  map[string]*google.PlaceDetails{},
		failText: map[string]bool{},
	}
}

func (f *fakePlaces) SearchText(_ context.Context, req google.SearchTextRequest) (*google.SearchTextResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, req)
	if f.failText[req.TextQuery] {
		return nil, &google.StatusError{StatusCode: 503, Body: "unavailable"}
	}
	pages := f.pages[req.TextQuery]
	idx := 0
	if req.PageToken != "" {
		for i := range pages {
			if pages[i].NextPageToken == req.PageToken {
				idx = i + 1
			}
		}
	}
	if idx >= len(pages) {
		return &google.SearchTextResponse{}, nil
	}
	resp := pages[idx]
	return &resp, nil
}

func (f *fakePlaces) PlaceDetails(_ context.Context, id string) (*google.PlaceDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailed = append(f.detailed, id)
	d, ok := f.details[id]
	if !ok {
		return nil, &google.StatusError{StatusCode: 404, Body: "not found"}
	}
	return d, nil
}

func (f *fakePlaces) queryTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, q := range f.queries {
		out = append(out, q.TextQuery)
	}
	return out
}

// stubEnricher returns a fixed enrichment or error.
type stubEnricher struct {
	mu     sync.Mutex
	result Enrichment
	err    error
	errFor map[string]error
	calls  int
}

func (s *stubEnricher) Enrich(_ context.Context, in LeadInput) (Enrichment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.errFor[in.CompanyName]; err != nil {
		return Enrichment{}, err
	}
	if s.err != nil {
		return Enrichment{}, s.err
	}
	return s.result, nil
}

type stubScorer struct {
	mu     sync.Mutex
	result Score
	err    error
	calls  int
}

func (s *stubScorer) Score(_ context.Context, _ LeadInput, _ Enrichment) (Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return Score{}, s.err
	}
	return s.result, nil
}

var errBoom = errors.New("boom")
