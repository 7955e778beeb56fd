package leadgen

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/cost"
	"github.com/sells-group/leadgen-cli/internal/monitoring"
	"github.com/sells-group/leadgen-cli/internal/resilience"
)

// Breaker names for the inference services.
const (
	ServiceEnrichment = "enrichment"
	ServiceScoring    = "scoring"
)

const defaultPitch = "We help local businesses stand out with custom product labels and branded " +
	"stickers. Can we share a few samples that match your brand?"

var (
	errNoEnricher = eris.New("enrichment service not configured")
	errNoScorer   = eris.New("scoring service not configured")
)

// Enrichment is the sales-oriented metadata produced for a lead.
type Enrichment struct {
	PotentialNeeds []string `json:"potential_needs"`
	EstimatedValue float64  `json:"estimated_value"`
	SuggestedPitch string   `json:"suggested_pitch"`
	Insights       string   `json:"insights"`

	Usage cost.Usage `json:"-"`
}

// DefaultEnrichment is substituted when the enrichment service fails.
func DefaultEnrichment() Enrichment {
	return Enrichment{
		PotentialNeeds: []string{"Product labels", "Branding stickers"},
		EstimatedValue: 15000,
		SuggestedPitch: defaultPitch,
		Insights:       "",
	}
}

// Score is the scoring service's verdict on a lead.
type Score struct {
	Score      int        `json:"score"`
	Priority   Priority   `json:"priority"`
	Confidence Confidence `json:"confidence"`

	Usage cost.Usage `json:"-"`
}

// DefaultScore is substituted when the scoring service fails.
func DefaultScore() Score {
	return Score{Score: 50, Priority: PriorityWarm, Confidence: ConfidenceMedium}
}

// LeadInput is the view of a lead handed to the inference services.
type LeadInput struct {
	PlaceID     string  `json:"place_id,omitempty"`
	CompanyName string  `json:"company_name"`
	Phone       string  `json:"phone"`
	Email       string  `json:"email,omitempty"`
	Website     string  `json:"website,omitempty"`
	Address     string  `json:"address,omitempty"`
	City        string  `json:"city,omitempty"`
	State       string  `json:"state,omitempty"`
	Category    string  `json:"category,omitempty"`
	Rating      float64 `json:"rating,omitempty"`
	ReviewCount int     `json:"review_count,omitempty"`
	Location    *LatLng `json:"location,omitempty"`
}

// NewLeadInput merges a search candidate with its resolved details.
func NewLeadInput(c Candidate, d *PlaceDetails) LeadInput {
	in := LeadInput{
		PlaceID:     c.PlaceID,
		CompanyName: c.Name,
		Category:    c.Category,
		Address:     c.Address,
	}
	if c.Location != (LatLng{}) {
		loc := c.Location
		in.Location = &loc
	}
	if d != nil {
		in.Phone = d.Phone
		in.Website = d.Website
		in.Rating = d.Rating
		in.ReviewCount = d.ReviewCount
		if d.Address != "" {
			in.Address = d.Address
		}
		if d.Location != nil {
			in.Location = d.Location
		}
	}
	in.City, in.State = ParseAddress(in.Address)
	return in
}

// Enricher produces sales metadata for a lead.
type Enricher interface {
	Enrich(ctx context.Context, in LeadInput) (Enrichment, error)
}

// Scorer rates a lead given its enrichment.
type Scorer interface {
	Score(ctx context.Context, in LeadInput, e Enrichment) (Score, error)
}

// Outcome is the result of processing one lead.
type Outcome struct {
	Lead               *EnrichedLead
	EnrichmentCalled   bool
	ScoringCalled      bool
	EnrichmentFallback bool
	ScoringFallback    bool
	Usage              cost.Usage
	// Err is set when the lead could not be persisted.
	Err error
}

// Processor enriches, scores and persists leads. Inference failures are
// replaced by defaults; only a persistence failure fails the lead.
type Processor struct {
	store        LeadStore
	enricher     Enricher
	scorer       Scorer
	breakers     *resilience.ServiceBreakers
	serviceDelay time.Duration
	now          func() time.Time
}

// NewProcessor creates a Processor. breakers may be nil.
func NewProcessor(store LeadStore, enricher Enricher, scorer Scorer, breakers *resilience.ServiceBreakers, serviceDelay time.Duration) *Processor {
	if breakers == nil {
		breakers = resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())
	}
	return &Processor{
		store:        store,
		enricher:     enricher,
		scorer:       scorer,
		breakers:     breakers,
		serviceDelay: serviceDelay,
		now:          time.Now,
	}
}

// Process runs in through enrichment, scoring and persistence.
func (p *Processor) Process(ctx context.Context, ownerID, runID string, in LeadInput, source Provenance) Outcome {
	log := zap.L().With(zap.String("owner_id", ownerID), zap.String("company", in.CompanyName))
	var out Outcome

	resilience.Sleep(ctx, p.serviceDelay)
	enrichment, err := resilience.ExecuteVal(ctx, p.breakers.Get(ServiceEnrichment), func(ctx context.Context) (Enrichment, error) {
		if p.enricher == nil {
			return Enrichment{}, errNoEnricher
		}
		out.EnrichmentCalled = true
		return p.enricher.Enrich(ctx, in)
	})
	if err != nil {
		log.Warn("enrichment failed, using defaults", zap.Error(err))
		monitoring.RecordFallback(ServiceEnrichment)
		out.EnrichmentFallback = true
		enrichment = DefaultEnrichment()
	}
	out.Usage.Add(enrichment.Usage)
	enrichment, filled := sanitizeEnrichment(enrichment)
	if filled && !out.EnrichmentFallback {
		log.Warn("enrichment incomplete, filled from defaults")
		monitoring.RecordFallback(ServiceEnrichment)
		out.EnrichmentFallback = true
	}

	resilience.Sleep(ctx, p.serviceDelay)
	score, err := resilience.ExecuteVal(ctx, p.breakers.Get(ServiceScoring), func(ctx context.Context) (Score, error) {
		if p.scorer == nil {
			return Score{}, errNoScorer
		}
		out.ScoringCalled = true
		return p.scorer.Score(ctx, in, enrichment)
	})
	if err != nil {
		log.Warn("scoring failed, using defaults", zap.Error(err))
		monitoring.RecordFallback(ServiceScoring)
		out.ScoringFallback = true
		score = DefaultScore()
	}
	out.Usage.Add(score.Usage)
	score = sanitizeScore(score)

	lead := buildLead(ownerID, runID, in, source, enrichment, score, p.now().UTC())
	if err := p.store.InsertLead(ctx, lead); err != nil {
		log.Error("persist lead failed", zap.Error(err))
		out.Err = eris.Wrapf(err, "leadgen: persist lead %q", in.CompanyName)
		return out
	}
	out.Lead = lead
	return out
}

func buildLead(ownerID, runID string, in LeadInput, source Provenance, e Enrichment, s Score, now time.Time) *EnrichedLead {
	lead := &EnrichedLead{
		ID:                  uuid.NewString(),
		OwnerID:             ownerID,
		RunID:               runID,
		PlaceID:             in.PlaceID,
		CompanyName:         strings.TrimSpace(in.CompanyName),
		Phone:               strings.TrimSpace(in.Phone),
		NormalizedPhone:     NormalizePhone(in.Phone),
		Email:               strings.TrimSpace(in.Email),
		Website:             in.Website,
		Address:             in.Address,
		City:                in.City,
		State:               in.State,
		Rating:              in.Rating,
		ReviewCount:         in.ReviewCount,
		Category:            in.Category,
		PotentialNeeds:      e.PotentialNeeds,
		EstimatedOrderValue: e.EstimatedValue,
		SuggestedPitch:      e.SuggestedPitch,
		AIInsights:          e.Insights,
		LeadScore:           s.Score,
		Priority:            s.Priority,
		Confidence:          s.Confidence,
		Source:              source,
		Status:              LeadStatusNew,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if in.Location != nil {
		lat, lng := in.Location.Latitude, in.Location.Longitude
		lead.Latitude, lead.Longitude = &lat, &lng
	}
	return lead
}

// sanitizeEnrichment fills missing fields from DefaultEnrichment and reports
// whether any were filled.
func sanitizeEnrichment(e Enrichment) (Enrichment, bool) {
	def := DefaultEnrichment()
	filled := false
	needs := e.PotentialNeeds[:0:0]
	for _, n := range e.PotentialNeeds {
		if n = strings.TrimSpace(n); n != "" {
			needs = append(needs, n)
		}
	}
	if len(needs) == 0 {
		needs = def.PotentialNeeds
		filled = true
	}
	e.PotentialNeeds = needs
	if e.EstimatedValue <= 0 {
		e.EstimatedValue = def.EstimatedValue
		filled = true
	}
	if strings.TrimSpace(e.SuggestedPitch) == "" {
		e.SuggestedPitch = def.SuggestedPitch
		filled = true
	}
	return e, filled
}

func sanitizeScore(s Score) Score {
	s.Score = min(max(s.Score, 0), 100)
	if !s.Priority.Valid() {
		s.Priority = priorityForScore(s.Score)
	}
	if !s.Confidence.Valid() {
		s.Confidence = ConfidenceMedium
	}
	return s
}

func priorityForScore(score int) Priority {
	switch {
	case score >= 75:
		return PriorityHot
	case score >= 45:
		return PriorityWarm
	default:
		return PriorityCold
	}
}
