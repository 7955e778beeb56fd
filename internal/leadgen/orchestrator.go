package leadgen

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/cost"
	"github.com/sells-group/leadgen-cli/internal/monitoring"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/geocode"
	"github.com/sells-group/leadgen-cli/pkg/google"
)

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Store    Store
	Places   google.Client
	Enricher Enricher
	Scorer   Scorer
	// Geocoder locates a city centre when the city has no districts. Optional.
	Geocoder geocode.Client
	// Keywords defaults to the built-in catalog.
	Keywords *KeywordCatalog
	Breakers *resilience.ServiceBreakers
	Costs    *cost.Calculator
}

// Options tune a run.
type Options struct {
	DefaultLimit       int
	MaxLimit           int
	OverfetchFactor    int
	DetailDelay        time.Duration
	ServiceDelay       time.Duration
	SearchRadiusMeters float64
	CityRadiusMeters   float64
	Places             PlacesConfig
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{
		DefaultLimit:       20,
		MaxLimit:           60,
		OverfetchFactor:    4,
		DetailDelay:        100 * time.Millisecond,
		ServiceDelay:       100 * time.Millisecond,
		SearchRadiusMeters: 5000,
		CityRadiusMeters:   15000,
		Places: PlacesConfig{
			MaxPages:       3,
			PageTokenDelay: 2 * time.Second,
			Retry:          resilience.RetryFromSettings(3, 1000, 8000),
		},
	}
}

// OptionsFromConfig builds Options from loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	lc := cfg.Leadgen
	opts := Options{
		DefaultLimit:       lc.DefaultLimit,
		MaxLimit:           lc.MaxLimit,
		OverfetchFactor:    lc.OverfetchFactor,
		DetailDelay:        lc.DetailDelay(),
		ServiceDelay:       lc.ServiceDelay(),
		SearchRadiusMeters: lc.SearchRadiusM,
		CityRadiusMeters:   lc.CityRadiusM,
		Places: PlacesConfig{
			MaxPages:       lc.MaxPages,
			PageTokenDelay: lc.PageTokenDelay(),
			Retry:          resilience.RetryFromSettings(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs),
		},
	}
	if lc.PlacesRateLimit > 0 {
		opts.Places.Limiter = rate.NewLimiter(rate.Limit(lc.PlacesRateLimit), 1)
	}
	return opts
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = def.DefaultLimit
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = def.MaxLimit
	}
	if o.DefaultLimit > o.MaxLimit {
		o.DefaultLimit = o.MaxLimit
	}
	if o.OverfetchFactor <= 0 {
		o.OverfetchFactor = def.OverfetchFactor
	}
	if o.SearchRadiusMeters <= 0 {
		o.SearchRadiusMeters = def.SearchRadiusMeters
	}
	if o.CityRadiusMeters <= 0 {
		o.CityRadiusMeters = def.CityRadiusMeters
	}
	return o
}

// GenerateRequest asks for one run. Empty Industry or Location is filled
// from the owner's lead sources.
type GenerateRequest struct {
	OwnerID  string
	Industry string
	Location string
	Limit    int
}

// Plan is a prepared run: everything resolved, nothing searched yet.
type Plan struct {
	RunID    string
	OwnerID  string
	Industry string
	Location string
	Limit    int

	Source        *LeadSource
	Keywords      []string
	District      *District
	DistrictCount int
	Center        *LatLng
	RadiusMeters  float64
	Rotation      Rotation
	Cursor        SearchCursor

	usage cost.Usage
}

// Keyword is the keyword the rotation starts from.
func (p *Plan) Keyword() string {
	return p.Keywords[p.Rotation.KeywordIndex]
}

// Orchestrator runs the generation pipeline. It is safe for concurrent use;
// each run keeps its own state.
type Orchestrator struct {
	deps      Deps
	opts      Options
	searcher  *PlaceSearcher
	fetcher   *DetailFetcher
	dedup     *DuplicateChecker
	processor *Processor
	now       func() time.Time

	// runs tracks producer goroutines so Drain can wait for them.
	runs sync.WaitGroup
}

// NewOrchestrator wires the pipeline stages over deps.
func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	if deps.Keywords == nil {
		deps.Keywords = DefaultKeywordCatalog()
	}
	if deps.Costs == nil {
		deps.Costs = cost.NewCalculator(cost.DefaultRates())
	}
	if deps.Breakers == nil {
		deps.Breakers = resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())
	}
	o := &Orchestrator{
		deps: deps,
		opts: opts,
		now:  time.Now,
	}
	if deps.Places != nil {
		o.searcher = NewPlaceSearcher(deps.Places, opts.Places)
		o.fetcher = NewDetailFetcher(deps.Places, opts.Places)
	}
	if deps.Store != nil {
		o.dedup = NewDuplicateChecker(deps.Store)
		o.processor = NewProcessor(deps.Store, deps.Enricher, deps.Scorer, deps.Breakers, opts.ServiceDelay)
	}
	return o
}

// ClampLimit applies the default and the server-side cap.
func (o *Orchestrator) ClampLimit(limit int) int {
	if limit <= 0 {
		return o.opts.DefaultLimit
	}
	return min(limit, o.opts.MaxLimit)
}

// Prepare resolves a request into a Plan. Every error it returns is a
// *ConfigError or a store failure; nothing has been searched yet.
func (o *Orchestrator) Prepare(ctx context.Context, req GenerateRequest) (*Plan, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, newConfigError(ConfigInvalidRequest, "owner is required")
	}
	if err := o.checkProviders(); err != nil {
		return nil, err
	}

	plan := &Plan{
		RunID:    uuid.NewString(),
		OwnerID:  req.OwnerID,
		Industry: strings.TrimSpace(req.Industry),
		Location: strings.TrimSpace(req.Location),
		Limit:    o.ClampLimit(req.Limit),
	}

	if plan.Industry == "" || plan.Location == "" {
		sources, err := o.deps.Store.ListLeadSources(ctx, req.OwnerID)
		if err != nil {
			return nil, eris.Wrap(err, "leadgen: list lead sources")
		}
		src, ok := SelectLeadSource(sources, o.now())
		if !ok {
			return nil, newConfigError(ConfigMissingSource,
				"industry and location are required when no active lead source is configured")
		}
		plan.Source = src
		if plan.Industry == "" {
			plan.Industry = src.Industry
		}
		if plan.Location == "" {
			plan.Location = src.Location
		}
	}

	plan.Keywords = o.deps.Keywords.Keywords(plan.Industry)

	districts, err := o.deps.Store.ListDistricts(ctx, plan.Location)
	if err != nil {
		return nil, eris.Wrapf(err, "leadgen: list districts for %s", plan.Location)
	}
	plan.DistrictCount = len(districts)

	cursorCity, cursorIndustry := cursorKeys(plan.Location, plan.Industry)
	cursor, err := o.deps.Store.GetCursor(ctx, req.OwnerID, cursorCity, cursorIndustry)
	if err != nil {
		return nil, eris.Wrap(err, "leadgen: load search cursor")
	}
	if cursor == nil {
		c := NewSearchCursor(req.OwnerID, cursorCity, cursorIndustry)
		cursor = &c
	}
	plan.Cursor = *cursor
	plan.Rotation = Rotate(plan.Cursor, len(districts), len(plan.Keywords))

	if plan.Rotation.DistrictIndex >= 0 {
		d := districts[plan.Rotation.DistrictIndex]
		plan.District = &d
		plan.Center = &LatLng{Latitude: d.Latitude, Longitude: d.Longitude}
		plan.RadiusMeters = d.RadiusMeters
		if plan.RadiusMeters <= 0 {
			plan.RadiusMeters = o.opts.SearchRadiusMeters
		}
	} else {
		o.locateCity(ctx, plan)
	}
	return plan, nil
}

func (o *Orchestrator) checkProviders() error {
	switch {
	case o.deps.Store == nil:
		return newConfigError(ConfigMissingProvider, "record store is not configured")
	case o.deps.Places == nil:
		return newConfigError(ConfigMissingProvider, "places API key is not configured")
	case o.deps.Enricher == nil:
		return newConfigError(ConfigMissingProvider, "enrichment service is not configured")
	case o.deps.Scorer == nil:
		return newConfigError(ConfigMissingProvider, "scoring service is not configured")
	}
	return nil
}

// locateCity biases the search to the city centre when the city has no
// districts. A geocoding failure leaves the search unbiased.
func (o *Orchestrator) locateCity(ctx context.Context, plan *Plan) {
	if o.deps.Geocoder == nil {
		return
	}
	plan.usage.GeocodeCalls++
	res, err := o.deps.Geocoder.Locate(ctx, plan.Location)
	monitoring.RecordProviderCall("google", "geocode", err)
	if err != nil {
		zap.L().Warn("geocode city failed, searching without location bias",
			zap.String("location", plan.Location), zap.Error(err))
		return
	}
	if !res.Matched {
		return
	}
	plan.Center = &LatLng{Latitude: res.Latitude, Longitude: res.Longitude}
	plan.RadiusMeters = o.opts.CityRadiusMeters
}

// Start launches the run described by plan and returns its stream. The run
// does not stop when ctx is canceled.
func (o *Orchestrator) Start(ctx context.Context, plan *Plan) *Stream {
	s := newStream()
	o.runs.Add(1)
	go func() {
		defer o.runs.Done()
		o.run(context.WithoutCancel(ctx), plan, s)
	}()
	return s
}

// Drain blocks until every started run has finished or ctx is done. Runs
// still going when ctx ends are left to the process exit.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "leadgen: drain runs")
	}
}

// Generate runs a request to completion without streaming.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) (Summary, error) {
	plan, err := o.Prepare(ctx, req)
	if err != nil {
		return Summary{}, err
	}
	s := o.Start(ctx, plan)
	s.Detach()
	return s.Wait()
}

type runState struct {
	plan  *Plan
	log   *RunLog
	usage cost.Usage
	start time.Time
}

func (o *Orchestrator) run(ctx context.Context, plan *Plan, s *Stream) {
	log := zap.L().With(
		zap.String("run_id", plan.RunID),
		zap.String("owner_id", plan.OwnerID),
		zap.String("industry", plan.Industry),
		zap.String("location", plan.Location),
	)
	st := &runState{plan: plan, usage: plan.usage, start: o.now()}
	st.log = &RunLog{
		ID:        plan.RunID,
		OwnerID:   plan.OwnerID,
		Status:    RunStatusRunning,
		Industry:  plan.Industry,
		Location:  plan.Location,
		Keyword:   plan.Keyword(),
		StartedAt: st.start.UTC(),
	}
	if plan.District != nil {
		st.log.District = plan.District.Name
	}

	if err := o.deps.Store.CreateRunLog(ctx, st.log); err != nil {
		log.Error("create run log failed", zap.Error(err))
		o.fail(ctx, st, s, eris.Wrap(err, "leadgen: create run log"), false)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("run panicked", zap.Any("panic", r), zap.Stack("stack"))
			o.fail(ctx, st, s, eris.Errorf("leadgen: unexpected failure: %v", r), true)
		}
	}()

	log.Info("run started",
		zap.String("keyword", plan.Keyword()),
		zap.String("district", st.log.District),
		zap.Int("limit", plan.Limit),
	)

	candidates := o.collectCandidates(ctx, st, log)
	qualified := o.qualify(ctx, st, candidates, log)

	total := len(qualified)
	s.emit(Event{Type: EventStart, Data: StartData{Total: total, Industry: plan.Industry, Location: plan.Location}})

	for i, in := range qualified {
		current := i + 1
		o.processOne(ctx, st, s, in, current, total, log)
		st.log.TotalProcessed = current
	}

	sum := o.complete(ctx, st, log)
	s.emit(Event{Type: EventDone, Data: sum})
	s.finish(sum, nil)
}

// collectCandidates searches keywords in rotation order until the
// over-fetch target is met or the keywords run out.
func (o *Orchestrator) collectCandidates(ctx context.Context, st *runState, log *zap.Logger) []Candidate {
	plan := st.plan
	target := plan.Limit * o.opts.OverfetchFactor
	seen := make(map[string]struct{})
	var candidates []Candidate

	for _, ki := range KeywordOrder(plan.Rotation.KeywordIndex, len(plan.Keywords)) {
		if len(candidates) >= target {
			break
		}
		q := SearchQuery{
			Text:         searchText(plan.Keywords[ki], plan.District, plan.Location),
			Center:       plan.Center,
			RadiusMeters: plan.RadiusMeters,
			MaxResults:   target - len(candidates),
		}
		found, calls, err := o.searcher.Search(ctx, q, seen)
		st.usage.SearchCalls += calls
		candidates = append(candidates, found...)
		if err != nil {
			log.Warn("keyword search failed, moving to next keyword",
				zap.String("query", q.Text), zap.Error(err))
		}
	}

	st.log.CandidatesFound = len(candidates)
	return candidates
}

func searchText(keyword string, d *District, location string) string {
	if d != nil {
		return fmt.Sprintf("%s in %s, %s", keyword, d.Name, location)
	}
	return fmt.Sprintf("%s in %s", keyword, location)
}

// qualify fetches details in search order until limit candidates with a
// phone number are found.
func (o *Orchestrator) qualify(ctx context.Context, st *runState, candidates []Candidate, log *zap.Logger) []LeadInput {
	var qualified []LeadInput
	for i, c := range candidates {
		if len(qualified) >= st.plan.Limit {
			break
		}
		if i > 0 {
			resilience.Sleep(ctx, o.opts.DetailDelay)
		}
		res, err := o.fetcher.Fetch(ctx, c)
		st.usage.DetailCalls += res.Calls
		if err != nil {
			log.Warn("detail fetch failed, skipping candidate",
				zap.String("place_id", c.PlaceID), zap.Error(err))
			continue
		}
		if !res.Qualified {
			monitoring.RecordOutcome(monitoring.OutcomeNoPhone)
			continue
		}
		in := NewLeadInput(c, res.Details)
		if in.City == "" {
			in.City = st.plan.Location
		}
		qualified = append(qualified, in)
	}
	return qualified
}

func (o *Orchestrator) processOne(ctx context.Context, st *runState, s *Stream, in LeadInput, current, total int, log *zap.Logger) {
	plan := st.plan
	progress := ProgressData{Current: current, Total: total, CompanyName: in.CompanyName}

	dup, err := o.dedup.IsDuplicate(ctx, plan.OwnerID, DuplicateProbe{
		PlaceID:     in.PlaceID,
		Phone:       in.Phone,
		CompanyName: in.CompanyName,
	})
	if err != nil {
		log.Error("duplicate check failed", zap.String("company", in.CompanyName), zap.Error(err))
		st.log.FailedLeads++
		monitoring.RecordOutcome(monitoring.OutcomePersistFailed)
		progress.Failed = true
		s.emit(Event{Type: EventProgress, Data: progress})
		return
	}
	if dup {
		st.log.SkippedDuplicates++
		monitoring.RecordOutcome(monitoring.OutcomeDuplicate)
		progress.Skipped = true
		s.emit(Event{Type: EventProgress, Data: progress})
		return
	}

	out := o.processor.Process(ctx, plan.OwnerID, plan.RunID, in, ProvenanceGoogleMaps)
	st.usage.Add(out.Usage)
	if out.EnrichmentCalled {
		st.log.EnrichmentCalls++
	}
	if out.ScoringCalled {
		st.log.ScoringCalls++
	}
	if out.Err != nil {
		st.log.FailedLeads++
		monitoring.RecordOutcome(monitoring.OutcomePersistFailed)
		progress.Failed = true
		s.emit(Event{Type: EventProgress, Data: progress})
		return
	}

	st.log.LeadsGenerated++
	monitoring.RecordOutcome(monitoring.OutcomePersisted)
	s.emit(Event{Type: EventLead, Data: LeadData{Current: current, Total: total, Lead: out.Lead}})
}

// complete persists the run log, the advanced cursor and source usage.
// Failures here are logged; the leads are already saved.
func (o *Orchestrator) complete(ctx context.Context, st *runState, log *zap.Logger) Summary {
	plan := st.plan
	now := o.now()
	o.finishLog(st, RunStatusCompleted, now)
	if err := o.deps.Store.FinishRunLog(ctx, st.log); err != nil {
		log.Error("finish run log failed", zap.Error(err))
	}

	cursor := plan.Cursor.Advance(plan.Rotation, plan.DistrictCount)
	cursor.UpdatedAt = now.UTC()
	if err := o.deps.Store.UpsertCursor(ctx, cursor); err != nil {
		log.Error("save search cursor failed", zap.Error(err))
	}
	if plan.Source != nil {
		if err := o.deps.Store.RecordSourceUsage(ctx, plan.OwnerID, plan.Source.ID, now.UTC()); err != nil {
			log.Error("record lead source usage failed", zap.Error(err))
		}
	}

	log.Info("run completed",
		zap.Int("leads_generated", st.log.LeadsGenerated),
		zap.Int("skipped_duplicates", st.log.SkippedDuplicates),
		zap.Int("failed_leads", st.log.FailedLeads),
		zap.Int("candidates_found", st.log.CandidatesFound),
		zap.Float64("cost_usd", st.log.CostUSD),
		zap.Float64("duration_seconds", st.log.DurationSeconds),
	)
	return summaryOf(st.log)
}

// fail ends the stream with an error event. Leads already persisted stay.
func (o *Orchestrator) fail(ctx context.Context, st *runState, s *Stream, err error, logCreated bool) {
	o.finishLog(st, RunStatusFailed, o.now())
	st.log.Error = err.Error()
	if logCreated {
		if ferr := o.deps.Store.FinishRunLog(ctx, st.log); ferr != nil {
			zap.L().Error("finish failed run log", zap.String("run_id", st.log.ID), zap.Error(ferr))
		}
	}
	s.emit(Event{Type: EventError, Data: ErrorData{Message: err.Error()}})
	s.finish(summaryOf(st.log), err)
}

func (o *Orchestrator) finishLog(st *runState, status RunStatus, at time.Time) {
	l := st.log
	l.SearchCalls = st.usage.SearchCalls
	l.DetailCalls = st.usage.DetailCalls
	l.CostUSD = o.deps.Costs.RunCost(st.usage)
	l.Finish(status, at.UTC())
	monitoring.RecordRun(string(l.Status), at.Sub(st.start))
}

func summaryOf(l *RunLog) Summary {
	return Summary{
		RunID:             l.ID,
		LeadsGenerated:    l.LeadsGenerated,
		SkippedDuplicates: l.SkippedDuplicates,
		FailedLeads:       l.FailedLeads,
		TotalProcessed:    l.TotalProcessed,
		DurationSeconds:   l.DurationSeconds,
	}
}

// cursorKeys normalizes the cursor's city and industry so "Mumbai" and
// " mumbai" share a cursor.
func cursorKeys(location, industry string) (city, ind string) {
	return strings.ToLower(strings.Join(strings.Fields(location), " ")), industryKey(industry)
}
