package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/cache"
	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/cost"
	"github.com/sells-group/leadgen-cli/internal/leadgen"
	"github.com/sells-group/leadgen-cli/internal/monitoring"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
	"github.com/sells-group/leadgen-cli/pkg/geocode"
	"github.com/sells-group/leadgen-cli/pkg/google"
	"github.com/sells-group/leadgen-cli/pkg/perplexity"
)

// env holds everything a command needs after initialization.
type env struct {
	Store        store.Store
	Cache        cache.Cache
	Orchestrator *leadgen.Orchestrator

	redis *redis.Client
}

// Close releases the store and the Redis connection.
func (e *env) Close() {
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			zap.L().Warn("close redis", zap.Error(err))
		}
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// initEnv validates config for mode and wires the store, cache and pipeline.
func initEnv(ctx context.Context, mode string) (*env, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	e := &env{Store: st}

	if cfg.Redis.URL != "" {
		rc, err := cache.DialRedis(ctx, cfg.Redis.URL)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.redis = rc
		e.Cache = cache.NewRedisCache(rc, "leadgen:")
	} else {
		e.Cache = cache.NewMemoryCache()
	}

	deps, err := buildDeps(cfg, st, e.Cache)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.Orchestrator = leadgen.NewOrchestrator(deps, leadgen.OptionsFromConfig(cfg))

	return e, nil
}

// buildDeps constructs the providers that have keys configured. Missing
// ones stay nil and the orchestrator reports them per run.
func buildDeps(c *config.Config, st leadgen.Store, kv cache.Cache) (leadgen.Deps, error) {
	deps := leadgen.Deps{
		Store:    st,
		Breakers: newBreakers(c.Circuit),
		Costs:    cost.NewCalculator(cost.RatesFromConfig(c.Pricing)),
	}

	if c.Leadgen.KeywordsFile != "" {
		kw, err := leadgen.LoadKeywordCatalog(c.Leadgen.KeywordsFile)
		if err != nil {
			return leadgen.Deps{}, err
		}
		deps.Keywords = kw
	}

	if c.Google.Key != "" {
		deps.Places = google.NewClient(c.Google.Key, google.WithBaseURL(c.Google.PlacesBaseURL))

		opts := []geocode.Option{geocode.WithRegion(c.Google.GeocodeRegion)}
		if c.Google.GeocodeBaseURL != "" {
			opts = append(opts, geocode.WithBaseURL(c.Google.GeocodeBaseURL))
		}
		if kv != nil {
			ttl := time.Duration(c.Redis.GeocodeTTLHours) * time.Hour
			opts = append(opts, geocode.WithCache(kv, ttl))
		}
		deps.Geocoder = geocode.NewClient(c.Google.Key, opts...)
	}

	if c.Anthropic.Key != "" {
		deps.Enricher = leadgen.NewClaudeEnricher(anthropic.NewClient(c.Anthropic.Key), c.Anthropic.Model, c.Anthropic.MaxTokens)
	}

	if c.Perplexity.Key != "" {
		pc := perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model),
		)
		deps.Scorer = leadgen.NewPerplexityScorer(pc)
	}

	if deps.Places == nil || deps.Enricher == nil || deps.Scorer == nil {
		zap.L().Warn("provider keys missing; generation runs will be rejected",
			zap.Bool("google", deps.Places != nil),
			zap.Bool("anthropic", deps.Enricher != nil),
			zap.Bool("perplexity", deps.Scorer != nil),
		)
	}

	return deps, nil
}

// newBreakers builds the per-service breakers and publishes their state.
func newBreakers(c config.CircuitConfig) *resilience.ServiceBreakers {
	cbCfg := resilience.CircuitFromSettings(c.FailureThreshold, c.ResetTimeoutSecs)
	cbCfg.OnStateChange = func(name string, from, to resilience.CircuitState) {
		monitoring.SetBreakerState(name, int(to))
		zap.L().Warn("circuit breaker state change",
			zap.String("service", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	return resilience.NewServiceBreakers(cbCfg)
}

// requireOwner returns the --owner flag value or an error naming it.
func requireOwner(owner string) error {
	if owner == "" {
		return eris.New("--owner is required")
	}
	return nil
}
