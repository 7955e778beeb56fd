// Package cost attributes provider spend to generation runs.
package cost

import "github.com/sells-group/leadgen-cli/internal/config"

// Rates holds per-provider pricing in USD.
type Rates struct {
	Places     PlacesRate     `yaml:"places" mapstructure:"places"`
	Anthropic  ModelRate      `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityRate `yaml:"perplexity" mapstructure:"perplexity"`
}

// PlacesRate holds per-request Google pricing.
type PlacesRate struct {
	TextSearch float64 `yaml:"text_search" mapstructure:"text_search"`
	Details    float64 `yaml:"details" mapstructure:"details"`
	Geocode    float64 `yaml:"geocode" mapstructure:"geocode"`
}

// ModelRate holds token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// PerplexityRate holds Perplexity pricing.
type PerplexityRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// Usage counts billable provider work done by one run.
type Usage struct {
	SearchCalls       int
	DetailCalls       int
	GeocodeCalls      int
	InputTokens       int64
	OutputTokens      int64
	PerplexityQueries int
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.SearchCalls += other.SearchCalls
	u.DetailCalls += other.DetailCalls
	u.GeocodeCalls += other.GeocodeCalls
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.PerplexityQueries += other.PerplexityQueries
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost of the given token counts.
func (c *Calculator) Claude(input, output int64) float64 {
	return (float64(input)/1e6)*c.rates.Anthropic.Input +
		(float64(output)/1e6)*c.rates.Anthropic.Output
}

// PerplexityQuery returns the flat cost per Perplexity query.
func (c *Calculator) PerplexityQuery() float64 {
	return c.rates.Perplexity.PerQuery
}

// Places returns the cost of search, detail and geocode requests.
func (c *Calculator) Places(search, details, geocode int) float64 {
	return float64(search)*c.rates.Places.TextSearch +
		float64(details)*c.rates.Places.Details +
		float64(geocode)*c.rates.Places.Geocode
}

// RunCost totals the spend recorded in u.
func (c *Calculator) RunCost(u Usage) float64 {
	return c.Places(u.SearchCalls, u.DetailCalls, u.GeocodeCalls) +
		c.Claude(u.InputTokens, u.OutputTokens) +
		float64(u.PerplexityQueries)*c.PerplexityQuery()
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Places:     PlacesRate{TextSearch: 0.032, Details: 0.017, Geocode: 0.005},
		Anthropic:  ModelRate{Input: 1.00, Output: 5.00},
		Perplexity: PerplexityRate{PerQuery: 0.005},
	}
}

// RatesFromConfig maps the pricing section onto Rates.
func RatesFromConfig(p config.PricingConfig) Rates {
	return Rates{
		Places: PlacesRate{
			TextSearch: p.Google.TextSearch,
			Details:    p.Google.Details,
			Geocode:    p.Google.Geocode,
		},
		Anthropic:  ModelRate{Input: p.Anthropic.Input, Output: p.Anthropic.Output},
		Perplexity: PerplexityRate{PerQuery: p.Perplexity.PerQuery},
	}
}
