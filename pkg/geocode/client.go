// Package geocode resolves locality names ("Mumbai", "Andheri, Mumbai") to
// coordinates with the Google Geocoding API, caching results.
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Client geocodes free-form locality queries.
type Client interface {
	Locate(ctx context.Context, query string) (*Result, error)
}

// Result holds the geocoding output. Matched is false when the provider
// found nothing; that is not an error.
type Result struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	FormattedAddress string  `json:"formatted_address,omitempty"`
	Quality          string  `json:"quality"` // "rooftop", "range", "centroid", "approximate"
	Matched          bool    `json:"matched"`
}

// Cache stores serialized results. internal/cache implementations satisfy it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithBaseURL overrides the Geocoding API endpoint.
func WithBaseURL(url string) Option {
	return func(g *geocoder) {
		g.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit caps requests per second.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRegion biases results toward a ccTLD region code such as "in".
func WithRegion(region string) Option {
	return func(g *geocoder) {
		g.region = region
	}
}

// WithCache enables result caching. Non-matches are cached too.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(g *geocoder) {
		g.cache = c
		g.cacheTTL = ttl
	}
}

type geocoder struct {
	apiKey     string
	baseURL    string
	region     string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      Cache
	cacheTTL   time.Duration
}

// NewClient creates a geocoding Client.
func NewClient(apiKey string, opts ...Option) Client {
	g := &geocoder{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Locate geocodes query, consulting the cache first when one is configured.
func (g *geocoder) Locate(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, eris.New("geocode: query is required")
	}

	key := cacheKey(query, g.region)
	if r, ok := g.checkCache(ctx, key); ok {
		return r, nil
	}

	r, err := g.geocodeGoogle(ctx, query)
	if err != nil {
		return nil, err
	}
	g.storeCache(ctx, key, r)
	return r, nil
}
