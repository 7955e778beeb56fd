package leadgen

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen-cli/internal/monitoring"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/google"
)

// searchPageSize is the largest page the text search endpoint returns.
const searchPageSize = 20

// PlacesConfig tunes how the pipeline talks to Google Places.
type PlacesConfig struct {
	// MaxPages bounds the continuation pages fetched per query. Default: 3.
	MaxPages int
	// PageTokenDelay is waited before a continuation token is used.
	PageTokenDelay time.Duration
	// Retry applies to every search and details call.
	Retry resilience.RetryConfig
	// Limiter paces calls across a run. Nil disables pacing.
	Limiter *rate.Limiter
}

func (c PlacesConfig) retry(operation string) resilience.RetryConfig {
	r := c.Retry
	r.ShouldRetry = resilience.RetryUnlessCanceled
	r.OnRetry = resilience.RetryLogger("google", operation)
	return r
}

func (c PlacesConfig) wait(ctx context.Context) error {
	if c.Limiter == nil {
		return nil
	}
	return c.Limiter.Wait(ctx)
}

// SearchQuery is one text search issued for a keyword.
type SearchQuery struct {
	Text         string
	Center       *LatLng
	RadiusMeters float64
	// MaxResults caps the candidates returned by this query.
	MaxResults int
}

// PlaceSearcher runs paged text searches and turns places into candidates.
type PlaceSearcher struct {
	client google.Client
	cfg    PlacesConfig
}

// NewPlaceSearcher creates a searcher over client.
func NewPlaceSearcher(client google.Client, cfg PlacesConfig) *PlaceSearcher {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}
	return &PlaceSearcher{client: client, cfg: cfg}
}

// Search returns up to q.MaxResults operational candidates not already in
// seen, adding each returned id to seen. It also reports how many HTTP calls
// were made. When a page fails after all retries the candidates gathered so
// far are returned together with the error.
func (s *PlaceSearcher) Search(ctx context.Context, q SearchQuery, seen map[string]struct{}) ([]Candidate, int, error) {
	if q.MaxResults <= 0 {
		return nil, 0, nil
	}

	req := google.SearchTextRequest{TextQuery: q.Text, PageSize: searchPageSize}
	if q.Center != nil {
		req.LocationBias = &google.LocationBias{Circle: &google.Circle{
			Center: google.LatLng{Latitude: q.Center.Latitude, Longitude: q.Center.Longitude},
			Radius: q.RadiusMeters,
		}}
	}

	var (
		out   []Candidate
		calls int
	)
	for page := 0; page < s.cfg.MaxPages; page++ {
		if page > 0 {
			// Continuation tokens are rejected until they propagate.
			if !resilience.Sleep(ctx, s.cfg.PageTokenDelay) {
				return out, calls, eris.Wrap(ctx.Err(), "leadgen: search canceled")
			}
		}

		resp, err := resilience.DoVal(ctx, s.cfg.retry("search_text"), func(ctx context.Context) (*google.SearchTextResponse, error) {
			if err := s.cfg.wait(ctx); err != nil {
				return nil, err
			}
			calls++
			resp, err := s.client.SearchText(ctx, req)
			monitoring.RecordProviderCall("google", "search_text", err)
			return resp, err
		})
		if err != nil {
			return out, calls, eris.Wrapf(err, "leadgen: search %q page %d", q.Text, page+1)
		}

		for _, p := range resp.Places {
			if !isOperational(p.BusinessStatus) || p.ID == "" {
				continue
			}
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, candidateFromPlace(p))
			if len(out) >= q.MaxResults {
				return out, calls, nil
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		req.PageToken = resp.NextPageToken
	}
	return out, calls, nil
}

// isOperational keeps only places explicitly reported as operational. A
// missing status is dropped along with closed ones.
func isOperational(status string) bool {
	return status == google.BusinessStatusOperational
}

func candidateFromPlace(p google.Place) Candidate {
	c := Candidate{
		PlaceID:     p.ID,
		Name:        p.DisplayName.Text,
		Category:    p.PrimaryType,
		Address:     p.FormattedAddress,
		Operational: true,
	}
	if p.Location != nil {
		c.Location = LatLng{Latitude: p.Location.Latitude, Longitude: p.Location.Longitude}
	}
	return c
}
