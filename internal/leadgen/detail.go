package leadgen

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/monitoring"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/google"
)

// DetailResult is the outcome of resolving one candidate.
type DetailResult struct {
	Details *PlaceDetails
	// Qualified is false when the place has no usable phone number.
	Qualified bool
	Calls     int
}

// DetailFetcher resolves contact fields for candidates.
type DetailFetcher struct {
	client google.Client
	cfg    PlacesConfig
}

// NewDetailFetcher creates a fetcher over client.
func NewDetailFetcher(client google.Client, cfg PlacesConfig) *DetailFetcher {
	return &DetailFetcher{client: client, cfg: cfg}
}

// Fetch loads details for c. A place without a phone is returned with
// Qualified false and no error; it is never retried.
func (f *DetailFetcher) Fetch(ctx context.Context, c Candidate) (DetailResult, error) {
	var res DetailResult
	d, err := resilience.DoVal(ctx, f.cfg.retry("place_details"), func(ctx context.Context) (*google.PlaceDetails, error) {
		if err := f.cfg.wait(ctx); err != nil {
			return nil, err
		}
		res.Calls++
		d, err := f.client.PlaceDetails(ctx, c.PlaceID)
		monitoring.RecordProviderCall("google", "place_details", err)
		return d, err
	})
	if err != nil {
		return res, eris.Wrapf(err, "leadgen: details for %s", c.PlaceID)
	}

	res.Details = detailsFromPlace(c, d)
	res.Qualified = NormalizePhone(res.Details.Phone) != ""
	return res, nil
}

func detailsFromPlace(c Candidate, d *google.PlaceDetails) *PlaceDetails {
	out := &PlaceDetails{
		Phone:       d.Phone(),
		Website:     d.WebsiteURI,
		Address:     d.FormattedAddress,
		Rating:      d.Rating,
		ReviewCount: d.UserRatingCount,
	}
	if out.Address == "" {
		out.Address = c.Address
	}
	if d.Location != nil {
		out.Location = &LatLng{Latitude: d.Location.Latitude, Longitude: d.Location.Longitude}
	} else if c.Location != (LatLng{}) {
		loc := c.Location
		out.Location = &loc
	}
	return out
}
