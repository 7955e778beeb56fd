package leadgen

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/google"
	"github.com/sells-group/leadgen-cli/pkg/google/mocks"
)

func fastPlaces() PlacesConfig {
	return PlacesConfig{
		MaxPages: 3,
		Retry:    resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
	}
}

func place(id, name, status string) google.Place {
	return google.Place{
		ID:             id,
		DisplayName:    google.DisplayName{Text: name},
		BusinessStatus: status,
		Location:       &google.LatLng{Latitude: 19.1, Longitude: 72.8},
	}
}

func TestSearch_FiltersAndDedups(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SearchText", mock.Anything, mock.MatchedBy(func(r google.SearchTextRequest) bool {
		return r.PageToken == ""
	})).Return(&google.SearchTextResponse{
		Places: []google.Place{
			place("p1", "Open Shop", google.BusinessStatusOperational),
			place("p2", "Closed Shop", "CLOSED_PERMANENTLY"),
			place("p3", "Seen Before", google.BusinessStatusOperational),
			place("p4", "No Status", ""),
			place("p1", "Open Shop", google.BusinessStatusOperational),
		},
	}, nil).Once()

	s := NewPlaceSearcher(client, fastPlaces())
	seen := map[string]struct{}{"p3": {}}
	got, calls, err := s.Search(context.Background(), SearchQuery{
		Text:         "retail store in Andheri, Mumbai",
		Center:       &LatLng{Latitude: 19.11, Longitude: 72.83},
		RadiusMeters: 5000,
		MaxResults:   10,
	}, seen)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].PlaceID)
	assert.True(t, got[0].Operational)
	assert.Contains(t, seen, "p1")
	assert.NotContains(t, seen, "p2")
	assert.NotContains(t, seen, "p4", "a place without a status is not retained")
}

func TestSearch_PaginatesUpToMaxPages(t *testing.T) {
	client := mocks.NewMockClient(t)
	for i, token := range []string{"", "t1", "t2"} {
		next := []string{"t1", "t2", "t3"}[i]
		id := []string{"a", "b", "c"}[i]
		client.On("SearchText", mock.Anything, mock.MatchedBy(func(r google.SearchTextRequest) bool {
			return r.PageToken == token
		})).Return(&google.SearchTextResponse{
			Places:        []google.Place{place(id, id, google.BusinessStatusOperational)},
			NextPageToken: next,
		}, nil).Once()
	}

	s := NewPlaceSearcher(client, fastPlaces())
	got, calls, err := s.Search(context.Background(), SearchQuery{Text: "q", MaxResults: 50}, map[string]struct{}{})

	require.NoError(t, err)
	assert.Equal(t, 3, calls, "never follows a fourth page")
	assert.Len(t, got, 3)
}

func TestSearch_StopsAtMaxResults(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SearchText", mock.Anything, mock.Anything).Return(&google.SearchTextResponse{
		Places: []google.Place{
			place("a", "A", google.BusinessStatusOperational),
			place("b", "B", google.BusinessStatusOperational),
			place("c", "C", google.BusinessStatusOperational),
		},
		NextPageToken: "more",
	}, nil).Once()

	s := NewPlaceSearcher(client, fastPlaces())
	seen := map[string]struct{}{}
	got, calls, err := s.Search(context.Background(), SearchQuery{Text: "q", MaxResults: 2}, seen)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Len(t, got, 2)
	assert.NotContains(t, seen, "c")
}

func TestSearch_RetriesThenFails(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SearchText", mock.Anything, mock.Anything).
		Return(nil, &google.StatusError{StatusCode: 400, Body: "bad"}).Times(3)

	s := NewPlaceSearcher(client, fastPlaces())
	got, calls, err := s.Search(context.Background(), SearchQuery{Text: "q", MaxResults: 5}, map[string]struct{}{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), `leadgen: search "q" page 1`)
	assert.Equal(t, 3, calls)
	assert.Empty(t, got)
}

func TestSearch_RecoversAfterTransientFailure(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SearchText", mock.Anything, mock.Anything).
		Return(nil, &google.StatusError{StatusCode: 503}).Once()
	client.On("SearchText", mock.Anything, mock.Anything).
		Return(&google.SearchTextResponse{Places: []google.Place{place("a", "A", google.BusinessStatusOperational)}}, nil).Once()

	s := NewPlaceSearcher(client, fastPlaces())
	got, calls, err := s.Search(context.Background(), SearchQuery{Text: "q", MaxResults: 5}, map[string]struct{}{})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, got, 1)
}

func TestSearch_PartialResultsOnLaterPageFailure(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SearchText", mock.Anything, mock.MatchedBy(func(r google.SearchTextRequest) bool {
		return r.PageToken == ""
	})).Return(&google.SearchTextResponse{
		Places:        []google.Place{place("a", "A", google.BusinessStatusOperational)},
		NextPageToken: "t1",
	}, nil).Once()
	client.On("SearchText", mock.Anything, mock.MatchedBy(func(r google.SearchTextRequest) bool {
		return r.PageToken == "t1"
	})).Return(nil, &google.StatusError{StatusCode: 500}).Times(3)

	s := NewPlaceSearcher(client, fastPlaces())
	got, calls, err := s.Search(context.Background(), SearchQuery{Text: "q", MaxResults: 5}, map[string]struct{}{})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].PlaceID)
}

func TestSearch_ZeroMaxResults(t *testing.T) {
	client := mocks.NewMockClient(t)
	s := NewPlaceSearcher(client, fastPlaces())

	got, calls, err := s.Search(context.Background(), SearchQuery{Text: "q"}, map[string]struct{}{})
	require.NoError(t, err)
	assert.Zero(t, calls)
	assert.Empty(t, got)
}
