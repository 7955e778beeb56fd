package leadgen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/pkg/google"
	"github.com/sells-group/leadgen-cli/pkg/google/mocks"
)

func TestFetch_Qualified(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("PlaceDetails", mock.Anything, "p1").Return(&google.PlaceDetails{
		ID:                       "p1",
		InternationalPhoneNumber: "+91 98765 43210",
		WebsiteURI:               "https://sharmastore.in",
		Rating:                   4.4,
		UserRatingCount:          120,
		Location:                 &google.LatLng{Latitude: 19.2, Longitude: 72.9},
	}, nil).Once()

	f := NewDetailFetcher(client, fastPlaces())
	res, err := f.Fetch(context.Background(), Candidate{PlaceID: "p1", Address: "Andheri, Mumbai"})

	require.NoError(t, err)
	assert.True(t, res.Qualified)
	assert.Equal(t, 1, res.Calls)
	assert.Equal(t, "+91 98765 43210", res.Details.Phone)
	assert.Equal(t, "Andheri, Mumbai", res.Details.Address)
	assert.InDelta(t, 19.2, res.Details.Location.Latitude, 1e-9)
}

func TestFetch_NoPhoneIsNotRetried(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("PlaceDetails", mock.Anything, "p1").Return(&google.PlaceDetails{
		ID:              "p1",
		Rating:          5,
		UserRatingCount: 900,
	}, nil).Once()

	f := NewDetailFetcher(client, fastPlaces())
	res, err := f.Fetch(context.Background(), Candidate{PlaceID: "p1", Location: LatLng{Latitude: 1, Longitude: 2}})

	require.NoError(t, err)
	assert.False(t, res.Qualified)
	assert.Equal(t, 1, res.Calls)
	require.NotNil(t, res.Details.Location)
	assert.InDelta(t, 1.0, res.Details.Location.Latitude, 1e-9)
}

func TestFetch_RetriesTransportErrors(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("PlaceDetails", mock.Anything, "p1").Return(nil, &google.StatusError{StatusCode: 502}).Times(3)

	f := NewDetailFetcher(client, fastPlaces())
	res, err := f.Fetch(context.Background(), Candidate{PlaceID: "p1"})

	require.Error(t, err)
	assert.Equal(t, 3, res.Calls)
	assert.False(t, res.Qualified)
}
