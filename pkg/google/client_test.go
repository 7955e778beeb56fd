package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchText_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/places:searchText", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "places.businessStatus")
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "nextPageToken")

		var body SearchTextRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "retail store in Andheri, Mumbai", body.TextQuery)
		require.NotNil(t, body.LocationBias)
		require.NotNil(t, body.LocationBias.Circle)
		assert.InDelta(t, 19.11, body.LocationBias.Circle.Center.Latitude, 0.001)
		assert.InDelta(t, 5000, body.LocationBias.Circle.Radius, 0.001)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(SearchTextResponse{
			Places: []Place{
				{
					ID:               "ChIJ-shop1",
					DisplayName:      DisplayName{Text: "Sharma General Store"},
					Location:         &LatLng{Latitude: 19.12, Longitude: 72.84},
					BusinessStatus:   BusinessStatusOperational,
					PrimaryType:      "store",
					FormattedAddress: "12 SV Road, Andheri West, Mumbai",
				},
			},
			NextPageToken: "next-page-token-123",
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.SearchText(context.Background(), SearchTextRequest{
		TextQuery: "retail store in Andheri, Mumbai",
		LocationBias: &LocationBias{Circle: &Circle{
			Center: LatLng{Latitude: 19.11, Longitude: 72.83},
			Radius: 5000,
		}},
	})

	require.NoError(t, err)
	require.Len(t, resp.Places, 1)
	assert.Equal(t, "ChIJ-shop1", resp.Places[0].ID)
	assert.Equal(t, "Sharma General Store", resp.Places[0].DisplayName.Text)
	assert.Equal(t, BusinessStatusOperational, resp.Places[0].BusinessStatus)
	assert.Equal(t, "next-page-token-123", resp.NextPageToken)
}

func TestSearchText_Pagination(t *testing.T) {
	callCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		var body SearchTextRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		if body.PageToken == "" {
			_ = json.NewEncoder(w).Encode(SearchTextResponse{
				Places:        []Place{{ID: "place-1", DisplayName: DisplayName{Text: "First"}}},
				NextPageToken: "page-2-token",
			})
		} else {
			assert.Equal(t, "page-2-token", body.PageToken)
			_ = json.NewEncoder(w).Encode(SearchTextResponse{
				Places: []Place{{ID: "place-2", DisplayName: DisplayName{Text: "Second"}}},
			})
		}
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))

	resp, err := client.SearchText(context.Background(), SearchTextRequest{TextQuery: "test"})
	require.NoError(t, err)
	require.Len(t, resp.Places, 1)
	assert.Equal(t, "page-2-token", resp.NextPageToken)

	resp, err = client.SearchText(context.Background(), SearchTextRequest{
		TextQuery: "test",
		PageToken: resp.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, resp.Places, 1)
	assert.Equal(t, "place-2", resp.Places[0].ID)
	assert.Empty(t, resp.NextPageToken)

	assert.Equal(t, 2, callCount)
}

func TestSearchText_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "rate limit exceeded"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.SearchText(context.Background(), SearchTextRequest{TextQuery: "test"})

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "429")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
}

func TestSearchText_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.SearchText(ctx, SearchTextRequest{TextQuery: "test"})

	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestPlaceDetails_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/places/ChIJ-shop1", r.URL.Path)
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "internationalPhoneNumber")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(PlaceDetails{
			ID:                       "ChIJ-shop1",
			NationalPhoneNumber:      "098765 43210",
			InternationalPhoneNumber: "+91 98765 43210",
			WebsiteURI:               "https://sharmastore.in",
			Rating:                   4.3,
			UserRatingCount:          212,
			Location:                 &LatLng{Latitude: 19.12, Longitude: 72.84},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	details, err := client.PlaceDetails(context.Background(), "ChIJ-shop1")

	require.NoError(t, err)
	assert.Equal(t, "+91 98765 43210", details.Phone())
	assert.Equal(t, "https://sharmastore.in", details.WebsiteURI)
	assert.Equal(t, 212, details.UserRatingCount)
}

func TestPlaceDetails_NationalOnly(t *testing.T) {
	d := &PlaceDetails{NationalPhoneNumber: "022 2345 6789"}
	assert.Equal(t, "022 2345 6789", d.Phone())

	assert.Empty(t, (&PlaceDetails{}).Phone())
}

func TestPlaceDetails_EmptyID(t *testing.T) {
	client := NewClient("test-key")
	_, err := client.PlaceDetails(context.Background(), " ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "place id is required")
}

func TestPlaceDetails_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.PlaceDetails(context.Background(), "ChIJ-x")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}
