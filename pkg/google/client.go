package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

// BusinessStatusOperational is the businessStatus of an open place.
const BusinessStatusOperational = "OPERATIONAL"

const (
	searchFieldMask = "places.id,places.displayName,places.location,places.businessStatus," +
		"places.primaryType,places.formattedAddress,nextPageToken"
	detailsFieldMask = "id,displayName,nationalPhoneNumber,internationalPhoneNumber," +
		"websiteUri,rating,userRatingCount,location,formattedAddress"
)

// Client performs Google Places API operations.
type Client interface {
	SearchText(ctx context.Context, req SearchTextRequest) (*SearchTextResponse, error)
	PlaceDetails(ctx context.Context, placeID string) (*PlaceDetails, error)
}

// LatLng is a coordinate in the Places API wire format.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Circle biases a search toward a center and radius (meters).
type Circle struct {
	Center LatLng  `json:"center"`
	Radius float64 `json:"radius"`
}

// LocationBias wraps the bias shape accepted by searchText.
type LocationBias struct {
	Circle *Circle `json:"circle,omitempty"`
}

// SearchTextRequest is the body of POST /places:searchText.
type SearchTextRequest struct {
	TextQuery    string        `json:"textQuery"`
	LocationBias *LocationBias `json:"locationBias,omitempty"`
	PageSize     int           `json:"pageSize,omitempty"`
	PageToken    string        `json:"pageToken,omitempty"`
}

// SearchTextResponse is one page of text search results.
type SearchTextResponse struct {
	Places        []Place `json:"places"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

// Place represents a place returned by text search.
type Place struct {
	ID               string      `json:"id"`
	DisplayName      DisplayName `json:"displayName"`
	Location         *LatLng     `json:"location,omitempty"`
	BusinessStatus   string      `json:"businessStatus,omitempty"`
	PrimaryType      string      `json:"primaryType,omitempty"`
	FormattedAddress string      `json:"formattedAddress,omitempty"`
}

// PlaceDetails is the response of GET /places/{id}.
type PlaceDetails struct {
	ID                       string      `json:"id"`
	DisplayName              DisplayName `json:"displayName"`
	NationalPhoneNumber      string      `json:"nationalPhoneNumber,omitempty"`
	InternationalPhoneNumber string      `json:"internationalPhoneNumber,omitempty"`
	WebsiteURI               string      `json:"websiteUri,omitempty"`
	Rating                   float64     `json:"rating,omitempty"`
	UserRatingCount          int         `json:"userRatingCount,omitempty"`
	Location                 *LatLng     `json:"location,omitempty"`
	FormattedAddress         string      `json:"formattedAddress,omitempty"`
}

// Phone returns the international number when present, else the national one.
func (d *PlaceDetails) Phone() string {
	if d.InternationalPhoneNumber != "" {
		return d.InternationalPhoneNumber
	}
	return d.NationalPhoneNumber
}

// DisplayName holds the place's display name.
type DisplayName struct {
	Text string `json:"text"`
}

// StatusError is returned for non-2xx API responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("google: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchText(ctx context.Context, req SearchTextRequest) (*SearchTextResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var result SearchTextResponse
	if err := c.do(httpReq, searchFieldMask, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) PlaceDetails(ctx context.Context, placeID string) (*PlaceDetails, error) {
	if strings.TrimSpace(placeID) == "" {
		return nil, eris.New("google: place id is required")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/places/"+url.PathEscape(placeID), nil)
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}

	var result PlaceDetails
	if err := c.do(httpReq, detailsFieldMask, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) do(req *http.Request, fieldMask string, out any) error {
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "google: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "google: unmarshal response")
	}
	return nil
}
