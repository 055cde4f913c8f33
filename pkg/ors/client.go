package ors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	ProfileDrivingCar = "driving-car"
	ProfileFootWalk   = "foot-walking"
	ProfileCycling    = "cycling-regular"
)

// ErrNoRoute is returned when the service finds no path between the points.
var ErrNoRoute = errors.New("no route found")

// Client talks to the OpenRouteService directions API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Request describes a two-point directions query. Coordinates are
// given as lat, lon and reordered for the API.
type Request struct {
	Profile      string
	FromLat      float64
	FromLon      float64
	ToLat        float64
	ToLon        float64
	AvoidFerries bool
}

// Summary is the distance (m) and duration (s) of the best route.
type Summary struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}

type apiRequest struct {
	Coordinates  [][2]float64 `json:"coordinates"`
	Instructions bool         `json:"instructions"`
	Options      *apiOptions  `json:"options,omitempty"`
}

type apiOptions struct {
	AvoidFeatures []string `json:"avoid_features,omitempty"`
}

type apiResponse struct {
	Routes []struct {
		Summary Summary `json:"summary"`
	} `json:"routes"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// route-not-found codes of the directions service
var noRouteCodes = map[int]struct{}{2009: {}, 2010: {}, 2004: {}}

func (c *Client) Directions(ctx context.Context, r Request) (Summary, error) {
	profile := r.Profile
	if profile == "" {
		profile = ProfileDrivingCar
	}

	body := apiRequest{
		Coordinates: [][2]float64{{r.FromLon, r.FromLat}, {r.ToLon, r.ToLat}},
	}
	if r.AvoidFerries {
		body.Options = &apiOptions{AvoidFeatures: []string{"ferries"}}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Summary{}, fmt.Errorf("encoding request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/v2/directions/%s", c.baseURL, profile)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return Summary{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Summary{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return Summary{}, fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}

	if apiResp.Error != nil {
		if _, ok := noRouteCodes[apiResp.Error.Code]; ok {
			return Summary{}, fmt.Errorf("%w: %s", ErrNoRoute, apiResp.Error.Message)
		}
		return Summary{}, fmt.Errorf("API error %d: %s", apiResp.Error.Code, apiResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return Summary{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if len(apiResp.Routes) == 0 {
		return Summary{}, ErrNoRoute
	}

	return apiResp.Routes[0].Summary, nil
}
