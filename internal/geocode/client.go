package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Result is a resolved address
type Result struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	City         string  `json:"city"`
	Neighborhood string  `json:"neighborhood"`
}

// Config contains the geocoding service settings
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Client resolves addresses against a Nominatim-compatible search API
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a new geocoding client
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type searchHit struct {
	Lat     string `json:"lat"`
	Lon     string `json:"lon"`
	Address struct {
		City          string `json:"city"`
		Town          string `json:"town"`
		Village       string `json:"village"`
		Suburb        string `json:"suburb"`
		Neighbourhood string `json:"neighbourhood"`
		CityDistrict  string `json:"city_district"`
	} `json:"address"`
}

// Resolve looks up an address. A nil result with a nil error means the
// service answered but found nothing.
func (c *Client) Resolve(ctx context.Context, address string) (*Result, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "jsonv2")
	q.Set("addressdetails", "1")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geocode request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode returned status %d", resp.StatusCode)
	}

	var hits []searchHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, fmt.Errorf("failed to decode geocode response: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	hit := hits[0]
	lat, err := strconv.ParseFloat(hit.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", hit.Lat, err)
	}
	lng, err := strconv.ParseFloat(hit.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", hit.Lon, err)
	}

	return &Result{
		Lat:          lat,
		Lng:          lng,
		City:         firstNonEmpty(hit.Address.City, hit.Address.Town, hit.Address.Village),
		Neighborhood: firstNonEmpty(hit.Address.Neighbourhood, hit.Address.Suburb, hit.Address.CityDistrict),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
