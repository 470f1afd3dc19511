package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNoPhotos is returned when there is nothing to score
var ErrNoPhotos = errors.New("no photos to score")

// Scorer rates the visual condition of a photo set in [0,1]
type Scorer interface {
	Score(ctx context.Context, photoURLs []string) (float64, error)
}

// Config contains the vision service settings
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls an external condition-scoring service
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new vision client
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type scoreRequest struct {
	PhotoURLs []string `json:"photo_urls"`
}

type scoreResponse struct {
	Score *float64 `json:"score"`
}

// Score returns the raw service score; callers clamp and bucket it
func (c *Client) Score(ctx context.Context, photoURLs []string) (float64, error) {
	if len(photoURLs) == 0 {
		return 0, ErrNoPhotos
	}

	body, err := json.Marshal(scoreRequest{PhotoURLs: photoURLs})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/condition", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("vision service returned status %d", resp.StatusCode)
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode vision response: %w", err)
	}
	if out.Score == nil {
		return 0, errors.New("vision response has no score")
	}
	return *out.Score, nil
}
