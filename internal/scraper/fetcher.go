package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"real-estate-valuation/internal/ratelimit"
)

// ErrPageGone is returned for listing pages that no longer exist (404/410)
var ErrPageGone = errors.New("listing page gone")

// Fetcher retrieves the HTML of a listing page
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// FetcherConfig holds page fetch settings
type FetcherConfig struct {
	Timeout    time.Duration
	UserAgent  string
	MaxRetries int
	RetryDelay time.Duration
	ChromePath string // browser fetcher only; empty uses the chromedp default lookup
}

// DefaultFetcherConfig returns default fetch settings
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Timeout:    30 * time.Second, // 30s for normal page fetches
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		MaxRetries: 2,
		RetryDelay: 2 * time.Second, // Base delay for exponential backoff
	}
}

// HTTPFetcher fetches pages over plain HTTP, paced by a FetchLimiter and
// guarded by a circuit breaker against blocks.
type HTTPFetcher struct {
	client  *http.Client
	cfg     FetcherConfig
	limiter *ratelimit.FetchLimiter
	breaker *ratelimit.CircuitBreaker
	logger  *zap.SugaredLogger
}

// NewHTTPFetcher creates a fetcher. limiter and breaker may be nil.
func NewHTTPFetcher(cfg FetcherConfig, limiter *ratelimit.FetchLimiter, breaker *ratelimit.CircuitBreaker, logger *zap.SugaredLogger) *HTTPFetcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	// Cookie jar keeps session cookies across fetches
	jar, err := cookiejar.New(nil)
	if err != nil {
		logger.Warnw("Fetcher: failed to create cookie jar", "error", err)
		jar = nil
	}
	return &HTTPFetcher{
		client:  &http.Client{Timeout: cfg.Timeout, Jar: jar},
		cfg:     cfg,
		limiter: limiter,
		breaker: breaker,
		logger:  logger,
	}
}

// applyBrowserHeaders sets browser-like headers
func applyBrowserHeaders(req *http.Request, userAgent string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ro-RO,ro;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("DNT", "1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// Fetch performs the request with exponential backoff retry
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if f.breaker != nil && !f.breaker.CanProceed() {
		return "", ratelimit.ErrCircuitOpen
	}
	if f.limiter != nil {
		if err := f.limiter.Acquire(ctx); err != nil {
			return "", err
		}
		defer f.limiter.Release()
	}

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: delay * 2^(attempt-1), max 60s
			backoff := f.cfg.RetryDelay << (attempt - 1)
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
			f.logger.Debugw("Fetcher: retrying", "url", pageURL, "attempt", attempt, "backoff", backoff)
			if err := sleepCtx(ctx, backoff); err != nil {
				return "", err
			}
		}

		body, retry, err := f.fetchOnce(ctx, pageURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

// fetchOnce returns the body, or an error with whether retrying may help
func (f *HTTPFetcher) fetchOnce(ctx context.Context, pageURL string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to create request: %w", err)
	}
	applyBrowserHeaders(req, f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		f.recordFailure()
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			f.recordFailure()
			return "", true, fmt.Errorf("failed to read body: %w", err)
		}
		if f.breaker != nil {
			f.breaker.RecordSuccess()
		}
		return string(body), false, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// Delisted, not a block
		return "", false, fmt.Errorf("%w: status %d", ErrPageGone, resp.StatusCode)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		f.recordFailure()
		f.logger.Warnw("Fetcher: request failed", "url", pageURL, "status", resp.StatusCode)
		return "", resp.StatusCode != http.StatusForbidden, fmt.Errorf("status code %d", resp.StatusCode)
	default:
		// Don't retry on other client errors
		return "", false, fmt.Errorf("status code %d", resp.StatusCode)
	}
}

func (f *HTTPFetcher) recordFailure() {
	if f.breaker != nil {
		f.breaker.RecordFailure()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BrowserFetcher renders pages in headless Chrome for sites that build
// listing content with JavaScript.
type BrowserFetcher struct {
	cfg     FetcherConfig
	limiter *ratelimit.FetchLimiter
	logger  *zap.SugaredLogger
}

// NewBrowserFetcher creates a headless browser fetcher. limiter may be nil.
func NewBrowserFetcher(cfg FetcherConfig, limiter *ratelimit.FetchLimiter, logger *zap.SugaredLogger) *BrowserFetcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &BrowserFetcher{cfg: cfg, limiter: limiter, logger: logger}
}

// Fetch navigates to the page and returns the rendered HTML
func (b *BrowserFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if b.limiter != nil {
		if err := b.limiter.Acquire(ctx); err != nil {
			return "", err
		}
		defer b.limiter.Release()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),            // Required for systemd/Docker
		chromedp.Flag("disable-dev-shm-usage", true), // Prevents /dev/shm issues
		chromedp.UserAgent(b.cfg.UserAgent),
	)
	if b.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ChromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	timeout := b.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var htmlContent string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible(`body`, chromedp.ByQuery),
		chromedp.OuterHTML(`html`, &htmlContent, chromedp.ByQuery),
	)
	if err != nil {
		b.logger.Warnw("Fetcher: headless fetch failed", "url", pageURL, "error", err)
		return "", fmt.Errorf("chromedp error: %w", err)
	}

	b.logger.Debugw("Fetcher: rendered page", "url", pageURL, "bytes", len(htmlContent))
	return htmlContent, nil
}
