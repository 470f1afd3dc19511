package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"real-estate-valuation/internal/ratelimit"
)

const listingPage = `<!DOCTYPE html>
<html>
<head>
  <title>Apartament 2 camere Titan</title>
  <meta property="og:title" content="Apartament 2 camere, Titan">
  <meta property="og:image" content="/img/cover.jpg">
  <link rel="canonical" href="https://www.example.ro/anunt/apartament-2-camere-titan-123">
  <script type="application/ld+json">
  {"@context": "https://schema.org", "@graph": [
    {"@type": "Apartment", "numberOfRooms": 2, "floorSize": {"value": 52, "unitText": "m2"},
     "address": {"streetAddress": "Str. Liviu Rebreanu 4", "addressLocality": "Bucuresti"},
     "image": ["https://cdn.example.ro/1.jpg", "https://cdn.example.ro/2.jpg"]},
    {"@type": "Offer", "offers": {"price": "123.456", "priceCurrency": "RON"}}
  ]}
  </script>
</head>
<body data-demand-score="0.7">
  <h1>Apartament 2 camere</h1>
  <dl>
    <dt>Preț pe m²</dt><dd>2.374 lei/mp</dd>
    <dt>Etaj</dt><dd>3 / 8</dd>
    <dt>Anul construcției</dt><dd>1985</dd>
  </dl>
  <ul>
    <li>Metrou: 450 m</li>
    <li>Suprafață utilă: 55 mp</li>
  </ul>
  <div class="gallery">
    <img data-src="https://cdn.example.ro/2.jpg">
    <img src="/img/3.jpg">
  </div>
</body>
</html>`

func TestExtractRawListing(t *testing.T) {
	raw, err := ExtractRawListing("https://example.ro/anunt/123?ref=home", strings.NewReader(listingPage))
	require.NoError(t, err)

	assert.Equal(t, "https://www.example.ro/anunt/apartament-2-camere-titan-123", raw.SourceURL)
	assert.Equal(t, "Apartament 2 camere, Titan", raw.Title)
	assert.Equal(t, "123.456", raw.PriceText, "price per m2 label is ignored")
	assert.Equal(t, "RON", raw.Currency)
	assert.Equal(t, "52 m2", raw.AreaText, "structured data wins over labels")
	assert.Equal(t, "2", raw.RoomsText)
	assert.Equal(t, "3 / 8", raw.FloorText)
	assert.Equal(t, "1985", raw.YearBuilt)
	assert.Equal(t, "450 m", raw.MetroText)
	assert.Equal(t, "Str. Liviu Rebreanu 4, Bucuresti", raw.Address)
	assert.Equal(t, []string{
		"https://cdn.example.ro/1.jpg",
		"https://cdn.example.ro/2.jpg",
		"https://www.example.ro/img/cover.jpg",
		"https://www.example.ro/img/3.jpg",
	}, []string(raw.PhotoURLs))
	require.NotNil(t, raw.DemandScore)
	assert.InDelta(t, 0.7, *raw.DemandScore, 1e-9)
	assert.Len(t, raw.ContentHash, 32)

	t.Run("content hash tracks fields", func(t *testing.T) {
		again, err := ExtractRawListing("https://example.ro/anunt/123", strings.NewReader(listingPage))
		require.NoError(t, err)
		assert.Equal(t, raw.ContentHash, again.ContentHash)

		changed, err := ExtractRawListing("https://example.ro/anunt/123",
			strings.NewReader(strings.Replace(listingPage, "123.456", "119.000", 1)))
		require.NoError(t, err)
		assert.NotEqual(t, raw.ContentHash, changed.ContentHash)
	})
}

func TestExtractRawListing_Sparse(t *testing.T) {
	raw, err := ExtractRawListing("https://example.ro/x", strings.NewReader(`<html><body><h1>Garsoniera</h1></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Garsoniera", raw.Title)
	assert.Equal(t, "https://example.ro/x", raw.SourceURL)
	assert.Empty(t, raw.PriceText)
	assert.Empty(t, raw.PhotoURLs)
	assert.Nil(t, raw.DemandScore)
}

func testFetcherConfig() FetcherConfig {
	cfg := DefaultFetcherConfig()
	cfg.Timeout = 5 * time.Second
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func TestHTTPFetcher(t *testing.T) {
	var serverErrors atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Contains(t, r.Header.Get("Accept-Language"), "ro-RO")
			w.Write([]byte(listingPage))
		case "/gone":
			w.WriteHeader(http.StatusGone)
		case "/flaky":
			if serverErrors.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("<html></html>"))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	breaker := ratelimit.NewCircuitBreaker("pages", 3, time.Hour, nil)
	fetcher := NewHTTPFetcher(testFetcherConfig(), ratelimit.NewFetchLimiter(1, 0, 0), breaker, nil)

	body, err := fetcher.Fetch(ctx, server.URL+"/ok")
	require.NoError(t, err)
	assert.Contains(t, body, "og:title")

	_, err = fetcher.Fetch(ctx, server.URL+"/gone")
	assert.ErrorIs(t, err, ErrPageGone)

	body, err = fetcher.Fetch(ctx, server.URL+"/flaky")
	require.NoError(t, err, "5xx is retried")
	assert.Equal(t, "<html></html>", body)

	t.Run("breaker opens on repeated server errors", func(t *testing.T) {
		_, err := fetcher.Fetch(ctx, server.URL+"/broken")
		require.Error(t, err)
		_, err = fetcher.Fetch(ctx, server.URL+"/broken")
		assert.ErrorIs(t, err, ratelimit.ErrCircuitOpen)
	})
}

type stubFetcher map[string]string

func (s stubFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	html, ok := s[pageURL]
	if !ok {
		return "", ErrPageGone
	}
	return html, nil
}

func TestScraper_ScrapeListing(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	s := NewScraper(stubFetcher{"https://example.ro/anunt/123": listingPage}, nil)
	s.now = func() time.Time { return now }

	raw, err := s.ScrapeListing(context.Background(), "http://example.ro/anunt/123/?utm_source=x")
	require.NoError(t, err)
	assert.Equal(t, now, raw.FetchedAt)
	assert.Equal(t, "123.456", raw.PriceText)

	_, err = s.ScrapeListing(context.Background(), "https://example.ro/missing")
	assert.ErrorIs(t, err, ErrPageGone)
}
