package similarity

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"real-estate-valuation/internal/database"
	"real-estate-valuation/internal/models"
)

func TestSignature(t *testing.T) {
	price := 90000
	area := 54.6

	a := Signature("https://www.Imobiliare.ro/anunt/123/?ref=home", &price, &area)
	b := Signature("http://m.imobiliare.ro/Anunt/123", &price, &area)
	assert.Equal(t, "https://imobiliare.ro/anunt/123|90000|55", a)
	assert.Equal(t, a, b)

	assert.Equal(t, "https://imobiliare.ro/anunt/123||", Signature("https://imobiliare.ro/anunt/123", nil, nil))
	other := 91000
	assert.NotEqual(t, a, Signature("https://imobiliare.ro/anunt/123", &other, &area))
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 0, Distance(0xFF00FF00FF00FF00, 0xFF00FF00FF00FF00))
	assert.Equal(t, 3, Distance(0b1011, 0b0000))
	assert.Equal(t, 64, Distance(0, ^uint64(0)))
}

func ptr(v uint64) *uint64 { return &v }

func TestFindPhotoMatches(t *testing.T) {
	own := []models.PhotoAsset{
		{ListingID: "a", URL: "a1", Phash: ptr(0xF0F0)},
		{ListingID: "a", URL: "a2", Phash: ptr(0x0F0F_0000)},
		{ListingID: "a", URL: "a3"},
	}
	pool := []models.PhotoAsset{
		{ListingID: "b", URL: "b1", Phash: ptr(0xF0F1)},       // distance 1
		{ListingID: "b", URL: "b2", Phash: ptr(0xF0F0 ^ 0x7)}, // distance 3
		{ListingID: "c", URL: "c1", Phash: ptr(0x0F0F_003F)},  // distance 6
		{ListingID: "d", URL: "d1", Phash: ptr(0x0F0F_007F)},  // distance 7
		{ListingID: "a", URL: "a1", Phash: ptr(0xF0F0)},
		{ListingID: "e", URL: "e1"},
	}

	matches := FindPhotoMatches("a", own, pool, 6)
	require.Len(t, matches, 2)
	assert.Equal(t, PhotoMatch{ListingID: "b", Distance: 1, PhotoURL: "a1", OtherPhotoURL: "b1", Pairs: 2}, matches[0])
	assert.Equal(t, "c", matches[1].ListingID)
	assert.Equal(t, 6, matches[1].Distance)
	assert.Equal(t, []string{"b", "c"}, MatchedListingIDs(matches))

	assert.Empty(t, FindPhotoMatches("a", own[2:], pool, 6))
}

func gradientPNG(t *testing.T, invert bool) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := uint8((x*3 + y) % 256)
			if invert {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHasher_HashURL(t *testing.T) {
	photo := gradientPNG(t, false)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(photo)
	}))
	defer srv.Close()

	h := NewHasher(DefaultConfig(), nil, nil)
	first, err := h.HashURL(context.Background(), srv.URL+"/a.png")
	require.NoError(t, err)
	second, err := h.HashURL(context.Background(), srv.URL+"/copy.png")
	require.NoError(t, err)
	assert.Equal(t, 0, Distance(first, second))

	inverted, err := HashImage(bytes.NewReader(gradientPNG(t, true)))
	require.NoError(t, err)
	assert.Greater(t, Distance(first, inverted), 6)

	_, err = h.HashURL(context.Background(), srv.URL+"/missing.png")
	assert.ErrorContains(t, err, "status 404")

	_, err = HashImage(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}

type stubHasher struct {
	hashes map[string]uint64
	calls  map[string]int
}

func (s *stubHasher) HashURL(ctx context.Context, photoURL string) (uint64, error) {
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[photoURL]++
	h, ok := s.hashes[photoURL]
	if !ok {
		return 0, errors.New("unreachable")
	}
	return h, nil
}

func TestEngine_IndexAndMatch(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	hasher := &stubHasher{hashes: map[string]uint64{
		"https://img/a1.jpg": 0xAAAA_0000,
		"https://img/b1.jpg": 0xAAAA_0003,
		"https://img/c1.jpg": 0x5555_FFFF,
	}}
	engine := NewEngine(DefaultConfig(), store, hasher, nil)

	listingA := &models.Listing{ListingID: "a", Photos: []string{"https://img/a1.jpg", "https://img/dead.jpg"}}
	listingB := &models.Listing{ListingID: "b", Photos: []string{"https://img/b1.jpg"}}
	listingC := &models.Listing{ListingID: "c", Photos: []string{"https://img/c1.jpg"}}

	assets, err := engine.IndexPhotos(ctx, listingA)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.NotNil(t, assets[0].Phash)
	assert.Nil(t, assets[1].Phash)

	_, err = engine.IndexPhotos(ctx, listingB)
	require.NoError(t, err)
	_, err = engine.IndexPhotos(ctx, listingC)
	require.NoError(t, err)

	t.Run("hashed photos are not fetched again", func(t *testing.T) {
		_, err := engine.IndexPhotos(ctx, listingA)
		require.NoError(t, err)
		assert.Equal(t, 1, hasher.calls["https://img/a1.jpg"])
		assert.Equal(t, 2, hasher.calls["https://img/dead.jpg"])
	})

	matches, err := engine.PhotoMatches(ctx, "a")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].ListingID)
	assert.Equal(t, 2, matches[0].Distance)

	t.Run("listing without hashes has no matches", func(t *testing.T) {
		_, err := engine.IndexPhotos(ctx, &models.Listing{ListingID: "d", Photos: []string{"https://img/dead.jpg"}})
		require.NoError(t, err)
		matches, err := engine.PhotoMatches(ctx, "d")
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}
