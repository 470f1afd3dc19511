package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Score(t *testing.T) {
	var got scoreRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/condition", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"score":0.82}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "secret", Timeout: time.Second})
	score, err := c.Score(context.Background(), []string{"https://img/1.jpg", "https://img/2.jpg"})
	require.NoError(t, err)
	assert.Equal(t, 0.82, score)
	assert.Equal(t, []string{"https://img/1.jpg", "https://img/2.jpg"}, got.PhotoURLs)
}

func TestClient_ScoreErrors(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Score(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoPhotos)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c = NewClient(Config{BaseURL: srv.URL})
	_, err = c.Score(context.Background(), []string{"https://img/1.jpg"})
	assert.ErrorContains(t, err, "status 502")

	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv2.Close()

	c = NewClient(Config{BaseURL: srv2.URL})
	_, err = c.Score(context.Background(), []string{"https://img/1.jpg"})
	assert.ErrorContains(t, err, "no score")
}
