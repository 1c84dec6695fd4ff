package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/bpomverify/bpomverify/internal/errors"
)

func TestHTTPEmbedder_EmbedBatch_RoundTrips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Texts)
		_ = json.NewEncoder(w).Encode(embedResponse{
			Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		})
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(EmbedderConfig{BaseURL: srv.URL, Model: "m", Dimensions: 2, Timeout: time.Second})
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vecs[0])
}

func TestHTTPEmbedder_Embed_SingleText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1, 2, 3}}})
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(EmbedderConfig{BaseURL: srv.URL, Dimensions: 3})
	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
}

func TestHTTPEmbedder_EmbedBatch_EmptyInput(t *testing.T) {
	e := NewHTTPEmbedder(EmbedderConfig{BaseURL: "http://unused"})
	vecs, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestHTTPEmbedder_EmbedBatch_ProviderErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	fast := &verrors.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	e := NewHTTPEmbedder(EmbedderConfig{BaseURL: srv.URL, Retry: fast})
	_, err := e.EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)
}

func TestHTTPEmbedder_Dimensions(t *testing.T) {
	e := NewHTTPEmbedder(EmbedderConfig{Dimensions: 1536})
	assert.Equal(t, 1536, e.Dimensions())
}
