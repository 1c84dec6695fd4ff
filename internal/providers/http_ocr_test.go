package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPOCREngine_OCRTitle_PicksBestLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ocr/title", r.URL.Path)
		_ = json.NewEncoder(w).Encode(ocrResponse{Lines: []ocrLine{
			{Text: "short", Conf: 0.9},
			{Text: "a much longer title line", Conf: 0.6},
		}})
	}))
	defer srv.Close()

	o := NewHTTPOCREngine(OCRConfig{BaseURL: srv.URL})
	text, conf, ok, err := o.OCRTitle(context.Background(), []byte("crop"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a much longer title line", text)
	assert.Equal(t, 0.6, conf)
}

func TestHTTPOCREngine_OCRTitle_NoLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ocrResponse{})
	}))
	defer srv.Close()

	o := NewHTTPOCREngine(OCRConfig{BaseURL: srv.URL})
	_, _, ok, err := o.OCRTitle(context.Background(), []byte("crop"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPOCREngine_OCRAllLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ocr/lines", r.URL.Path)
		_ = json.NewEncoder(w).Encode(ocrResponse{Lines: []ocrLine{{Text: "l1", Conf: 0.5}}})
	}))
	defer srv.Close()

	o := NewHTTPOCREngine(OCRConfig{BaseURL: srv.URL})
	lines, err := o.OCRAllLines(context.Background(), []byte("frame"))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "l1", lines[0].Text)
}
