package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	verrors "github.com/bpomverify/bpomverify/internal/errors"
)

// EmbedderConfig points an HTTPEmbedder at an external embedding provider.
type EmbedderConfig struct {
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration

	// Retry overrides the backoff applied around each provider call; the
	// zero value falls back to verrors.DefaultRetryConfig().
	Retry *verrors.RetryConfig
}

func (c EmbedderConfig) withDefaults() EmbedderConfig {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

func (c EmbedderConfig) retryConfig() verrors.RetryConfig {
	if c.Retry != nil {
		return *c.Retry
	}
	return verrors.DefaultRetryConfig()
}

// HTTPEmbedder implements embedport.Embedder over a JSON HTTP endpoint:
// POST {base_url}/embed with {"model","texts":[...]}, returning
// {"embeddings":[[...]]}. It wraps every call in the retry/circuit-breaker
// discipline the embedder port requires, matching the teacher's
// OllamaEmbedder's treatment of its own HTTP backend.
type HTTPEmbedder struct {
	client  *http.Client
	cfg     EmbedderConfig
	breaker *verrors.CircuitBreaker
}

// NewHTTPEmbedder constructs an HTTPEmbedder against cfg.
func NewHTTPEmbedder(cfg EmbedderConfig) *HTTPEmbedder {
	cfg = cfg.withDefaults()
	return &HTTPEmbedder{
		client:  &http.Client{},
		cfg:     cfg,
		breaker: verrors.NewCircuitBreaker("embedder"),
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed satisfies embedport.Embedder for a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, verrors.New(verrors.ErrCodeEmbedderFailed, "provider returned no embeddings", nil)
	}
	return vecs[0], nil
}

// EmbedBatch satisfies embedport.Embedder, retrying transient failures and
// tripping the circuit breaker after repeated failures.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	retryCfg := e.cfg.retryConfig()
	var vecs [][]float32
	err := verrors.Retry(ctx, retryCfg, func() error {
		v, err := verrors.CircuitExecuteWithResult(e.breaker,
			func() ([][]float32, error) { return e.doEmbed(ctx, texts) },
			func() ([][]float32, error) {
				return nil, verrors.New(verrors.ErrCodeEmbedderFailed, "embedder circuit open", nil)
			})
		if err != nil {
			return err
		}
		vecs = v
		return nil
	})
	if err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeEmbedderFailed, err)
	}
	return vecs, nil
}

func (e *HTTPEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Model: e.cfg.Model, Texts: texts})
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(e.cfg.BaseURL, "/") + "/embed"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, verrors.New(verrors.ErrCodeEmbedderTimeout, "embed request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embed provider returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed.Embeddings, nil
}

// Dimensions satisfies embedport.Embedder.
func (e *HTTPEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}
