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
	"github.com/bpomverify/bpomverify/internal/ocrport"
)

// OCRConfig points an HTTPOCREngine at an external OCR provider. Engine
// names one of the configured backends ("a"/"b" per spec.md's OCR engine
// selector), forwarded as a query parameter so a single provider endpoint
// can host both.
type OCRConfig struct {
	BaseURL string
	Engine  string
	Timeout time.Duration
}

func (c OCRConfig) withDefaults() OCRConfig {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Engine == "" {
		c.Engine = "a"
	}
	return c
}

// HTTPOCREngine implements ocrport.Engine over a JSON HTTP endpoint.
type HTTPOCREngine struct {
	client *http.Client
	cfg    OCRConfig
}

// NewHTTPOCREngine constructs an HTTPOCREngine against cfg.
func NewHTTPOCREngine(cfg OCRConfig) *HTTPOCREngine {
	return &HTTPOCREngine{client: &http.Client{}, cfg: cfg.withDefaults()}
}

// NewEngineA builds the "a" backend (the default, lighter title-only OCR
// engine) against baseURL, selected by Config.OCREngine == "a".
func NewEngineA(baseURL string) *HTTPOCREngine {
	return NewHTTPOCREngine(OCRConfig{BaseURL: baseURL, Engine: "a"})
}

// NewEngineB builds the "b" backend (the heavier full-frame OCR engine)
// against baseURL, selected by Config.OCREngine == "b".
func NewEngineB(baseURL string) *HTTPOCREngine {
	return NewHTTPOCREngine(OCRConfig{BaseURL: baseURL, Engine: "b"})
}

type ocrLine struct {
	Text string    `json:"text"`
	Conf float64   `json:"conf"`
	Box  [4][2]int `json:"box"`
}

type ocrResponse struct {
	Lines []ocrLine `json:"lines"`
}

func (o *HTTPOCREngine) ocr(ctx context.Context, path string, image []byte) ([]ocrport.Line, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s%s?engine=%s", strings.TrimRight(o.cfg.BaseURL, "/"), path, o.cfg.Engine)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(image))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, verrors.New(verrors.ErrCodeOCRTimeout, "ocr request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, verrors.New(verrors.ErrCodeOCRFailed,
			fmt.Sprintf("ocr provider returned %d: %s", resp.StatusCode, string(data)), nil)
	}

	var parsed ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeOCRFailed, err)
	}

	lines := make([]ocrport.Line, len(parsed.Lines))
	for i, l := range parsed.Lines {
		lines[i] = ocrport.Line{Text: l.Text, Conf: l.Conf, Box: l.Box}
	}
	return lines, nil
}

// OCRTitle satisfies ocrport.Engine, reading the single best line via
// ocrport.BestLine over the provider's returned lines for a crop.
func (o *HTTPOCREngine) OCRTitle(ctx context.Context, image []byte) (string, float64, bool, error) {
	lines, err := o.ocr(ctx, "/ocr/title", image)
	if err != nil {
		return "", 0, false, err
	}
	best, ok := ocrport.BestLine(lines)
	if !ok {
		return "", 0, false, nil
	}
	return best.Text, best.Conf, true, nil
}

// OCRAllLines satisfies ocrport.Engine.
func (o *HTTPOCREngine) OCRAllLines(ctx context.Context, image []byte) ([]ocrport.Line, error) {
	return o.ocr(ctx, "/ocr/lines", image)
}

var _ ocrport.Engine = (*HTTPOCREngine)(nil)
