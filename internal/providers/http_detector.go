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

	"github.com/bpomverify/bpomverify/internal/detectorport"
	verrors "github.com/bpomverify/bpomverify/internal/errors"
)

// DetectorConfig points an HTTPDetector at an external object-detection
// provider.
type DetectorConfig struct {
	BaseURL     string
	WeightsPath string
	ImageSize   int
	Timeout     time.Duration
}

func (c DetectorConfig) withDefaults() DetectorConfig {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.ImageSize <= 0 {
		c.ImageSize = 640
	}
	return c
}

// HTTPDetector implements detectorport.Detector over a JSON HTTP endpoint:
// POST {base_url}/detect with the raw image body, returning a JSON array
// of boxes. The model weights themselves are the provider's concern;
// WeightsPath is only forwarded as a header so a multi-model provider can
// select the right weights.
type HTTPDetector struct {
	client *http.Client
	cfg    DetectorConfig
}

// NewHTTPDetector constructs an HTTPDetector against cfg.
func NewHTTPDetector(cfg DetectorConfig) *HTTPDetector {
	return &HTTPDetector{client: &http.Client{}, cfg: cfg.withDefaults()}
}

type detectBox struct {
	X1, Y1, X2, Y2 float64
	Confidence     float64
	ClassID        int    `json:"class_id"`
	ClassName      string `json:"class_name"`
}

// Detect satisfies detectorport.Detector.
func (d *HTTPDetector) Detect(ctx context.Context, image []byte) ([]detectorport.Box, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	url := strings.TrimRight(d.cfg.BaseURL, "/") + "/detect"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(image))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Image-Size", fmt.Sprintf("%d", d.cfg.ImageSize))
	if d.cfg.WeightsPath != "" {
		req.Header.Set("X-Weights-Path", d.cfg.WeightsPath)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, verrors.New(verrors.ErrCodeDetectorFailed, "detect request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, verrors.New(verrors.ErrCodeDetectorFailed,
			fmt.Sprintf("detector returned %d: %s", resp.StatusCode, string(data)), nil)
	}

	var boxes []detectBox
	if err := json.NewDecoder(resp.Body).Decode(&boxes); err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeDetectorFailed, err)
	}

	out := make([]detectorport.Box, len(boxes))
	for i, b := range boxes {
		out[i] = detectorport.Box{
			X1: b.X1, Y1: b.Y1, X2: b.X2, Y2: b.Y2,
			Confidence: b.Confidence,
			ClassID:    b.ClassID,
			ClassName:  b.ClassName,
		}
	}
	return out, nil
}

var _ detectorport.Detector = (*HTTPDetector)(nil)
