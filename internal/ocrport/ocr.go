// Package ocrport declares the OCR Port the scan pipeline uses to read
// text off a product title crop (ocrTitle) or a whole frame (ocrAllLines),
// plus a Fallback wrapper that tries a primary engine and falls back to a
// secondary one when the primary errors or times out — mirroring how the
// reference system ran Tesseract as a lightweight title-only pass and kept
// a heavier engine available for full-frame extraction.
package ocrport

import (
	"context"
	"log/slog"
)

// Line is one OCR hit: its text, the engine's confidence (0-1), and its
// bounding box corners in image pixel space.
type Line struct {
	Text string
	Conf float64
	Box  [4][2]int
}

// Engine is the port implementations wrap around a concrete OCR backend.
type Engine interface {
	// OCRTitle reads the single best line of text out of a tightly
	// cropped title region, returning ok=false if nothing was read.
	OCRTitle(ctx context.Context, image []byte) (text string, conf float64, ok bool, err error)

	// OCRAllLines reads every line of text out of a full frame.
	OCRAllLines(ctx context.Context, image []byte) ([]Line, error)
}

// BestLine picks the highest text-length*confidence line out of lines,
// matching the reference adapters' `max(lines, key=lambda x: len(text)*conf)`
// title-selection heuristic.
func BestLine(lines []Line) (Line, bool) {
	if len(lines) == 0 {
		return Line{}, false
	}
	best := lines[0]
	bestScore := float64(len(best.Text)) * best.Conf
	for _, l := range lines[1:] {
		score := float64(len(l.Text)) * l.Conf
		if score > bestScore {
			best, bestScore = l, score
		}
	}
	return best, true
}

// FallbackEngine tries primary first and falls back to secondary if
// primary returns an error. A primary that simply finds nothing (ok=false,
// err=nil) is not a failure — it's a legitimate empty-crop result — and is
// returned as-is without falling back.
type FallbackEngine struct {
	primary   Engine
	secondary Engine
}

// NewFallbackEngine wraps primary with a secondary used only on error.
func NewFallbackEngine(primary, secondary Engine) *FallbackEngine {
	return &FallbackEngine{primary: primary, secondary: secondary}
}

func (f *FallbackEngine) OCRTitle(ctx context.Context, image []byte) (string, float64, bool, error) {
	text, conf, ok, err := f.primary.OCRTitle(ctx, image)
	if err == nil {
		return text, conf, ok, nil
	}
	if f.secondary == nil {
		return "", 0, false, err
	}
	slog.Warn("primary ocr engine failed, falling back", slog.String("error", err.Error()))
	return f.secondary.OCRTitle(ctx, image)
}

func (f *FallbackEngine) OCRAllLines(ctx context.Context, image []byte) ([]Line, error) {
	lines, err := f.primary.OCRAllLines(ctx, image)
	if err == nil {
		return lines, nil
	}
	if f.secondary == nil {
		return nil, err
	}
	slog.Warn("primary ocr engine failed, falling back", slog.String("error", err.Error()))
	return f.secondary.OCRAllLines(ctx, image)
}

var _ Engine = (*FallbackEngine)(nil)
