// Package scanpipeline implements the Scan Pipeline: given a product-label
// photograph, it runs object detection once, then races two tasks — T1
// (title crop OCR, title normalization, router search) and T2 (full-frame
// OCR, regex code extraction, gated on T1's detection confidence) — under
// two configurable deadlines, merging whichever fields each task managed to
// produce. It never returns an error: a failing task simply contributes
// null fields to the merged result.
package scanpipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/bpomverify/bpomverify/internal/detectorport"
	"github.com/bpomverify/bpomverify/internal/normalize"
	"github.com/bpomverify/bpomverify/internal/ocrport"
	"github.com/bpomverify/bpomverify/internal/regexcode"
	"github.com/bpomverify/bpomverify/internal/registry"
	"github.com/bpomverify/bpomverify/internal/router"
)

// Config tunes a Pipeline's timeouts and gating.
type Config struct {
	T1Timeout      time.Duration
	T2Timeout      time.Duration
	RegexGate      float64
	AlwaysRunRegex bool
	ReturnPartial  bool
	TitleClassID   int
	TitlePadding   int
}

// DefaultConfig matches spec.md's defaults: 500ms T1 / 1200ms T2, 0.70
// regex gate, 6px crop padding, the detector port's default title class.
func DefaultConfig() Config {
	return Config{
		T1Timeout:    500 * time.Millisecond,
		T2Timeout:    1200 * time.Millisecond,
		RegexGate:    0.70,
		TitlePadding: 6,
		TitleClassID: detectorport.DefaultTitleClassID,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.T1Timeout <= 0 {
		c.T1Timeout = d.T1Timeout
	}
	if c.T2Timeout <= 0 {
		c.T2Timeout = d.T2Timeout
	}
	if c.RegexGate <= 0 {
		c.RegexGate = d.RegexGate
	}
	if c.TitlePadding == 0 {
		c.TitlePadding = d.TitlePadding
	}
	if c.TitleClassID == 0 {
		c.TitleClassID = d.TitleClassID
	}
	return c
}

// Match mirrors spec.md's `{product, source, confidence}` T1 search hit.
type Match struct {
	Product    registry.Product
	Source     registry.Source
	Confidence float64
}

// Result is the Scan Pipeline's merged output.
type Result struct {
	Stage        string // "partial" | "final"
	TitleText    string
	TitleConf    float64
	BPOMNumber   string
	RegexSkipped bool
	Match        *Match
	Boxes        []detectorport.Box
	TitleBox     *detectorport.Box
	Timings      map[string]float64 // milliseconds, keyed by phase
}

// Pipeline wires the detector, OCR engine, regex extractor, and retrieval
// router into the T1/T2 race.
type Pipeline struct {
	detector detectorport.Detector
	ocr      ocrport.Engine
	regex    *regexcode.Extractor
	router   *router.Router
	cfg      Config
}

// New constructs a Pipeline.
func New(detector detectorport.Detector, ocr ocrport.Engine, regex *regexcode.Extractor, r *router.Router, cfg Config) *Pipeline {
	if regex == nil {
		regex = regexcode.NewDefault()
	}
	return &Pipeline{detector: detector, ocr: ocr, regex: regex, router: r, cfg: cfg.withDefaults()}
}

func elapsedMS(since time.Time) float64 {
	return float64(time.Since(since).Microseconds()) / 1000.0
}

type t1Outcome struct {
	text  string
	conf  float64
	match *Match
	ms    float64
}

type t2Outcome struct {
	bpomNumber string
	skipped    bool
	ms         float64
}

// Run executes the pre-step and the T1/T2 race and always returns a
// populated Result — internal task failures degrade to null fields rather
// than propagating as errors.
func (p *Pipeline) Run(ctx context.Context, raw []byte) *Result {
	start := time.Now()
	timings := map[string]float64{}

	boxes, titleBox, yoloTitleConf, cropBytes, fullBytes := p.preStep(ctx, raw, timings)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t1ch := make(chan t1Outcome, 1)
	t2ch := make(chan t2Outcome, 1)

	go func() {
		t0 := time.Now()
		text, conf, match := p.runT1(ctx, cropBytes)
		t1ch <- t1Outcome{text: text, conf: conf, match: match, ms: elapsedMS(t0)}
	}()
	go func() {
		t0 := time.Now()
		bpom, skipped := p.runT2(ctx, fullBytes, yoloTitleConf)
		t2ch <- t2Outcome{bpomNumber: bpom, skipped: skipped, ms: elapsedMS(t0)}
	}()

	var t1 *t1Outcome
	var t2 *t2Outcome

	select {
	case o := <-t1ch:
		t1 = &o
		select {
		case o2 := <-t2ch:
			t2 = &o2
		default:
		}
	case o := <-t2ch:
		t2 = &o
		select {
		case o1 := <-t1ch:
			t1 = &o1
		default:
		}
	case <-time.After(p.cfg.T1Timeout):
		// neither finished in time
	case <-ctx.Done():
	}

	if t1 == nil && t2 == nil {
		timings["total_ms"] = elapsedMS(start)
		return &Result{Stage: "partial", Boxes: boxes, TitleBox: titleBox, Timings: timings}
	}

	if p.cfg.ReturnPartial {
		cancel()
		result := p.assemble(t1, t2, boxes, titleBox, timings, false)
		timings["total_ms"] = elapsedMS(start)
		return result
	}

	remaining := p.cfg.T2Timeout - p.cfg.T1Timeout
	if remaining < 0 {
		remaining = 0
	}
	if t1 == nil {
		select {
		case o := <-t1ch:
			t1 = &o
		case <-time.After(remaining):
		}
	}
	if t2 == nil {
		select {
		case o := <-t2ch:
			t2 = &o
		case <-time.After(remaining):
		}
	}
	cancel()

	// ReturnPartial is false on this path: per the race's contract, either
	// both tasks completed within budget or the still-running one was just
	// cancelled above — either way the result is final, even if t2 never
	// produced an outcome.
	result := p.assemble(t1, t2, boxes, titleBox, timings, true)
	timings["total_ms"] = elapsedMS(start)
	return result
}

// preStep decodes/resizes the frame, runs the detector once, and produces
// both the title crop bytes (for T1) and a full-frame JPEG (for T2). Any
// decode failure degrades to passing the raw bytes through unchanged to
// both tasks.
func (p *Pipeline) preStep(ctx context.Context, raw []byte, timings map[string]float64) (boxes []detectorport.Box, titleBox *detectorport.Box, titleConf float64, cropBytes []byte, fullBytes []byte) {
	t0 := time.Now()
	img, err := decodeAndResize(raw)
	timings["decode_ms"] = elapsedMS(t0)
	if err != nil {
		slog.Warn("scan pipeline: decode failed, using raw bytes", slog.String("error", err.Error()))
		return nil, nil, 0, raw, raw
	}

	t1 := time.Now()
	detected, err := p.detector.Detect(ctx, raw)
	timings["yolo_ms"] = elapsedMS(t1)
	if err != nil {
		slog.Warn("scan pipeline: detection failed", slog.String("error", err.Error()))
		full, encErr := encodeJPEG(img)
		if encErr != nil {
			full = raw
		}
		return nil, nil, 0, full, full
	}
	boxes = detected

	full, err := encodeJPEG(img)
	if err != nil {
		full = raw
	}

	tb, found := detectorport.TitleBox(detected, p.cfg.TitleClassID)
	var crop []byte
	if found {
		titleBox = &tb
		titleConf = tb.Confidence
		crop, err = cropToJPEG(img, tb.X1, tb.Y1, tb.X2, tb.Y2, p.cfg.TitlePadding)
		if err != nil {
			crop = full
		}
	} else {
		crop = full
	}

	return boxes, titleBox, titleConf, crop, full
}

// runT1 OCRs the title crop, normalizes it, and — if non-empty — queries
// the router for the best matching product.
func (p *Pipeline) runT1(ctx context.Context, crop []byte) (string, float64, *Match) {
	if p.ocr == nil {
		return "", 0, nil
	}
	text, conf, ok, err := p.ocr.OCRTitle(ctx, crop)
	if err != nil || !ok {
		if err != nil {
			slog.Warn("scan pipeline: T1 OCR failed", slog.String("error", err.Error()))
		}
		return "", 0, nil
	}

	normalized := normalize.Title(text)
	if normalized == "" {
		return text, conf, nil
	}

	if p.router == nil {
		return normalized, conf, nil
	}

	results, err := p.router.Query(ctx, normalized)
	if err != nil || len(results) == 0 {
		if err != nil {
			slog.Warn("scan pipeline: T1 router search failed", slog.String("error", err.Error()))
		}
		return normalized, conf, nil
	}

	top := results[0]
	return normalized, conf, &Match{Product: top.Product, Source: top.Source, Confidence: top.Score}
}

// runT2 extracts a registry code from the full frame via OCR + regex, but
// only when yoloTitleConf clears the configured gate (or AlwaysRunRegex
// forces it) — skipping the full-frame OCR pass entirely otherwise, since
// a weak detection makes the extra work unlikely to pay off within budget.
func (p *Pipeline) runT2(ctx context.Context, fullFrame []byte, yoloTitleConf float64) (string, bool) {
	if !p.cfg.AlwaysRunRegex && yoloTitleConf < p.cfg.RegexGate {
		return "", true
	}
	if p.ocr == nil {
		return "", true
	}

	lines, err := p.ocr.OCRAllLines(ctx, fullFrame)
	if err != nil {
		slog.Warn("scan pipeline: T2 OCR failed", slog.String("error", err.Error()))
		return "", false
	}

	var text string
	for _, l := range lines {
		text += l.Text + " "
	}

	match, found := p.regex.Extract(text)
	if !found {
		return "", false
	}
	return match.Code, false
}

// assemble merges whichever of t1/t2 completed into a single Result,
// applying the null-never-overwrites-non-null merge rule. Stage is
// promoted to "final" whenever T2's fields were merged in, and also when
// forceFinal is set — the caller's non-partial path, where ReturnPartial
// is false and the remaining task (t2, if still nil here) has just been
// cancelled rather than left to complete, per spec.md's "either both
// tasks completed or the remaining one was cancelled; the result is
// final" invariant.
func (p *Pipeline) assemble(t1 *t1Outcome, t2 *t2Outcome, boxes []detectorport.Box, titleBox *detectorport.Box, timings map[string]float64, forceFinal bool) *Result {
	result := &Result{Stage: "partial", Boxes: boxes, TitleBox: titleBox, Timings: timings}

	if t1 != nil {
		result.TitleText = t1.text
		result.TitleConf = t1.conf
		result.Match = t1.match
		timings["ocr_title_ms"] = t1.ms
	}
	if t2 != nil {
		if result.BPOMNumber == "" && t2.bpomNumber != "" {
			result.BPOMNumber = t2.bpomNumber
		}
		result.RegexSkipped = t2.skipped
		timings["ocr_full_ms"] = t2.ms
	}
	if t2 != nil || forceFinal {
		result.Stage = "final"
	}
	return result
}
