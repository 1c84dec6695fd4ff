// Package verify is the public façade over bpomverify's core: it wires the
// Registry Port, Embedder Port, Vector Index, Retrieval Router, Scan
// Pipeline, Index Builder, and Consistency Checker into the handful of
// operations a caller (the cmd/bpomverify CLI, or any Go program importing
// this module directly) actually needs — verify a text query, verify a
// label photograph, rebuild the vector index, and check the two stores
// agree.
package verify

import (
	"context"
	"io"
	"log/slog"

	"github.com/bpomverify/bpomverify/internal/aggregator"
	"github.com/bpomverify/bpomverify/internal/cacheport"
	"github.com/bpomverify/bpomverify/internal/config"
	"github.com/bpomverify/bpomverify/internal/consistency"
	"github.com/bpomverify/bpomverify/internal/detectorport"
	"github.com/bpomverify/bpomverify/internal/embedport"
	verrors "github.com/bpomverify/bpomverify/internal/errors"
	"github.com/bpomverify/bpomverify/internal/indexbuilder"
	"github.com/bpomverify/bpomverify/internal/indexwatch"
	"github.com/bpomverify/bpomverify/internal/ocrport"
	"github.com/bpomverify/bpomverify/internal/regexcode"
	"github.com/bpomverify/bpomverify/internal/registry"
	"github.com/bpomverify/bpomverify/internal/router"
	"github.com/bpomverify/bpomverify/internal/scanpipeline"
	"github.com/bpomverify/bpomverify/internal/vectorindex"
)

// Dependencies are the external collaborators SPEC_FULL.md treats as
// out-of-process ports: the registry store, the embedding/object-detection/
// OCR providers, and (optionally) a memoization cache. Registry and Vector
// are required; a nil Embedder turns off the router's vector tier and makes
// BuildIndex fail. Detector and OCR are only needed to call VerifyScan — a
// caller that only ever verifies text queries may leave them nil.
type Dependencies struct {
	Registry registry.Port
	Embedder embedport.Embedder
	Vector   *vectorindex.VectorIndex
	Detector detectorport.Detector
	OCR      ocrport.Engine
	Cache    cacheport.Cache
}

// Service is the façade's core type. It owns no goroutines beyond an
// optional index-watch loop started by WatchIndex.
type Service struct {
	cfg      *config.Config
	registry registry.Port
	embedder embedport.Embedder
	vector   *vectorindex.VectorIndex
	cache    cacheport.Cache

	router    *router.Router
	pipeline  *scanpipeline.Pipeline
	builder   *indexbuilder.Builder
	checker   *consistency.Checker
	extractor *regexcode.Extractor
}

// Open wires deps and cfg into a ready-to-use Service. The embedder is
// wrapped in embedport.NewCachedEmbedder so repeated or concurrently
// duplicated queries within one process hit the provider once.
func Open(cfg *config.Config, deps Dependencies) (*Service, error) {
	if deps.Registry == nil {
		return nil, verrors.New(verrors.ErrCodeConfigInvalid, "verify.Open: Dependencies.Registry is required", nil)
	}
	if deps.Vector == nil {
		return nil, verrors.New(verrors.ErrCodeConfigInvalid, "verify.Open: Dependencies.Vector is required", nil)
	}

	cache := deps.Cache
	if cache == nil {
		cache = cacheport.NewLRUCache(0)
	}

	embedder := deps.Embedder
	if embedder != nil {
		embedder = embedport.NewCachedEmbedder(embedder, embedport.DefaultCacheSize)
	}

	r := router.New(deps.Registry, embedder, deps.Vector, router.Config{
		DisableVector: cfg.Router.DisableVector || embedder == nil,
	})

	extractor := regexcode.NewDefault()
	if cfg.Registry.RegexTaxonomyPath != "" {
		extractor = regexcode.LoadConfig(cfg.Registry.RegexTaxonomyPath)
	}

	t1, t2 := cfg.Scan.ScanTimeouts()
	pipelineCfg := scanpipeline.Config{
		T1Timeout:      t1,
		T2Timeout:      t2,
		RegexGate:      cfg.Scan.RegexGate,
		AlwaysRunRegex: cfg.Scan.AlwaysRunRegex,
		TitleClassID:   cfg.Detector.TitleClassID,
	}

	var pipeline *scanpipeline.Pipeline
	if deps.Detector != nil && deps.OCR != nil {
		pipeline = scanpipeline.New(deps.Detector, deps.OCR, extractor, r, pipelineCfg)
	}

	builder := indexbuilder.New(deps.Registry, deps.Embedder, deps.Vector, indexbuilder.Config{
		BatchSize:    cfg.Indexing.BatchSize,
		TrainSamples: cfg.Indexing.TrainSamples,
		IndexPath:    cfg.Indexing.IndexPath,
	})

	checker := consistency.New(deps.Registry, deps.Vector)

	return &Service{
		cfg:       cfg,
		registry:  deps.Registry,
		embedder:  embedder,
		vector:    deps.Vector,
		cache:     cache,
		router:    r,
		pipeline:  pipeline,
		builder:   builder,
		checker:   checker,
		extractor: extractor,
	}, nil
}

// WatchIndex starts a background reload loop that swaps in a new vector
// index generation whenever cfg.Indexing.IndexPath changes on disk,
// blocking until ctx is cancelled. Call it in its own goroutine from a
// long-lived caller (a process that keeps one Service around across many
// VerifyQuery/VerifyScan calls); one-shot CLI invocations have no use for
// it.
func (s *Service) WatchIndex(ctx context.Context) {
	w := indexwatch.New(s.cfg.Indexing.IndexPath, s.vector, func(err error) {
		if err != nil {
			slog.Error("index watch reload failed", slog.String("error", err.Error()))
		}
	})
	w.Run(ctx)
}

// Aggregate exposes the Evidence Aggregator's decision table directly, for
// callers assembling their own evidence outside VerifyQuery/VerifyScan.
func (s *Service) Aggregate(evidence []aggregator.Evidence) aggregator.Result {
	return aggregator.Aggregate(evidence)
}

// Close releases the registry connection if it implements io.Closer
// (the reference *registry.Store does).
func (s *Service) Close() error {
	if closer, ok := s.registry.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
