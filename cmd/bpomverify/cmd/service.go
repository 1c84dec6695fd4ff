package cmd

import (
	"os"

	"github.com/bpomverify/bpomverify/internal/config"
	"github.com/bpomverify/bpomverify/internal/providers"
	"github.com/bpomverify/bpomverify/internal/registry"
	"github.com/bpomverify/bpomverify/internal/vectorindex"
	"github.com/bpomverify/bpomverify/pkg/verify"
)

// Provider base URLs are environment-driven rather than YAML-configured:
// they name out-of-process collaborators (SPEC_FULL.md §1 scopes their
// internals out entirely), so there is no in-repo default worth shipping.
const (
	envEmbedderURL = "BPOMVERIFY_EMBEDDER_URL"
	envDetectorURL = "BPOMVERIFY_DETECTOR_URL"
	envOCRURL      = "BPOMVERIFY_OCR_URL"
)

// openService wires a verify.Service from the loaded config and whatever
// provider URLs are set in the environment. Detector/OCR are only wired
// together, matching VerifyScan's requirement that both be present.
func openService(cfg *config.Config) (*verify.Service, error) {
	store, err := registry.NewStore(cfg.Registry.DSN, lexicalPathFor(cfg.Registry.DSN))
	if err != nil {
		return nil, err
	}

	vec, err := vectorindex.New(vectorindex.DefaultConfig(cfg.Indexing.Dimensions))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if _, statErr := os.Stat(cfg.Indexing.IndexPath); statErr == nil {
		if loadErr := vec.Load(cfg.Indexing.IndexPath); loadErr != nil {
			_ = store.Close()
			return nil, loadErr
		}
	}

	deps := verify.Dependencies{Registry: store, Vector: vec}

	if url := os.Getenv(envEmbedderURL); url != "" {
		deps.Embedder = providers.NewHTTPEmbedder(providers.EmbedderConfig{
			BaseURL: url, Dimensions: cfg.Indexing.Dimensions,
		})
	}

	detectorURL, ocrURL := os.Getenv(envDetectorURL), os.Getenv(envOCRURL)
	if detectorURL != "" && ocrURL != "" {
		deps.Detector = providers.NewHTTPDetector(providers.DetectorConfig{
			BaseURL: detectorURL, ImageSize: cfg.Detector.ImageSize, WeightsPath: cfg.Detector.WeightsPath,
		})
		if cfg.Scan.OCREngine == "b" {
			deps.OCR = providers.NewEngineB(ocrURL)
		} else {
			deps.OCR = providers.NewEngineA(ocrURL)
		}
	}

	svc, err := verify.Open(cfg, deps)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return svc, nil
}

// lexicalPathFor derives the bleve lexical index's path as a sibling of
// the SQLite catalog file; an empty DSN (in-memory) yields an empty
// lexical path too, keeping both halves of the Store in-memory together.
func lexicalPathFor(dsn string) string {
	if dsn == "" {
		return ""
	}
	return dsn + ".lexical"
}
