package verify

import (
	"context"

	"github.com/bpomverify/bpomverify/internal/consistency"
	"github.com/bpomverify/bpomverify/internal/indexbuilder"
	verrors "github.com/bpomverify/bpomverify/internal/errors"
)

// BuildIndex runs a full Index Builder pass: stream every catalog product,
// embed it, and persist a new vector index generation at
// cfg.Indexing.IndexPath.
func (s *Service) BuildIndex(ctx context.Context) (*indexbuilder.Result, error) {
	if s.embedder == nil {
		return nil, verrors.New(verrors.ErrCodeConfigInvalid,
			"verify.BuildIndex: no embedder configured", nil).
			WithSuggestion("pass Dependencies.Embedder to verify.Open")
	}
	result, err := s.builder.Build(ctx)
	if err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeIndexBuildFailed, err)
	}
	return result, nil
}

// BuildIndexWithProgress is BuildIndex with a progress callback invoked
// after each embedded batch, for a caller driving a live display (the
// `index build` CLI's TUI).
func (s *Service) BuildIndexWithProgress(ctx context.Context, onProgress func(seen, embedded int)) (*indexbuilder.Result, error) {
	if s.embedder == nil {
		return nil, verrors.New(verrors.ErrCodeConfigInvalid,
			"verify.BuildIndex: no embedder configured", nil).
			WithSuggestion("pass Dependencies.Embedder to verify.Open")
	}
	s.builder.SetOnProgress(onProgress)
	defer s.builder.SetOnProgress(nil)

	result, err := s.builder.Build(ctx)
	if err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeIndexBuildFailed, err)
	}
	return result, nil
}

// IndexInfo summarizes the live vector index's state for the `index info`
// CLI command.
type IndexInfo struct {
	Trained bool
	Count   int
	Path    string
}

// Info reports the current vector index state.
func (s *Service) Info() IndexInfo {
	return IndexInfo{
		Trained: s.vector.Decided(),
		Count:   s.vector.Count(),
		Path:    s.cfg.Indexing.IndexPath,
	}
}

// CheckConsistency runs the full Consistency Checker pass, diffing the
// catalog's claimed faiss_ids against what the vector index actually holds.
func (s *Service) CheckConsistency(ctx context.Context) (*consistency.Result, error) {
	return s.checker.Check(ctx)
}

// QuickCheck runs the Consistency Checker's cheap count-only comparison.
func (s *Service) QuickCheck(ctx context.Context) (bool, error) {
	return s.checker.QuickCheck(ctx)
}
