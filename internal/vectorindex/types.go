// Package vectorindex implements the vector tier of the product index: a
// small Index contract (load/is_trained/train/add/search/persist) with two
// backing implementations selected automatically by corpus size — an exact
// flat graph for small collections and a quantized IVF+PQ index once the
// corpus is large enough to benefit from approximate search. Callers only
// ever see the composing VectorIndex; FlatIndex and the IVF+PQ index are
// implementation detail.
package vectorindex

import (
	"fmt"

	verrors "github.com/bpomverify/bpomverify/internal/errors"
)

// Neighbor is one search hit: the stable product faiss_id and its distance
// to the query vector (metric depends on the underlying mode; lower is
// always closer). Callers map distance to a similarity score themselves
// (sim = 1/(1+d)), matching where that mapping belongs in the pipeline.
type Neighbor struct {
	ID       int64
	Distance float32
}

// sentinelID marks an absent neighbor slot; callers must filter it out of
// Search results rather than treat it as a real product.
const sentinelID int64 = -1

// Config parameterizes mode selection and IVF+PQ training.
type Config struct {
	Dimensions int

	// ForceFlat pins the index to flat mode regardless of corpus size
	// (used for small catalogs and in tests).
	ForceFlat bool

	// FlatThreshold is the training-sample count below which the index
	// trains flat even when ForceFlat is false.
	FlatThreshold int

	// NlistMax caps the number of IVF coarse clusters; the effective
	// nlist is clamp(2*sqrt(N), 16, NlistMax).
	NlistMax int

	// Subquantizers is the number of PQ subvector splits (M). Dimensions
	// must be evenly divisible by it; if not, PQ training falls back to
	// flat (see ivf.go).
	Subquantizers int

	// Nprobe is the number of coarse lists visited per search.
	Nprobe int

	// Metric selects the flat-mode distance function: "cos" or "l2".
	Metric string
}

// DefaultConfig returns the spec's default tuning.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions:    dimensions,
		FlatThreshold: 256,
		NlistMax:      4096,
		Subquantizers: 16,
		Nprobe:        8,
		Metric:        "cos",
	}
}

func (c Config) validate() error {
	if c.Dimensions <= 0 {
		return verrors.New(verrors.ErrCodeDimensionMismatch, "vector index dimensions must be positive", nil)
	}
	return nil
}

// Index is the contract every vector index mode implements.
type Index interface {
	// IsTrained reports whether Search is safe to call.
	IsTrained() bool

	// Train fits the index's internal structures (coarse centroids and PQ
	// codebooks for quantized mode; a no-op for flat). Calling Train a
	// second time on an already-trained index is a no-op.
	Train(vectors [][]float32) error

	// Add inserts vectors under the given stable ids. For quantized mode
	// this requires IsTrained() to be true; callers auto-train via
	// VectorIndex, never this method directly.
	Add(ids []int64, vectors [][]float32) error

	// Search returns up to k neighbors ordered by ascending distance.
	// Slots with no match are never emitted — there is no sentinel in
	// the returned slice, only in the argument paths internal modes use
	// while assembling it.
	Search(query []float32, k int) ([]Neighbor, error)

	// Count returns the number of vectors currently held.
	Count() int

	// AllIDs returns every id currently held, in no particular order —
	// used by the consistency checker to diff the vector tier against the
	// catalog without needing a dedicated per-id existence call.
	AllIDs() []int64
}

func dimensionMismatch(expected, got int) error {
	return verrors.New(verrors.ErrCodeDimensionMismatch,
		fmt.Sprintf("vector dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", fmt.Sprintf("%d", expected)).
		WithDetail("got", fmt.Sprintf("%d", got))
}
