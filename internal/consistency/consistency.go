// Package consistency checks that the vector index agrees with the
// product catalog: every catalog product that claims a faiss_id should be
// findable in the vector index, and every id the vector index holds should
// trace back to a real catalog product. It never mutates either store on
// its own — orphan cleanup is a reported recommendation, repaired by the
// index builder's next full rebuild.
package consistency

import (
	"context"
	"log/slog"
	"time"

	"github.com/bpomverify/bpomverify/internal/registry"
	"github.com/bpomverify/bpomverify/internal/vectorindex"
)

// IssueType categorizes a detected cross-store discrepancy.
type IssueType int

const (
	// IssueOrphanVector is a vector-index id with no catalog product
	// claiming it (HasFaissID=true, matching faiss_id).
	IssueOrphanVector IssueType = iota
	// IssueMissingVector is a catalog product that claims a faiss_id the
	// vector index does not actually hold.
	IssueMissingVector
)

func (t IssueType) String() string {
	switch t {
	case IssueOrphanVector:
		return "orphan_vector"
	case IssueMissingVector:
		return "missing_vector"
	default:
		return "unknown"
	}
}

// Issue is one detected discrepancy.
type Issue struct {
	Type    IssueType
	FaissID int64
	Details string
}

// Result is the outcome of a full Check.
type Result struct {
	Checked  int // catalog products that claim a faiss_id
	Issues   []Issue
	Duration time.Duration
}

// Checker diffs the registry's claimed faiss_ids against what the vector
// index actually holds.
type Checker struct {
	registry registry.Port
	vector   *vectorindex.VectorIndex
}

// New constructs a Checker.
func New(reg registry.Port, vector *vectorindex.VectorIndex) *Checker {
	return &Checker{registry: reg, vector: vector}
}

// Check scans the full catalog and the full vector index, an O(n) pass
// over both, source of truth is the catalog's HasFaissID-tagged rows.
func (c *Checker) Check(ctx context.Context) (*Result, error) {
	start := time.Now()

	catalogIDs := make(map[int64]struct{})
	products, errc := c.registry.AllProducts(ctx)
	for p := range products {
		if p.HasFaissID {
			catalogIDs[p.FaissID] = struct{}{}
		}
	}
	if err := <-errc; err != nil {
		return nil, err
	}

	vectorIDs := make(map[int64]struct{})
	for _, id := range c.vector.AllIDs() {
		vectorIDs[id] = struct{}{}
	}

	var issues []Issue
	for id := range vectorIDs {
		if _, ok := catalogIDs[id]; !ok {
			issues = append(issues, Issue{Type: IssueOrphanVector, FaissID: id, Details: "vector index holds an id no catalog product claims"})
		}
	}
	for id := range catalogIDs {
		if _, ok := vectorIDs[id]; !ok {
			issues = append(issues, Issue{Type: IssueMissingVector, FaissID: id, Details: "catalog product claims a faiss_id the vector index does not hold"})
		}
	}

	return &Result{Checked: len(catalogIDs), Issues: issues, Duration: time.Since(start)}, nil
}

// QuickCheck compares only total counts, a cheap health-check a `doctor`
// command can run often. It still reads every catalog product to count
// them; it does not re-embed or look up individual vectors.
func (c *Checker) QuickCheck(ctx context.Context) (bool, error) {
	catalogCount := 0
	products, errc := c.registry.AllProducts(ctx)
	for p := range products {
		if p.HasFaissID {
			catalogCount++
		}
	}
	if err := <-errc; err != nil {
		return false, err
	}

	vectorCount := c.vector.Count()
	consistent := catalogCount == vectorCount
	if !consistent {
		slog.Debug("vector index count mismatch",
			slog.Int("catalog", catalogCount), slog.Int("vector", vectorCount))
	}
	return consistent, nil
}
