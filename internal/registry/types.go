// Package registry implements the Registry Port: the read/write interface
// the verification core uses to reach the product catalog, its lexical
// index, and the audit log. Everything upstream of this package (the
// crawlers that populate the catalog, the document database the reference
// implementation runs against) is out of scope; this package only needs to
// honor the port contract against its own SQLite-backed reference store.
package registry

import (
	"context"
	"time"
)

// Source identifies which retrieval tier produced a Hit.
type Source string

const (
	SourceExact  Source = "exact"
	SourceLex    Source = "lex"
	SourceVector Source = "vector"
	SourceHybrid Source = "hybrid"
)

// Product is the catalog entity verified against. Code is the registration
// identifier and is unique when present; FaissID is the stable, non-negative
// 63-bit key used by the vector index.
type Product struct {
	ID           string
	Code         string
	Name         string
	Manufacturer string
	DosageForm   string
	Composition  string
	Category     string
	Status       string
	UpdatedAt    time.Time
	FaissID      int64
	HasFaissID   bool
}

// Hit is a Product enriched with retrieval metadata. Score is always in
// [0,1]; Src names the tier (or blend of tiers) that produced it.
type Hit struct {
	Product
	Score float64
	Src   Source
}

// Port is the interface the retrieval router and index builder consume.
// Implementations must be safe for concurrent use.
type Port interface {
	// FindByCode performs the exact tier lookup. Returns ok=false, not an
	// error, when no product has that code.
	FindByCode(ctx context.Context, code string) (Product, bool, error)

	// SearchLexical performs the lexical tier. Results carry Score and
	// Src=SourceLex, ordered by descending score.
	SearchLexical(ctx context.Context, query string, limit int) ([]Hit, error)

	// GetByIntIDs bulk-loads products by FaissID, used to resolve vector
	// tier neighbor ids back to catalog records. Missing ids are silently
	// omitted from the result, never erroring.
	GetByIntIDs(ctx context.Context, ids []int64) ([]Product, error)

	// SaveAudit appends an audit log row for a verification decision.
	SaveAudit(ctx context.Context, code string, decision string, at time.Time) error

	// UpsertProduct inserts or replaces a catalog row, keyed by ID.
	UpsertProduct(ctx context.Context, p Product) error

	// SetFaissID patches a stable faiss_id onto a product that does not
	// have one yet. Called by the Index Builder during its first pass.
	SetFaissID(ctx context.Context, productID string, faissID int64) error

	// AllProducts streams the full catalog in ID order, for the Index
	// Builder and the consistency checker. The returned channel is closed
	// when iteration finishes or ctx is cancelled.
	AllProducts(ctx context.Context) (<-chan Product, <-chan error)

	Close() error
}
