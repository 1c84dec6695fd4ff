// Package router implements the retrieval router: given a query string (a
// scanned code or an OCR'd title), decide which tier(s) of the product
// index answer it — an exact registry-code lookup, the lexical (bleve)
// tier, and conditionally the vector tier — and blend the lexical and
// vector scores when both fire.
package router

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/bpomverify/bpomverify/internal/embedport"
	"github.com/bpomverify/bpomverify/internal/normalize"
	"github.com/bpomverify/bpomverify/internal/registry"
	"github.com/bpomverify/bpomverify/internal/vectorindex"
)

// Default tuning, matching the reference router's constants.
const (
	DefaultLexicalLimit  = 25
	DefaultVectorLimit   = 25
	DefaultLexicalGate   = 0.35
	DefaultLexicalWeight = 0.6
	DefaultVectorWeight  = 0.4
)

// Config tunes a Router.
type Config struct {
	LexicalLimit  int
	VectorLimit   int
	LexicalGate   float64 // below this lexical top score, the vector tier also fires
	LexicalWeight float64
	VectorWeight  float64

	// DisableVector forces the vector tier off regardless of gating —
	// used for offline/no-embedder deployments.
	DisableVector bool
}

func (c Config) withDefaults() Config {
	if c.LexicalLimit <= 0 {
		c.LexicalLimit = DefaultLexicalLimit
	}
	if c.VectorLimit <= 0 {
		c.VectorLimit = DefaultVectorLimit
	}
	if c.LexicalGate <= 0 {
		c.LexicalGate = DefaultLexicalGate
	}
	if c.LexicalWeight == 0 && c.VectorWeight == 0 {
		c.LexicalWeight = DefaultLexicalWeight
		c.VectorWeight = DefaultVectorWeight
	}
	return c
}

// Router is the product index's public query entry point.
type Router struct {
	registry registry.Port
	embedder embedport.Embedder
	vector   *vectorindex.VectorIndex
	cfg      Config
}

// New constructs a Router. embedder/vector may be nil when
// cfg.DisableVector is set — the vector tier is then never consulted.
func New(reg registry.Port, embedder embedport.Embedder, vector *vectorindex.VectorIndex, cfg Config) *Router {
	return &Router{registry: reg, embedder: embedder, vector: vector, cfg: cfg.withDefaults()}
}

// Result is one ranked hit, carrying which tier(s) produced it.
type Result struct {
	Product registry.Product
	Score   float64
	Source  registry.Source
}

// Query runs the full tiered retrieval: exact code lookup first (if the
// query looks like a registry code), then lexical, then conditionally
// vector, blending lexical and vector scores when both tiers return the
// product.
func (r *Router) Query(ctx context.Context, query string) ([]Result, error) {
	if normalize.LooksLikeCode(query) {
		if p, found, err := r.registry.FindByCode(ctx, query); err != nil {
			return nil, err
		} else if found {
			return []Result{{Product: p, Score: 1.0, Source: registry.SourceExact}}, nil
		}
		// Falls through to lexical/vector tiers: a code-shaped query with
		// no exact registry hit may still be a genuine near-miss (OCR
		// error in a digit) worth ranking against the catalog.
	}

	normalized := normalize.Title(query)

	lexHits, vecHits, err := r.parallelSearch(ctx, normalized)
	if err != nil {
		return nil, err
	}

	return r.blend(lexHits, vecHits), nil
}

// parallelSearch runs the lexical tier always, and the vector tier when
// the query is noisy, the lexical top score is below the gate, or vector
// search fires unconditionally because no lexical hit exists yet — the
// vector tier only sits idle when both lexical scored confidently above
// the gate and the query isn't noisy. Graceful degradation: an error in
// either tier does not fail the other (mirrors this repo's parallel
// fan-out convention used for embedding + search elsewhere).
func (r *Router) parallelSearch(ctx context.Context, query string) ([]registry.Hit, []registry.Hit, error) {
	var lexHits []registry.Hit
	var lexErr, vecErr error

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		lexHits, err = r.registry.SearchLexical(gctx, query, r.cfg.LexicalLimit)
		if err != nil {
			lexErr = err
		}
		return nil
	})

	var vecHits []registry.Hit
	needsVector := !r.cfg.DisableVector && r.embedder != nil && r.vector != nil
	if needsVector {
		g.Go(func() error {
			// Wait is implicit: lexHits/lexErr are read only after g.Wait()
			// below, so this goroutine computing the gate condition races
			// harmlessly with the lexical goroutine above — the gate is
			// recomputed after both complete (see below), this inner call
			// only decides whether to skip embedding work eagerly when the
			// query is already known-noisy.
			if !normalize.IsNoisy(query) {
				return nil
			}
			vecHits, vecErr = r.searchVector(gctx, query)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if lexErr != nil {
		slog.Warn("lexical tier failed, continuing with what vector found",
			slog.String("error", lexErr.Error()))
	}

	// Re-evaluate the gate now that the lexical score is known: fire the
	// vector tier if it didn't already (query wasn't flagged noisy) but
	// the lexical top score came back weak or empty.
	if needsVector && vecHits == nil && vecErr == nil {
		topLex := topScore(lexHits)
		if topLex < r.cfg.LexicalGate {
			vecHits, vecErr = r.searchVector(ctx, query)
		}
	}

	if vecErr != nil {
		slog.Warn("vector tier failed, continuing with lexical results only",
			slog.String("error", vecErr.Error()))
	}

	return lexHits, vecHits, nil
}

func (r *Router) searchVector(ctx context.Context, query string) ([]registry.Hit, error) {
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	neighbors, err := r.vector.Search(embedding, r.cfg.VectorLimit)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(neighbors))
	distances := make(map[int64]float32, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ID
		distances[n.ID] = n.Distance
	}

	products, err := r.registry.GetByIntIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	hits := make([]registry.Hit, 0, len(products))
	for _, p := range products {
		d := distances[p.FaissID]
		sim := 1.0 / (1.0 + float64(d))
		hits = append(hits, registry.Hit{Product: p, Score: sim, Src: registry.SourceVector})
	}
	return hits, nil
}

func topScore(hits []registry.Hit) float64 {
	top := 0.0
	for _, h := range hits {
		if h.Score > top {
			top = h.Score
		}
	}
	return top
}

// blend merges lexical and vector hits: a product present in both tiers
// gets 0.6*lex + 0.4*vec (SourceHybrid); one present in only one tier
// keeps that tier's raw score and source. Results are sorted descending
// by score.
func (r *Router) blend(lexHits, vecHits []registry.Hit) []Result {
	byID := make(map[string]*Result, len(lexHits)+len(vecHits))
	order := make([]string, 0, len(lexHits)+len(vecHits))

	for _, h := range lexHits {
		byID[h.Product.ID] = &Result{Product: h.Product, Score: h.Score, Source: registry.SourceLex}
		order = append(order, h.Product.ID)
	}

	for _, h := range vecHits {
		if existing, ok := byID[h.Product.ID]; ok {
			existing.Score = r.cfg.LexicalWeight*existing.Score + r.cfg.VectorWeight*h.Score
			existing.Source = registry.SourceHybrid
			continue
		}
		byID[h.Product.ID] = &Result{Product: h.Product, Score: h.Score, Source: registry.SourceVector}
		order = append(order, h.Product.ID)
	}

	results := make([]Result, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		if seen[id] {
			continue
		}
		seen[id] = true
		results = append(results, *byID[id])
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}
