// Package indexbuilder streams the product registry into the vector index:
// compose embedding text per product, assign a stable faiss_id where one is
// missing, buffer embeddings until there is enough of a training sample,
// train once, then add everything (buffered and subsequent) before
// persisting a new index generation.
package indexbuilder

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"log/slog"
	"strings"
	"time"

	"github.com/bpomverify/bpomverify/internal/embedport"
	verrors "github.com/bpomverify/bpomverify/internal/errors"
	"github.com/bpomverify/bpomverify/internal/registry"
	"github.com/bpomverify/bpomverify/internal/vectorindex"
)

// Defaults mirror the original job's environment-configured tuning.
const (
	DefaultBatchSize    = 512
	DefaultTrainSamples = 20000
)

// Config tunes a Build run.
type Config struct {
	// BatchSize is how many product texts are embedded per provider call.
	BatchSize int

	// TrainSamples is the training-sample target: once this many vectors
	// have been buffered (for an untrained index), Train fires on the
	// full buffer before anything is added.
	TrainSamples int

	// IndexPath is where Persist writes the finished generation. Left
	// empty to skip persisting (e.g. in tests that only check in-memory
	// state).
	IndexPath string

	// OnProgress, if set, is called after each batch flush with the
	// running products-seen and embedded counts, for a caller driving a
	// progress display.
	OnProgress func(seen, embedded int)
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.TrainSamples <= 0 {
		c.TrainSamples = DefaultTrainSamples
	}
	return c
}

// Result summarizes a completed build.
type Result struct {
	ProductsSeen int
	Embedded     int
	Trained      bool
	Duration     time.Duration
}

// Builder runs the streaming index build against a registry, embedder, and
// target vector index.
type Builder struct {
	registry registry.Port
	embedder embedport.Embedder
	index    *vectorindex.VectorIndex
	cfg      Config
}

// New constructs a Builder.
func New(reg registry.Port, embedder embedport.Embedder, index *vectorindex.VectorIndex, cfg Config) *Builder {
	return &Builder{registry: reg, embedder: embedder, index: index, cfg: cfg.withDefaults()}
}

// SetOnProgress installs a progress callback for subsequent Build calls,
// for a caller that wants to drive a progress display without threading
// the callback through at construction time.
func (b *Builder) SetOnProgress(fn func(seen, embedded int)) {
	b.cfg.OnProgress = fn
}

// StableFaissID derives the stable id every product gets assigned once:
// the first 8 bytes of sha1(productID), big-endian, masked to 63 bits so
// the result is always representable as a positive int64 — collisions are
// not a practical concern at catalog scale.
func StableFaissID(productID string) int64 {
	sum := sha1.Sum([]byte(productID))
	v := binary.BigEndian.Uint64(sum[:8])
	return int64(v & ((1 << 63) - 1))
}

// ComposeText joins the non-empty fields the embedder sees, in a fixed
// field order, separated by " | ". A product with every field blank
// produces an empty string and is skipped by Build rather than embedded.
func ComposeText(p registry.Product) string {
	fields := []string{p.Name, p.DosageForm, p.Composition, p.Manufacturer}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " | ")
}

// Build streams every product out of the registry, embeds it in batches,
// and feeds the vector index — buffering until TrainSamples is reached (or
// the stream ends) before the first Train, then adding every subsequent
// batch directly. It finishes by persisting the index if IndexPath is set.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	start := time.Now()

	products, errc := b.registry.AllProducts(ctx)

	var (
		batchTexts []string
		batchIDs   []int64
		bufferVecs [][]float32
		bufferIDs  []int64

		// IsTrained() is unconditionally true for a freshly constructed
		// flat placeholder, so the buffer-until-threshold decision below
		// has to key off Decided() instead — whether a mode has actually
		// been chosen for this index yet.
		trained        = b.index.Decided()
		seen, embedded int
	)

	flushBatch := func() error {
		if len(batchTexts) == 0 {
			return nil
		}

		vecs, err := b.embedder.EmbedBatch(ctx, batchTexts)
		if err != nil {
			return verrors.New(verrors.ErrCodeEmbedderFailed, "embed product batch", err)
		}
		embedded += len(vecs)

		if !trained {
			bufferVecs = append(bufferVecs, vecs...)
			bufferIDs = append(bufferIDs, batchIDs...)

			if len(bufferVecs) >= b.cfg.TrainSamples {
				if err := b.index.Train(bufferVecs); err != nil {
					return err
				}
				if err := b.index.Add(bufferIDs, bufferVecs); err != nil {
					return err
				}
				bufferVecs, bufferIDs = nil, nil
				trained = true
			}
		} else {
			if err := b.index.Add(batchIDs, vecs); err != nil {
				return err
			}
		}

		batchTexts = batchTexts[:0]
		batchIDs = batchIDs[:0]
		if b.cfg.OnProgress != nil {
			b.cfg.OnProgress(seen, embedded)
		}
		return nil
	}

	for p := range products {
		seen++

		if !p.HasFaissID {
			fid := StableFaissID(p.ID)
			if err := b.registry.SetFaissID(ctx, p.ID, fid); err != nil {
				slog.Warn("failed to persist faiss id, skipping product",
					slog.String("product_id", p.ID), slog.String("error", err.Error()))
				continue
			}
			p.FaissID = fid
			p.HasFaissID = true
		}

		text := ComposeText(p)
		if text == "" {
			continue
		}

		batchTexts = append(batchTexts, text)
		batchIDs = append(batchIDs, p.FaissID)

		if len(batchTexts) >= b.cfg.BatchSize {
			if err := flushBatch(); err != nil {
				return nil, err
			}
		}
	}

	if err := flushBatch(); err != nil {
		return nil, err
	}

	// Corpus never reached TrainSamples: train on whatever was buffered so
	// a small catalog still ends up with a searchable index.
	if !trained && len(bufferVecs) > 0 {
		if err := b.index.Train(bufferVecs); err != nil {
			return nil, err
		}
		if err := b.index.Add(bufferIDs, bufferVecs); err != nil {
			return nil, err
		}
		trained = true
	}

	if err := <-errc; err != nil {
		return nil, verrors.New(verrors.ErrCodeRegistryUnavailable, "stream products from registry", err)
	}

	if b.cfg.IndexPath != "" {
		if err := b.index.Persist(b.cfg.IndexPath); err != nil {
			return nil, err
		}
	}

	return &Result{
		ProductsSeen: seen,
		Embedded:     embedded,
		Trained:      trained,
		Duration:     time.Since(start),
	}, nil
}
