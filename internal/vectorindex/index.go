package vectorindex

import (
	"log/slog"
	"sync"

	"github.com/gofrs/flock"

	verrors "github.com/bpomverify/bpomverify/internal/errors"
)

// mode names the backing implementation currently in effect.
type mode int

const (
	modeFlat mode = iota
	modeQuantized
)

// VectorIndex is the vector tier's public entry point: it owns mode
// selection (flat below the training threshold or when forced, quantized
// IVF+PQ otherwise), auto-train-on-add, fallback-to-flat when quantized
// training fails, and atomic cross-process-safe persistence guarded by an
// advisory file lock — mirroring the single-writer discipline the registry's
// SQLite connection pool uses, generalized to a plain file since there is
// no database here to serialize writes through.
type VectorIndex struct {
	mu     sync.RWMutex
	cfg    Config
	active Index
	path   string

	// decided reports whether a mode choice (flat vs. quantized) has
	// actually been made for this index yet, independent of the active
	// mode's own IsTrained() — flatIndex.IsTrained() is unconditionally
	// true even for the untouched placeholder a fresh VectorIndex starts
	// with, so Add's auto-train-on-first-batch decision cannot be driven
	// off IsTrained() alone.
	decided bool
}

// New creates an untrained VectorIndex. Mode is decided the first time
// Train or Add sees data; until then Count/Search behave as an empty flat
// index (flat never requires training, so an index with zero vectors is
// always safely searchable — it just returns no neighbors).
func New(cfg Config) (*VectorIndex, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &VectorIndex{
		cfg:    cfg,
		active: newFlatIndex(cfg.Dimensions, cfg.Metric),
	}, nil
}

// IsTrained reports whether the active mode is ready to accept Add/Search.
// Flat is always trained; quantized is trained only after a successful
// Train call.
func (v *VectorIndex) IsTrained() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.active.IsTrained()
}

// Decided reports whether this index has ever had its flat-vs-quantized
// mode chosen, either by an explicit Train call, by Add's auto-train path,
// or by a successful Load. A fresh VectorIndex is never decided, even
// though its placeholder flat mode already reports IsTrained()==true.
func (v *VectorIndex) Decided() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.decided
}

// Mode reports the active backing implementation, "flat" or "quantized".
func (v *VectorIndex) Mode() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.modeLocked() == modeQuantized {
		return "quantized"
	}
	return "flat"
}

// Train selects a mode for the given training sample and fits it. Below
// FlatThreshold (or when ForceFlat is set), the index stays flat — flat
// has no real training step, so this is a cheap no-op beyond mode pinning.
// Otherwise it attempts quantized IVF+PQ training; if that training fails
// (dimension not divisible by the subquantizer count, degenerate
// clustering, or any other internal error) the index falls back to flat
// rather than leave a half-trained quantized index exposed to Search — an
// untrained non-flat index must never be searchable.
func (v *VectorIndex) Train(vectors [][]float32) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.decided && v.active.IsTrained() && v.modeLocked() == modeQuantized {
		return nil // idempotent: already trained quantized, no-op
	}

	useFlat := v.cfg.ForceFlat || len(vectors) < v.cfg.FlatThreshold
	if useFlat {
		v.active = newFlatIndex(v.cfg.Dimensions, v.cfg.Metric)
		v.decided = true
		return nil
	}

	ivf := newIVFPQIndex(v.cfg)
	nlist := nlistFor(len(vectors), v.cfg.NlistMax)
	if err := ivf.trainWithNlist(vectors, nlist); err != nil {
		slog.Warn("ivf+pq training failed, falling back to flat index",
			slog.String("error", err.Error()), slog.Int("samples", len(vectors)))
		v.active = newFlatIndex(v.cfg.Dimensions, v.cfg.Metric)
		v.decided = true
		return nil
	}

	v.active = ivf
	v.decided = true
	return nil
}

func (v *VectorIndex) modeLocked() mode {
	if _, ok := v.active.(*flatIndex); ok {
		return modeFlat
	}
	return modeQuantized
}

// Add inserts vectors under their stable ids. If no mode decision has been
// made yet, Add auto-trains on the incoming batch first (the spec's
// add-before-train handling) — this can promote the index from an empty
// flat placeholder straight to quantized mode if the batch is large
// enough, or keep it flat if the batch is small. This decision is made
// once per index lifetime (or once per Load), not re-evaluated on every
// Add call.
func (v *VectorIndex) Add(ids []int64, vectors [][]float32) error {
	v.mu.RLock()
	decided := v.decided
	v.mu.RUnlock()

	if !decided {
		if err := v.Train(vectors); err != nil {
			return err
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active.Add(ids, vectors)
}

// Search returns up to k neighbors, filtering out any sentinel slot the
// active mode may internally use while assembling results.
func (v *VectorIndex) Search(query []float32, k int) ([]Neighbor, error) {
	v.mu.RLock()
	active := v.active
	v.mu.RUnlock()

	neighbors, err := active.Search(query, k)
	if err != nil {
		return nil, err
	}

	out := neighbors[:0]
	for _, n := range neighbors {
		if n.ID == sentinelID {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// Count returns the number of vectors in the active mode.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.active.Count()
}

// AllIDs returns every id held by the active mode.
func (v *VectorIndex) AllIDs() []int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.active.AllIDs()
}

// Persist writes the active index to path, guarded by an advisory file
// lock so a concurrent index-build job and a long-lived router process
// never interleave writes to the same generation file. The write itself is
// atomic (temp file + rename); the lock only serializes the brief window
// multiple writers might otherwise collide in.
func (v *VectorIndex) Persist(path string) error {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return verrors.New(verrors.ErrCodeIndexLocked, "acquire vector index lock", err)
	}
	if !locked {
		return verrors.New(verrors.ErrCodeIndexLocked, "vector index is locked by another writer", nil)
	}
	defer lock.Unlock()

	v.mu.RLock()
	var perr error
	switch idx := v.active.(type) {
	case *flatIndex:
		perr = idx.persist(path)
	case *ivfPQIndex:
		perr = idx.persist(path)
	default:
		perr = verrors.New(verrors.ErrCodeInternal, "unknown vector index mode", nil)
	}
	v.mu.RUnlock()
	if perr != nil {
		return perr
	}

	return v.persistModeMarker(path)
}

// Load reads a previously persisted index from path. On any read failure
// (missing file, truncated data, schema mismatch) it resets the index to
// an empty, undecided flat index rather than returning an error — matching
// the spec's "disk-read error on load yields empty state" rule, since a
// missing index at startup is a normal cold-start condition, not a fault.
func (v *VectorIndex) Load(path string) error {
	modeFile := path + ".mode"
	var m flatModeMarker
	_ = loadGobSidecar(modeFile, &m)

	v.mu.Lock()
	defer v.mu.Unlock()

	if m.Quantized {
		ivf := newIVFPQIndex(v.cfg)
		ivf.load(path)
		if ivf.trained {
			v.active = ivf
			v.decided = true
			return nil
		}
	}

	flat := newFlatIndex(v.cfg.Dimensions, v.cfg.Metric)
	flat.load(path)
	v.active = flat
	// A flat load only reflects a genuine prior mode decision if it
	// actually recovered data; a missing/corrupt file leaves flat empty,
	// which must remain undecided so a later Add can still auto-promote.
	v.decided = flat.Count() > 0
	return nil
}

type flatModeMarker struct {
	Quantized bool
}

var (
	_ Index = (*flatIndex)(nil)
	_ Index = (*ivfPQIndex)(nil)
	_ Index = (*VectorIndex)(nil)
)

// persistModeMarker records which mode a generation was saved in, written
// alongside Persist so Load knows which decoder to try first. Persist
// calls this itself right after the index file is written.
func (v *VectorIndex) persistModeMarker(path string) error {
	v.mu.RLock()
	quantized := v.modeLocked() == modeQuantized
	v.mu.RUnlock()
	return persistGobSidecar(path+".mode", flatModeMarker{Quantized: quantized})
}
