package vectorindex

import (
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	verrors "github.com/bpomverify/bpomverify/internal/errors"
)

// ivfPQIndex is a quantized inverted-file index: vectors are coarsely
// assigned to one of nlist clusters, and within each cluster the residual
// (vector minus its centroid) is product-quantized to a handful of bytes.
// Search probes the nprobe closest coarse lists and scores candidates with
// the asymmetric distance computation table, never decompressing codes
// back to full vectors.
//
// This mode has no analogue in the reference corpus — hand-rolled and
// documented in DESIGN.md as the one necessarily-from-scratch core
// algorithm, since no example repo ships an IVF+PQ implementation or binds
// one (faiss' Go bindings require CGO, which the corpus otherwise avoids
// throughout for portability).
type ivfPQIndex struct {
	mu sync.RWMutex

	dim           int
	nlist         int
	nprobe        int
	subquantizers int

	trained   bool
	centroids [][]float32
	pq        *productQuantizer

	// lists[c] holds every vector assigned to coarse cluster c.
	lists []invertedList
}

type invertedList struct {
	ids   []int64
	codes [][]byte
}

func newIVFPQIndex(cfg Config) *ivfPQIndex {
	return &ivfPQIndex{
		dim:           cfg.Dimensions,
		nprobe:        cfg.Nprobe,
		subquantizers: cfg.Subquantizers,
	}
}

// nlistFor implements clamp(2*sqrt(n), 16, nlistMax).
func nlistFor(n, nlistMax int) int {
	v := int(2 * math.Sqrt(float64(n)))
	if v < 16 {
		v = 16
	}
	if v > nlistMax {
		v = nlistMax
	}
	return v
}

func (ix *ivfPQIndex) IsTrained() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.trained
}

func (ix *ivfPQIndex) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := 0
	for _, l := range ix.lists {
		n += len(l.ids)
	}
	return n
}

// AllIDs returns every id across every inverted list, in no particular
// order.
func (ix *ivfPQIndex) AllIDs() []int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]int64, 0, ix.countLocked())
	for _, l := range ix.lists {
		out = append(out, l.ids...)
	}
	return out
}

func (ix *ivfPQIndex) countLocked() int {
	n := 0
	for _, l := range ix.lists {
		n += len(l.ids)
	}
	return n
}

// trainWithNlist fits coarse centroids and PQ codebooks. Calling Train
// again on an already-trained index is a no-op, matching the spec's
// idempotency rule.
func (ix *ivfPQIndex) trainWithNlist(vectors [][]float32, nlist int) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.trained {
		return nil
	}
	if ix.dim%ix.subquantizers != 0 {
		return verrors.New(verrors.ErrCodeIndexBuildFailed,
			"vector dimension not divisible by subquantizer count", nil)
	}
	for _, v := range vectors {
		if len(v) != ix.dim {
			return dimensionMismatch(ix.dim, len(v))
		}
	}

	ix.nlist = nlist
	ix.centroids = kmeans(vectors, nlist, ix.dim, 25)
	if len(ix.centroids) == 0 {
		return verrors.New(verrors.ErrCodeIndexBuildFailed, "coarse clustering produced no centroids", nil)
	}

	residuals := make([][]float32, len(vectors))
	for i, v := range vectors {
		c, _ := nearestCentroid(v, ix.centroids)
		residuals[i] = residual(v, ix.centroids[c])
	}
	ix.pq = trainProductQuantizer(residuals, ix.dim, ix.subquantizers, 15)
	ix.lists = make([]invertedList, len(ix.centroids))
	ix.trained = true
	return nil
}

func residual(v, centroid []float32) []float32 {
	r := make([]float32, len(v))
	for i := range v {
		r[i] = v[i] - centroid[i]
	}
	return r
}

func (ix *ivfPQIndex) Train(vectors [][]float32) error {
	return ix.trainWithNlist(vectors, nlistFor(len(vectors), 4096))
}

func (ix *ivfPQIndex) Add(ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return verrors.New(verrors.ErrCodeInvalidInput, "ids and vectors length mismatch", nil)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if !ix.trained {
		return verrors.New(verrors.ErrCodeVectorIndexNotReady, "ivf+pq index is not trained", nil)
	}

	for i, v := range vectors {
		if len(v) != ix.dim {
			return dimensionMismatch(ix.dim, len(v))
		}
		c, _ := nearestCentroid(v, ix.centroids)
		code := ix.pq.encode(residual(v, ix.centroids[c]))
		ix.lists[c].ids = append(ix.lists[c].ids, ids[i])
		ix.lists[c].codes = append(ix.lists[c].codes, code)
	}
	return nil
}

func (ix *ivfPQIndex) Search(query []float32, k int) ([]Neighbor, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if !ix.trained {
		return nil, verrors.New(verrors.ErrCodeVectorIndexNotReady, "ivf+pq index is not trained", nil)
	}
	if len(query) != ix.dim {
		return nil, dimensionMismatch(ix.dim, len(query))
	}

	type clusterDist struct {
		idx  int
		dist float32
	}
	cds := make([]clusterDist, len(ix.centroids))
	for c, centroid := range ix.centroids {
		cds[c] = clusterDist{idx: c, dist: sqDist(query, centroid)}
	}
	sort.Slice(cds, func(i, j int) bool { return cds[i].dist < cds[j].dist })

	nprobe := ix.nprobe
	if nprobe <= 0 || nprobe > len(cds) {
		nprobe = len(cds)
	}

	type candidate struct {
		id   int64
		dist float32
	}
	var candidates []candidate

	for p := 0; p < nprobe; p++ {
		c := cds[p].idx
		table := ix.pq.distanceTable(residual(query, ix.centroids[c]))
		list := ix.lists[c]
		for i, id := range list.ids {
			d := ix.pq.approxDistance(table, list.codes[i])
			candidates = append(candidates, candidate{id: id, dist: d})
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	if k > len(candidates) {
		k = len(candidates)
	}

	out := make([]Neighbor, 0, k)
	for i := 0; i < k; i++ {
		out = append(out, Neighbor{ID: candidates[i].id, Distance: candidates[i].dist})
	}
	return out, nil
}

// ivfPQPersisted is the gob-serializable snapshot of an ivfPQIndex.
type ivfPQPersisted struct {
	Dim           int
	Nlist         int
	Nprobe        int
	Subquantizers int
	Trained       bool
	Centroids     [][]float32
	Codebooks     [][][]float32
	Lists         []invertedList
}

func (ix *ivfPQIndex) persist(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return verrors.New(verrors.ErrCodeRegistryUnavailable, "create vector index directory", err)
	}

	snap := ivfPQPersisted{
		Dim: ix.dim, Nlist: ix.nlist, Nprobe: ix.nprobe,
		Subquantizers: ix.subquantizers, Trained: ix.trained,
		Centroids: ix.centroids, Lists: ix.lists,
	}
	if ix.pq != nil {
		snap.Codebooks = ix.pq.codebooks
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return verrors.New(verrors.ErrCodeRegistryUnavailable, "create vector index temp file", err)
	}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		file.Close()
		os.Remove(tmp)
		return verrors.New(verrors.ErrCodeVectorIndexCorrupt, "encode ivf+pq index", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return verrors.New(verrors.ErrCodeRegistryUnavailable, "close vector index temp file", err)
	}
	return os.Rename(tmp, path)
}

// load replaces ix's state from path, leaving ix untouched (empty, as
// constructed) on any read failure — same "no error propagated on disk
// read failure" rule as flatIndex.load.
func (ix *ivfPQIndex) load(path string) {
	var snap ivfPQPersisted
	if err := loadGobSidecar(path, &snap); err != nil {
		return
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.dim = snap.Dim
	ix.nlist = snap.Nlist
	ix.nprobe = snap.Nprobe
	ix.subquantizers = snap.Subquantizers
	ix.trained = snap.Trained
	ix.centroids = snap.Centroids
	ix.lists = snap.Lists
	if snap.Codebooks != nil {
		ix.pq = &productQuantizer{
			subquantizers: snap.Subquantizers,
			subdim:        snap.Dim / maxInt(snap.Subquantizers, 1),
			codebooks:     snap.Codebooks,
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
