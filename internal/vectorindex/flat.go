package vectorindex

import (
	"bufio"
	"encoding/gob"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	verrors "github.com/bpomverify/bpomverify/internal/errors"
)

// flatIndex is an exact(-ish) nearest-neighbor index backed by coder/hnsw.
// Because faiss_id is already a dense non-negative 63-bit integer (see
// internal/indexbuilder), it is used directly as the graph key — there is
// no need for the string<->uint64 translation layer the product catalog's
// HNSW-backed BM25 sibling store carries, since our ids are already
// integers by construction.
//
// flatIndex never requires training: IsTrained always reports true once
// constructed, matching the spec's "N < flatThreshold always uses flat, and
// flat has no train step" rule.
type flatIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	dim    int
	metric string
	// ids tracks every key ever added. coder/hnsw's Graph exposes no node
	// enumeration, so this is the only way to answer AllIDs (used by the
	// consistency checker) without a full re-scan of the catalog.
	ids map[int64]struct{}
}

func newFlatIndex(dim int, metric string) *flatIndex {
	if metric == "" {
		metric = "cos"
	}
	graph := hnsw.NewGraph[uint64]()
	switch metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = 16
	graph.EfSearch = 32
	graph.Ml = 0.25

	return &flatIndex{graph: graph, dim: dim, metric: metric, ids: make(map[int64]struct{})}
}

func (f *flatIndex) IsTrained() bool { return true }

func (f *flatIndex) Train(vectors [][]float32) error { return nil }

func (f *flatIndex) Add(ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return verrors.New(verrors.ErrCodeInvalidInput, "ids and vectors length mismatch", nil)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, v := range vectors {
		if len(v) != f.dim {
			return dimensionMismatch(f.dim, len(v))
		}
	}

	for i, id := range ids {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if f.metric == "cos" {
			normalizeVectorInPlace(vec)
		}
		node := hnsw.MakeNode(uint64(id), vec)
		f.graph.Add(node)
		f.ids[id] = struct{}{}
	}
	return nil
}

// AllIDs returns every id currently held, in no particular order.
func (f *flatIndex) AllIDs() []int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]int64, 0, len(f.ids))
	for id := range f.ids {
		out = append(out, id)
	}
	return out
}

func (f *flatIndex) Search(query []float32, k int) ([]Neighbor, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(query) != f.dim {
		return nil, dimensionMismatch(f.dim, len(query))
	}
	if f.graph.Len() == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if f.metric == "cos" {
		normalizeVectorInPlace(q)
	}

	nodes := f.graph.Search(q, k)
	out := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		d := f.graph.Distance(q, n.Value)
		out = append(out, Neighbor{ID: int64(n.Key), Distance: d})
	}
	return out, nil
}

func (f *flatIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.graph.Len()
}

type flatMetadata struct {
	Dim    int
	Metric string
	IDs    []int64
}

func (f *flatIndex) persist(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return verrors.New(verrors.ErrCodeRegistryUnavailable, "create vector index directory", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return verrors.New(verrors.ErrCodeRegistryUnavailable, "create vector index temp file", err)
	}
	if err := f.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmp)
		return verrors.New(verrors.ErrCodeVectorIndexCorrupt, "export flat graph", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return verrors.New(verrors.ErrCodeRegistryUnavailable, "close vector index temp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return verrors.New(verrors.ErrCodeRegistryUnavailable, "rename vector index into place", err)
	}

	ids := make([]int64, 0, len(f.ids))
	for id := range f.ids {
		ids = append(ids, id)
	}
	return persistGobSidecar(path+".meta", flatMetadata{Dim: f.dim, Metric: f.metric, IDs: ids})
}

// load replaces f's graph contents from path. On any read failure it leaves
// f as a fresh, empty index rather than returning a half-populated graph —
// matching the spec's "disk-read error on load yields empty state, no error
// propagated" rule; the caller logs and continues with an empty catalog.
func (f *flatIndex) load(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var meta flatMetadata
	if err := loadGobSidecar(path+".meta", &meta); err != nil {
		return
	}

	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	graph := hnsw.NewGraph[uint64]()
	switch meta.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = 16
	graph.EfSearch = 32
	graph.Ml = 0.25

	reader := bufio.NewReader(file)
	if err := graph.Import(reader); err != nil {
		return
	}

	ids := make(map[int64]struct{}, len(meta.IDs))
	for _, id := range meta.IDs {
		ids[id] = struct{}{}
	}

	f.graph = graph
	f.dim = meta.Dim
	f.metric = meta.Metric
	f.ids = ids
}

func persistGobSidecar(path string, v any) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return verrors.New(verrors.ErrCodeRegistryUnavailable, "create metadata temp file", err)
	}
	if err := gob.NewEncoder(file).Encode(v); err != nil {
		file.Close()
		os.Remove(tmp)
		return verrors.New(verrors.ErrCodeVectorIndexCorrupt, "encode metadata", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return verrors.New(verrors.ErrCodeRegistryUnavailable, "close metadata temp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return verrors.New(verrors.ErrCodeRegistryUnavailable, "rename metadata into place", err)
	}
	return nil
}

func loadGobSidecar(path string, v any) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := gob.NewDecoder(file).Decode(v); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
