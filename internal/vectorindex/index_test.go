package vectorindex

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randVector(dim int, seed int64) []float32 {
	r := rand.New(rand.NewSource(seed))
	v := make([]float32, dim)
	for i := range v {
		v[i] = r.Float32()
	}
	return v
}

func TestVectorIndex_SmallCorpusStaysFlat(t *testing.T) {
	cfg := DefaultConfig(16)
	idx, err := New(cfg)
	require.NoError(t, err)

	vectors := make([][]float32, 10)
	ids := make([]int64, 10)
	for i := range vectors {
		vectors[i] = randVector(16, int64(i))
		ids[i] = int64(i)
	}

	require.NoError(t, idx.Add(ids, vectors))
	assert.True(t, idx.IsTrained())
	assert.Equal(t, modeFlat, idx.modeLocked())
	assert.Equal(t, 10, idx.Count())
}

func TestVectorIndex_LargeCorpusPromotesToQuantized(t *testing.T) {
	cfg := DefaultConfig(32)
	cfg.FlatThreshold = 256
	cfg.Subquantizers = 8
	idx, err := New(cfg)
	require.NoError(t, err)

	n := 300
	vectors := make([][]float32, n)
	ids := make([]int64, n)
	for i := range vectors {
		vectors[i] = randVector(32, int64(i))
		ids[i] = int64(i)
	}

	require.NoError(t, idx.Add(ids, vectors))
	assert.True(t, idx.IsTrained())
	assert.Equal(t, modeQuantized, idx.modeLocked())
}

func TestVectorIndex_ForceFlatStaysFlatEvenForLargeCorpus(t *testing.T) {
	cfg := DefaultConfig(32)
	cfg.ForceFlat = true
	idx, err := New(cfg)
	require.NoError(t, err)

	n := 400
	vectors := make([][]float32, n)
	ids := make([]int64, n)
	for i := range vectors {
		vectors[i] = randVector(32, int64(i))
		ids[i] = int64(i)
	}

	require.NoError(t, idx.Add(ids, vectors))
	assert.Equal(t, modeFlat, idx.modeLocked())
}

func TestVectorIndex_Search_ReturnsNearestFlat(t *testing.T) {
	cfg := DefaultConfig(8)
	idx, err := New(cfg)
	require.NoError(t, err)

	target := randVector(8, 42)
	ids := []int64{1, 2, 3}
	vectors := [][]float32{randVector(8, 1), target, randVector(8, 3)}
	require.NoError(t, idx.Add(ids, vectors))

	results, err := idx.Search(target, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0].ID)
}

func TestVectorIndex_Search_DimensionMismatchErrors(t *testing.T) {
	cfg := DefaultConfig(8)
	idx, err := New(cfg)
	require.NoError(t, err)

	_, err = idx.Search(make([]float32, 4), 5)
	assert.Error(t, err)
}

func TestVectorIndex_TrainIsIdempotent(t *testing.T) {
	cfg := DefaultConfig(16)
	cfg.FlatThreshold = 50
	cfg.Subquantizers = 4
	idx, err := New(cfg)
	require.NoError(t, err)

	n := 100
	vectors := make([][]float32, n)
	for i := range vectors {
		vectors[i] = randVector(16, int64(i))
	}
	require.NoError(t, idx.Train(vectors))
	require.True(t, idx.IsTrained())
	first := idx.active

	require.NoError(t, idx.Train(vectors))
	assert.Same(t, first, idx.active)
}

func TestVectorIndex_FreshIndexIsUndecided(t *testing.T) {
	cfg := DefaultConfig(16)
	idx, err := New(cfg)
	require.NoError(t, err)

	assert.False(t, idx.Decided())
	assert.True(t, idx.IsTrained(), "flat placeholder reports trained even though no mode decision has been made yet")
}

func TestVectorIndex_AddDecidesModeExactlyOnce(t *testing.T) {
	cfg := DefaultConfig(32)
	cfg.FlatThreshold = 256
	cfg.Subquantizers = 8
	idx, err := New(cfg)
	require.NoError(t, err)

	n := 300
	vectors := make([][]float32, n)
	ids := make([]int64, n)
	for i := range vectors {
		vectors[i] = randVector(32, int64(i))
		ids[i] = int64(i)
	}

	require.NoError(t, idx.Add(ids, vectors))
	assert.True(t, idx.Decided())
	assert.Equal(t, "quantized", idx.Mode())

	// A later small Add must not re-evaluate the mode decision.
	require.NoError(t, idx.Add([]int64{9001}, [][]float32{randVector(32, 9001)}))
	assert.Equal(t, "quantized", idx.Mode())
}

func TestVectorIndex_PersistAndLoad_RoundTripsFlat(t *testing.T) {
	cfg := DefaultConfig(8)
	idx, err := New(cfg)
	require.NoError(t, err)

	ids := []int64{10, 20, 30}
	vectors := [][]float32{randVector(8, 1), randVector(8, 2), randVector(8, 3)}
	require.NoError(t, idx.Add(ids, vectors))

	path := filepath.Join(t.TempDir(), "vectors.idx")
	require.NoError(t, idx.Persist(path))

	loaded, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 3, loaded.Count())
	assert.ElementsMatch(t, []int64{10, 20, 30}, loaded.AllIDs())
}

func TestVectorIndex_AllIDs_ReflectsAddedIDs(t *testing.T) {
	cfg := DefaultConfig(8)
	idx, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, idx.Add([]int64{1, 2, 3}, [][]float32{
		randVector(8, 1), randVector(8, 2), randVector(8, 3),
	}))
	assert.ElementsMatch(t, []int64{1, 2, 3}, idx.AllIDs())
}

func TestVectorIndex_Load_MissingFileYieldsEmptyNoError(t *testing.T) {
	cfg := DefaultConfig(8)
	idx, err := New(cfg)
	require.NoError(t, err)

	err = idx.Load(filepath.Join(t.TempDir(), "does-not-exist.idx"))
	assert.NoError(t, err)
	assert.Equal(t, 0, idx.Count())
}

func TestVectorIndex_AddBeforeTrain_AutoTrains(t *testing.T) {
	cfg := DefaultConfig(16)
	cfg.FlatThreshold = 50
	cfg.Subquantizers = 4
	idx, err := New(cfg)
	require.NoError(t, err)

	n := 80
	vectors := make([][]float32, n)
	ids := make([]int64, n)
	for i := range vectors {
		vectors[i] = randVector(16, int64(i))
		ids[i] = int64(i)
	}

	require.NoError(t, idx.Add(ids, vectors))
	assert.True(t, idx.IsTrained())
	assert.Equal(t, n, idx.Count())
}
