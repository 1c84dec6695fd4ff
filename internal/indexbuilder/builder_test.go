package indexbuilder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpomverify/bpomverify/internal/registry"
	"github.com/bpomverify/bpomverify/internal/vectorindex"
)

const testDim = 8

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, testDim)
	for i := range v {
		v[i] = float32(len(text) + i)
	}
	return v, nil
}

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := f.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (fakeEmbedder) Dimensions() int { return testDim }

func newTestStore(t *testing.T) *registry.Store {
	t.Helper()
	store, err := registry.NewStore("", "")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestComposeText_JoinsNonEmptyFieldsInOrder(t *testing.T) {
	p := registry.Product{Name: "Amoxicillin 500mg", DosageForm: "Capsule", Manufacturer: "PT Kimia Farma"}
	assert.Equal(t, "Amoxicillin 500mg | Capsule | PT Kimia Farma", ComposeText(p))
}

func TestComposeText_SkipsBlankFields(t *testing.T) {
	p := registry.Product{Name: "Paracetamol", Composition: ""}
	assert.Equal(t, "Paracetamol", ComposeText(p))
}

func TestComposeText_AllBlankYieldsEmptyString(t *testing.T) {
	assert.Equal(t, "", ComposeText(registry.Product{}))
}

func TestStableFaissID_DeterministicAndPositive(t *testing.T) {
	a := StableFaissID("prod-1")
	b := StableFaissID("prod-1")
	c := StableFaissID("prod-2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.GreaterOrEqual(t, a, int64(0))
}

func TestBuilder_Build_AssignsFaissIDsAndTrainsIndex(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, store.UpsertProduct(ctx, registry.Product{
			ID:           "p" + string(rune('a'+i)),
			Name:         "Product " + string(rune('A'+i)),
			DosageForm:   "Tablet",
			Manufacturer: "Mfg",
		}))
	}

	idx, err := vectorindex.New(vectorindex.Config{
		Dimensions:    testDim,
		FlatThreshold: 256,
		NlistMax:      64,
		Subquantizers: 4,
		Nprobe:        4,
		Metric:        "cos",
	})
	require.NoError(t, err)

	b := New(store, fakeEmbedder{}, idx, Config{BatchSize: 3, TrainSamples: 5})
	result, err := b.Build(ctx)
	require.NoError(t, err)

	assert.Equal(t, 7, result.ProductsSeen)
	assert.Equal(t, 7, result.Embedded)
	assert.True(t, result.Trained)
	assert.Equal(t, 7, idx.Count())
}

func TestBuilder_Build_LargeCatalogPromotesToQuantized(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const n = 300
	for i := 0; i < n; i++ {
		require.NoError(t, store.UpsertProduct(ctx, registry.Product{
			ID:           "prod-" + string(rune('A'+i%26)) + string(rune('a'+i/26)),
			Name:         "Product",
			DosageForm:   "Tablet",
			Manufacturer: "Mfg",
		}))
	}

	idx, err := vectorindex.New(vectorindex.Config{
		Dimensions:    testDim,
		FlatThreshold: 256,
		NlistMax:      64,
		Subquantizers: 4,
		Nprobe:        4,
		Metric:        "cos",
	})
	require.NoError(t, err)

	b := New(store, fakeEmbedder{}, idx, Config{BatchSize: 50, TrainSamples: 256})
	result, err := b.Build(ctx)
	require.NoError(t, err)

	assert.Equal(t, n, result.ProductsSeen)
	assert.True(t, result.Trained)
	assert.Equal(t, "quantized", idx.Mode())
}

func TestBuilder_Build_SkipsProductsWithNoComposableText(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertProduct(ctx, registry.Product{ID: "blank"}))

	idx, err := vectorindex.New(vectorindex.DefaultConfig(testDim))
	require.NoError(t, err)

	b := New(store, fakeEmbedder{}, idx, Config{BatchSize: 10, TrainSamples: 1})
	result, err := b.Build(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ProductsSeen)
	assert.Equal(t, 0, result.Embedded)
	assert.Equal(t, 0, idx.Count())
}
