package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKmeans_SeparatesTwoClusters(t *testing.T) {
	var vectors [][]float32
	for i := 0; i < 20; i++ {
		vectors = append(vectors, []float32{0, 0})
	}
	for i := 0; i < 20; i++ {
		vectors = append(vectors, []float32{10, 10})
	}

	centroids := kmeans(vectors, 2, 2, 10)
	assert.Len(t, centroids, 2)

	var near0, near10 bool
	for _, c := range centroids {
		if sqDist(c, []float32{0, 0}) < 1 {
			near0 = true
		}
		if sqDist(c, []float32{10, 10}) < 1 {
			near10 = true
		}
	}
	assert.True(t, near0)
	assert.True(t, near10)
}

func TestKmeans_KGreaterThanN_ClampsToN(t *testing.T) {
	vectors := [][]float32{{1, 1}, {2, 2}}
	centroids := kmeans(vectors, 5, 2, 5)
	assert.Len(t, centroids, 2)
}

func TestProductQuantizer_EncodeApproxDistanceIsSmallForSelf(t *testing.T) {
	var residuals [][]float32
	for i := 0; i < 50; i++ {
		residuals = append(residuals, randVector(8, int64(i)))
	}
	pq := trainProductQuantizer(residuals, 8, 4, 10)

	target := residuals[0]
	codes := pq.encode(target)
	table := pq.distanceTable(target)
	dist := pq.approxDistance(table, codes)
	assert.GreaterOrEqual(t, dist, float32(0))
	assert.Less(t, dist, float32(1)) // self-distance should be near zero
}
