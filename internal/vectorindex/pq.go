package vectorindex

// productQuantizer splits a vector into M contiguous subvectors and
// replaces each subvector with the index of its nearest of 256 centroids,
// trained independently per subvector. It is the compression step that
// lets an IVF list store residuals as M bytes instead of dim*4 bytes.
type productQuantizer struct {
	subquantizers int
	subdim        int
	// codebooks[m] holds 256 centroids for subvector m, each of length subdim.
	codebooks [][][]float32
}

const pqCentroids = 256

// trainProductQuantizer fits one codebook per subvector from residuals.
// dim must be evenly divisible by subquantizers; callers check this before
// calling (see ivf.go's fallback-to-flat path).
func trainProductQuantizer(residuals [][]float32, dim, subquantizers, iterations int) *productQuantizer {
	subdim := dim / subquantizers
	pq := &productQuantizer{
		subquantizers: subquantizers,
		subdim:        subdim,
		codebooks:     make([][][]float32, subquantizers),
	}

	for m := 0; m < subquantizers; m++ {
		sub := make([][]float32, len(residuals))
		for i, v := range residuals {
			sub[i] = v[m*subdim : (m+1)*subdim]
		}
		pq.codebooks[m] = kmeans(sub, pqCentroids, subdim, iterations)
	}

	return pq
}

// encode maps a residual vector to M codebook-centroid indices.
func (pq *productQuantizer) encode(residual []float32) []byte {
	codes := make([]byte, pq.subquantizers)
	for m := 0; m < pq.subquantizers; m++ {
		sub := residual[m*pq.subdim : (m+1)*pq.subdim]
		idx, _ := nearestCentroid(sub, pq.codebooks[m])
		codes[m] = byte(idx)
	}
	return codes
}

// distanceTable precomputes, for one query residual, the squared distance
// from each of its M subvectors to every centroid in that subvector's
// codebook — the asymmetric distance computation (ADC) table that makes
// scoring a candidate O(M) lookups instead of O(dim) arithmetic.
func (pq *productQuantizer) distanceTable(queryResidual []float32) [][pqCentroids]float32 {
	table := make([][pqCentroids]float32, pq.subquantizers)
	for m := 0; m < pq.subquantizers; m++ {
		sub := queryResidual[m*pq.subdim : (m+1)*pq.subdim]
		for c, centroid := range pq.codebooks[m] {
			table[m][c] = sqDist(sub, centroid)
		}
	}
	return table
}

// approxDistance sums the precomputed table entries for an encoded vector's
// codes, giving an approximate squared distance between the query residual
// and the decoded candidate residual.
func (pq *productQuantizer) approxDistance(table [][pqCentroids]float32, codes []byte) float32 {
	var sum float32
	for m, c := range codes {
		sum += table[m][c]
	}
	return sum
}
