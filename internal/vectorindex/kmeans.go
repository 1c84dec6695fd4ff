package vectorindex

// kmeans runs a small, fixed-iteration Lloyd's algorithm over vectors,
// returning k centroids. It seeds centroids deterministically (evenly
// spaced samples from the training set, not random picks) so that Train is
// reproducible given the same input — useful for tests and for the
// "training is idempotent" invariant, since a re-train from the same buffer
// produces the same codebook.
func kmeans(vectors [][]float32, k, dim, iterations int) [][]float32 {
	n := len(vectors)
	if n == 0 || k <= 0 {
		return nil
	}
	if k > n {
		k = n
	}

	centroids := make([][]float32, k)
	stride := n / k
	if stride == 0 {
		stride = 1
	}
	for i := 0; i < k; i++ {
		src := vectors[(i*stride)%n]
		c := make([]float32, dim)
		copy(c, src)
		centroids[i] = c
	}

	assignment := make([]int, n)

	for iter := 0; iter < iterations; iter++ {
		changed := false
		for i, v := range vectors {
			best, bestDist := 0, sqDist(v, centroids[0])
			for c := 1; c < k; c++ {
				d := sqDist(v, centroids[c])
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			if assignment[i] != best {
				assignment[i] = best
				changed = true
			}
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := 0; c < k; c++ {
			sums[c] = make([]float64, dim)
		}
		for i, v := range vectors {
			c := assignment[i]
			counts[c]++
			for d := 0; d < dim; d++ {
				sums[c][d] += float64(v[d])
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue // keep previous centroid, an empty cluster this round
			}
			for d := 0; d < dim; d++ {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
		}

		if !changed && iter > 0 {
			break
		}
	}

	return centroids
}

func sqDist(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func nearestCentroid(v []float32, centroids [][]float32) (int, float32) {
	best, bestDist := 0, sqDist(v, centroids[0])
	for c := 1; c < len(centroids); c++ {
		d := sqDist(v, centroids[c])
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}
