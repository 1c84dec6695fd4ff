// Package embedport declares the Embedder Port: the text-to-vector
// collaborator the Vector Index, Index Builder, and Retrieval Router call
// through. The embedding provider itself (a local model server, a hosted
// API) is out of scope; this package only specifies the boundary and a
// request-coalescing decorator over it.
package embedport

import "context"

// Embedder turns text into a dense vector of fixed dimension.
type Embedder interface {
	// Embed generates the embedding for a single query string.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one round trip,
	// used by the Index Builder to amortize provider latency.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions reports the embedding width, used to validate the Vector
	// Index configuration at startup.
	Dimensions() int
}
