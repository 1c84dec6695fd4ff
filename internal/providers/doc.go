// Package providers implements HTTP-client adapters for the embedder,
// object-detector, and OCR ports against an external out-of-process
// provider, the same role the teacher's internal/embed/ollama.go plays
// for its embedding backend: the model itself stays out of process, this
// package only owns the wire contract and retry/circuit-breaker discipline
// around it.
package providers
