package models

import "errors"

// Failure taxonomy. Per-item failures (one ticker, one producer, one
// enhancement call) degrade to documented fallbacks; only ErrIndexState and
// a generation failure on the final answer step surface to the caller.
var (
	// ErrEmbedding: the embedding capability was unreachable during add or
	// search. An add that fails with this must leave the index untouched.
	ErrEmbedding = errors.New("embedding capability unreachable")

	// ErrGeneration: the text-generation capability was unreachable or
	// returned unusable output.
	ErrGeneration = errors.New("text generation failed")

	// ErrParse: model output did not match the expected structured shape.
	// Always caught and downgraded to a documented fallback value.
	ErrParse = errors.New("model output parse failed")

	// ErrProducer: a document producer failed for one ticker. Caught
	// per-ticker, the pipeline continues.
	ErrProducer = errors.New("document producer failed")

	// ErrIndexState: persisted vector/metadata artifacts missing or
	// parity-mismatched on load. Fatal.
	ErrIndexState = errors.New("index state invalid")
)
