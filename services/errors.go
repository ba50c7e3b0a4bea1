package services

import "errors"

// Failure kinds surfaced by the providers and pipeline stages. Callers match
// them with errors.Is; the wrapped message carries the provider detail.
var (
	ErrEmptyText              = errors.New("empty text")
	ErrEmbeddingFailed        = errors.New("embedding failed")
	ErrCompletionFailed       = errors.New("completion failed")
	ErrCompletionUnparsable   = errors.New("completion unparsable")
	ErrVectorStoreUnavailable = errors.New("vector store unavailable")
	ErrMetadataLookupPartial  = errors.New("metadata lookup partially failed")
)
