package vector

import "errors"

// Common errors for vector index operations
var (
	ErrInvalidDimension = errors.New("invalid vector dimension")
	ErrConnectionFailed = errors.New("failed to connect to vector store")
	ErrIndexUnavailable = errors.New("vector index unavailable")
	ErrIndexWrite       = errors.New("vector index write failed")
	ErrSearchFailed     = errors.New("vector search failed")
	ErrSchemaMismatch   = errors.New("collection schema mismatch")
)
