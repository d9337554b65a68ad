package vector

import (
	"context"
	"time"
)

// ChunkRecord is one indexed text fragment in the document collection.
// A zero owner pair (0,0) marks a permanent, subject-wide document;
// a non-zero pair marks a temporary upload scoped to that user/session.
type ChunkRecord struct {
	Vector         []float32 `json:"vector"`
	Text           string    `json:"text"`
	DocumentID     int64     `json:"document_id"`
	ChunkIndex     int64     `json:"chunk_index"`
	SubjectID      int64     `json:"subject_id"`
	OwnerUserID    int64     `json:"owner_user_id"`
	OwnerSessionID int64     `json:"owner_session_id"`
	IsTemporary    bool      `json:"is_temporary"`
	CreatedAt      time.Time `json:"created_at"`
}

// HasOwner reports whether the record carries a session-scoped owner.
func (r ChunkRecord) HasOwner() bool {
	return r.OwnerUserID != 0 || r.OwnerSessionID != 0
}

// TranscriptRecord is one indexed transcript fragment in the video collection.
// StartTime/EndTime are kept for schema stability and always written as 0.
type TranscriptRecord struct {
	Vector    []float32 `json:"vector"`
	Text      string    `json:"text"`
	VideoID   int64     `json:"video_id"`
	ChunkID   int64     `json:"chunk_id"`
	SubjectID int64     `json:"subject_id"`
	StartTime float64   `json:"start_time"`
	EndTime   float64   `json:"end_time"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoredChunk is a document search hit annotated with its vector distance
// (smaller = more similar).
type ScoredChunk struct {
	ChunkRecord
	Distance float32 `json:"distance"`
}

// ScoredTranscript is a transcript search hit annotated with its vector distance.
type ScoredTranscript struct {
	TranscriptRecord
	Distance float32 `json:"distance"`
}

// DocumentIndex is the document-collection half of a vector store.
type DocumentIndex interface {
	// Add appends records in one batch. Empty input is a no-op.
	Add(ctx context.Context, records []ChunkRecord) error

	// Search returns up to limit nearest rows by vector distance, optionally
	// restricted by filter. Store-level filtering may be fragile, so results
	// are re-filtered client-side before being returned.
	Search(ctx context.Context, queryVector []float32, limit int, filter *Filter) ([]ScoredChunk, error)

	// DeleteWhere removes all rows matching filter and returns the number
	// removed, computed as row-count-before minus row-count-after.
	DeleteWhere(ctx context.Context, filter *Filter) (int64, error)

	// Count returns the total row count.
	Count(ctx context.Context) (int64, error)

	// All scans every row without vectors, for stats classification.
	All(ctx context.Context) ([]ChunkRecord, error)
}

// TranscriptIndex is the video-transcript half of a vector store.
type TranscriptIndex interface {
	Add(ctx context.Context, records []TranscriptRecord) error
	Search(ctx context.Context, queryVector []float32, limit int, filter *Filter) ([]ScoredTranscript, error)
	DeleteWhere(ctx context.Context, filter *Filter) (int64, error)
	Count(ctx context.Context) (int64, error)
	All(ctx context.Context) ([]TranscriptRecord, error)
}

// Store owns both logical collections. Initialize must succeed before any
// collection operation; operations on an uninitialized store fail with
// ErrIndexUnavailable.
type Store interface {
	// Initialize ensures both collections exist with the expected schema and
	// dimensionality. Runs at process start only: with RecreateOnMismatch set
	// it destroys and recreates an incompatible collection, which drops all
	// previously indexed content.
	Initialize(ctx context.Context) error

	Documents() DocumentIndex
	Transcripts() TranscriptIndex

	// Close releases resources and closes connections.
	Close() error
}
