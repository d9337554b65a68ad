package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store used for tests and for deployments
// without a vector database. It has no native predicate deletion, so
// DeleteWhere runs the emulated scan-then-delete loop.
type MemoryStore struct {
	mu          sync.RWMutex
	dimension   int
	ready       bool
	docs        []ChunkRecord
	transcripts []TranscriptRecord
}

// NewMemoryStore creates an empty in-memory store for the given dimension.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{dimension: dimension}
}

// Initialize implements Store.
func (s *MemoryStore) Initialize(ctx context.Context) error {
	if s.dimension <= 0 {
		return ErrInvalidDimension
	}
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	return nil
}

// Documents implements Store.
func (s *MemoryStore) Documents() DocumentIndex {
	return memoryDocuments{s}
}

// Transcripts implements Store.
func (s *MemoryStore) Transcripts() TranscriptIndex {
	return memoryTranscripts{s}
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

// cosineDistance returns 1 - cosine similarity, so smaller means closer.
func cosineDistance(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

type memoryDocuments struct {
	store *MemoryStore
}

func (d memoryDocuments) Add(ctx context.Context, records []ChunkRecord) error {
	s := d.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return ErrIndexUnavailable
	}
	for _, r := range records {
		if len(r.Vector) != s.dimension {
			return fmt.Errorf("%w: expected dimension %d, got %d", ErrIndexWrite, s.dimension, len(r.Vector))
		}
	}
	s.docs = append(s.docs, records...)
	return nil
}

func (d memoryDocuments) Search(ctx context.Context, queryVector []float32, limit int, filter *Filter) ([]ScoredChunk, error) {
	s := d.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil, ErrIndexUnavailable
	}
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, s.dimension, len(queryVector))
	}

	hits := make([]ScoredChunk, 0, len(s.docs))
	for _, r := range s.docs {
		if !filter.Match(r) {
			continue
		}
		hits = append(hits, ScoredChunk{ChunkRecord: r, Distance: cosineDistance(queryVector, r.Vector)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (d memoryDocuments) DeleteWhere(ctx context.Context, filter *Filter) (int64, error) {
	s := d.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return 0, ErrIndexUnavailable
	}
	before := len(s.docs)
	kept := s.docs[:0]
	for _, r := range s.docs {
		if !filter.Match(r) {
			kept = append(kept, r)
		}
	}
	s.docs = kept
	return int64(before - len(s.docs)), nil
}

func (d memoryDocuments) Count(ctx context.Context) (int64, error) {
	s := d.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return 0, ErrIndexUnavailable
	}
	return int64(len(s.docs)), nil
}

func (d memoryDocuments) All(ctx context.Context) ([]ChunkRecord, error) {
	s := d.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil, ErrIndexUnavailable
	}
	out := make([]ChunkRecord, len(s.docs))
	copy(out, s.docs)
	return out, nil
}

type memoryTranscripts struct {
	store *MemoryStore
}

func (t memoryTranscripts) Add(ctx context.Context, records []TranscriptRecord) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return ErrIndexUnavailable
	}
	for _, r := range records {
		if len(r.Vector) != s.dimension {
			return fmt.Errorf("%w: expected dimension %d, got %d", ErrIndexWrite, s.dimension, len(r.Vector))
		}
	}
	s.transcripts = append(s.transcripts, records...)
	return nil
}

func (t memoryTranscripts) Search(ctx context.Context, queryVector []float32, limit int, filter *Filter) ([]ScoredTranscript, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil, ErrIndexUnavailable
	}
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, s.dimension, len(queryVector))
	}

	hits := make([]ScoredTranscript, 0, len(s.transcripts))
	for _, r := range s.transcripts {
		if !filter.MatchTranscript(r) {
			continue
		}
		hits = append(hits, ScoredTranscript{TranscriptRecord: r, Distance: cosineDistance(queryVector, r.Vector)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (t memoryTranscripts) DeleteWhere(ctx context.Context, filter *Filter) (int64, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return 0, ErrIndexUnavailable
	}
	before := len(s.transcripts)
	kept := s.transcripts[:0]
	for _, r := range s.transcripts {
		if !filter.MatchTranscript(r) {
			kept = append(kept, r)
		}
	}
	s.transcripts = kept
	return int64(before - len(s.transcripts)), nil
}

func (t memoryTranscripts) Count(ctx context.Context) (int64, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return 0, ErrIndexUnavailable
	}
	return int64(len(s.transcripts)), nil
}

func (t memoryTranscripts) All(ctx context.Context) ([]TranscriptRecord, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil, ErrIndexUnavailable
	}
	out := make([]TranscriptRecord, len(s.transcripts))
	copy(out, s.transcripts)
	return out, nil
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
