package rag

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/HungNguyenBa1811/ai-chat-4/internal/embedding"
	"github.com/HungNguyenBa1811/ai-chat-4/internal/vector"
)

// ErrRetrievalUnavailable reports that the vector index could not serve a
// query. Callers are expected to fall back to answering without retrieved
// context; end users never see this error.
var ErrRetrievalUnavailable = errors.New("retrieval unavailable")

// Query is one contextual retrieval request.
type Query struct {
	// Text is the user's question.
	Text string

	// TopK is the number of chunks to return.
	TopK int

	// SubjectID optionally restricts results to one subject.
	SubjectID *int64

	// Caller identifies the asking user/session. Nil means anonymous: all
	// buckets become equally eligible and results rank by similarity alone.
	Caller *Caller
}

// RankedChunk is a retrieved chunk with its bucket and composite score.
type RankedChunk struct {
	vector.ScoredChunk
	Bucket Bucket  `json:"bucket"`
	Score  float64 `json:"score"`
}

// Retriever blends semantic similarity with category and recency over the
// document collection.
type Retriever struct {
	embedder embedding.Embedder
	docs     vector.DocumentIndex
	config   ScoringConfig
	now      func() time.Time
}

// NewRetriever creates a new Retriever instance.
func NewRetriever(embedder embedding.Embedder, store vector.Store, config ScoringConfig) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}

	return &Retriever{
		embedder: embedder,
		docs:     store.Documents(),
		config:   config,
		now:      time.Now,
	}, nil
}

// Retrieve returns the top-K most relevant chunks for the query, scored per
// bucket. Fewer than K raw hits returns what exists; an unreachable index
// fails with ErrRetrievalUnavailable.
func (r *Retriever) Retrieve(ctx context.Context, q Query) ([]RankedChunk, error) {
	if q.Text == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if q.TopK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", q.TopK)
	}

	queryVector, err := r.embedQuery(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	var filter *vector.Filter
	if q.SubjectID != nil {
		filter = vector.BySubject(*q.SubjectID)
	}

	raw, err := r.search(ctx, queryVector, q.TopK*r.config.OverfetchFactor, filter)
	if err != nil {
		return nil, err
	}

	return r.rank(raw, q.Caller, q.TopK), nil
}

// retrievePermanent searches the permanent partition only, ranked by pure
// similarity. Used by the video combiner, where context is shared rather
// than personal.
func (r *Retriever) retrievePermanent(ctx context.Context, queryVector []float32, topK int, subjectID *int64) ([]RankedChunk, error) {
	filter := vector.Permanent()
	if subjectID != nil {
		filter = filter.WithSubject(*subjectID)
	}

	raw, err := r.search(ctx, queryVector, topK*r.config.OverfetchFactor, filter)
	if err != nil {
		return nil, err
	}

	return r.rank(raw, nil, topK), nil
}

func (r *Retriever) embedQuery(ctx context.Context, text string) ([]float32, error) {
	records, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no embedding generated for query")
	}
	return records[0].Vector, nil
}

func (r *Retriever) search(ctx context.Context, queryVector []float32, limit int, filter *vector.Filter) ([]vector.ScoredChunk, error) {
	raw, err := r.docs.Search(ctx, queryVector, limit, filter)
	if err != nil {
		if errors.Is(err, vector.ErrIndexUnavailable) || errors.Is(err, vector.ErrSearchFailed) {
			log.Printf("[retrieve] document search failed: %v", err)
			return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
		}
		return nil, err
	}
	return raw, nil
}

// rank classifies, scores, sorts, and truncates raw hits. A nil caller takes
// the anonymous path: every bucket gets the same flat offset and order is
// decided by similarity alone.
func (r *Retriever) rank(raw []vector.ScoredChunk, caller *Caller, topK int) []RankedChunk {
	now := r.now()

	ranked := make([]RankedChunk, 0, len(raw))
	for _, chunk := range raw {
		bucket := Classify(chunk.ChunkRecord, caller)
		var score float64
		if caller == nil {
			score = r.config.AnonymousOffset + SemanticScore(chunk.Distance)
		} else {
			score = r.config.Composite(chunk, bucket, now)
		}
		ranked = append(ranked, RankedChunk{
			ScoredChunk: chunk,
			Bucket:      bucket,
			Score:       score,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}
