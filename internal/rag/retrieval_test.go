package rag

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/HungNguyenBa1811/ai-chat-4/internal/embedding"
	"github.com/HungNguyenBa1811/ai-chat-4/internal/vector"
)

// vecAt returns a unit vector at the given cosine distance from the query
// direction (1,0,0).
func vecAt(distance float64) []float32 {
	cos := 1 - distance
	sin := math.Sqrt(1 - cos*cos)
	return []float32{float32(cos), float32(sin), 0}
}

// mockEmbedder implements embedding.Embedder for testing. Known texts map to
// fixed vectors; everything else embeds to the query direction.
type mockEmbedder struct {
	vectors   map[string][]float32
	embedFunc func(ctx context.Context, texts []string) ([]embedding.Record, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([]embedding.Record, error) {
	if m.embedFunc != nil {
		return m.embedFunc(ctx, texts)
	}
	records := make([]embedding.Record, len(texts))
	for i, text := range texts {
		v, ok := m.vectors[text]
		if !ok {
			v = vecAt(0)
		}
		records[i] = embedding.Record{Text: text, Vector: v, Index: i}
	}
	return records, nil
}

func (m *mockEmbedder) Dimension() int { return 3 }

func newRagStore(t *testing.T) vector.Store {
	t.Helper()
	store := vector.NewMemoryStore(3)
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}
	return store
}

func seedDocument7(t *testing.T, store vector.Store) {
	t.Helper()
	now := time.Now()
	records := []vector.ChunkRecord{
		{Vector: vecAt(0.05), Text: "Định nghĩa hàm số", DocumentID: 7, ChunkIndex: 0, SubjectID: 2, CreatedAt: now},
		{Vector: vecAt(0.10), Text: "Ví dụ hàm số bậc 1", DocumentID: 7, ChunkIndex: 1, SubjectID: 2, CreatedAt: now},
		{Vector: vecAt(0.15), Text: "Bài tập hàm số", DocumentID: 7, ChunkIndex: 2, SubjectID: 2, CreatedAt: now},
	}
	if err := store.Documents().Add(context.Background(), records); err != nil {
		t.Fatalf("Failed to seed document 7: %v", err)
	}
}

func seedTemporary50(t *testing.T, store vector.Store) {
	t.Helper()
	now := time.Now()
	// Weaker raw match than document 7's chunks on purpose.
	records := []vector.ChunkRecord{
		{Vector: vecAt(0.6), Text: "Ghi chú của học sinh", DocumentID: 50, ChunkIndex: 0, SubjectID: 2, OwnerUserID: 9, OwnerSessionID: 100, IsTemporary: true, CreatedAt: now},
		{Vector: vecAt(0.7), Text: "Bài nộp của học sinh", DocumentID: 50, ChunkIndex: 1, SubjectID: 2, OwnerUserID: 9, OwnerSessionID: 100, IsTemporary: true, CreatedAt: now},
	}
	if err := store.Documents().Add(context.Background(), records); err != nil {
		t.Fatalf("Failed to seed temporary document 50: %v", err)
	}
}

func TestNewRetriever(t *testing.T) {
	store := newRagStore(t)

	t.Run("Valid parameters", func(t *testing.T) {
		r, err := NewRetriever(&mockEmbedder{}, store, DefaultScoringConfig())
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if r == nil {
			t.Fatal("Expected retriever to be non-nil")
		}
	})

	t.Run("Nil embedder", func(t *testing.T) {
		if _, err := NewRetriever(nil, store, DefaultScoringConfig()); err == nil {
			t.Fatal("Expected error for nil embedder")
		}
	})

	t.Run("Nil store", func(t *testing.T) {
		if _, err := NewRetriever(&mockEmbedder{}, nil, DefaultScoringConfig()); err == nil {
			t.Fatal("Expected error for nil vector store")
		}
	})
}

func TestRetrieveValidation(t *testing.T) {
	ctx := context.Background()
	r, _ := NewRetriever(&mockEmbedder{}, newRagStore(t), DefaultScoringConfig())

	if _, err := r.Retrieve(ctx, Query{Text: "", TopK: 3}); err == nil {
		t.Error("Expected error for empty query")
	}
	if _, err := r.Retrieve(ctx, Query{Text: "x", TopK: 0}); err == nil {
		t.Error("Expected error for non-positive topK")
	}
}

// Scenario: permanent chunks queried anonymously with a subject filter.
func TestRetrieveAnonymousPermanent(t *testing.T) {
	ctx := context.Background()
	store := newRagStore(t)
	seedDocument7(t, store)

	r, _ := NewRetriever(&mockEmbedder{}, store, DefaultScoringConfig())
	subject := int64(2)

	chunks, err := r.Retrieve(ctx, Query{Text: "hàm số là gì", TopK: 3, SubjectID: &subject})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if c.DocumentID != 7 {
			t.Errorf("Expected document 7, got %d", c.DocumentID)
		}
		if c.Bucket != BucketPermanent {
			t.Errorf("Expected permanent bucket, got %s", c.Bucket)
		}
		if c.Score <= DefaultScoringConfig().AnonymousOffset-1 {
			t.Errorf("Expected anonymous flat boost in score, got %f", c.Score)
		}
	}
}

// Scenario: the caller's own temporary uploads outrank permanent chunks even
// with a weaker raw match.
func TestRetrieveOwnTemporaryDominates(t *testing.T) {
	ctx := context.Background()
	store := newRagStore(t)
	seedDocument7(t, store)
	seedTemporary50(t, store)

	r, _ := NewRetriever(&mockEmbedder{}, store, DefaultScoringConfig())
	subject := int64(2)

	chunks, err := r.Retrieve(ctx, Query{
		Text:      "hàm số là gì",
		TopK:      4,
		SubjectID: &subject,
		Caller:    &Caller{UserID: 9, SessionID: 100},
	})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(chunks) != 4 {
		t.Fatalf("Expected 4 chunks, got %d", len(chunks))
	}

	if chunks[0].Bucket != BucketTemporary || chunks[1].Bucket != BucketTemporary {
		t.Errorf("Expected the caller's temporary chunks first, got %s, %s", chunks[0].Bucket, chunks[1].Bucket)
	}
	for _, c := range chunks[:2] {
		if c.DocumentID != 50 {
			t.Errorf("Expected temporary document 50 first, got %d", c.DocumentID)
		}
	}
	if chunks[2].Bucket != BucketPermanent {
		t.Errorf("Expected permanent chunks after temporary, got %s", chunks[2].Bucket)
	}
}

// Scenario: another caller's temporary uploads classify as "other" and rank
// beneath permanent material.
func TestRetrieveForeignTemporaryRanksLast(t *testing.T) {
	ctx := context.Background()
	store := newRagStore(t)
	seedDocument7(t, store)
	seedTemporary50(t, store)

	r, _ := NewRetriever(&mockEmbedder{}, store, DefaultScoringConfig())
	subject := int64(2)

	chunks, err := r.Retrieve(ctx, Query{
		Text:      "hàm số là gì",
		TopK:      5,
		SubjectID: &subject,
		Caller:    &Caller{UserID: 1, SessionID: 5},
	})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	for _, c := range chunks {
		if c.DocumentID == 50 && c.Bucket != BucketOther {
			t.Errorf("Expected foreign temporary chunk to classify as other, got %s", c.Bucket)
		}
		if c.DocumentID == 7 && c.Bucket != BucketPermanent {
			t.Errorf("Expected permanent bucket for document 7, got %s", c.Bucket)
		}
	}

	sawOther := false
	for _, c := range chunks {
		if c.Bucket == BucketOther {
			sawOther = true
		}
		if sawOther && c.Bucket == BucketPermanent {
			t.Error("Permanent chunk ranked below an other-bucket chunk")
		}
	}
}

func TestRetrieveFewerThanK(t *testing.T) {
	ctx := context.Background()
	store := newRagStore(t)
	seedDocument7(t, store)

	r, _ := NewRetriever(&mockEmbedder{}, store, DefaultScoringConfig())
	chunks, err := r.Retrieve(ctx, Query{Text: "hàm số", TopK: 10})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(chunks) != 3 {
		t.Errorf("Expected the 3 available chunks, got %d", len(chunks))
	}
}

func TestRetrieveIndexUnavailable(t *testing.T) {
	ctx := context.Background()
	store := vector.NewMemoryStore(3) // never initialized

	r, err := NewRetriever(&mockEmbedder{}, store, DefaultScoringConfig())
	if err != nil {
		t.Fatalf("Failed to create retriever: %v", err)
	}

	_, err = r.Retrieve(ctx, Query{Text: "hàm số", TopK: 3})
	if !errors.Is(err, ErrRetrievalUnavailable) {
		t.Errorf("Expected ErrRetrievalUnavailable, got: %v", err)
	}
}

func TestRetrieveEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	store := newRagStore(t)

	embedErr := errors.New("quota exceeded")
	emb := &mockEmbedder{embedFunc: func(ctx context.Context, texts []string) ([]embedding.Record, error) {
		return nil, embedErr
	}}

	r, _ := NewRetriever(emb, store, DefaultScoringConfig())
	if _, err := r.Retrieve(ctx, Query{Text: "hàm số", TopK: 3}); !errors.Is(err, embedErr) {
		t.Errorf("Expected embedding error to propagate, got: %v", err)
	}
}

func TestRetrieveDeletedDocumentGone(t *testing.T) {
	ctx := context.Background()
	store := newRagStore(t)
	seedDocument7(t, store)

	if _, err := store.Documents().DeleteWhere(ctx, vector.ByDocument(7)); err != nil {
		t.Fatalf("DeleteWhere failed: %v", err)
	}

	r, _ := NewRetriever(&mockEmbedder{}, store, DefaultScoringConfig())
	chunks, err := r.Retrieve(ctx, Query{Text: "hàm số", TopK: 5})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	for _, c := range chunks {
		if c.DocumentID == 7 {
			t.Error("Expected no chunks from deleted document 7")
		}
	}
}
