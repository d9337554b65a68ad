package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/HungNguyenBa1811/ai-chat-4/internal/vector"
)

func TestSplitCounts(t *testing.T) {
	cfg := DefaultVideoConfig()

	cases := []struct {
		topK      int
		wantDocs  int
		wantVideo int
	}{
		{10, 7, 3},
		{7, 5, 2},
		{5, 4, 1},
		{1, 1, 0},
	}
	for _, c := range cases {
		docs, videos := cfg.SplitCounts(c.topK)
		if docs != c.wantDocs || videos != c.wantVideo {
			t.Errorf("SplitCounts(%d) = %d/%d, want %d/%d", c.topK, docs, videos, c.wantDocs, c.wantVideo)
		}
	}
}

func seedTranscripts(t *testing.T, store vector.Store) {
	t.Helper()
	now := time.Now()
	records := []vector.TranscriptRecord{
		{Vector: vecAt(0.35), Text: "v5 c0", VideoID: 5, ChunkID: 0, SubjectID: 2, CreatedAt: now},
		{Vector: vecAt(0.40), Text: "v5 c1", VideoID: 5, ChunkID: 1, SubjectID: 2, CreatedAt: now},
		{Vector: vecAt(0.50), Text: "v5 c2", VideoID: 5, ChunkID: 2, SubjectID: 2, CreatedAt: now},
		{Vector: vecAt(0.60), Text: "v5 c3", VideoID: 5, ChunkID: 3, SubjectID: 2, CreatedAt: now},
		{Vector: vecAt(0.30), Text: "v6 c0", VideoID: 6, ChunkID: 0, SubjectID: 2, CreatedAt: now},
		{Vector: vecAt(0.45), Text: "v6 c1", VideoID: 6, ChunkID: 1, SubjectID: 2, CreatedAt: now},
		{Vector: vecAt(0.55), Text: "v6 c2", VideoID: 6, ChunkID: 2, SubjectID: 2, CreatedAt: now},
		{Vector: vecAt(0.65), Text: "v6 c3", VideoID: 6, ChunkID: 3, SubjectID: 2, CreatedAt: now},
	}
	if err := store.Transcripts().Add(context.Background(), records); err != nil {
		t.Fatalf("Failed to seed transcripts: %v", err)
	}
}

func newVideoRetriever(t *testing.T, store vector.Store) *VideoRetriever {
	t.Helper()
	v, err := NewVideoRetriever(&mockEmbedder{}, store, DefaultScoringConfig(), DefaultVideoConfig())
	if err != nil {
		t.Fatalf("Failed to create video retriever: %v", err)
	}
	return v
}

func TestVideoRetrieveValidation(t *testing.T) {
	ctx := context.Background()
	v := newVideoRetriever(t, newRagStore(t))

	if _, err := v.Retrieve(ctx, VideoQuery{Text: "", TopK: 5}); err == nil {
		t.Error("Expected error for empty query")
	}
	if _, err := v.Retrieve(ctx, VideoQuery{Text: "x", TopK: 0}); err == nil {
		t.Error("Expected error for non-positive topK")
	}
}

// Watching video 5: its transcript hits get the distance boost and crowd out
// the slightly closer hits from video 6.
func TestVideoRetrieveCurrentVideoBoost(t *testing.T) {
	ctx := context.Background()
	store := newRagStore(t)
	seedDocument7(t, store)
	seedTranscripts(t, store)

	v := newVideoRetriever(t, store)
	subject := int64(2)

	result, err := v.Retrieve(ctx, VideoQuery{Text: "hàm số", TopK: 10, SubjectID: &subject, CurrentVideoID: 5})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	if len(result.Transcripts) != 3 {
		t.Fatalf("Expected 3 transcript hits, got %d", len(result.Transcripts))
	}
	for _, hit := range result.Transcripts {
		if hit.VideoID != 5 {
			t.Errorf("Expected boosted hits from video 5 only, got video %d", hit.VideoID)
		}
		if !hit.FromCurrentVideo {
			t.Error("Expected FromCurrentVideo to be set")
		}
	}
	// Boost halves the stored distance.
	if d := result.Transcripts[0].Distance; d < 0.17 || d > 0.18 {
		t.Errorf("Expected boosted distance near 0.175, got %f", d)
	}

	if len(result.Documents) != 3 {
		t.Fatalf("Expected the 3 available document chunks, got %d", len(result.Documents))
	}
	for _, c := range result.Documents {
		if c.DocumentID != 7 {
			t.Errorf("Expected permanent document 7 only, got %d", c.DocumentID)
		}
	}
}

func TestVideoRetrieveNoCurrentVideo(t *testing.T) {
	ctx := context.Background()
	store := newRagStore(t)
	seedTranscripts(t, store)

	v := newVideoRetriever(t, store)

	result, err := v.Retrieve(ctx, VideoQuery{Text: "hàm số", TopK: 10})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(result.Transcripts) != 3 {
		t.Fatalf("Expected 3 transcript hits, got %d", len(result.Transcripts))
	}
	// Raw distance order with no boost: v6 c0 (0.30), v5 c0 (0.35), v5 c1 (0.40).
	if result.Transcripts[0].VideoID != 6 {
		t.Errorf("Expected the closest raw hit first, got video %d", result.Transcripts[0].VideoID)
	}
	for _, hit := range result.Transcripts {
		if hit.FromCurrentVideo {
			t.Error("Expected no FromCurrentVideo flag without a current video")
		}
	}
}

// With equal stored distances, the current video's hit must sort first.
func TestVideoBoostBreaksTies(t *testing.T) {
	v := VideoRetriever{config: DefaultVideoConfig()}
	hits := []vector.ScoredTranscript{
		{TranscriptRecord: vector.TranscriptRecord{VideoID: 6, ChunkID: 0}, Distance: 0.4},
		{TranscriptRecord: vector.TranscriptRecord{VideoID: 5, ChunkID: 0}, Distance: 0.4},
	}

	ranked := v.rankTranscripts(hits, 5, 2)
	if len(ranked) != 2 {
		t.Fatalf("Expected 2 hits, got %d", len(ranked))
	}
	if ranked[0].VideoID != 5 {
		t.Errorf("Expected the current video's hit first, got video %d", ranked[0].VideoID)
	}
	if ranked[0].Distance != 0.2 {
		t.Errorf("Expected halved distance 0.2, got %f", ranked[0].Distance)
	}
	if ranked[1].Distance != 0.4 {
		t.Errorf("Expected other video's distance untouched, got %f", ranked[1].Distance)
	}
}

func TestGroupedByVideo(t *testing.T) {
	result := VideoResult{
		Transcripts: []RankedTranscript{
			{ScoredTranscript: vector.ScoredTranscript{TranscriptRecord: vector.TranscriptRecord{VideoID: 6, ChunkID: 0}, Distance: 0.1}},
			{ScoredTranscript: vector.ScoredTranscript{TranscriptRecord: vector.TranscriptRecord{VideoID: 5, ChunkID: 0}, Distance: 0.2}, FromCurrentVideo: true},
			{ScoredTranscript: vector.ScoredTranscript{TranscriptRecord: vector.TranscriptRecord{VideoID: 6, ChunkID: 1}, Distance: 0.3}},
			{ScoredTranscript: vector.ScoredTranscript{TranscriptRecord: vector.TranscriptRecord{VideoID: 5, ChunkID: 1}, Distance: 0.4}, FromCurrentVideo: true},
		},
	}

	groups := result.GroupedByVideo()
	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(groups))
	}
	if groups[0].VideoID != 5 || !groups[0].FromCurrentVideo {
		t.Errorf("Expected the current video's group first, got video %d", groups[0].VideoID)
	}
	if len(groups[0].Chunks) != 2 || len(groups[1].Chunks) != 2 {
		t.Errorf("Expected 2 chunks per group, got %d and %d", len(groups[0].Chunks), len(groups[1].Chunks))
	}
	// Rank order survives grouping.
	if groups[0].Chunks[0].ChunkID != 0 || groups[0].Chunks[1].ChunkID != 1 {
		t.Error("Expected rank order preserved within the current video's group")
	}
}

func TestGroupedByVideoEmpty(t *testing.T) {
	groups := (VideoResult{}).GroupedByVideo()
	if len(groups) != 0 {
		t.Errorf("Expected no groups, got %d", len(groups))
	}
}

func TestVideoRetrieveIndexUnavailable(t *testing.T) {
	ctx := context.Background()
	store := vector.NewMemoryStore(3) // never initialized

	v, err := NewVideoRetriever(&mockEmbedder{}, store, DefaultScoringConfig(), DefaultVideoConfig())
	if err != nil {
		t.Fatalf("Failed to create video retriever: %v", err)
	}

	_, err = v.Retrieve(ctx, VideoQuery{Text: "hàm số", TopK: 5})
	if !errors.Is(err, ErrRetrievalUnavailable) {
		t.Errorf("Expected ErrRetrievalUnavailable, got: %v", err)
	}
}
