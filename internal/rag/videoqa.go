package rag

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/HungNguyenBa1811/ai-chat-4/internal/embedding"
	"github.com/HungNguyenBa1811/ai-chat-4/internal/vector"
)

// VideoConfig holds the tuned constants of the document/transcript blend.
type VideoConfig struct {
	// DocumentRatio is the share of results drawn from documents: curated
	// text is considered more authoritative than auto-transcribed speech.
	DocumentRatio float64

	// CurrentVideoBoost multiplies the distance of transcript hits from the
	// currently playing video. Below 1 it strengthens their rank, since
	// lower distance sorts first.
	CurrentVideoBoost float64

	// OverfetchSlack is added to the transcript fetch size so the boost has
	// candidates to promote.
	OverfetchSlack int
}

// DefaultVideoConfig returns the tuned defaults (70/30 split, 0.5 boost).
func DefaultVideoConfig() VideoConfig {
	return VideoConfig{
		DocumentRatio:     0.7,
		CurrentVideoBoost: 0.5,
		OverfetchSlack:    3,
	}
}

// VideoQuery is a "watching a video" retrieval request.
type VideoQuery struct {
	Text      string
	TopK      int
	SubjectID *int64

	// CurrentVideoID is the video the user is watching; zero means none.
	CurrentVideoID int64
}

// RankedTranscript is a transcript hit with its possibly boosted distance.
type RankedTranscript struct {
	vector.ScoredTranscript
	FromCurrentVideo bool `json:"from_current_video"`
}

// VideoGroup collects one video's transcript hits.
type VideoGroup struct {
	VideoID          int64
	FromCurrentVideo bool
	Chunks           []RankedTranscript
}

// VideoResult keeps the two ranked lists separate: the downstream prompt
// builder labels transcript and document context distinctly.
type VideoResult struct {
	Documents   []RankedChunk
	Transcripts []RankedTranscript
}

// GroupedByVideo groups transcript hits by video, the current video's
// content first, preserving rank order within each group.
func (r VideoResult) GroupedByVideo() []VideoGroup {
	order := make([]int64, 0)
	byVideo := make(map[int64]*VideoGroup)
	for _, hit := range r.Transcripts {
		g, ok := byVideo[hit.VideoID]
		if !ok {
			g = &VideoGroup{VideoID: hit.VideoID, FromCurrentVideo: hit.FromCurrentVideo}
			byVideo[hit.VideoID] = g
			order = append(order, hit.VideoID)
		}
		g.Chunks = append(g.Chunks, hit)
	}

	groups := make([]VideoGroup, 0, len(order))
	for _, id := range order {
		groups = append(groups, *byVideo[id])
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].FromCurrentVideo && !groups[j].FromCurrentVideo
	})
	return groups
}

// VideoRetriever blends permanent-document retrieval with video-transcript
// retrieval under a fixed priority ratio.
type VideoRetriever struct {
	embedder    embedding.Embedder
	retriever   *Retriever
	transcripts vector.TranscriptIndex
	config      VideoConfig
}

// NewVideoRetriever creates a combiner over both collections.
func NewVideoRetriever(embedder embedding.Embedder, store vector.Store, scoring ScoringConfig, config VideoConfig) (*VideoRetriever, error) {
	retriever, err := NewRetriever(embedder, store, scoring)
	if err != nil {
		return nil, err
	}

	return &VideoRetriever{
		embedder:    embedder,
		retriever:   retriever,
		transcripts: store.Transcripts(),
		config:      config,
	}, nil
}

// SplitCounts divides a total result count between documents and transcripts
// (ceil for documents, floor for transcripts).
func (c VideoConfig) SplitCounts(topK int) (docCount, videoCount int) {
	docCount = int(math.Ceil(float64(topK) * c.DocumentRatio))
	videoCount = int(math.Floor(float64(topK) * (1 - c.DocumentRatio)))
	return docCount, videoCount
}

// Retrieve runs both retrieval sides for the query. Temporary uploads are
// deliberately excluded: watching a video is shared, not personal, context.
func (v *VideoRetriever) Retrieve(ctx context.Context, q VideoQuery) (*VideoResult, error) {
	if q.Text == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if q.TopK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", q.TopK)
	}

	queryVector, err := v.retriever.embedQuery(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	docCount, videoCount := v.config.SplitCounts(q.TopK)

	docs, err := v.retriever.retrievePermanent(ctx, queryVector, docCount, q.SubjectID)
	if err != nil {
		return nil, err
	}

	hits, err := v.searchTranscripts(ctx, queryVector, videoCount, q.SubjectID)
	if err != nil {
		return nil, err
	}

	return &VideoResult{
		Documents:   docs,
		Transcripts: v.rankTranscripts(hits, q.CurrentVideoID, videoCount),
	}, nil
}

func (v *VideoRetriever) searchTranscripts(ctx context.Context, queryVector []float32, videoCount int, subjectID *int64) ([]vector.ScoredTranscript, error) {
	var filter *vector.Filter
	if subjectID != nil {
		filter = vector.BySubject(*subjectID)
	}

	hits, err := v.transcripts.Search(ctx, queryVector, videoCount+v.config.OverfetchSlack, filter)
	if err != nil {
		if errors.Is(err, vector.ErrIndexUnavailable) || errors.Is(err, vector.ErrSearchFailed) {
			log.Printf("[retrieve] transcript search failed: %v", err)
			return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
		}
		return nil, err
	}
	return hits, nil
}

// rankTranscripts halves the distance of hits from the currently playing
// video, re-sorts ascending, and truncates. Without a current video the top
// hits keep their original rank.
func (v *VideoRetriever) rankTranscripts(hits []vector.ScoredTranscript, currentVideoID int64, videoCount int) []RankedTranscript {
	ranked := make([]RankedTranscript, 0, len(hits))
	for _, hit := range hits {
		r := RankedTranscript{ScoredTranscript: hit}
		if currentVideoID != 0 && hit.VideoID == currentVideoID {
			r.Distance = hit.Distance * float32(v.config.CurrentVideoBoost)
			r.FromCurrentVideo = true
		}
		ranked = append(ranked, r)
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Distance < ranked[j].Distance })
	if len(ranked) > videoCount {
		ranked = ranked[:videoCount]
	}
	return ranked
}
