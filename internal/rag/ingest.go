package rag

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HungNguyenBa1811/ai-chat-4/internal/embedding"
	"github.com/HungNguyenBa1811/ai-chat-4/internal/vector"
)

// DocumentIngest is one document's worth of text chunks. A zero owner pair
// marks a permanent document; a non-zero pair marks a temporary,
// session-scoped upload.
type DocumentIngest struct {
	DocumentID     int64
	SubjectID      int64
	OwnerUserID    int64
	OwnerSessionID int64
	Chunks         []string
}

// TranscriptSegment is one chunk of a video transcript. SequenceID may carry
// the source chunk's own id; zero falls back to the positional index.
type TranscriptSegment struct {
	Text       string
	SequenceID int64
}

// TranscriptIngest is one video's worth of transcript segments.
type TranscriptIngest struct {
	VideoID   int64
	SubjectID int64
	Segments  []TranscriptSegment
}

// IngestOptions configures batch embedding.
type IngestOptions struct {
	// BatchSize determines how many chunks go into one embedding call.
	// Batches are issued concurrently since embedding latency dominates
	// ingestion time.
	BatchSize int
}

// DefaultIngestOptions returns sensible defaults for ingestion.
func DefaultIngestOptions() IngestOptions {
	return IngestOptions{BatchSize: 10}
}

// Ingestor embeds and persists chunk batches. Ingestion is at-least-once:
// if it fails partway, callers retry via the delete-then-reingest path since
// there is no transactional guarantee across embedding and the index write.
type Ingestor struct {
	embedder    embedding.Embedder
	docs        vector.DocumentIndex
	transcripts vector.TranscriptIndex
	opts        IngestOptions
	now         func() time.Time
}

// NewIngestor creates a new Ingestor over both collections.
func NewIngestor(embedder embedding.Embedder, store vector.Store, opts IngestOptions) (*Ingestor, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultIngestOptions().BatchSize
	}

	return &Ingestor{
		embedder:    embedder,
		docs:        store.Documents(),
		transcripts: store.Transcripts(),
		opts:        opts,
		now:         time.Now,
	}, nil
}

// IngestDocument embeds and indexes the document's non-blank chunks in one
// batch write. Empty or all-blank input is a no-op. IsTemporary is derived
// from the owner pair rather than taken from the caller, so a record can
// never claim to be temporary without an owner.
func (i *Ingestor) IngestDocument(ctx context.Context, doc DocumentIngest) error {
	texts := keepNonBlank(doc.Chunks)
	if len(texts) == 0 {
		return nil
	}

	vectors, err := i.embedAll(ctx, texts)
	if err != nil {
		return err
	}

	temporary := doc.OwnerUserID != 0 || doc.OwnerSessionID != 0
	createdAt := i.now()

	records := make([]vector.ChunkRecord, len(texts))
	for pos, text := range texts {
		records[pos] = vector.ChunkRecord{
			Vector:         vectors[pos],
			Text:           text,
			DocumentID:     doc.DocumentID,
			ChunkIndex:     int64(pos),
			SubjectID:      doc.SubjectID,
			OwnerUserID:    doc.OwnerUserID,
			OwnerSessionID: doc.OwnerSessionID,
			IsTemporary:    temporary,
			CreatedAt:      createdAt,
		}
	}

	if err := i.docs.Add(ctx, records); err != nil {
		log.Printf("[ingest] index write failed for document %d: %v", doc.DocumentID, err)
		return err
	}
	log.Printf("[ingest] indexed %d chunks for document %d", len(records), doc.DocumentID)
	return nil
}

// ReingestDocument deletes any prior rows for the document and ingests the
// chunks fresh. This is the idempotent retry path for partial failures.
func (i *Ingestor) ReingestDocument(ctx context.Context, doc DocumentIngest) error {
	if _, err := i.docs.DeleteWhere(ctx, vector.ByDocument(doc.DocumentID)); err != nil {
		return fmt.Errorf("failed to delete prior rows for document %d: %w", doc.DocumentID, err)
	}
	return i.IngestDocument(ctx, doc)
}

// IngestTranscript embeds and indexes a video's transcript segments.
// StartTime/EndTime are written as zero; the schema keeps the fields but the
// product no longer tracks in-video timestamps.
func (i *Ingestor) IngestTranscript(ctx context.Context, tr TranscriptIngest) error {
	kept := make([]TranscriptSegment, 0, len(tr.Segments))
	for _, seg := range tr.Segments {
		if strings.TrimSpace(seg.Text) != "" {
			kept = append(kept, seg)
		}
	}
	if len(kept) == 0 {
		return nil
	}

	texts := make([]string, len(kept))
	for pos, seg := range kept {
		texts[pos] = seg.Text
	}

	vectors, err := i.embedAll(ctx, texts)
	if err != nil {
		return err
	}

	createdAt := i.now()
	records := make([]vector.TranscriptRecord, len(kept))
	for pos, seg := range kept {
		chunkID := seg.SequenceID
		if chunkID == 0 {
			chunkID = int64(pos)
		}
		records[pos] = vector.TranscriptRecord{
			Vector:    vectors[pos],
			Text:      seg.Text,
			VideoID:   tr.VideoID,
			ChunkID:   chunkID,
			SubjectID: tr.SubjectID,
			CreatedAt: createdAt,
		}
	}

	if err := i.transcripts.Add(ctx, records); err != nil {
		log.Printf("[ingest] index write failed for video %d: %v", tr.VideoID, err)
		return err
	}
	log.Printf("[ingest] indexed %d transcript chunks for video %d", len(records), tr.VideoID)
	return nil
}

// ReingestTranscript deletes any prior rows for the video and ingests fresh.
func (i *Ingestor) ReingestTranscript(ctx context.Context, tr TranscriptIngest) error {
	if _, err := i.transcripts.DeleteWhere(ctx, vector.ByVideo(tr.VideoID)); err != nil {
		return fmt.Errorf("failed to delete prior rows for video %d: %w", tr.VideoID, err)
	}
	return i.IngestTranscript(ctx, tr)
}

// embedAll embeds texts in concurrent batches. Vectors land at each text's
// original position regardless of which batch finishes first.
func (i *Ingestor) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(texts); start += i.opts.BatchSize {
		end := start + i.opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		base, batch := start, texts[start:end]
		g.Go(func() error {
			records, err := i.embedder.Embed(ctx, batch)
			if err != nil {
				return fmt.Errorf("failed to embed batch starting at %d: %w", base, err)
			}
			for _, rec := range records {
				vectors[base+rec.Index] = rec.Vector
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func keepNonBlank(chunks []string) []string {
	kept := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			kept = append(kept, c)
		}
	}
	return kept
}
