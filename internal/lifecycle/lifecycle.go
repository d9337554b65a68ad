package lifecycle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/HungNguyenBa1811/ai-chat-4/internal/vector"
)

// Stats is the operational snapshot of both collections. Classification here
// runs without caller identity, so Temporary means any record with the
// temporary flag set.
type Stats struct {
	Total       int64 `json:"total"`
	Temporary   int64 `json:"temporary"`
	Permanent   int64 `json:"permanent"`
	Expired     int64 `json:"expired"`
	Transcripts int64 `json:"transcripts"`
}

// Maintainer owns expiry sweeping, bulk deletion hooks, and statistics. All
// operations are idempotent and safe to run concurrently with ingestion and
// retrieval.
type Maintainer struct {
	docs        vector.DocumentIndex
	transcripts vector.TranscriptIndex
	retention   time.Duration
	now         func() time.Time
}

// NewMaintainer creates a Maintainer with the given retention window (the
// same window the temporal score decays over).
func NewMaintainer(store vector.Store, retention time.Duration) (*Maintainer, error) {
	if store == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %v", retention)
	}

	return &Maintainer{
		docs:        store.Documents(),
		transcripts: store.Transcripts(),
		retention:   retention,
		now:         time.Now,
	}, nil
}

// SweepExpired removes temporary rows older than the retention window and
// returns the count removed. Permanent rows are never touched regardless of
// age. Invoked by an external hourly scheduler.
func (m *Maintainer) SweepExpired(ctx context.Context) (int64, error) {
	cutoff := m.now().Add(-m.retention)
	removed, err := m.docs.DeleteWhere(ctx, vector.ExpiredBefore(cutoff))
	if err != nil {
		return 0, fmt.Errorf("expiry sweep failed: %w", err)
	}
	log.Printf("[sweep] removed %d expired temporary rows (cutoff %s)", removed, cutoff.Format(time.RFC3339))
	return removed, nil
}

// DeleteDocument removes all chunk rows of one document, permanent or
// temporary. Called by the external layer when a document is deleted so
// orphaned vectors never persist.
func (m *Maintainer) DeleteDocument(ctx context.Context, documentID int64) (int64, error) {
	removed, err := m.docs.DeleteWhere(ctx, vector.ByDocument(documentID))
	if err != nil {
		return 0, fmt.Errorf("failed to delete rows for document %d: %w", documentID, err)
	}
	return removed, nil
}

// DeleteSession removes all temporary rows of one user/session pair. Called
// when a chat session is deleted or explicitly cleared.
func (m *Maintainer) DeleteSession(ctx context.Context, userID, sessionID int64) (int64, error) {
	removed, err := m.docs.DeleteWhere(ctx, vector.BySession(userID, sessionID))
	if err != nil {
		return 0, fmt.Errorf("failed to delete rows for session %d/%d: %w", userID, sessionID, err)
	}
	return removed, nil
}

// DeleteVideo removes all transcript rows of one video.
func (m *Maintainer) DeleteVideo(ctx context.Context, videoID int64) (int64, error) {
	removed, err := m.transcripts.DeleteWhere(ctx, vector.ByVideo(videoID))
	if err != nil {
		return 0, fmt.Errorf("failed to delete rows for video %d: %w", videoID, err)
	}
	return removed, nil
}

// Stats scans both collections and classifies document rows without caller
// identity.
func (m *Maintainer) Stats(ctx context.Context) (Stats, error) {
	rows, err := m.docs.All(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to scan documents: %w", err)
	}

	cutoff := m.now().Add(-m.retention)
	var stats Stats
	stats.Total = int64(len(rows))
	for _, r := range rows {
		if r.IsTemporary {
			stats.Temporary++
			if r.CreatedAt.Before(cutoff) {
				stats.Expired++
			}
		} else {
			stats.Permanent++
		}
	}

	transcripts, err := m.transcripts.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count transcripts: %w", err)
	}
	stats.Transcripts = transcripts

	return stats, nil
}
