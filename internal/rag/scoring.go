package rag

import (
	"time"

	"github.com/HungNguyenBa1811/ai-chat-4/internal/vector"
)

// Bucket is the scoring category a chunk falls into for one caller.
type Bucket string

const (
	// BucketTemporary holds the caller's own session-scoped uploads.
	BucketTemporary Bucket = "temporary"

	// BucketPermanent holds curated course material visible to everyone.
	BucketPermanent Bucket = "permanent"

	// BucketOther holds temporary uploads belonging to someone else.
	BucketOther Bucket = "other"
)

// Caller identifies the asking user and chat session.
type Caller struct {
	UserID    int64
	SessionID int64
}

// Classify assigns a chunk to exactly one bucket for the given caller. Rows
// flagged temporary without an owner pair fall into the permanent partition,
// matching the filter layer.
func Classify(r vector.ChunkRecord, caller *Caller) Bucket {
	if r.IsTemporary && r.HasOwner() {
		if caller != nil && r.OwnerUserID == caller.UserID && r.OwnerSessionID == caller.SessionID {
			return BucketTemporary
		}
		return BucketOther
	}
	return BucketPermanent
}

// BucketWeights is one bucket's blend of semantic and temporal components
// plus a rank-separating offset.
type BucketWeights struct {
	Semantic float64
	Temporal float64
	Offset   float64
}

// ScoringConfig holds the product-tuned composite scoring constants.
type ScoringConfig struct {
	// RetentionWindow is the lifetime of temporary rows. The temporal score
	// decays to zero over this window.
	RetentionWindow time.Duration

	// OverfetchFactor multiplies topK on the raw vector search so bucket
	// re-ranking has candidates to promote.
	OverfetchFactor int

	// AnonymousOffset is the flat offset applied to every hit of an
	// anonymous query. It exceeds the best reachable composite score, so
	// anonymous rank is decided by similarity alone.
	AnonymousOffset float64

	Temporary BucketWeights
	Permanent BucketWeights
	Other     BucketWeights
}

// DefaultScoringConfig returns the tuned defaults. Offsets are spaced so the
// buckets never interleave: a temporary hit always outranks a permanent one,
// which always outranks someone else's upload.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		RetentionWindow: 2 * time.Hour,
		OverfetchFactor: 3,
		AnonymousOffset: 100,
		Temporary:       BucketWeights{Semantic: 0.1, Temporal: 0.9, Offset: 10},
		Permanent:       BucketWeights{Semantic: 0.5, Temporal: 0.5, Offset: 5},
		Other:           BucketWeights{Semantic: 0.8, Temporal: 0.2, Offset: 0},
	}
}

// SemanticScore converts a cosine distance (smaller is closer) into a
// similarity in [0, 1] for unit vectors.
func SemanticScore(distance float32) float64 {
	return 1 - float64(distance)
}

// TemporalScore maps a row's age onto [0, 1], linearly decaying to zero at
// the retention window. Negative ages from clock skew clamp to 1.
func (c ScoringConfig) TemporalScore(age time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	if age >= c.RetentionWindow {
		return 0
	}
	return 1 - float64(age)/float64(c.RetentionWindow)
}

func (c ScoringConfig) weights(bucket Bucket) BucketWeights {
	switch bucket {
	case BucketTemporary:
		return c.Temporary
	case BucketPermanent:
		return c.Permanent
	default:
		return c.Other
	}
}

// Composite blends the semantic and temporal components under the bucket's
// weights and offset.
func (c ScoringConfig) Composite(chunk vector.ScoredChunk, bucket Bucket, now time.Time) float64 {
	w := c.weights(bucket)
	return w.Offset + w.Semantic*SemanticScore(chunk.Distance) + w.Temporal*c.TemporalScore(now.Sub(chunk.CreatedAt))
}
