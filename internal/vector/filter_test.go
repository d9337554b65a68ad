package vector

import (
	"strings"
	"testing"
	"time"
)

func TestFilterMatch(t *testing.T) {
	now := time.Now()
	permanent := ChunkRecord{DocumentID: 7, SubjectID: 2, CreatedAt: now}
	temporary := ChunkRecord{DocumentID: 50, SubjectID: 2, OwnerUserID: 9, OwnerSessionID: 100, IsTemporary: true, CreatedAt: now}

	t.Run("Nil filter matches everything", func(t *testing.T) {
		var f *Filter
		if !f.Match(permanent) || !f.Match(temporary) {
			t.Error("Expected nil filter to match all records")
		}
	})

	t.Run("Subject filter", func(t *testing.T) {
		if !BySubject(2).Match(permanent) {
			t.Error("Expected subject 2 to match")
		}
		if BySubject(3).Match(permanent) {
			t.Error("Expected subject 3 not to match")
		}
	})

	t.Run("Document filter", func(t *testing.T) {
		if !ByDocument(7).Match(permanent) {
			t.Error("Expected document 7 to match")
		}
		if ByDocument(7).Match(temporary) {
			t.Error("Expected document 50 not to match document-7 filter")
		}
	})

	t.Run("Session filter", func(t *testing.T) {
		if !BySession(9, 100).Match(temporary) {
			t.Error("Expected owning session to match")
		}
		if BySession(1, 5).Match(temporary) {
			t.Error("Expected different session not to match")
		}
		if BySession(9, 100).Match(permanent) {
			t.Error("Expected permanent record not to match session filter")
		}
	})

	t.Run("Permanent filter excludes owned temporary rows", func(t *testing.T) {
		if !Permanent().Match(permanent) {
			t.Error("Expected permanent record to match")
		}
		if Permanent().Match(temporary) {
			t.Error("Expected temporary record not to match")
		}
	})

	t.Run("Permanent filter tolerates zero-owner temporary rows", func(t *testing.T) {
		// Ingestion prevents this shape, but an external writer might not.
		ambiguous := ChunkRecord{DocumentID: 8, IsTemporary: true, CreatedAt: now}
		if !Permanent().Match(ambiguous) {
			t.Error("Expected zero-owner row to fall into the permanent partition")
		}
	})

	t.Run("Expiry filter", func(t *testing.T) {
		cutoff := now.Add(-2 * time.Hour)
		old := ChunkRecord{IsTemporary: true, OwnerUserID: 9, OwnerSessionID: 1, CreatedAt: now.Add(-3 * time.Hour)}
		fresh := ChunkRecord{IsTemporary: true, OwnerUserID: 9, OwnerSessionID: 1, CreatedAt: now}
		if !ExpiredBefore(cutoff).Match(old) {
			t.Error("Expected 3h-old temporary row to match expiry filter")
		}
		if ExpiredBefore(cutoff).Match(fresh) {
			t.Error("Expected fresh temporary row not to match expiry filter")
		}
		if ExpiredBefore(cutoff).Match(ChunkRecord{CreatedAt: now.Add(-3 * time.Hour)}) {
			t.Error("Expected old permanent row not to match expiry filter")
		}
	})

	t.Run("WithSubject does not mutate the receiver", func(t *testing.T) {
		base := Permanent()
		scoped := base.WithSubject(2)
		if base.SubjectID != nil {
			t.Error("Expected base filter to stay unscoped")
		}
		if scoped.SubjectID == nil || *scoped.SubjectID != 2 {
			t.Error("Expected scoped filter to carry the subject")
		}
	})
}

func TestFilterMatchTranscript(t *testing.T) {
	now := time.Now()
	rec := TranscriptRecord{VideoID: 5, ChunkID: 1, SubjectID: 2, CreatedAt: now}

	if !ByVideo(5).MatchTranscript(rec) {
		t.Error("Expected video 5 to match")
	}
	if ByVideo(6).MatchTranscript(rec) {
		t.Error("Expected video 6 not to match")
	}
	if !BySubject(2).MatchTranscript(rec) {
		t.Error("Expected subject 2 to match")
	}

	// Transcripts carry no temporariness; a temporary-only predicate never matches.
	temp := true
	if (&Filter{IsTemporary: &temp}).MatchTranscript(rec) {
		t.Error("Expected temporary-only filter not to match a transcript")
	}
}

func TestFilterExpr(t *testing.T) {
	t.Run("Empty filter", func(t *testing.T) {
		var f *Filter
		if f.Expr() != "" {
			t.Errorf("Expected empty expression, got %q", f.Expr())
		}
	})

	t.Run("Conjunction", func(t *testing.T) {
		expr := BySession(9, 100).WithSubject(2).Expr()
		for _, want := range []string{"owner_user_id == 9", "owner_session_id == 100", "is_temporary == true", "subject_id == 2"} {
			if !strings.Contains(expr, want) {
				t.Errorf("Expected expression to contain %q, got %q", want, expr)
			}
		}
	})

	t.Run("Permanent disjunction", func(t *testing.T) {
		expr := Permanent().Expr()
		if !strings.Contains(expr, "is_temporary == false or") {
			t.Errorf("Expected permanent partition disjunction, got %q", expr)
		}
	})

	t.Run("Transcript expression skips owner fields", func(t *testing.T) {
		expr := BySession(9, 100).WithSubject(2).TranscriptExpr()
		if strings.Contains(expr, "owner_user_id") {
			t.Errorf("Expected transcript expression without owner fields, got %q", expr)
		}
		if !strings.Contains(expr, "subject_id == 2") {
			t.Errorf("Expected subject term, got %q", expr)
		}
	})
}
