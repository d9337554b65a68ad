package vector

import (
	"fmt"
	"strings"
	"time"
)

// Filter is an equality/range predicate over payload fields, shared by both
// collections (DocumentID applies to documents, VideoID to transcripts).
// Stores compile it to their native filter language where possible; every
// backend also re-evaluates Match client-side, since store-level predicates
// can be fragile.
type Filter struct {
	SubjectID      *int64
	DocumentID     *int64
	VideoID        *int64
	OwnerUserID    *int64
	OwnerSessionID *int64
	IsTemporary    *bool

	// PermanentOnly selects the permanent partition: rows that are either
	// explicitly non-temporary or carry the zero-owner sentinel.
	PermanentOnly bool

	// CreatedBefore selects rows strictly older than the cutoff.
	CreatedBefore *time.Time
}

// BySubject filters to one subject classification.
func BySubject(subjectID int64) *Filter {
	return &Filter{SubjectID: &subjectID}
}

// ByDocument filters to all chunks of one document.
func ByDocument(documentID int64) *Filter {
	return &Filter{DocumentID: &documentID}
}

// ByVideo filters to all transcript chunks of one video.
func ByVideo(videoID int64) *Filter {
	return &Filter{VideoID: &videoID}
}

// BySession filters to the temporary uploads of one user/session pair.
func BySession(userID, sessionID int64) *Filter {
	temp := true
	return &Filter{OwnerUserID: &userID, OwnerSessionID: &sessionID, IsTemporary: &temp}
}

// Permanent filters to the permanent partition.
func Permanent() *Filter {
	return &Filter{PermanentOnly: true}
}

// ExpiredBefore filters to temporary rows older than the cutoff, as swept by
// the maintenance job.
func ExpiredBefore(cutoff time.Time) *Filter {
	temp := true
	return &Filter{IsTemporary: &temp, CreatedBefore: &cutoff}
}

// WithSubject returns a copy of f restricted to the given subject.
func (f *Filter) WithSubject(subjectID int64) *Filter {
	clone := *f
	clone.SubjectID = &subjectID
	return &clone
}

// Match evaluates the predicate against a document record in Go.
func (f *Filter) Match(r ChunkRecord) bool {
	if f == nil {
		return true
	}
	if f.SubjectID != nil && r.SubjectID != *f.SubjectID {
		return false
	}
	if f.DocumentID != nil && r.DocumentID != *f.DocumentID {
		return false
	}
	if f.OwnerUserID != nil && r.OwnerUserID != *f.OwnerUserID {
		return false
	}
	if f.OwnerSessionID != nil && r.OwnerSessionID != *f.OwnerSessionID {
		return false
	}
	if f.IsTemporary != nil && r.IsTemporary != *f.IsTemporary {
		return false
	}
	if f.PermanentOnly && r.IsTemporary && r.HasOwner() {
		return false
	}
	if f.CreatedBefore != nil && !r.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

// MatchTranscript evaluates the predicate against a transcript record.
// Owner and temporariness fields do not exist in that collection and are
// ignored, except that a temporary-only predicate can never match.
func (f *Filter) MatchTranscript(r TranscriptRecord) bool {
	if f == nil {
		return true
	}
	if f.SubjectID != nil && r.SubjectID != *f.SubjectID {
		return false
	}
	if f.VideoID != nil && r.VideoID != *f.VideoID {
		return false
	}
	if f.IsTemporary != nil && *f.IsTemporary {
		return false
	}
	if f.CreatedBefore != nil && !r.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

// Expr compiles the predicate to a Milvus boolean expression. Returns the
// empty string for a nil or empty filter.
func (f *Filter) Expr() string {
	if f == nil {
		return ""
	}
	var terms []string
	if f.SubjectID != nil {
		terms = append(terms, fmt.Sprintf("subject_id == %d", *f.SubjectID))
	}
	if f.DocumentID != nil {
		terms = append(terms, fmt.Sprintf("document_id == %d", *f.DocumentID))
	}
	if f.VideoID != nil {
		terms = append(terms, fmt.Sprintf("video_id == %d", *f.VideoID))
	}
	if f.OwnerUserID != nil {
		terms = append(terms, fmt.Sprintf("owner_user_id == %d", *f.OwnerUserID))
	}
	if f.OwnerSessionID != nil {
		terms = append(terms, fmt.Sprintf("owner_session_id == %d", *f.OwnerSessionID))
	}
	if f.IsTemporary != nil {
		terms = append(terms, fmt.Sprintf("is_temporary == %t", *f.IsTemporary))
	}
	if f.PermanentOnly {
		terms = append(terms, "(is_temporary == false or (owner_user_id == 0 and owner_session_id == 0))")
	}
	if f.CreatedBefore != nil {
		terms = append(terms, fmt.Sprintf("created_at < %d", f.CreatedBefore.Unix()))
	}
	return strings.Join(terms, " and ")
}

// TranscriptExpr compiles the predicate for the transcript collection, which
// lacks owner/temporariness fields.
func (f *Filter) TranscriptExpr() string {
	if f == nil {
		return ""
	}
	var terms []string
	if f.SubjectID != nil {
		terms = append(terms, fmt.Sprintf("subject_id == %d", *f.SubjectID))
	}
	if f.VideoID != nil {
		terms = append(terms, fmt.Sprintf("video_id == %d", *f.VideoID))
	}
	if f.CreatedBefore != nil {
		terms = append(terms, fmt.Sprintf("created_at < %d", f.CreatedBefore.Unix()))
	}
	return strings.Join(terms, " and ")
}
