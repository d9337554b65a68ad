package vector

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds Qdrant connection configuration.
type QdrantConfig struct {
	// URL is the Qdrant server address (e.g., "https://example.qdrant.io:6334").
	URL string

	// APIKey is optional API key for authentication.
	APIKey string

	DocumentCollection   string
	TranscriptCollection string
	Dimension            int

	// RecreateOnMismatch drops and recreates a collection whose vector size
	// does not match Dimension. Destructive; off by default.
	RecreateOnMismatch bool
}

// DefaultQdrantConfig returns default configuration from environment variables
func DefaultQdrantConfig() QdrantConfig {
	addr := os.Getenv("QDRANT_URL")
	if addr == "" {
		addr = "http://localhost:6334"
	}
	return QdrantConfig{
		URL:                  addr,
		APIKey:               os.Getenv("QDRANT_API_KEY"),
		DocumentCollection:   "documents",
		TranscriptCollection: "video_transcripts",
		Dimension:            1536,
	}
}

// QdrantStore implements Store using Qdrant.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	ready  bool
}

// NewQdrantStore creates a new Qdrant-backed store.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if cfg.Dimension <= 0 {
		return nil, ErrInvalidDimension
	}

	parsedURL := cfg.URL
	if !strings.HasPrefix(parsedURL, "http://") && !strings.HasPrefix(parsedURL, "https://") {
		parsedURL = "https://" + parsedURL
	}
	u, err := url.Parse(parsedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse qdrant url: %w", err)
	}

	host := u.Hostname()
	port := 6334 // default gRPC port
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid port: %w", err)
		}
		port = p
	}

	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return &QdrantStore{client: qdrantClient, config: cfg}, nil
}

// Initialize implements Store.
func (s *QdrantStore) Initialize(ctx context.Context) error {
	if err := s.ensureCollection(ctx, s.config.DocumentCollection); err != nil {
		return err
	}
	if err := s.ensureCollection(ctx, s.config.TranscriptCollection); err != nil {
		return err
	}
	s.ready = true
	return nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if exists {
		info, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to describe collection %s: %w", name, err)
		}
		size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if size == uint64(s.config.Dimension) {
			return nil
		}
		if !s.config.RecreateOnMismatch {
			return fmt.Errorf("%w: collection %s has vector size %d, want %d", ErrSchemaMismatch, name, size, s.config.Dimension)
		}
		if err := s.client.DeleteCollection(ctx, name); err != nil {
			return fmt.Errorf("failed to drop incompatible collection %s: %w", name, err)
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.config.Dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}

// Documents implements Store.
func (s *QdrantStore) Documents() DocumentIndex {
	return qdrantDocuments{s}
}

// Transcripts implements Store.
func (s *QdrantStore) Transcripts() TranscriptIndex {
	return qdrantTranscripts{s}
}

// Close implements Store.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func (s *QdrantStore) count(ctx context.Context, collection string) (int64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return int64(n), nil
}

// deleteWhere removes matching points and returns the before/after delta so
// deletion counting behaves identically across backends.
func (s *QdrantStore) deleteWhere(ctx context.Context, collection string, filter *qdrant.Filter) (int64, error) {
	before, err := s.count(ctx, collection)
	if err != nil {
		return 0, err
	}
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}
	after, err := s.count(ctx, collection)
	if err != nil {
		return 0, err
	}
	return before - after, nil
}

func (s *QdrantStore) scroll(ctx context.Context, collection string) ([]*qdrant.RetrievedPoint, error) {
	// Stats scans are operational, not hot-path; a single large scroll keeps
	// the client surface small.
	return s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          qdrant.PtrOf(uint32(10000)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
}

// documentFilter converts a Filter to the Qdrant filter language for the
// document collection.
func documentFilter(f *Filter) *qdrant.Filter {
	if f == nil {
		return nil
	}
	var must []*qdrant.Condition
	if f.SubjectID != nil {
		must = append(must, matchInt("subject_id", *f.SubjectID))
	}
	if f.DocumentID != nil {
		must = append(must, matchInt("document_id", *f.DocumentID))
	}
	if f.OwnerUserID != nil {
		must = append(must, matchInt("owner_user_id", *f.OwnerUserID))
	}
	if f.OwnerSessionID != nil {
		must = append(must, matchInt("owner_session_id", *f.OwnerSessionID))
	}
	if f.IsTemporary != nil {
		must = append(must, matchBool("is_temporary", *f.IsTemporary))
	}
	if f.PermanentOnly {
		// is_temporary == false or (owner_user_id == 0 and owner_session_id == 0)
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{
				Filter: &qdrant.Filter{
					Should: []*qdrant.Condition{
						matchBool("is_temporary", false),
						{
							ConditionOneOf: &qdrant.Condition_Filter{
								Filter: &qdrant.Filter{
									Must: []*qdrant.Condition{
										matchInt("owner_user_id", 0),
										matchInt("owner_session_id", 0),
									},
								},
							},
						},
					},
				},
			},
		})
	}
	if f.CreatedBefore != nil {
		must = append(must, rangeLt("created_at", float64(f.CreatedBefore.Unix())))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// transcriptFilter converts a Filter for the transcript collection.
func transcriptFilter(f *Filter) *qdrant.Filter {
	if f == nil {
		return nil
	}
	var must []*qdrant.Condition
	if f.SubjectID != nil {
		must = append(must, matchInt("subject_id", *f.SubjectID))
	}
	if f.VideoID != nil {
		must = append(must, matchInt("video_id", *f.VideoID))
	}
	if f.CreatedBefore != nil {
		must = append(must, rangeLt("created_at", float64(f.CreatedBefore.Unix())))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func matchInt(key string, value int64) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: value}},
			},
		},
	}
}

func matchBool(key string, value bool) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: value}},
			},
		},
	}
}

func rangeLt(key string, lt float64) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Range: &qdrant.Range{Lt: &lt},
			},
		},
	}
}

func payloadInt(payload map[string]*qdrant.Value, key string) int64 {
	if v, ok := payload[key]; ok {
		return v.GetIntegerValue()
	}
	return 0
}

func payloadDouble(payload map[string]*qdrant.Value, key string) float64 {
	if v, ok := payload[key]; ok {
		return v.GetDoubleValue()
	}
	return 0
}

func chunkFromPayload(payload map[string]*qdrant.Value) ChunkRecord {
	r := ChunkRecord{
		DocumentID:     payloadInt(payload, "document_id"),
		ChunkIndex:     payloadInt(payload, "chunk_index"),
		SubjectID:      payloadInt(payload, "subject_id"),
		OwnerUserID:    payloadInt(payload, "owner_user_id"),
		OwnerSessionID: payloadInt(payload, "owner_session_id"),
		CreatedAt:      time.Unix(payloadInt(payload, "created_at"), 0),
	}
	if v, ok := payload["is_temporary"]; ok {
		r.IsTemporary = v.GetBoolValue()
	}
	if v, ok := payload["text"]; ok {
		r.Text = v.GetStringValue()
	}
	return r
}

func transcriptFromPayload(payload map[string]*qdrant.Value) TranscriptRecord {
	r := TranscriptRecord{
		VideoID:   payloadInt(payload, "video_id"),
		ChunkID:   payloadInt(payload, "chunk_id"),
		SubjectID: payloadInt(payload, "subject_id"),
		StartTime: payloadDouble(payload, "start_time"),
		EndTime:   payloadDouble(payload, "end_time"),
		CreatedAt: time.Unix(payloadInt(payload, "created_at"), 0),
	}
	if v, ok := payload["text"]; ok {
		r.Text = v.GetStringValue()
	}
	return r
}

type qdrantDocuments struct {
	store *QdrantStore
}

func (d qdrantDocuments) Add(ctx context.Context, records []ChunkRecord) error {
	s := d.store
	if !s.ready {
		return ErrIndexUnavailable
	}
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		if len(r.Vector) != s.config.Dimension {
			return fmt.Errorf("%w: expected dimension %d, got %d", ErrIndexWrite, s.config.Dimension, len(r.Vector))
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuid.NewString()),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"document_id":      r.DocumentID,
				"chunk_index":      r.ChunkIndex,
				"subject_id":       r.SubjectID,
				"owner_user_id":    r.OwnerUserID,
				"owner_session_id": r.OwnerSessionID,
				"is_temporary":     r.IsTemporary,
				"created_at":       r.CreatedAt.Unix(),
				"text":             r.Text,
			}),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.DocumentCollection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}
	return nil
}

func (d qdrantDocuments) Search(ctx context.Context, queryVector []float32, limit int, filter *Filter) ([]ScoredChunk, error) {
	s := d.store
	if !s.ready {
		return nil, ErrIndexUnavailable
	}
	if len(queryVector) != s.config.Dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, s.config.Dimension, len(queryVector))
	}

	limitUint64 := uint64(limit)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.DocumentCollection,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          &limitUint64,
		Filter:         documentFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	hits := make([]ScoredChunk, 0, len(points))
	for _, point := range points {
		hit := ScoredChunk{
			ChunkRecord: chunkFromPayload(point.Payload),
			// Qdrant reports cosine similarity; convert to distance.
			Distance: 1 - point.Score,
		}
		if filter.Match(hit.ChunkRecord) {
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

func (d qdrantDocuments) DeleteWhere(ctx context.Context, filter *Filter) (int64, error) {
	if !d.store.ready {
		return 0, ErrIndexUnavailable
	}
	return d.store.deleteWhere(ctx, d.store.config.DocumentCollection, documentFilter(filter))
}

func (d qdrantDocuments) Count(ctx context.Context) (int64, error) {
	if !d.store.ready {
		return 0, ErrIndexUnavailable
	}
	return d.store.count(ctx, d.store.config.DocumentCollection)
}

func (d qdrantDocuments) All(ctx context.Context) ([]ChunkRecord, error) {
	if !d.store.ready {
		return nil, ErrIndexUnavailable
	}
	points, err := d.store.scroll(ctx, d.store.config.DocumentCollection)
	if err != nil {
		return nil, fmt.Errorf("failed to scan documents: %w", err)
	}
	records := make([]ChunkRecord, 0, len(points))
	for _, point := range points {
		records = append(records, chunkFromPayload(point.Payload))
	}
	return records, nil
}

type qdrantTranscripts struct {
	store *QdrantStore
}

func (t qdrantTranscripts) Add(ctx context.Context, records []TranscriptRecord) error {
	s := t.store
	if !s.ready {
		return ErrIndexUnavailable
	}
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		if len(r.Vector) != s.config.Dimension {
			return fmt.Errorf("%w: expected dimension %d, got %d", ErrIndexWrite, s.config.Dimension, len(r.Vector))
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuid.NewString()),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"video_id":   r.VideoID,
				"chunk_id":   r.ChunkID,
				"subject_id": r.SubjectID,
				"start_time": r.StartTime,
				"end_time":   r.EndTime,
				"created_at": r.CreatedAt.Unix(),
				"text":       r.Text,
			}),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.TranscriptCollection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}
	return nil
}

func (t qdrantTranscripts) Search(ctx context.Context, queryVector []float32, limit int, filter *Filter) ([]ScoredTranscript, error) {
	s := t.store
	if !s.ready {
		return nil, ErrIndexUnavailable
	}
	if len(queryVector) != s.config.Dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, s.config.Dimension, len(queryVector))
	}

	limitUint64 := uint64(limit)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.TranscriptCollection,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          &limitUint64,
		Filter:         transcriptFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	hits := make([]ScoredTranscript, 0, len(points))
	for _, point := range points {
		hit := ScoredTranscript{
			TranscriptRecord: transcriptFromPayload(point.Payload),
			Distance:         1 - point.Score,
		}
		if filter.MatchTranscript(hit.TranscriptRecord) {
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

func (t qdrantTranscripts) DeleteWhere(ctx context.Context, filter *Filter) (int64, error) {
	if !t.store.ready {
		return 0, ErrIndexUnavailable
	}
	return t.store.deleteWhere(ctx, t.store.config.TranscriptCollection, transcriptFilter(filter))
}

func (t qdrantTranscripts) Count(ctx context.Context) (int64, error) {
	if !t.store.ready {
		return 0, ErrIndexUnavailable
	}
	return t.store.count(ctx, t.store.config.TranscriptCollection)
}

func (t qdrantTranscripts) All(ctx context.Context) ([]TranscriptRecord, error) {
	if !t.store.ready {
		return nil, ErrIndexUnavailable
	}
	points, err := t.store.scroll(ctx, t.store.config.TranscriptCollection)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transcripts: %w", err)
	}
	records := make([]TranscriptRecord, 0, len(points))
	for _, point := range points {
		records = append(records, transcriptFromPayload(point.Payload))
	}
	return records, nil
}

// Compile-time check that QdrantStore implements Store.
var _ Store = (*QdrantStore)(nil)
