package vector

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// MilvusConfig holds configuration for the Milvus connection and the two
// logical collections.
type MilvusConfig struct {
	Address              string // Milvus server address (e.g., "localhost:19530")
	DocumentCollection   string // Name of the document-chunk collection
	TranscriptCollection string // Name of the video-transcript collection
	Dimension            int    // Vector dimension (e.g., 1536 for text-embedding-3-small)
	IndexType            string // Index type (default: "HNSW")
	MetricType           string // Similarity metric (default: "COSINE")

	// HNSW index parameters
	M              int // HNSW M parameter (default: 16)
	EfConstruction int // HNSW efConstruction (default: 256)

	// RecreateOnMismatch drops and recreates a collection whose schema is
	// incompatible. Destructive: it discards all indexed content, so it is
	// off by default and intended for first-time/dev bootstrapping only.
	RecreateOnMismatch bool
}

// DefaultMilvusConfig returns default configuration from environment variables
func DefaultMilvusConfig() MilvusConfig {
	address := os.Getenv("MILVUS_ADDRESS")
	if address == "" {
		address = "localhost:19530"
	}

	return MilvusConfig{
		Address:              address,
		DocumentCollection:   "documents",
		TranscriptCollection: "video_transcripts",
		Dimension:            1536,
		IndexType:            "HNSW",
		MetricType:           "COSINE",
		M:                    16,
		EfConstruction:       256,
	}
}

// MilvusStore implements Store using Milvus
type MilvusStore struct {
	client client.Client
	config MilvusConfig
	ready  bool
}

// NewMilvusStore connects to Milvus. Initialize must be called before any
// collection operation.
func NewMilvusStore(ctx context.Context, config MilvusConfig) (*MilvusStore, error) {
	if config.Dimension <= 0 {
		return nil, ErrInvalidDimension
	}

	c, err := client.NewGrpcClient(ctx, config.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return &MilvusStore{
		client: c,
		config: config,
	}, nil
}

// Initialize ensures both collections exist with the expected schema.
func (m *MilvusStore) Initialize(ctx context.Context) error {
	if err := m.ensureCollection(ctx, m.config.DocumentCollection, m.documentSchema()); err != nil {
		return err
	}
	if err := m.ensureCollection(ctx, m.config.TranscriptCollection, m.transcriptSchema()); err != nil {
		return err
	}
	m.ready = true
	return nil
}

// Documents returns the document-collection view.
func (m *MilvusStore) Documents() DocumentIndex {
	return milvusDocuments{m}
}

// Transcripts returns the transcript-collection view.
func (m *MilvusStore) Transcripts() TranscriptIndex {
	return milvusTranscripts{m}
}

// Close releases resources and closes the Milvus connection
func (m *MilvusStore) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

func (m *MilvusStore) documentSchema() *entity.Schema {
	return &entity.Schema{
		CollectionName: m.config.DocumentCollection,
		AutoID:         true,
		Fields: []*entity.Field{
			{Name: "id", DataType: entity.FieldTypeInt64, PrimaryKey: true, AutoID: true},
			{Name: "document_id", DataType: entity.FieldTypeInt64},
			{Name: "chunk_index", DataType: entity.FieldTypeInt64},
			{Name: "subject_id", DataType: entity.FieldTypeInt64},
			{Name: "owner_user_id", DataType: entity.FieldTypeInt64},
			{Name: "owner_session_id", DataType: entity.FieldTypeInt64},
			{Name: "is_temporary", DataType: entity.FieldTypeBool},
			{Name: "created_at", DataType: entity.FieldTypeInt64}, // Unix timestamp
			{Name: "text", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "65535"}},
			{Name: "embedding", DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.config.Dimension)}},
		},
	}
}

func (m *MilvusStore) transcriptSchema() *entity.Schema {
	return &entity.Schema{
		CollectionName: m.config.TranscriptCollection,
		AutoID:         true,
		Fields: []*entity.Field{
			{Name: "id", DataType: entity.FieldTypeInt64, PrimaryKey: true, AutoID: true},
			{Name: "video_id", DataType: entity.FieldTypeInt64},
			{Name: "chunk_id", DataType: entity.FieldTypeInt64},
			{Name: "subject_id", DataType: entity.FieldTypeInt64},
			{Name: "start_time", DataType: entity.FieldTypeDouble},
			{Name: "end_time", DataType: entity.FieldTypeDouble},
			{Name: "created_at", DataType: entity.FieldTypeInt64},
			{Name: "text", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "65535"}},
			{Name: "embedding", DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.config.Dimension)}},
		},
	}
}

// ensureCollection creates the collection if missing and verifies the schema
// of an existing one. An incompatible collection is dropped and recreated only
// when RecreateOnMismatch is set.
func (m *MilvusStore) ensureCollection(ctx context.Context, name string, schema *entity.Schema) error {
	has, err := m.client.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if has {
		existing, err := m.client.DescribeCollection(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to describe collection %s: %w", name, err)
		}
		if schemaCompatible(existing.Schema, schema) {
			return nil
		}
		if !m.config.RecreateOnMismatch {
			return fmt.Errorf("%w: collection %s has incompatible schema", ErrSchemaMismatch, name)
		}
		if err := m.client.DropCollection(ctx, name); err != nil {
			return fmt.Errorf("failed to drop incompatible collection %s: %w", name, err)
		}
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, m.config.M, m.config.EfConstruction)
	if err != nil {
		return fmt.Errorf("failed to create index config: %w", err)
	}
	if err := m.client.CreateIndex(ctx, name, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("failed to load collection %s: %w", name, err)
	}

	return nil
}

// schemaCompatible checks that every expected field exists with the expected
// type, and that the vector dimensionality matches.
func schemaCompatible(existing, want *entity.Schema) bool {
	if existing == nil {
		return false
	}
	fields := make(map[string]*entity.Field, len(existing.Fields))
	for _, f := range existing.Fields {
		fields[f.Name] = f
	}
	for _, w := range want.Fields {
		f, ok := fields[w.Name]
		if !ok || f.DataType != w.DataType {
			return false
		}
		if w.DataType == entity.FieldTypeFloatVector {
			if f.TypeParams["dim"] != w.TypeParams["dim"] {
				return false
			}
		}
	}
	return true
}

func (m *MilvusStore) count(ctx context.Context, collection string) (int64, error) {
	if err := m.client.Flush(ctx, collection, false); err != nil {
		return 0, fmt.Errorf("failed to flush %s: %w", collection, err)
	}
	stats, err := m.client.GetCollectionStatistics(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("failed to get stats for %s: %w", collection, err)
	}
	var n int64
	fmt.Sscanf(stats["row_count"], "%d", &n)
	return n, nil
}

// deleteWhere removes rows matching expr and returns the before/after delta,
// since Milvus does not report affected-row counts directly.
func (m *MilvusStore) deleteWhere(ctx context.Context, collection, expr string) (int64, error) {
	if expr == "" {
		expr = "id >= 0"
	}
	before, err := m.count(ctx, collection)
	if err != nil {
		return 0, err
	}
	if err := m.client.Delete(ctx, collection, "", expr); err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}
	after, err := m.count(ctx, collection)
	if err != nil {
		return 0, err
	}
	return before - after, nil
}

func (m *MilvusStore) searchParams() (entity.SearchParam, error) {
	return entity.NewIndexHNSWSearchParam(64) // ef parameter for search
}

// milvusDocuments is the document-collection view of a MilvusStore.
type milvusDocuments struct {
	store *MilvusStore
}

func (d milvusDocuments) Add(ctx context.Context, records []ChunkRecord) error {
	m := d.store
	if !m.ready {
		return ErrIndexUnavailable
	}
	if len(records) == 0 {
		return nil
	}

	documentIDs := make([]int64, len(records))
	chunkIndexes := make([]int64, len(records))
	subjectIDs := make([]int64, len(records))
	ownerUserIDs := make([]int64, len(records))
	ownerSessionIDs := make([]int64, len(records))
	temporaries := make([]bool, len(records))
	createdAts := make([]int64, len(records))
	texts := make([]string, len(records))
	embeddings := make([][]float32, len(records))

	for i, r := range records {
		if len(r.Vector) != m.config.Dimension {
			return fmt.Errorf("%w: expected dimension %d, got %d", ErrIndexWrite, m.config.Dimension, len(r.Vector))
		}
		documentIDs[i] = r.DocumentID
		chunkIndexes[i] = r.ChunkIndex
		subjectIDs[i] = r.SubjectID
		ownerUserIDs[i] = r.OwnerUserID
		ownerSessionIDs[i] = r.OwnerSessionID
		temporaries[i] = r.IsTemporary
		createdAts[i] = r.CreatedAt.Unix()
		texts[i] = r.Text
		embeddings[i] = r.Vector
	}

	columns := []entity.Column{
		entity.NewColumnInt64("document_id", documentIDs),
		entity.NewColumnInt64("chunk_index", chunkIndexes),
		entity.NewColumnInt64("subject_id", subjectIDs),
		entity.NewColumnInt64("owner_user_id", ownerUserIDs),
		entity.NewColumnInt64("owner_session_id", ownerSessionIDs),
		entity.NewColumnBool("is_temporary", temporaries),
		entity.NewColumnInt64("created_at", createdAts),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("embedding", m.config.Dimension, embeddings),
	}

	if _, err := m.client.Insert(ctx, m.config.DocumentCollection, "", columns...); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}
	if err := m.client.Flush(ctx, m.config.DocumentCollection, false); err != nil {
		return fmt.Errorf("%w: flush: %v", ErrIndexWrite, err)
	}
	return nil
}

func (d milvusDocuments) Search(ctx context.Context, queryVector []float32, limit int, filter *Filter) ([]ScoredChunk, error) {
	m := d.store
	if !m.ready {
		return nil, ErrIndexUnavailable
	}
	if len(queryVector) != m.config.Dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, m.config.Dimension, len(queryVector))
	}

	sp, err := m.searchParams()
	if err != nil {
		return nil, fmt.Errorf("failed to create search params: %w", err)
	}

	vectors := []entity.Vector{entity.FloatVector(queryVector)}
	outputFields := []string{"document_id", "chunk_index", "subject_id", "owner_user_id", "owner_session_id", "is_temporary", "created_at", "text"}

	results, err := m.client.Search(
		ctx,
		m.config.DocumentCollection,
		nil, // partition names
		filter.Expr(),
		outputFields,
		vectors,
		"embedding",
		entity.COSINE,
		limit,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	if len(results) == 0 {
		return []ScoredChunk{}, nil
	}

	chunks := make([]ScoredChunk, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		chunk := ScoredChunk{
			// Milvus reports cosine similarity; convert to distance so that
			// smaller always means closer, matching the other backends.
			Distance: 1 - results[0].Scores[i],
		}
		for _, field := range results[0].Fields {
			switch field.Name() {
			case "document_id":
				chunk.DocumentID = field.(*entity.ColumnInt64).Data()[i]
			case "chunk_index":
				chunk.ChunkIndex = field.(*entity.ColumnInt64).Data()[i]
			case "subject_id":
				chunk.SubjectID = field.(*entity.ColumnInt64).Data()[i]
			case "owner_user_id":
				chunk.OwnerUserID = field.(*entity.ColumnInt64).Data()[i]
			case "owner_session_id":
				chunk.OwnerSessionID = field.(*entity.ColumnInt64).Data()[i]
			case "is_temporary":
				chunk.IsTemporary = field.(*entity.ColumnBool).Data()[i]
			case "created_at":
				chunk.CreatedAt = time.Unix(field.(*entity.ColumnInt64).Data()[i], 0)
			case "text":
				chunk.Text = field.(*entity.ColumnVarChar).Data()[i]
			}
		}
		// Re-filter defensively: the store-level predicate is not trusted.
		if filter.Match(chunk.ChunkRecord) {
			chunks = append(chunks, chunk)
		}
	}

	return chunks, nil
}

func (d milvusDocuments) DeleteWhere(ctx context.Context, filter *Filter) (int64, error) {
	if !d.store.ready {
		return 0, ErrIndexUnavailable
	}
	return d.store.deleteWhere(ctx, d.store.config.DocumentCollection, filter.Expr())
}

func (d milvusDocuments) Count(ctx context.Context) (int64, error) {
	if !d.store.ready {
		return 0, ErrIndexUnavailable
	}
	return d.store.count(ctx, d.store.config.DocumentCollection)
}

func (d milvusDocuments) All(ctx context.Context) ([]ChunkRecord, error) {
	m := d.store
	if !m.ready {
		return nil, ErrIndexUnavailable
	}

	outputFields := []string{"document_id", "chunk_index", "subject_id", "owner_user_id", "owner_session_id", "is_temporary", "created_at", "text"}
	results, err := m.client.Query(ctx, m.config.DocumentCollection, nil, "id >= 0", outputFields)
	if err != nil {
		return nil, fmt.Errorf("failed to scan documents: %w", err)
	}

	columns := make(map[string]entity.Column, len(results))
	n := 0
	for _, col := range results {
		columns[col.Name()] = col
		if col.Len() > n {
			n = col.Len()
		}
	}

	records := make([]ChunkRecord, 0, n)
	for i := 0; i < n; i++ {
		var r ChunkRecord
		if col, ok := columns["document_id"]; ok {
			r.DocumentID = col.(*entity.ColumnInt64).Data()[i]
		}
		if col, ok := columns["chunk_index"]; ok {
			r.ChunkIndex = col.(*entity.ColumnInt64).Data()[i]
		}
		if col, ok := columns["subject_id"]; ok {
			r.SubjectID = col.(*entity.ColumnInt64).Data()[i]
		}
		if col, ok := columns["owner_user_id"]; ok {
			r.OwnerUserID = col.(*entity.ColumnInt64).Data()[i]
		}
		if col, ok := columns["owner_session_id"]; ok {
			r.OwnerSessionID = col.(*entity.ColumnInt64).Data()[i]
		}
		if col, ok := columns["is_temporary"]; ok {
			r.IsTemporary = col.(*entity.ColumnBool).Data()[i]
		}
		if col, ok := columns["created_at"]; ok {
			r.CreatedAt = time.Unix(col.(*entity.ColumnInt64).Data()[i], 0)
		}
		if col, ok := columns["text"]; ok {
			r.Text = col.(*entity.ColumnVarChar).Data()[i]
		}
		records = append(records, r)
	}

	return records, nil
}

// milvusTranscripts is the transcript-collection view of a MilvusStore.
type milvusTranscripts struct {
	store *MilvusStore
}

func (t milvusTranscripts) Add(ctx context.Context, records []TranscriptRecord) error {
	m := t.store
	if !m.ready {
		return ErrIndexUnavailable
	}
	if len(records) == 0 {
		return nil
	}

	videoIDs := make([]int64, len(records))
	chunkIDs := make([]int64, len(records))
	subjectIDs := make([]int64, len(records))
	startTimes := make([]float64, len(records))
	endTimes := make([]float64, len(records))
	createdAts := make([]int64, len(records))
	texts := make([]string, len(records))
	embeddings := make([][]float32, len(records))

	for i, r := range records {
		if len(r.Vector) != m.config.Dimension {
			return fmt.Errorf("%w: expected dimension %d, got %d", ErrIndexWrite, m.config.Dimension, len(r.Vector))
		}
		videoIDs[i] = r.VideoID
		chunkIDs[i] = r.ChunkID
		subjectIDs[i] = r.SubjectID
		startTimes[i] = r.StartTime
		endTimes[i] = r.EndTime
		createdAts[i] = r.CreatedAt.Unix()
		texts[i] = r.Text
		embeddings[i] = r.Vector
	}

	columns := []entity.Column{
		entity.NewColumnInt64("video_id", videoIDs),
		entity.NewColumnInt64("chunk_id", chunkIDs),
		entity.NewColumnInt64("subject_id", subjectIDs),
		entity.NewColumnDouble("start_time", startTimes),
		entity.NewColumnDouble("end_time", endTimes),
		entity.NewColumnInt64("created_at", createdAts),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("embedding", m.config.Dimension, embeddings),
	}

	if _, err := m.client.Insert(ctx, m.config.TranscriptCollection, "", columns...); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}
	if err := m.client.Flush(ctx, m.config.TranscriptCollection, false); err != nil {
		return fmt.Errorf("%w: flush: %v", ErrIndexWrite, err)
	}
	return nil
}

func (t milvusTranscripts) Search(ctx context.Context, queryVector []float32, limit int, filter *Filter) ([]ScoredTranscript, error) {
	m := t.store
	if !m.ready {
		return nil, ErrIndexUnavailable
	}
	if len(queryVector) != m.config.Dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, m.config.Dimension, len(queryVector))
	}

	sp, err := m.searchParams()
	if err != nil {
		return nil, fmt.Errorf("failed to create search params: %w", err)
	}

	vectors := []entity.Vector{entity.FloatVector(queryVector)}
	outputFields := []string{"video_id", "chunk_id", "subject_id", "start_time", "end_time", "created_at", "text"}

	results, err := m.client.Search(
		ctx,
		m.config.TranscriptCollection,
		nil,
		filter.TranscriptExpr(),
		outputFields,
		vectors,
		"embedding",
		entity.COSINE,
		limit,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	if len(results) == 0 {
		return []ScoredTranscript{}, nil
	}

	hits := make([]ScoredTranscript, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		hit := ScoredTranscript{
			Distance: 1 - results[0].Scores[i],
		}
		for _, field := range results[0].Fields {
			switch field.Name() {
			case "video_id":
				hit.VideoID = field.(*entity.ColumnInt64).Data()[i]
			case "chunk_id":
				hit.ChunkID = field.(*entity.ColumnInt64).Data()[i]
			case "subject_id":
				hit.SubjectID = field.(*entity.ColumnInt64).Data()[i]
			case "start_time":
				hit.StartTime = field.(*entity.ColumnDouble).Data()[i]
			case "end_time":
				hit.EndTime = field.(*entity.ColumnDouble).Data()[i]
			case "created_at":
				hit.CreatedAt = time.Unix(field.(*entity.ColumnInt64).Data()[i], 0)
			case "text":
				hit.Text = field.(*entity.ColumnVarChar).Data()[i]
			}
		}
		if filter.MatchTranscript(hit.TranscriptRecord) {
			hits = append(hits, hit)
		}
	}

	return hits, nil
}

func (t milvusTranscripts) DeleteWhere(ctx context.Context, filter *Filter) (int64, error) {
	if !t.store.ready {
		return 0, ErrIndexUnavailable
	}
	return t.store.deleteWhere(ctx, t.store.config.TranscriptCollection, filter.TranscriptExpr())
}

func (t milvusTranscripts) Count(ctx context.Context) (int64, error) {
	if !t.store.ready {
		return 0, ErrIndexUnavailable
	}
	return t.store.count(ctx, t.store.config.TranscriptCollection)
}

func (t milvusTranscripts) All(ctx context.Context) ([]TranscriptRecord, error) {
	m := t.store
	if !m.ready {
		return nil, ErrIndexUnavailable
	}

	outputFields := []string{"video_id", "chunk_id", "subject_id", "start_time", "end_time", "created_at", "text"}
	results, err := m.client.Query(ctx, m.config.TranscriptCollection, nil, "id >= 0", outputFields)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transcripts: %w", err)
	}

	columns := make(map[string]entity.Column, len(results))
	n := 0
	for _, col := range results {
		columns[col.Name()] = col
		if col.Len() > n {
			n = col.Len()
		}
	}

	records := make([]TranscriptRecord, 0, n)
	for i := 0; i < n; i++ {
		var r TranscriptRecord
		if col, ok := columns["video_id"]; ok {
			r.VideoID = col.(*entity.ColumnInt64).Data()[i]
		}
		if col, ok := columns["chunk_id"]; ok {
			r.ChunkID = col.(*entity.ColumnInt64).Data()[i]
		}
		if col, ok := columns["subject_id"]; ok {
			r.SubjectID = col.(*entity.ColumnInt64).Data()[i]
		}
		if col, ok := columns["start_time"]; ok {
			r.StartTime = col.(*entity.ColumnDouble).Data()[i]
		}
		if col, ok := columns["end_time"]; ok {
			r.EndTime = col.(*entity.ColumnDouble).Data()[i]
		}
		if col, ok := columns["created_at"]; ok {
			r.CreatedAt = time.Unix(col.(*entity.ColumnInt64).Data()[i], 0)
		}
		if col, ok := columns["text"]; ok {
			r.Text = col.(*entity.ColumnVarChar).Data()[i]
		}
		records = append(records, r)
	}

	return records, nil
}

// Compile-time check that MilvusStore implements Store.
var _ Store = (*MilvusStore)(nil)
