package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/HungNguyenBa1811/ai-chat-4/config"
	"github.com/HungNguyenBa1811/ai-chat-4/internal/embedding"
	"github.com/HungNguyenBa1811/ai-chat-4/internal/lifecycle"
	"github.com/HungNguyenBa1811/ai-chat-4/internal/prompt"
	"github.com/HungNguyenBa1811/ai-chat-4/internal/rag"
	"github.com/HungNguyenBa1811/ai-chat-4/internal/vector"
)

// Engine wires the retrieval core end to end: embedder, vector store,
// ingestion, retrieval, assembly, and maintenance. One Engine is constructed
// at process start and shared for the process lifetime.
type Engine struct {
	Store          vector.Store
	Embedder       embedding.Embedder
	Ingestor       *rag.Ingestor
	Retriever      *rag.Retriever
	VideoRetriever *rag.VideoRetriever
	Maintainer     *lifecycle.Maintainer
	Assembler      *prompt.Assembler
}

// New constructs and initializes an Engine from config. The lookup may be nil;
// the assembler then labels every source with a placeholder.
func New(ctx context.Context, cfg *config.Config, lookup prompt.DocumentLookup) (*Engine, error) {
	embedder, err := embedding.NewOpenAIEmbedder(cfg.Embedding.Model, cfg.Embedding.Dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return NewWithEmbedder(ctx, cfg, embedder, lookup)
}

// NewWithEmbedder is New with an injected embedder, for tests and alternative
// providers.
func NewWithEmbedder(ctx context.Context, cfg *config.Config, embedder embedding.Embedder, lookup prompt.DocumentLookup) (*Engine, error) {
	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Destructive schema recreation only ever happens here, at process start.
	if err := store.Initialize(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	scoring, err := cfg.ScoringConfig()
	if err != nil {
		store.Close()
		return nil, err
	}

	ingestor, err := rag.NewIngestor(embedder, store, cfg.IngestOptions())
	if err != nil {
		store.Close()
		return nil, err
	}

	retriever, err := rag.NewRetriever(embedder, store, scoring)
	if err != nil {
		store.Close()
		return nil, err
	}

	videoRetriever, err := rag.NewVideoRetriever(embedder, store, scoring, cfg.VideoBlend())
	if err != nil {
		store.Close()
		return nil, err
	}

	maintainer, err := lifecycle.NewMaintainer(store, scoring.RetentionWindow)
	if err != nil {
		store.Close()
		return nil, err
	}

	log.Printf("[engine] initialized %s backend (dimension %d)", cfg.Index.Backend, cfg.Embedding.Dimension)

	return &Engine{
		Store:          store,
		Embedder:       embedder,
		Ingestor:       ingestor,
		Retriever:      retriever,
		VideoRetriever: videoRetriever,
		Maintainer:     maintainer,
		Assembler:      prompt.NewAssembler(lookup),
	}, nil
}

// Close releases the vector store connection.
func (e *Engine) Close() error {
	if e.Store != nil {
		return e.Store.Close()
	}
	return nil
}

func newStore(ctx context.Context, cfg *config.Config) (vector.Store, error) {
	switch cfg.Index.Backend {
	case "milvus", "":
		mc := vector.DefaultMilvusConfig()
		if cfg.Index.Address != "" {
			mc.Address = cfg.Index.Address
		}
		mc.DocumentCollection = cfg.Index.DocumentCollection
		mc.TranscriptCollection = cfg.Index.TranscriptCollection
		mc.Dimension = cfg.Embedding.Dimension
		mc.RecreateOnMismatch = cfg.Index.RecreateOnMismatch
		store, err := vector.NewMilvusStore(ctx, mc)
		if err != nil {
			return nil, fmt.Errorf("failed to create milvus store: %w", err)
		}
		return store, nil
	case "qdrant":
		qc := vector.DefaultQdrantConfig()
		if cfg.Index.Address != "" {
			qc.URL = cfg.Index.Address
		}
		qc.DocumentCollection = cfg.Index.DocumentCollection
		qc.TranscriptCollection = cfg.Index.TranscriptCollection
		qc.Dimension = cfg.Embedding.Dimension
		qc.RecreateOnMismatch = cfg.Index.RecreateOnMismatch
		store, err := vector.NewQdrantStore(qc)
		if err != nil {
			return nil, fmt.Errorf("failed to create qdrant store: %w", err)
		}
		return store, nil
	case "memory":
		return vector.NewMemoryStore(cfg.Embedding.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}
