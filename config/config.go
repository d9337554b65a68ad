package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HungNguyenBa1811/ai-chat-4/internal/rag"
)

// Config holds all configuration for the retrieval engine. The scoring and
// blend constants are product-tuned values, kept here rather than hard-coded.
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Video     VideoConfig     `yaml:"video"`
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Model     string `yaml:"model"`      // e.g., "text-embedding-3-small"
	Dimension int    `yaml:"dimension"`  // fixed for the deployment lifetime
	BatchSize int    `yaml:"batch_size"` // chunks per embedding call
}

// IndexConfig holds vector store configuration.
type IndexConfig struct {
	Backend              string `yaml:"backend"` // "milvus", "qdrant", or "memory"
	Address              string `yaml:"address"` // overridden by MILVUS_ADDRESS / QDRANT_URL
	DocumentCollection   string `yaml:"document_collection"`
	TranscriptCollection string `yaml:"transcript_collection"`

	// RecreateOnMismatch allows the destructive drop-and-recreate of an
	// incompatible collection at startup. Keep off in production.
	RecreateOnMismatch bool `yaml:"recreate_on_mismatch"`
}

// WeightsConfig is one bucket's score blend.
type WeightsConfig struct {
	Semantic float64 `yaml:"semantic"`
	Temporal float64 `yaml:"temporal"`
	Offset   float64 `yaml:"offset"`
}

// RetrievalConfig holds the scoring constants.
type RetrievalConfig struct {
	Retention       string        `yaml:"retention"` // Go duration string, e.g. "2h"
	OverfetchFactor int           `yaml:"overfetch_factor"`
	AnonymousOffset float64       `yaml:"anonymous_offset"`
	Temporary       WeightsConfig `yaml:"temporary"`
	Permanent       WeightsConfig `yaml:"permanent"`
	Other           WeightsConfig `yaml:"other"`
}

// VideoConfig holds the document/transcript blend constants.
type VideoConfig struct {
	DocumentRatio     float64 `yaml:"document_ratio"`
	CurrentVideoBoost float64 `yaml:"current_video_boost"`
	OverfetchSlack    int     `yaml:"overfetch_slack"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	scoring := rag.DefaultScoringConfig()
	video := rag.DefaultVideoConfig()
	return &Config{
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-3-small",
			Dimension: 1536,
			BatchSize: rag.DefaultIngestOptions().BatchSize,
		},
		Index: IndexConfig{
			Backend:              "milvus",
			DocumentCollection:   "documents",
			TranscriptCollection: "video_transcripts",
		},
		Retrieval: RetrievalConfig{
			Retention:       scoring.RetentionWindow.String(),
			OverfetchFactor: scoring.OverfetchFactor,
			AnonymousOffset: scoring.AnonymousOffset,
			Temporary:       WeightsConfig(scoring.Temporary),
			Permanent:       WeightsConfig(scoring.Permanent),
			Other:           WeightsConfig(scoring.Other),
		},
		Video: VideoConfig{
			DocumentRatio:     video.DocumentRatio,
			CurrentVideoBoost: video.CurrentVideoBoost,
			OverfetchSlack:    video.OverfetchSlack,
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if _, err := cfg.RetentionWindow(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RetentionWindow parses the configured retention duration.
func (c *Config) RetentionWindow() (time.Duration, error) {
	d, err := time.ParseDuration(c.Retrieval.Retention)
	if err != nil {
		return 0, fmt.Errorf("invalid retention %q: %w", c.Retrieval.Retention, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("retention must be positive, got %s", d)
	}
	return d, nil
}

// ScoringConfig converts the retrieval section for the scoring engine.
func (c *Config) ScoringConfig() (rag.ScoringConfig, error) {
	retention, err := c.RetentionWindow()
	if err != nil {
		return rag.ScoringConfig{}, err
	}
	return rag.ScoringConfig{
		RetentionWindow: retention,
		OverfetchFactor: c.Retrieval.OverfetchFactor,
		AnonymousOffset: c.Retrieval.AnonymousOffset,
		Temporary:       rag.BucketWeights(c.Retrieval.Temporary),
		Permanent:       rag.BucketWeights(c.Retrieval.Permanent),
		Other:           rag.BucketWeights(c.Retrieval.Other),
	}, nil
}

// VideoBlend converts the video section for the combiner.
func (c *Config) VideoBlend() rag.VideoConfig {
	return rag.VideoConfig{
		DocumentRatio:     c.Video.DocumentRatio,
		CurrentVideoBoost: c.Video.CurrentVideoBoost,
		OverfetchSlack:    c.Video.OverfetchSlack,
	}
}

// IngestOptions converts the embedding section for the ingestor.
func (c *Config) IngestOptions() rag.IngestOptions {
	return rag.IngestOptions{BatchSize: c.Embedding.BatchSize}
}
