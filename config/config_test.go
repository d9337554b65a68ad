package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("Unexpected default model %q", cfg.Embedding.Model)
	}
	if cfg.Embedding.Dimension != 1536 {
		t.Errorf("Unexpected default dimension %d", cfg.Embedding.Dimension)
	}
	if cfg.Index.Backend != "milvus" {
		t.Errorf("Unexpected default backend %q", cfg.Index.Backend)
	}
	if cfg.Index.DocumentCollection != "documents" || cfg.Index.TranscriptCollection != "video_transcripts" {
		t.Errorf("Unexpected default collections %q/%q", cfg.Index.DocumentCollection, cfg.Index.TranscriptCollection)
	}
	if cfg.Index.RecreateOnMismatch {
		t.Error("Expected destructive recreate to default off")
	}

	retention, err := cfg.RetentionWindow()
	if err != nil {
		t.Fatalf("RetentionWindow failed: %v", err)
	}
	if retention != 2*time.Hour {
		t.Errorf("Expected 2h retention, got %s", retention)
	}

	if cfg.Retrieval.Temporary.Offset <= cfg.Retrieval.Permanent.Offset {
		t.Error("Expected temporary offset above permanent offset")
	}
	if cfg.Retrieval.Permanent.Offset <= cfg.Retrieval.Other.Offset {
		t.Error("Expected permanent offset above other offset")
	}

	if cfg.Video.DocumentRatio != 0.7 {
		t.Errorf("Expected 0.7 document ratio, got %f", cfg.Video.DocumentRatio)
	}
	if cfg.Video.CurrentVideoBoost != 0.5 {
		t.Errorf("Expected 0.5 current-video boost, got %f", cfg.Video.CurrentVideoBoost)
	}
}

func TestLoad(t *testing.T) {
	t.Run("Empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Index.Backend != "milvus" {
			t.Errorf("Expected default backend, got %q", cfg.Index.Backend)
		}
	})

	t.Run("File overrides merge over defaults", func(t *testing.T) {
		path := writeConfig(t, `
index:
  backend: memory
retrieval:
  retention: 4h
video:
  document_ratio: 0.5
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Index.Backend != "memory" {
			t.Errorf("Expected backend override, got %q", cfg.Index.Backend)
		}
		retention, _ := cfg.RetentionWindow()
		if retention != 4*time.Hour {
			t.Errorf("Expected 4h retention, got %s", retention)
		}
		if cfg.Video.DocumentRatio != 0.5 {
			t.Errorf("Expected ratio override, got %f", cfg.Video.DocumentRatio)
		}
		// Untouched sections keep their defaults.
		if cfg.Embedding.Model != "text-embedding-3-small" {
			t.Errorf("Expected default model to survive, got %q", cfg.Embedding.Model)
		}
		if cfg.Video.CurrentVideoBoost != 0.5 {
			t.Errorf("Expected default boost to survive, got %f", cfg.Video.CurrentVideoBoost)
		}
	})

	t.Run("Missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("Expected error for missing file")
		}
	})

	t.Run("Malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "index: [not a map")
		if _, err := Load(path); err == nil {
			t.Error("Expected error for malformed yaml")
		}
	})

	t.Run("Invalid retention", func(t *testing.T) {
		path := writeConfig(t, "retrieval:\n  retention: sometimes\n")
		if _, err := Load(path); err == nil {
			t.Error("Expected error for unparseable retention")
		}
	})

	t.Run("Non-positive retention", func(t *testing.T) {
		path := writeConfig(t, "retrieval:\n  retention: -1h\n")
		if _, err := Load(path); err == nil {
			t.Error("Expected error for negative retention")
		}
	})
}

func TestScoringConfigConversion(t *testing.T) {
	cfg := DefaultConfig()

	scoring, err := cfg.ScoringConfig()
	if err != nil {
		t.Fatalf("ScoringConfig failed: %v", err)
	}
	if scoring.RetentionWindow != 2*time.Hour {
		t.Errorf("Expected 2h retention, got %s", scoring.RetentionWindow)
	}
	if scoring.Temporary.Offset != cfg.Retrieval.Temporary.Offset {
		t.Error("Expected temporary weights to carry over")
	}
	if scoring.AnonymousOffset != cfg.Retrieval.AnonymousOffset {
		t.Error("Expected anonymous offset to carry over")
	}
}

func TestVideoBlendConversion(t *testing.T) {
	cfg := DefaultConfig()
	blend := cfg.VideoBlend()
	if blend.DocumentRatio != 0.7 || blend.CurrentVideoBoost != 0.5 || blend.OverfetchSlack != cfg.Video.OverfetchSlack {
		t.Errorf("Unexpected blend conversion: %+v", blend)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}
