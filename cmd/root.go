package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/HungNguyenBa1811/ai-chat-4/config"
	"github.com/HungNguyenBa1811/ai-chat-4/internal/engine"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "retrieval",
	Short: "Tutoring retrieval context engine",
	Long: `Retrieval manages the vector context engine behind the tutoring chat:
it ingests document and video-transcript chunks, serves ranked context
blends for questions, and runs the expiry maintenance for temporary
session uploads.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
}

// Execute runs the root command
func Execute() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newEngine builds the shared engine from the --config flag. Commands run
// without a document metadata lookup; sources print with placeholder labels.
func newEngine(ctx context.Context) (*engine.Engine, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.New(ctx, cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	return eng, cfg, nil
}
