package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HungNguyenBa1811/ai-chat-4/internal/rag"
)

var (
	ingestDocumentID int64
	ingestVideoID    int64
	ingestSubject    int64
	ingestUser       int64
	ingestSession    int64
	ingestReingest   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Embed and index a file of text chunks",
	Long: `Embed and index a text file. Chunks are split on blank lines.

With --document the chunks go to the document collection; --user/--session
mark them as a temporary session upload. With --video they go to the
video-transcript collection. --reingest deletes any prior rows for the
owning id first (the idempotent retry path).

Examples:
  retrieval ingest notes.txt --document 7 --subject 2
  retrieval ingest upload.txt --document 50 --subject 2 --user 9 --session 100
  retrieval ingest transcript.txt --video 5 --subject 2`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().Int64Var(&ingestDocumentID, "document", 0, "Owning document id")
	ingestCmd.Flags().Int64Var(&ingestVideoID, "video", 0, "Owning video id")
	ingestCmd.Flags().Int64Var(&ingestSubject, "subject", 0, "Subject id")
	ingestCmd.Flags().Int64Var(&ingestUser, "user", 0, "Owner user id (temporary upload)")
	ingestCmd.Flags().Int64Var(&ingestSession, "session", 0, "Owner session id (temporary upload)")
	ingestCmd.Flags().BoolVar(&ingestReingest, "reingest", false, "Delete prior rows for the owning id first")
}

func runIngest(cmd *cobra.Command, args []string) error {
	if (ingestDocumentID == 0) == (ingestVideoID == 0) {
		return fmt.Errorf("exactly one of --document or --video is required")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	chunks := splitChunks(string(data))
	if len(chunks) == 0 {
		fmt.Println("nothing to ingest")
		return nil
	}

	ctx := context.Background()
	eng, _, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	if ingestVideoID != 0 {
		segments := make([]rag.TranscriptSegment, len(chunks))
		for i, c := range chunks {
			segments[i] = rag.TranscriptSegment{Text: c, SequenceID: int64(i)}
		}
		tr := rag.TranscriptIngest{VideoID: ingestVideoID, SubjectID: ingestSubject, Segments: segments}
		if ingestReingest {
			err = eng.Ingestor.ReingestTranscript(ctx, tr)
		} else {
			err = eng.Ingestor.IngestTranscript(ctx, tr)
		}
	} else {
		doc := rag.DocumentIngest{
			DocumentID:     ingestDocumentID,
			SubjectID:      ingestSubject,
			OwnerUserID:    ingestUser,
			OwnerSessionID: ingestSession,
			Chunks:         chunks,
		}
		if ingestReingest {
			err = eng.Ingestor.ReingestDocument(ctx, doc)
		} else {
			err = eng.Ingestor.IngestDocument(ctx, doc)
		}
	}
	if err != nil {
		return err
	}

	fmt.Printf("ingested %d chunks\n", len(chunks))
	return nil
}

// splitChunks splits file content on blank lines.
func splitChunks(content string) []string {
	parts := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n")
	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			chunks = append(chunks, strings.TrimSpace(p))
		}
	}
	return chunks
}
