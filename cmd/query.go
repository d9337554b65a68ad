package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/HungNguyenBa1811/ai-chat-4/internal/rag"
)

var (
	queryTopK      int
	querySubject   int64
	queryUser      int64
	querySession   int64
	queryVideoID   int64
	queryAsVideoQA bool
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F780FF")).Bold(true)
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4")).Italic(true)
	contentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E9E9F4"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Retrieve ranked context for a question",
	Long: `Retrieve the top-K context chunks for a question, blending semantic
similarity with category and recency.

With --user and --session the caller's own temporary uploads are boosted
ahead of permanent material. Without them the query is anonymous and ranks
by similarity alone.

With --video-qa the document/transcript combiner runs instead, splitting
results 70/30 between permanent documents and video transcripts; --video
boosts transcript chunks from the currently playing video.

Examples:
  retrieval query "what is a linear function" --subject 2
  retrieval query "explain this exercise" --user 9 --session 100
  retrieval query "what did the teacher just say" --video-qa --video 5`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().IntVar(&queryTopK, "topk", 5, "Number of context chunks to retrieve")
	queryCmd.Flags().Int64Var(&querySubject, "subject", 0, "Restrict to one subject id (0 = all)")
	queryCmd.Flags().Int64Var(&queryUser, "user", 0, "Caller user id")
	queryCmd.Flags().Int64Var(&querySession, "session", 0, "Caller session id")
	queryCmd.Flags().Int64Var(&queryVideoID, "video", 0, "Currently playing video id (video QA only)")
	queryCmd.Flags().BoolVar(&queryAsVideoQA, "video-qa", false, "Use the document/transcript combiner")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	eng, _, err := newEngine(ctx)
	if err != nil {
		fmt.Println(errorStyle.Render(fmt.Sprintf("✗ %v", err)))
		return err
	}
	defer eng.Close()

	var subject *int64
	if querySubject != 0 {
		subject = &querySubject
	}

	if queryAsVideoQA {
		return runVideoQuery(ctx, eng, args[0], subject)
	}

	var caller *rag.Caller
	if queryUser != 0 || querySession != 0 {
		caller = &rag.Caller{UserID: queryUser, SessionID: querySession}
	}

	chunks, err := eng.Retriever.Retrieve(ctx, rag.Query{
		Text:      args[0],
		TopK:      queryTopK,
		SubjectID: subject,
		Caller:    caller,
	})
	if err != nil {
		fmt.Println(errorStyle.Render(fmt.Sprintf("✗ retrieval failed: %v", err)))
		return err
	}

	assembled, err := eng.Assembler.Assemble(ctx, chunks)
	if err != nil {
		return err
	}
	if assembled.Empty() {
		fmt.Println(scoreStyle.Render("no context found; answer without retrieval"))
		return nil
	}

	fmt.Println(headerStyle.Render("Context"))
	for _, chunk := range chunks {
		fmt.Println(scoreStyle.Render(fmt.Sprintf("score %.3f  distance %.3f  bucket %s  document %d",
			chunk.Score, chunk.Distance, chunk.Bucket, chunk.DocumentID)))
		fmt.Println(contentStyle.Render(chunk.Text))
		fmt.Println()
	}
	return nil
}
