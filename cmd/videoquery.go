package cmd

import (
	"context"
	"fmt"

	"github.com/HungNguyenBa1811/ai-chat-4/internal/engine"
	"github.com/HungNguyenBa1811/ai-chat-4/internal/rag"
)

func runVideoQuery(ctx context.Context, eng *engine.Engine, question string, subject *int64) error {
	result, err := eng.VideoRetriever.Retrieve(ctx, rag.VideoQuery{
		Text:           question,
		TopK:           queryTopK,
		SubjectID:      subject,
		CurrentVideoID: queryVideoID,
	})
	if err != nil {
		fmt.Println(errorStyle.Render(fmt.Sprintf("✗ retrieval failed: %v", err)))
		return err
	}

	if len(result.Transcripts) > 0 {
		fmt.Println(headerStyle.Render("From transcripts"))
		for _, group := range result.GroupedByVideo() {
			label := fmt.Sprintf("video %d", group.VideoID)
			if group.FromCurrentVideo {
				label += " (currently playing)"
			}
			fmt.Println(scoreStyle.Render(label))
			for _, hit := range group.Chunks {
				fmt.Println(scoreStyle.Render(fmt.Sprintf("  distance %.3f", hit.Distance)))
				fmt.Println(contentStyle.Render("  " + hit.Text))
			}
			fmt.Println()
		}
	}

	if len(result.Documents) > 0 {
		fmt.Println(headerStyle.Render("From documents"))
		for _, chunk := range result.Documents {
			fmt.Println(scoreStyle.Render(fmt.Sprintf("distance %.3f  document %d", chunk.Distance, chunk.DocumentID)))
			fmt.Println(contentStyle.Render(chunk.Text))
			fmt.Println()
		}
	}

	if len(result.Transcripts) == 0 && len(result.Documents) == 0 {
		fmt.Println(scoreStyle.Render("no context found; answer without retrieval"))
	}
	return nil
}
