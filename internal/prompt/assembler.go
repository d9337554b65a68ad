package prompt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/HungNguyenBa1811/ai-chat-4/internal/rag"
)

// ErrDocumentNotFound is returned by DocumentLookup implementations when a
// document id resolves to nothing.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentInfo is the display metadata of an owning document.
type DocumentInfo struct {
	Name string
	Kind string // e.g., "theory" or "exercise"
}

// DocumentLookup resolves document ids to display metadata. It lives in the
// surrounding application layer and is used only for labeling, never for
// filtering or scoring.
type DocumentLookup interface {
	GetDocument(ctx context.Context, id int64) (DocumentInfo, error)
	GetTemporaryDocument(ctx context.Context, id int64) (DocumentInfo, error)
}

// Source labels one retrieved chunk's origin for transparency.
type Source struct {
	DocumentID int64
	Name       string
	Kind       string
	Bucket     rag.Bucket
}

// Context is the assembled input for the downstream language model.
type Context struct {
	System  string
	Context string
	Sources []Source
}

// Empty reports whether retrieval produced no usable context; callers fall
// back to a context-free prompt.
func (c Context) Empty() bool {
	return c.Context == ""
}

const systemPrompt = "You are a patient tutoring assistant. Answer using the " +
	"reference material below when it is relevant, and say so plainly when it " +
	"is not. Prefer the student's own uploaded material over general course " +
	"material when both apply."

// Assembler turns ranked chunks into a labeled context block plus a system
// prompt.
type Assembler struct {
	lookup DocumentLookup
}

// NewAssembler creates an Assembler over the given metadata lookup.
func NewAssembler(lookup DocumentLookup) *Assembler {
	return &Assembler{lookup: lookup}
}

// Assemble builds the context block for document Q&A. Zero chunks yields an
// empty context, not an error. Unresolved documents get a placeholder label
// rather than failing the whole assembly.
func (a *Assembler) Assemble(ctx context.Context, chunks []rag.RankedChunk) (Context, error) {
	if len(chunks) == 0 {
		return Context{System: systemPrompt}, nil
	}

	var b strings.Builder
	sources := make([]Source, 0, len(chunks))

	for i, chunk := range chunks {
		info := a.resolve(ctx, chunk)
		sources = append(sources, Source{
			DocumentID: chunk.DocumentID,
			Name:       info.Name,
			Kind:       info.Kind,
			Bucket:     chunk.Bucket,
		})

		b.WriteString(fmt.Sprintf("[%d] %s (%s, %s)\n", i+1, info.Name, info.Kind, chunk.Bucket))
		b.WriteString(chunk.Text)
		b.WriteString("\n\n")
	}

	return Context{
		System:  systemPrompt,
		Context: strings.TrimRight(b.String(), "\n"),
		Sources: sources,
	}, nil
}

// AssembleVideo builds the context block for video Q&A, labeling document and
// transcript material distinctly and surfacing the current video's transcript
// hits first.
func (a *Assembler) AssembleVideo(ctx context.Context, result *rag.VideoResult) (Context, error) {
	if result == nil || (len(result.Documents) == 0 && len(result.Transcripts) == 0) {
		return Context{System: systemPrompt}, nil
	}

	var b strings.Builder
	sources := make([]Source, 0, len(result.Documents))

	if len(result.Transcripts) > 0 {
		b.WriteString("## From transcripts\n\n")
		for _, group := range result.GroupedByVideo() {
			label := fmt.Sprintf("Video %d", group.VideoID)
			if group.FromCurrentVideo {
				label += " (currently playing)"
			}
			b.WriteString(label + "\n")
			for _, hit := range group.Chunks {
				b.WriteString(hit.Text)
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
	}

	if len(result.Documents) > 0 {
		b.WriteString("## From documents\n\n")
		for i, chunk := range result.Documents {
			info := a.resolve(ctx, chunk)
			sources = append(sources, Source{
				DocumentID: chunk.DocumentID,
				Name:       info.Name,
				Kind:       info.Kind,
				Bucket:     chunk.Bucket,
			})
			b.WriteString(fmt.Sprintf("[%d] %s (%s)\n", i+1, info.Name, info.Kind))
			b.WriteString(chunk.Text)
			b.WriteString("\n\n")
		}
	}

	return Context{
		System:  systemPrompt,
		Context: strings.TrimRight(b.String(), "\n"),
		Sources: sources,
	}, nil
}

func (a *Assembler) resolve(ctx context.Context, chunk rag.RankedChunk) DocumentInfo {
	placeholder := DocumentInfo{Name: fmt.Sprintf("document %d", chunk.DocumentID), Kind: "unknown"}
	if a.lookup == nil {
		return placeholder
	}

	var (
		info DocumentInfo
		err  error
	)
	if chunk.IsTemporary {
		info, err = a.lookup.GetTemporaryDocument(ctx, chunk.DocumentID)
	} else {
		info, err = a.lookup.GetDocument(ctx, chunk.DocumentID)
	}
	if err != nil {
		if !errors.Is(err, ErrDocumentNotFound) {
			log.Printf("[assemble] metadata lookup failed for document %d: %v", chunk.DocumentID, err)
		}
		return placeholder
	}
	return info
}
