package structurer

import (
	"context"
	"fmt"
	"strings"

	"github.com/SpasZahariev/rag-pulled/internal/extract"
)

// Reference is the deterministic structurer used when no model backend
// is configured, and required for testing (spec.md §4.5).
type Reference struct{}

func NewReference() *Reference {
	return &Reference{}
}

// splitMarkdownBlocks splits text at every newline that is directly
// followed by '#', keeping the '#' at the start of the next block.
func splitMarkdownBlocks(text string) []string {
	var blocks []string
	start := 0
	for i := 0; i+1 < len(text); i++ {
		if text[i] == '\n' && text[i+1] == '#' {
			blocks = append(blocks, text[start:i])
			start = i + 1
		}
	}
	return append(blocks, text[start:])
}

func (r *Reference) Structure(_ context.Context, path, mime string) (Result, error) {
	ext := strings.ToLower(extOf(path))

	switch ext {
	case ".csv":
		return structureCSV(path)
	case ".md", ".markdown":
		return structureMarkdown(path)
	default:
		return Result{
			Status: Unsupported,
			Error:  fmt.Sprintf("reference structurer does not support extension %q (mime %q)", ext, mime),
		}, nil
	}
}

func structureCSV(path string) (Result, error) {
	text, err := extract.Text(path)
	if err != nil {
		return Result{Status: Failed, Error: err.Error()}, nil
	}

	lines := splitLines(text)
	var chunks []Chunk
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		replaced := strings.ReplaceAll(trimmed, ",", " | ")
		chunks = append(chunks, Chunk{
			Text: replaced,
			Metadata: map[string]any{
				"source": "csv-row",
				"row":    i + 1,
			},
		})
	}

	return Result{Status: Structured, Chunks: chunks}, nil
}

func structureMarkdown(path string) (Result, error) {
	text, err := extract.Text(path)
	if err != nil {
		return Result{Status: Failed, Error: err.Error()}, nil
	}

	blocks := splitMarkdownBlocks(text)
	var chunks []Chunk
	for i, block := range blocks {
		trimmed := strings.TrimSpace(block)
		if trimmed == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Text: trimmed,
			Metadata: map[string]any{
				"source": "markdown-block",
				"block":  i + 1,
			},
		})
	}

	return Result{Status: Structured, Chunks: chunks}, nil
}

// splitLines splits on LF/CRLF, matching spec.md §4.5's CSV rule
// explicitly (not relying on bufio.Scanner's platform-dependent
// behavior).
func splitLines(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(normalized, "\n")
}

func extOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return ""
	}
	return path[idx:]
}
