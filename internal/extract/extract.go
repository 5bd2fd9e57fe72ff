// Package extract provides the extract(path) -> text capability the
// remote Structurer depends on. Format-specific extraction (PDF/DOCX
// heuristics) is explicitly out of scope per spec.md §1; this is the
// single boundary implementation: plain-text passthrough, everything
// else reported as unsupported.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/SpasZahariev/rag-pulled/internal/ingestion"
)

var plainTextExtensions = map[string]bool{
	".txt":      true,
	".csv":      true,
	".md":       true,
	".markdown": true,
	".json":     true,
	".xml":      true,
	".html":     true,
	".htm":      true,
}

// Text reads path and returns its contents as a UTF-8 string. Extensions
// this boundary cannot handle (PDF, DOCX, DOC, and anything unlisted)
// return ingestion.ErrUnsupportedFormat so callers can classify the
// outcome as a structurer "unsupported" result rather than a hard
// failure.
func Text(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !plainTextExtensions[ext] {
		return "", fmt.Errorf("%w: %s", ingestion.ErrUnsupportedFormat, ext)
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is validated against the upload root before this is called
	if err != nil {
		return "", fmt.Errorf("read file for extraction: %w", err)
	}
	return string(data), nil
}
