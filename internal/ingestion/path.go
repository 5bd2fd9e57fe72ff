package ingestion

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveStoredPath resolves storedPath to an absolute path rooted under
// root, rejecting anything that would escape it (e.g. "../../etc/passwd").
// An absolute storedPath is joined under root like a relative one, not
// rejected.
func ResolveStoredPath(root, storedPath string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve upload root: %w", err)
	}
	joined := filepath.Join(absRoot, storedPath)
	cleaned := filepath.Clean(joined)

	if cleaned != absRoot && !strings.HasPrefix(cleaned, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesRoot, storedPath)
	}
	return cleaned, nil
}
