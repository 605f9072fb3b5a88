package knowledge

import (
	"context"
	"fmt"
	"os"
	"unicode/utf8"
)

// FileFetcher loads the knowledge document from a local file. Used in
// development and as the source when no Drive file is configured.
type FileFetcher struct {
	path string
}

// NewFileFetcher creates a fetcher reading the given path.
func NewFileFetcher(path string) *FileFetcher {
	return &FileFetcher{path: path}
}

// Fetch reads the document from disk.
func (f *FileFetcher) Fetch(ctx context.Context) (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("read knowledge file: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("knowledge file %s is not valid UTF-8 text", f.path)
	}
	return string(data), nil
}
