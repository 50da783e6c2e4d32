package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// TextBackend reads plain-text and Markdown sources as-is.
type TextBackend struct{}

func (TextBackend) Name() string { return "text" }

func (TextBackend) Accepts(sourceID string) bool {
	switch strings.ToLower(filepath.Ext(sourceID)) {
	case ".txt", ".md", ".markdown":
		return true
	}
	return false
}

func (TextBackend) Extract(ctx context.Context, sourceID string) (Document, error) {
	data, err := os.ReadFile(sourceID)
	if err != nil {
		return Document{}, fmt.Errorf("read text: %w", err)
	}
	if !utf8.Valid(data) {
		return Document{}, fmt.Errorf("source is not valid UTF-8")
	}

	doc := Document{Text: string(data), PageCount: 1}
	if line, _, _ := bytes.Cut(data, []byte("\n")); bytes.HasPrefix(line, []byte("# ")) {
		doc.Title = strings.TrimSpace(string(line[2:]))
	}
	return doc, nil
}
