package extract

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFBackend extracts plain text with the ledongthuc/pdf reader.
type PDFBackend struct{}

func (PDFBackend) Name() string { return "pdf" }

func (PDFBackend) Accepts(sourceID string) bool {
	return strings.EqualFold(filepath.Ext(sourceID), ".pdf")
}

func (PDFBackend) Extract(ctx context.Context, sourceID string) (Document, error) {
	f, r, err := pdf.Open(sourceID)
	if f != nil {
		defer f.Close()
	}
	if err != nil {
		return Document{}, fmt.Errorf("open pdf: %w", err)
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return Document{}, fmt.Errorf("read plain text: %w", err)
	}
	data, err := io.ReadAll(plain)
	if err != nil {
		return Document{}, fmt.Errorf("read plain text: %w", err)
	}

	return Document{
		Text:      string(data),
		PageCount: r.NumPage(),
		Title:     r.Trailer().Key("Info").Key("Title").Text(),
	}, nil
}
