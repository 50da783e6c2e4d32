package extract

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/dslipak/pdf"
)

// PDFContentBackend rebuilds page text from positioned glyph runs with
// the dslipak/pdf reader. It recovers line breaks and word gaps that
// plain-text extraction drops on some layouts.
type PDFContentBackend struct{}

func (PDFContentBackend) Name() string { return "pdfcontent" }

func (PDFContentBackend) Accepts(sourceID string) bool {
	return strings.EqualFold(filepath.Ext(sourceID), ".pdf")
}

func (PDFContentBackend) Extract(ctx context.Context, sourceID string) (Document, error) {
	f, err := os.Open(sourceID)
	if err != nil {
		return Document{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Document{}, fmt.Errorf("stat pdf: %w", err)
	}

	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return Document{}, fmt.Errorf("parse pdf: %w", err)
	}

	var sb strings.Builder
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return Document{}, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		writeRuns(&sb, p.Content().Text)
		sb.WriteString("\n\n")
	}

	return Document{
		Text:      sb.String(),
		PageCount: pages,
		Title:     r.Trailer().Key("Info").Key("Title").Text(),
	}, nil
}

// writeRuns joins glyph runs, starting a new line when the baseline moves
// and inserting a space when the horizontal gap exceeds a fraction of the
// font size.
func writeRuns(sb *strings.Builder, runs []pdf.Text) {
	var prev *pdf.Text
	for i := range runs {
		t := &runs[i]
		if prev != nil {
			tolerance := math.Max(prev.FontSize, 1) / 2
			switch {
			case math.Abs(t.Y-prev.Y) > tolerance:
				sb.WriteByte('\n')
			case t.X-(prev.X+prev.W) > math.Max(prev.FontSize, 1)*0.15:
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(t.S)
		prev = t
	}
}
