package extract

import (
	"fmt"
	"strings"
)

// DefaultBackends is the default priority order.
var DefaultBackends = []string{"pdf", "pdfcontent", "text"}

// Backends resolves backend names to implementations, preserving order.
func Backends(names []string) ([]Backend, error) {
	if len(names) == 0 {
		names = DefaultBackends
	}

	backends := make([]Backend, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case "pdf":
			backends = append(backends, PDFBackend{})
		case "pdfcontent":
			backends = append(backends, PDFContentBackend{})
		case "text":
			backends = append(backends, TextBackend{})
		default:
			return nil, fmt.Errorf("unknown extraction backend %q", name)
		}
	}
	return backends, nil
}

// SupportedExtension reports whether any built-in backend can read ext.
func SupportedExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".txt", ".md", ".markdown":
		return true
	}
	return false
}
