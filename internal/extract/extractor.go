// Package extract provides per-page text extraction from document files.
package extract

import (
	"path/filepath"
	"strings"

	"github.com/kensaku-io/kensaku/internal/models"
)

// Extractor extracts ordered pages of raw text from document files. Formats
// without a page structure (plain text, docx) yield a single page 1. A
// malformed document returns an error; it never panics, so one bad file
// cannot take down an ingestion batch.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns the ordered pages of the file at path. May return zero
// pages for an empty document. Returns an error if the file cannot be read
// or parsed.
func (e *Extractor) Extract(path string) ([]models.Page, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDF(path)
	case ".docx", ".odt", ".rtf":
		return extractOffice(path)
	default:
		return extractPlain(path)
	}
}

// Supported reports whether ext (with leading dot, any case) is a format
// this extractor understands.
func (e *Extractor) Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".docx", ".odt", ".rtf", ".txt", ".md":
		return true
	}
	return false
}

// singlePage wraps text as page 1, or no pages when text is empty.
func singlePage(text string) []models.Page {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []models.Page{{Number: 1, Text: text}}
}
