package extract

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"

	"github.com/kensaku-io/kensaku/internal/models"
)

// extractPDF returns one Page per PDF page. Pages whose text cannot be
// decoded are skipped rather than failing the whole document; a document
// that cannot be opened at all is an error.
func extractPDF(path string) ([]models.Page, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	var pages []models.Page
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, models.Page{Number: i, Text: text})
	}
	return pages, nil
}
