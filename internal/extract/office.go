package extract

import (
	"fmt"

	"github.com/lu4p/cat"

	"github.com/kensaku-io/kensaku/internal/models"
)

// extractOffice extracts text from docx, odt, and rtf files. These formats
// carry no page boundaries after extraction, so the whole body is page 1.
func extractOffice(path string) ([]models.Page, error) {
	text, err := cat.File(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	return singlePage(text), nil
}
