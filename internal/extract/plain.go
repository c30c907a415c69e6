package extract

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/kensaku-io/kensaku/internal/models"
)

// extractPlain reads the file as UTF-8 text. Invalid sequences are replaced
// with the replacement character rather than rejected.
func extractPlain(path string) ([]models.Page, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	return singlePage(text), nil
}
