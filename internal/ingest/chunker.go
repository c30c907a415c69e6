// Package ingest provides text chunking and the corpus ingestion pipeline.
package ingest

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidChunking is returned when chunk size and overlap cannot produce
// a terminating window sequence.
var ErrInvalidChunking = errors.New("chunk overlap must be smaller than chunk size")

// Chunker splits normalized text into overlapping fixed-size rune windows.
// Boundaries are character-offset based, not token- or sentence-aware; a
// deliberate simplicity tradeoff inherited from the indexing design.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker. size must be positive and overlap must be
// smaller than size, otherwise the window advance would be non-positive and
// chunking would never terminate.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidChunking, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size %d, overlap %d", ErrInvalidChunking, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Normalize applies NFKC normalization (fixes ligature artifacts like ﬁ
// left by extraction) and collapses whitespace runs to single spaces.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	return strings.Join(strings.Fields(text), " ")
}

// Chunk normalizes text and returns its overlapping windows. Starting at
// offset 0, each window covers size runes and the offset advances by
// size-overlap; the final window may be shorter. Empty normalized text
// yields nil.
func (c *Chunker) Chunk(text string) []string {
	runes := []rune(Normalize(text))
	if len(runes) == 0 {
		return nil
	}
	step := c.size - c.overlap
	var chunks []string
	for off := 0; off < len(runes); off += step {
		end := off + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[off:end]))
	}
	return chunks
}
