// Package cli renders search output for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/kensaku-io/kensaku/internal/answer"
	"github.com/kensaku-io/kensaku/internal/models"
	"github.com/kensaku-io/kensaku/pkg/utils"
)

// OutputFormat is the format for search result output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// SearchOutput is what a search produces end to end: the ranked results and,
// when requested, the generated answer with the context it was grounded in.
// It mirrors the server's search response body.
type SearchOutput struct {
	Query   string                `json:"query"`
	Results []models.SearchResult `json:"results"`
	Answer  *answer.Answer        `json:"answer,omitempty"`
	Context string                `json:"context,omitempty"`
}

// WriteSearchOutput writes out to w in the given format. Use OutputJSON for
// parseable output consumable by other tools.
func WriteSearchOutput(w io.Writer, out *SearchOutput, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	default:
		writeSearchOutputText(w, out)
		return nil
	}
}

func writeSearchOutputText(w io.Writer, out *SearchOutput) {
	if out.Answer != nil {
		fmt.Fprintf(w, "\nAnswer: %s\n", out.Answer.Text)
		if out.Answer.Quote != "" {
			fmt.Fprintf(w, "Quote:  %q\n", out.Answer.Quote)
		}
		if out.Answer.Citation != "" {
			fmt.Fprintf(w, "Source: %s\n", out.Answer.Citation)
		}
	}
	fmt.Fprintf(w, "\nFound %d result(s)\n\n", len(out.Results))
	for i, r := range out.Results {
		writeOneResult(w, i+1, r)
	}
}

func writeOneResult(w io.Writer, rank int, r models.SearchResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f", rank, r.Score)
	if r.LexicalScore != 0 || r.VectorScore != 0 {
		fmt.Fprintf(w, " (Lexical: %.4f, Vector: %.4f)", r.LexicalScore, r.VectorScore)
	}
	if r.RerankScore != 0 {
		fmt.Fprintf(w, " | Rerank: %.4f", r.RerankScore)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "File: %s (p.%d)\n", r.Path, r.PageNum)
	fmt.Fprintf(w, "\n%s\n", utils.Truncate(r.Text, 200))
	fmt.Fprintln(w)
}
