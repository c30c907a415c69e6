package answer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/internal/models"
	"github.com/kensaku-io/kensaku/pkg/utils"
)

// ErrMalformedAnswer means the model replied with something that is not the
// required JSON object. Callers can still serve the retrieval results; the
// answer is an overlay, not a prerequisite.
var ErrMalformedAnswer = errors.New("answer: model output is not valid answer JSON")

// Answer is the structured reply contract. Quote must be a verbatim
// substring of the supplied context; Citation points at the Source line it
// came from. An honest "don't know" reply carries empty Quote and Citation.
type Answer struct {
	Quote    string `json:"quote"`
	Text     string `json:"answer"`
	Citation string `json:"citation"`
}

// Assembler builds a context window from ranked chunks, prompts the
// generator, and parses the structured reply.
type Assembler struct {
	generator     Generator
	contextChunks int
	logger        *zap.Logger
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithLogger sets a logger for answer events.
func WithLogger(l *zap.Logger) AssemblerOption {
	return func(a *Assembler) { a.logger = l }
}

// NewAssembler creates an assembler that feeds the top contextChunks results
// to the generator.
func NewAssembler(generator Generator, contextChunks int, opts ...AssemblerOption) *Assembler {
	if contextChunks <= 0 {
		contextChunks = 3
	}
	a := &Assembler{
		generator:     generator,
		contextChunks: contextChunks,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BuildContext renders the top results as Source-attributed blocks separated
// by a divider. The Source line is what the model cites from.
func (a *Assembler) BuildContext(results []models.SearchResult) string {
	n := a.contextChunks
	if len(results) < n {
		n = len(results)
	}
	blocks := make([]string, 0, n)
	for _, r := range results[:n] {
		blocks = append(blocks, fmt.Sprintf("Source: %s (p.%d)\n%s", r.Path, r.PageNum, r.Text))
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

const promptTemplate = `You must answer using ONLY the context.
Return ONLY valid JSON with exactly these keys:
quote: an exact substring copied from the context that answers the question
answer: a short answer based only on the quote
citation: in the form "sample.pdf p.1" (use the Source line)

Rules:
- The quote MUST be copied verbatim from the context.
- If you cannot find an exact quote, return ONLY: {"quote":"","answer":"I don't know based on the provided documents.","citation":""}
- Do not add extra keys. Do not add markdown.

CONTEXT:
%s

QUESTION:
%s
JSON:`

// Answer prompts the generator over the top-ranked results and returns the
// parsed reply along with the context it was grounded in.
func (a *Assembler) Answer(ctx context.Context, question string, results []models.SearchResult) (*Answer, string, error) {
	window := a.BuildContext(results)
	raw, err := a.generator.Complete(ctx, fmt.Sprintf(promptTemplate, window, question))
	if err != nil {
		return nil, window, err
	}
	ans, err := parseAnswer(raw)
	if err != nil {
		a.logger.Warn("malformed model reply", zap.String("raw", raw))
		return nil, window, err
	}
	return ans, window, nil
}

// parseAnswer extracts the JSON object from the model reply. Models wrap
// output in code fences or prose often enough that we scan for the outermost
// braces instead of unmarshalling the reply as-is.
func parseAnswer(raw string) (*Answer, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: %q", ErrMalformedAnswer, utils.Truncate(raw, 200))
	}
	var ans Answer
	if err := json.Unmarshal([]byte(raw[start:end+1]), &ans); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnswer, err)
	}
	if ans.Text == "" {
		return nil, fmt.Errorf("%w: missing answer field", ErrMalformedAnswer)
	}
	return &ans, nil
}
