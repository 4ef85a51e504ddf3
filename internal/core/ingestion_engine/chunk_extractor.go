package ingestion_engine

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Chunk is one embeddable slice of a document's text.
//
// Index:      zero-based position inside the document, part of the vector id.
// Text:       trimmed chunk content.
// TokenCount: tokens under cl100k_base, or a 4-chars-per-token estimate.
type Chunk struct {
	Index      int
	Text       string
	TokenCount int
}

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// NormalizeText collapses every whitespace run to a single space and trims the ends.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// SplitIntoChunks normalizes text and cuts it into windows of size runes that
// overlap by overlap runes. Empty windows are dropped.
//
// size <= 0 uses 1000, overlap < 0 uses 0 and overlap >= size is clamped to
// size/4 so the cursor always moves forward.
func SplitIntoChunks(text string, size, overlap int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}

	runes := []rune(NormalizeText(text))
	n := len(runes)

	var out []string
	start := 0
	for start < n {
		end := min(start+size, n)
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			out = append(out, piece)
		}
		start = end - overlap
		if start >= n-overlap {
			break
		}
	}
	return out
}

// buildChunks splits text and attaches positions and token counts.
func buildChunks(text string, size, overlap int, count func(string) int) []Chunk {
	if count == nil {
		count = approxTokens
	}
	pieces := SplitIntoChunks(text, size, overlap)
	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = Chunk{Index: i, Text: p, TokenCount: count(p)}
	}
	return chunks
}

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// countTokens uses the cl100k_base encoding when it can be loaded and the
// character estimate otherwise.
func countTokens(s string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("tiktoken unavailable, estimating tokens", "err", err)
			return
		}
		enc = e
	})
	if enc == nil {
		return approxTokens(s)
	}
	return len(enc.Encode(s, nil, nil))
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
