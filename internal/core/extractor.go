package core

import (
	"context"
)

// DocumentExtractor turns raw document bytes into plain text.
// The contentType hint selects the strategy (PDF with OCR fallback, slide deck, generic).
type DocumentExtractor interface {
	ExtractText(ctx context.Context, data []byte, contentType string) (string, error)
}
