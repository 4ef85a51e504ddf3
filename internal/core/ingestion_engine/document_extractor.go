package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/studybuddy/internal/core"
	"github.com/markdave123-py/studybuddy/internal/logging"
)

var _ core.DocumentExtractor = (*LectureExtractor)(nil)

// LectureExtractor implements core.DocumentExtractor. PDFs combine the text
// layer with OCR of sparse pages; slide decks and other formats go through docconv.
type LectureExtractor struct {
	pages     PageSource
	ocr       Recognizer // nil disables OCR
	threshold int
	workers   int
	logger    *slog.Logger
}

// NewLectureExtractor caps the pages being rasterized and recognized at
// workers, which should match the size of the OCR pool.
func NewLectureExtractor(pages PageSource, ocr Recognizer, densityThreshold, workers int, logger *slog.Logger) *LectureExtractor {
	if workers <= 0 {
		workers = defaultOCRWorkers
	}
	return &LectureExtractor{
		pages:     pages,
		ocr:       ocr,
		threshold: densityThreshold,
		workers:   workers,
		logger:    logging.OrDefault(logger).With("component", "extractor"),
	}
}

const defaultOCRWorkers = 2

func (e *LectureExtractor) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	switch documentKind(data, contentType) {
	case kindPDF:
		return e.extractPDF(ctx, data)
	case kindSlides:
		text, _, err := docconv.ConvertPptx(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("%w: pptx: %v", core.ErrExtraction, err)
		}
		return strings.TrimSpace(text), nil
	default:
		res, err := docconv.Convert(bytes.NewReader(data), contentType, false)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", core.ErrExtraction, contentType, err)
		}
		return strings.TrimSpace(res.Body), nil
	}
}

func (e *LectureExtractor) extractPDF(ctx context.Context, data []byte) (string, error) {
	texts, err := e.pages.PageTexts(ctx, data)
	if err != nil {
		return "", fmt.Errorf("%w: pdf: %v", core.ErrExtraction, err)
	}

	flagged := pagesNeedingOCR(texts, e.threshold)
	var ocrTexts []string
	if e.ocr != nil && len(flagged) > 0 {
		e.logger.Info("ocr pages", "flagged", len(flagged), "total", len(texts))
		ocrTexts = e.recognizePages(ctx, data, flagged)
	}
	return composeText(texts, ocrTexts), nil
}

// recognizePages rasterizes and recognizes the flagged pages, at most
// e.workers at a time. A failed page yields "".
func (e *LectureExtractor) recognizePages(ctx context.Context, data []byte, pages []int) []string {
	out := make([]string, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, idx := range pages {
		g.Go(func() error {
			pageNr := idx + 1
			img, err := e.pages.PageImage(gctx, data, pageNr)
			if err != nil {
				e.logger.Warn("page raster failed", "page", pageNr, "err", err)
				return nil
			}
			text, err := e.ocr.Recognize(gctx, PrepareForOCR(img))
			if err != nil {
				e.logger.Warn("page ocr failed", "page", pageNr, "err", err)
				return nil
			}
			out[i] = strings.TrimSpace(text)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// pagesNeedingOCR returns the zero-based indexes of pages whose trimmed text
// is shorter than threshold characters.
func pagesNeedingOCR(pageTexts []string, threshold int) []int {
	var flagged []int
	for i, t := range pageTexts {
		if utf8.RuneCountInString(strings.TrimSpace(t)) < threshold {
			flagged = append(flagged, i)
		}
	}
	return flagged
}

// composeText joins the text layer and the OCR layer with a blank line.
func composeText(pageTexts, ocrTexts []string) string {
	textLayer := strings.TrimSpace(strings.Join(pageTexts, "\n"))

	var parts []string
	for _, t := range ocrTexts {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	ocrLayer := strings.Join(parts, "\n")

	var segments []string
	for _, s := range []string{textLayer, ocrLayer} {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return strings.Join(segments, "\n\n")
}

type docKind int

const (
	kindOther docKind = iota
	kindPDF
	kindSlides
)

func documentKind(data []byte, contentType string) docKind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "pdf"):
		return kindPDF
	case strings.Contains(ct, "presentation"), strings.Contains(ct, "powerpoint"):
		return kindSlides
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return kindPDF
	case bytes.HasPrefix(data, []byte("PK\x03\x04")) && bytes.Contains(data, []byte("ppt/")):
		return kindSlides
	}
	return kindOther
}

// Recognizer turns a prepared page image into text. ocr.Pool is the production one.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}
