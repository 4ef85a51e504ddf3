// Package ocr runs tesseract over prepared page images.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/sync/semaphore"

	"github.com/markdave123-py/studybuddy/internal/core"
)

// Pool is the process-wide set of tesseract clients. A gosseract client is
// not safe for concurrent use, so each in-flight page holds one exclusively.
type Pool struct {
	sem     *semaphore.Weighted
	clients chan *gosseract.Client
}

func NewPool(workers int, language string) (*Pool, error) {
	if workers <= 0 {
		workers = 2
	}
	if language == "" {
		language = "eng"
	}

	p := &Pool{
		sem:     semaphore.NewWeighted(int64(workers)),
		clients: make(chan *gosseract.Client, workers),
	}
	for i := 0; i < workers; i++ {
		c := gosseract.NewClient()
		if err := c.SetLanguage(language); err != nil {
			_ = c.Close()
			p.Close()
			return nil, fmt.Errorf("ocr language %q: %w", language, err)
		}
		p.clients <- c
	}
	return p, nil
}

// Recognize waits for a free worker, then runs tesseract on img.
func (p *Pool) Recognize(ctx context.Context, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("%w: encode: %v", core.ErrOCRPage, err)
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrOCRPage, err)
	}
	defer p.sem.Release(1)

	c := <-p.clients
	defer func() { p.clients <- c }()

	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrOCRPage, err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrOCRPage, err)
	}
	return strings.TrimSpace(text), nil
}

// Close releases the idle clients. Call it only after all work has stopped.
func (p *Pool) Close() {
	for {
		select {
		case c := <-p.clients:
			_ = c.Close()
		default:
			return
		}
	}
}
