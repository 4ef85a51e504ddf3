package ingestion_engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"code.sajari.com/docconv"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/tiff"
)

// PageSource reads a PDF one page at a time.
type PageSource interface {
	// PageTexts returns the embedded text of every page, in page order.
	PageTexts(ctx context.Context, pdf []byte) ([]string, error)
	// PageImage returns a raster of page (1-based) suitable for OCR.
	PageImage(ctx context.Context, pdf []byte, page int) (image.Image, error)
}

var _ PageSource = (*PDFPages)(nil)

// RenderDPI is the resolution pages are rendered at for OCR.
const RenderDPI = 300

// commandRunner runs an external tool and returns its stdout.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return nil, fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(exitErr.Stderr))
	}
	return out, err
}

// PDFPages reads text layers with poppler's pdftotext and renders pages with
// pdftoppm. pdfcpu supplies the page count and, when pdftoppm is unavailable,
// the page's largest embedded image.
type PDFPages struct {
	conf *model.Configuration
	run  commandRunner
}

func NewPDFPages() *PDFPages {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFPages{conf: conf, run: execRunner}
}

// PageTexts converts the whole document in one pdftotext pass and splits the
// output on form feeds, one per page.
func (p *PDFPages) PageTexts(ctx context.Context, pdf []byte) ([]string, error) {
	var out []byte
	err := withTempPDF(pdf, func(dir, path string) error {
		var err error
		out, err = p.run(ctx, "pdftotext", "-q", "-enc", "UTF-8", "-eol", "unix", path, "-")
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		text, _, cerr := docconv.ConvertPDF(bytes.NewReader(pdf))
		if cerr != nil {
			return nil, fmt.Errorf("pdftotext: %v; convert: %w", err, cerr)
		}
		return []string{text}, nil
	}

	texts := strings.Split(string(out), "\f")
	if n := len(texts); n > 0 && strings.TrimSpace(texts[n-1]) == "" {
		texts = texts[:n-1]
	}
	// One entry per page, so trailing blank pages still reach OCR.
	if n, err := api.PageCount(bytes.NewReader(pdf), p.conf); err == nil && n != len(texts) {
		resized := make([]string, n)
		copy(resized, texts)
		texts = resized
	}
	return texts, nil
}

// PageImage renders page at RenderDPI in grayscale. If rendering fails it
// falls back to the largest raster embedded in the page, which for scanned
// and whiteboard exports is the whole page.
func (p *PDFPages) PageImage(ctx context.Context, pdf []byte, page int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := p.renderPage(ctx, pdf, page)
	if err == nil {
		return img, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	embedded, eerr := p.embeddedImage(pdf, page)
	if eerr != nil {
		return nil, fmt.Errorf("render: %v; %w", err, eerr)
	}
	return embedded, nil
}

func (p *PDFPages) renderPage(ctx context.Context, pdf []byte, page int) (image.Image, error) {
	var img image.Image
	err := withTempPDF(pdf, func(dir, path string) error {
		nr := strconv.Itoa(page)
		root := filepath.Join(dir, "page")
		if _, err := p.run(ctx, "pdftoppm",
			"-f", nr, "-l", nr,
			"-r", strconv.Itoa(RenderDPI),
			"-gray", "-png", "-singlefile",
			path, root,
		); err != nil {
			return err
		}
		f, err := os.Open(root + ".png")
		if err != nil {
			return err
		}
		defer f.Close()
		img, err = png.Decode(f)
		return err
	})
	return img, err
}

func (p *PDFPages) embeddedImage(pdf []byte, page int) (image.Image, error) {
	pages, err := api.ExtractImagesRaw(bytes.NewReader(pdf), []string{strconv.Itoa(page)}, p.conf)
	if err != nil {
		return nil, fmt.Errorf("extract images: %w", err)
	}

	var (
		best     model.Image
		bestArea int
	)
	for _, imgs := range pages {
		for _, img := range imgs {
			if area := img.Width * img.Height; img.Reader != nil && area > bestArea {
				best, bestArea = img, area
			}
		}
	}
	if bestArea == 0 {
		return nil, fmt.Errorf("page %d has no raster image", page)
	}

	decoded, _, err := image.Decode(best)
	if err != nil {
		return nil, fmt.Errorf("decode %s image: %w", best.FileType, err)
	}
	return decoded, nil
}

// withTempPDF writes pdf into a fresh directory that is removed once fn returns.
func withTempPDF(pdf []byte, fn func(dir, path string) error) error {
	dir, err := os.MkdirTemp("", "lecture-pdf-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(path, pdf, 0o600); err != nil {
		return err
	}
	return fn(dir, path)
}
