package ingestion_engine

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRun struct {
	name string
	args []string
}

// scriptedRunner stands in for poppler. pdftoppm writes a png to the output
// root it is given.
type scriptedRunner struct {
	text    string
	failErr error
	runs    []recordedRun
}

func (s *scriptedRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	s.runs = append(s.runs, recordedRun{name: name, args: args})
	if s.failErr != nil {
		return nil, s.failErr
	}
	switch name {
	case "pdftotext":
		return []byte(s.text), nil
	case "pdftoppm":
		root := args[len(args)-1]
		f, err := os.Create(root + ".png")
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return nil, png.Encode(f, image.NewGray(image.Rect(0, 0, 2550, 3300)))
	}
	return nil, errors.New("unexpected command " + name)
}

func newTestPages(r *scriptedRunner) *PDFPages {
	p := NewPDFPages()
	p.run = r.run
	return p
}

func TestPageTexts_SinglePassSplitOnFormFeed(t *testing.T) {
	r := &scriptedRunner{text: "Intro to graphs\n\fBFS\nqueue\n\f\f"}
	p := newTestPages(r)

	texts, err := p.PageTexts(context.Background(), []byte("%PDF-not-really"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Intro to graphs\n", "BFS\nqueue\n", ""}, texts)

	require.Len(t, r.runs, 1)
	assert.Equal(t, "pdftotext", r.runs[0].name)
	args := r.runs[0].args
	assert.Equal(t, "-", args[len(args)-1])
	assert.Contains(t, args, "UTF-8")
}

func TestPageImage_RendersRequestedPage(t *testing.T) {
	r := &scriptedRunner{}
	p := newTestPages(r)

	img, err := p.PageImage(context.Background(), []byte("%PDF-not-really"), 7)
	require.NoError(t, err)
	assert.Equal(t, 2550, img.Bounds().Dx())

	require.Len(t, r.runs, 1)
	assert.Equal(t, "pdftoppm", r.runs[0].name)
	args := r.runs[0].args
	assert.Equal(t, []string{"-f", "7", "-l", "7", "-r", "300", "-gray", "-png", "-singlefile"}, args[:9])
}

func TestPageImage_FallsBackToEmbeddedRaster(t *testing.T) {
	r := &scriptedRunner{failErr: errors.New("pdftoppm: executable file not found")}
	p := newTestPages(r)

	_, err := p.PageImage(context.Background(), []byte("%PDF-not-really"), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render: pdftoppm")
	assert.Contains(t, err.Error(), "extract images")
}

func TestPageImage_CancelledContext(t *testing.T) {
	r := &scriptedRunner{}
	p := newTestPages(r)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.PageImage(ctx, nil, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, r.runs)
}
