package ingestion_engine

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoTone returns an RGBA image whose left half is dark ink and right half is paper.
func twoTone(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(200 + (x+y)%5)
			if x < w/2 {
				v = uint8(40 + (x+y)%5)
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestPrepareForOCR_Binarizes(t *testing.T) {
	out := PrepareForOCR(twoTone(2000, 100))

	require.Equal(t, 2000, out.Bounds().Dx())
	for _, p := range out.Pix {
		require.True(t, p == 0 || p == 255, "pixel %d is not binary", p)
	}

	// away from the edge and the sharpened boundary
	assert.Equal(t, uint8(0), out.GrayAt(200, 50).Y)
	assert.Equal(t, uint8(255), out.GrayAt(1800, 50).Y)
}

func TestPrepareForOCR_UpscalesSmallImages(t *testing.T) {
	out := PrepareForOCR(twoTone(400, 100))
	assert.Equal(t, minOCRWidth, out.Bounds().Dx())
	assert.Equal(t, 400, out.Bounds().Dy())
}

func TestOtsuThreshold_SplitsClusters(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range g.Pix {
		if i%2 == 0 {
			g.Pix[i] = 30
		} else {
			g.Pix[i] = 220
		}
	}
	th := otsuThreshold(g)
	assert.GreaterOrEqual(t, th, uint8(30))
	assert.Less(t, th, uint8(220))
}

func TestStretchContrast(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 3, 1))
	copy(g.Pix, []uint8{100, 125, 150})
	stretchContrast(g)
	assert.Equal(t, []uint8{0, 127, 255}, g.Pix)

	flat := image.NewGray(image.Rect(0, 0, 2, 1))
	copy(flat.Pix, []uint8{9, 9})
	stretchContrast(flat)
	assert.Equal(t, []uint8{9, 9}, flat.Pix)
}

func TestToGray_NonZeroOrigin(t *testing.T) {
	src := image.NewRGBA(image.Rect(5, 5, 8, 7))
	src.Set(5, 5, color.White)
	g := toGray(src)
	assert.Equal(t, image.Rect(0, 0, 3, 2), g.Bounds())
	assert.Equal(t, uint8(255), g.GrayAt(0, 0).Y)
}
