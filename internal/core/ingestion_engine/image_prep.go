package ingestion_engine

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// minOCRWidth is the width small page images are scaled up to before recognition.
const minOCRWidth = 1600

// PrepareForOCR converts a page image into a black-on-white bitmap:
// grayscale, upscale when small, contrast stretch, 3x3 sharpen, Otsu threshold.
func PrepareForOCR(src image.Image) *image.Gray {
	g := toGray(src)
	g = upscale(g, minOCRWidth)
	stretchContrast(g)
	g = sharpen(g)
	binarize(g, otsuThreshold(g))
	return g
}

func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g.SetGray(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(src.At(x, y)).(color.Gray))
		}
	}
	return g
}

func upscale(g *image.Gray, minWidth int) *image.Gray {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	if w == 0 || w >= minWidth {
		return g
	}
	nh := h * minWidth / w
	dst := image.NewGray(image.Rect(0, 0, minWidth, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), g, g.Bounds(), draw.Src, nil)
	return dst
}

// stretchContrast maps the darkest pixel to 0 and the lightest to 255.
func stretchContrast(g *image.Gray) {
	lo, hi := uint8(255), uint8(0)
	for _, p := range g.Pix {
		lo = min(lo, p)
		hi = max(hi, p)
	}
	if hi <= lo {
		return
	}
	span := int(hi - lo)
	for i, p := range g.Pix {
		g.Pix[i] = uint8(int(p-lo) * 255 / span)
	}
}

// sharpen applies the kernel [0 -1 0; -1 5 -1; 0 -1 0]. Border pixels are copied.
func sharpen(g *image.Gray) *image.Gray {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(b)
	copy(out.Pix, g.Pix)
	if w < 3 || h < 3 {
		return out
	}
	at := func(x, y int) int { return int(g.Pix[y*g.Stride+x]) }
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			v := 5*at(x, y) - at(x-1, y) - at(x+1, y) - at(x, y-1) - at(x, y+1)
			out.Pix[y*out.Stride+x] = uint8(max(0, min(255, v)))
		}
	}
	return out
}

// otsuThreshold picks the level that maximizes between-class variance.
func otsuThreshold(g *image.Gray) uint8 {
	var hist [256]int
	for _, p := range g.Pix {
		hist[p]++
	}
	total := len(g.Pix)
	if total == 0 {
		return 128
	}

	var sum float64
	for i, c := range hist {
		sum += float64(i * c)
	}

	var (
		sumB, best float64
		wB         int
		threshold  uint8
	)
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold
}

func binarize(g *image.Gray, threshold uint8) {
	for i, p := range g.Pix {
		if p > threshold {
			g.Pix[i] = 255
		} else {
			g.Pix[i] = 0
		}
	}
}
