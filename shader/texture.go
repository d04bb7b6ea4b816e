package shader

import (
	"image"
	"image/color"
	"math"
)

// Texture is a 2D texture readable by the interpreter.
type Texture interface {
	// Size returns the texture dimensions in texels.
	Size() (width, height int)
	// Texel returns the RGBA value at integer coordinates inside the texture.
	Texel(x, y int) [4]float32
}

// ImageTexture adapts an image.Image. Row 0 of the image is v = 0.
type ImageTexture struct {
	img image.Image
}

// NewImageTexture wraps img.
func NewImageTexture(img image.Image) *ImageTexture {
	return &ImageTexture{img: img}
}

// Size returns the image dimensions.
func (t *ImageTexture) Size() (int, int) {
	b := t.img.Bounds()
	return b.Dx(), b.Dy()
}

// Texel returns the non-premultiplied color at (x, y).
func (t *ImageTexture) Texel(x, y int) [4]float32 {
	b := t.img.Bounds()
	c := color.NRGBAModel.Convert(t.img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
	return [4]float32{
		float32(c.R) / 255,
		float32(c.G) / 255,
		float32(c.B) / 255,
		float32(c.A) / 255,
	}
}

// SolidTexture is a 1x1 texture of a single color.
type SolidTexture [4]float32

// Size returns 1x1.
func (SolidTexture) Size() (int, int) { return 1, 1 }

// Texel returns the color.
func (t SolidTexture) Texel(int, int) [4]float32 { return t }

// sampleNearest samples with repeat addressing and nearest filtering.
func sampleNearest(t Texture, u, v float32) [4]float32 {
	w, h := t.Size()
	if w <= 0 || h <= 0 {
		return [4]float32{}
	}
	x := wrap(int(math.Floor(float64(u)*float64(w))), w)
	y := wrap(int(math.Floor(float64(v)*float64(h))), h)
	return t.Texel(x, y)
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
