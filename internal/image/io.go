// Package image converts debugger buffers into standard images and writes
// them as PNG files.
//
// Debugger buffers store row 0 at the bottom of the frame; every conversion
// here flips rows so the resulting image is top-down.
package image

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/gogpu/shaderdbg/internal/color"
)

// I/O errors.
var (
	// ErrSizeMismatch is returned when a buffer does not match its dimensions.
	ErrSizeMismatch = errors.New("image: buffer size does not match dimensions")
)

// FromPacked builds an RGBA image from packed RGBA8 pixels.
func FromPacked(width, height int, pixels []uint32) (*image.NRGBA, error) {
	if len(pixels) != width*height {
		return nil, fmt.Errorf("%w: %d pixels for %dx%d", ErrSizeMismatch, len(pixels), width, height)
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		src := pixels[(height-1-y)*width : (height-y)*width]
		color.Bytes(img.Pix[y*img.Stride:y*img.Stride+width*4], src)
	}
	return img, nil
}

// FromFloat builds an RGBA image from a float buffer with the given number
// of channels (3 or 4). Values are clamped to [0,1]; missing alpha is 1.
func FromFloat(width, height, channels int, pixels []float32) (*image.NRGBA, error) {
	if channels != 3 && channels != 4 {
		return nil, fmt.Errorf("image: unsupported channel count %d", channels)
	}
	if len(pixels) != width*height*channels {
		return nil, fmt.Errorf("%w: %d floats for %dx%dx%d", ErrSizeMismatch, len(pixels), width, height, channels)
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		row := (height - 1 - y) * width
		for x := range width {
			s := pixels[(row+x)*channels:]
			c := color.ColorF32{R: s[0], G: s[1], B: s[2], A: 1}
			if channels == 4 {
				c.A = s[3]
			}
			u := color.F32ToU8(c)
			o := y*img.Stride + x*4
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = u.R, u.G, u.B, u.A
		}
	}
	return img, nil
}

// Scale enlarges img by an integer factor with nearest-neighbour sampling
// so individual pixels stay visible.
func Scale(img image.Image, factor int) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("image: encode PNG: %w", err)
	}
	return nil
}

// SavePNG writes img to path as PNG.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("image: create file: %w", err)
	}
	if err := EncodePNG(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// LoadPNG reads a PNG file.
func LoadPNG(path string) (image.Image, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("image: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("image: decode PNG: %w", err)
	}
	return img, nil
}
