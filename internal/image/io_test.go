package image

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"path/filepath"
	"testing"
)

func TestFromPackedFlipsRows(t *testing.T) {
	// Bottom row red, top row blue.
	pixels := []uint32{0xFF0000FF, 0xFF0000FF, 0xFFFF0000, 0xFFFF0000}
	img, err := FromPacked(2, 2, pixels)
	if err != nil {
		t.Fatalf("FromPacked() error = %v", err)
	}
	if r, _, b, _ := img.At(0, 0).RGBA(); r != 0 || b != 0xFFFF {
		t.Errorf("top-left = r%d b%d, want blue", r, b)
	}
	if r, _, b, _ := img.At(1, 1).RGBA(); r != 0xFFFF || b != 0 {
		t.Errorf("bottom-right = r%d b%d, want red", r, b)
	}
}

func TestFromPackedSizeMismatch(t *testing.T) {
	if _, err := FromPacked(3, 3, make([]uint32, 4)); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("FromPacked() error = %v, want ErrSizeMismatch", err)
	}
}

func TestFromFloat(t *testing.T) {
	img, err := FromFloat(1, 2, 3, []float32{0, 1, 0, 2, -1, 0.5})
	if err != nil {
		t.Fatalf("FromFloat() error = %v", err)
	}
	top := img.NRGBAAt(0, 0)
	if top.R != 255 || top.G != 0 || top.B != 128 || top.A != 255 {
		t.Errorf("top pixel = %+v", top)
	}
	if _, err := FromFloat(1, 1, 2, []float32{0, 0}); err == nil {
		t.Error("FromFloat() with 2 channels should fail")
	}
}

func TestScale(t *testing.T) {
	img, _ := FromPacked(2, 1, []uint32{0xFF0000FF, 0xFF00FF00})
	big := Scale(img, 3)
	if b := big.Bounds(); b.Dx() != 6 || b.Dy() != 3 {
		t.Fatalf("Scale() bounds = %v", b)
	}
	if r, g, _, _ := big.At(2, 2).RGBA(); r != 0xFFFF || g != 0 {
		t.Errorf("scaled pixel (2,2) = r%d g%d, want red", r, g)
	}
	if r, g, _, _ := big.At(3, 0).RGBA(); r != 0 || g != 0xFFFF {
		t.Errorf("scaled pixel (3,0) = r%d g%d, want green", r, g)
	}
	if Scale(img, 1) != image.Image(img) {
		t.Error("Scale(img, 1) should return img unchanged")
	}
}

func TestSaveAndLoadPNG(t *testing.T) {
	img, _ := FromPacked(2, 2, []uint32{1, 2, 3, 4})
	path := filepath.Join(t.TempDir(), "out.png")
	if err := SavePNG(path, img); err != nil {
		t.Fatalf("SavePNG() error = %v", err)
	}
	got, err := LoadPNG(path)
	if err != nil {
		t.Fatalf("LoadPNG() error = %v", err)
	}
	if got.Bounds() != img.Bounds() {
		t.Errorf("bounds = %v, want %v", got.Bounds(), img.Bounds())
	}

	var buf bytes.Buffer
	if err := EncodePNG(&buf, img); err != nil {
		t.Fatalf("EncodePNG() error = %v", err)
	}
	if _, err := png.Decode(&buf); err != nil {
		t.Errorf("encoded PNG does not decode: %v", err)
	}
}
