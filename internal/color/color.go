// Package color provides the colour math behind the debugger overlays:
// float/8-bit conversion, RGBA8 packing and the instruction-count heatmap.
package color

// ColorF32 represents a color with float32 components in [0,1].
type ColorF32 struct {
	R, G, B, A float32
}

// ColorU8 represents a color with uint8 components in [0,255].
type ColorU8 struct {
	R, G, B, A uint8
}

// White and Black are the fully opaque extremes.
var (
	White = ColorF32{R: 1, G: 1, B: 1, A: 1}
	Black = ColorF32{A: 1}
)

// U8ToF32 converts ColorU8 to ColorF32.
func U8ToF32(c ColorU8) ColorF32 {
	return ColorF32{
		R: float32(c.R) / 255.0,
		G: float32(c.G) / 255.0,
		B: float32(c.B) / 255.0,
		A: float32(c.A) / 255.0,
	}
}

// F32ToU8 converts ColorF32 to ColorU8.
// Each component is clamped to [0,1] and rounded to the nearest step.
func F32ToU8(c ColorF32) ColorU8 {
	return ColorU8{
		R: clampAndRound(c.R),
		G: clampAndRound(c.G),
		B: clampAndRound(c.B),
		A: clampAndRound(c.A),
	}
}

// Lerp interpolates between a and b. t is not clamped.
func Lerp(a, b ColorF32, t float32) ColorF32 {
	return ColorF32{
		R: a.R + (b.R-a.R)*t,
		G: a.G + (b.G-a.G)*t,
		B: a.B + (b.B-a.B)*t,
		A: a.A + (b.A-a.A)*t,
	}
}

// clampAndRound clamps a float32 to [0,1] and converts to uint8 with rounding.
// NaN maps to 0.
func clampAndRound(v float32) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255.0 + 0.5)
}
