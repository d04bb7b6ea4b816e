package color

import (
	"math"
	"testing"
)

func floatNear(a, b, eps float32) bool {
	return float32(math.Abs(float64(a-b))) <= eps
}

func TestHeatmapStops(t *testing.T) {
	tests := []struct {
		name string
		t    float32
		want ColorF32
	}{
		{"blue", 0, ColorF32{0, 0, 1, 1}},
		{"cyan", 0.25, ColorF32{0, 1, 1, 1}},
		{"green", 0.5, ColorF32{0, 1, 0, 1}},
		{"yellow", 0.75, ColorF32{1, 1, 0, 1}},
		{"red", 1, ColorF32{1, 0, 0, 1}},
		{"below range", -3, ColorF32{0, 0, 1, 1}},
		{"above range", 7, ColorF32{1, 0, 0, 1}},
		{"nan", float32(math.NaN()), ColorF32{0, 0, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Heatmap(tt.t)
			if !floatNear(got.R, tt.want.R, 1e-6) || !floatNear(got.G, tt.want.G, 1e-6) ||
				!floatNear(got.B, tt.want.B, 1e-6) || got.A != 1 {
				t.Errorf("Heatmap(%v) = %+v, want %+v", tt.t, got, tt.want)
			}
		})
	}
}

func TestHeatmapMonotonic(t *testing.T) {
	const maxCount = 997
	prev := float32(-1)
	for c := 0; c <= maxCount; c++ {
		rank := HeatRank(Heatmap(float32(c) / maxCount))
		if rank+1e-5 < prev {
			t.Fatalf("count %d: rank %v is cooler than previous %v", c, rank, prev)
		}
		prev = rank
	}
}

func TestHeatRankMatchesParameter(t *testing.T) {
	for i := 0; i <= 100; i++ {
		tv := float32(i) / 100
		if got := HeatRank(Heatmap(tv)); !floatNear(got, 4*tv, 1e-4) {
			t.Errorf("HeatRank(Heatmap(%v)) = %v, want %v", tv, got, 4*tv)
		}
	}
}

func TestPackRGBA8(t *testing.T) {
	tests := []struct {
		name string
		c    ColorF32
		want uint32
	}{
		{"opaque red", ColorF32{1, 0, 0, 1}, 0xFF0000FF},
		{"opaque blue", ColorF32{0, 0, 1, 1}, 0xFFFF0000},
		{"transparent", ColorF32{}, 0},
		{"clamped", ColorF32{2, -1, 0.5, 1}, 0xFF8000FF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PackRGBA8(tt.c); got != tt.want {
				t.Errorf("PackRGBA8(%+v) = %#08x, want %#08x", tt.c, got, tt.want)
			}
		})
	}
}

func TestUnpackRoundTrip(t *testing.T) {
	u := ColorU8{R: 12, G: 34, B: 56, A: 78}
	if got := Unpack(PackU8(u)); got != u {
		t.Errorf("Unpack(PackU8(%v)) = %v", u, got)
	}
}

func TestDarken(t *testing.T) {
	got := Unpack(Darken(PackRGBA8(ColorF32{1, 1, 1, 0.5}), 0.25))
	want := ColorU8{R: 64, G: 64, B: 64, A: 255}
	if got != want {
		t.Errorf("Darken() = %v, want %v", got, want)
	}
}

func TestBytes(t *testing.T) {
	dst := make([]byte, 8)
	Bytes(dst, []uint32{0x04030201, 0x08070605})
	for i, b := range dst {
		if b != byte(i+1) {
			t.Fatalf("Bytes()[%d] = %d, want %d", i, b, i+1)
		}
	}
}
