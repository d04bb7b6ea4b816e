// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shaderdbg

import (
	"testing"

	"github.com/gogpu/shaderdbg/internal/raster"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.blockSize != DefaultBlockSize {
		t.Errorf("blockSize = %d, want %d", o.blockSize, DefaultBlockSize)
	}
	if o.workers != 1 || !o.depthTest || o.hasRegion || o.hasPixel {
		t.Errorf("defaultOptions() = %+v", o)
	}
}

func TestWithBlockSize(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{1, 1},
		{4, 4},
		{16, 16},
		{0, DefaultBlockSize},
		{-8, DefaultBlockSize},
		{6, DefaultBlockSize},
	}
	for _, tt := range tests {
		o := defaultOptions()
		WithBlockSize(tt.n)(&o)
		if o.blockSize != tt.want {
			t.Errorf("WithBlockSize(%d) = %d, want %d", tt.n, o.blockSize, tt.want)
		}
	}
}

func TestWithRegionNormalizes(t *testing.T) {
	o := defaultOptions()
	WithRegion(9, 7, 2, 3)(&o)
	want := raster.Rect{X0: 2, Y0: 3, X1: 9, Y1: 7}
	if !o.hasRegion || o.region != want {
		t.Errorf("WithRegion(9, 7, 2, 3) = %+v, want %+v", o.region, want)
	}
}

func TestWithWorkers(t *testing.T) {
	for _, tt := range []struct{ n, want int }{{-2, 1}, {0, 1}, {1, 1}, {6, 6}} {
		o := defaultOptions()
		WithWorkers(tt.n)(&o)
		if o.workers != tt.want {
			t.Errorf("WithWorkers(%d) = %d, want %d", tt.n, o.workers, tt.want)
		}
	}
}

func TestNewAppliesOptions(t *testing.T) {
	a := New(WithWorkers(3), WithPixelOfInterest(4, 5), WithDepthTest(false), WithConditionCacheSize(-1))
	defer a.Close()
	if a.pool == nil || a.pool.Workers() != 3 {
		t.Errorf("New(WithWorkers(3)) did not create a 3 worker pool")
	}
	if !a.opts.hasPixel || a.opts.pixelX != 4 || a.opts.pixelY != 5 {
		t.Errorf("pixel of interest = (%d, %d), want (4, 5)", a.opts.pixelX, a.opts.pixelY)
	}
	if a.opts.depthTest {
		t.Errorf("depthTest = true, want false")
	}
	if a.opts.conditionCacheSize != 0 {
		t.Errorf("conditionCacheSize = %d, want 0", a.opts.conditionCacheSize)
	}

	a.Init(8, 8, clearBlack)
	if info := a.PixelInfo(); info.X != 4 || info.Y != 5 || info.Captured {
		t.Errorf("PixelInfo() before rendering = %+v", info)
	}
}
