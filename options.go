// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shaderdbg

import "github.com/gogpu/shaderdbg/internal/raster"

// DefaultBlockSize is the edge length of the square pixel blocks the
// rasterizer classifies before testing individual pixels.
const DefaultBlockSize = 8

// Option configures an Analyzer during creation.
//
// Example:
//
//	// Debug a single pixel
//	a := shaderdbg.New(shaderdbg.WithRegion(10, 10, 10, 10), shaderdbg.WithPixelOfInterest(10, 10))
//
//	// Shade a whole frame on 8 goroutines
//	a := shaderdbg.New(shaderdbg.WithWorkers(8))
type Option func(*options)

// options holds the Analyzer configuration.
type options struct {
	blockSize int

	region    raster.Rect
	hasRegion bool

	pixelX, pixelY int
	hasPixel       bool

	workers   int
	depthTest bool

	conditionCacheSize int
}

// defaultOptions returns the defaults: 8x8 blocks, no region, one worker,
// depth testing where passes request it.
func defaultOptions() options {
	return options{
		blockSize:          DefaultBlockSize,
		workers:            1,
		depthTest:          true,
		conditionCacheSize: 64,
	}
}

// WithBlockSize sets the rasterizer block size. Sizes that are not a power
// of two, or below 1, are ignored.
func WithBlockSize(n int) Option {
	return func(o *options) {
		if n >= 1 && n&(n-1) == 0 {
			o.blockSize = n
		}
	}
}

// WithRegion restricts rasterization to the inclusive pixel rectangle
// [x0,x1] x [y0,y1]. Row 0 is the bottom row of the framebuffer.
func WithRegion(x0, y0, x1, y1 int) Option {
	return func(o *options) {
		o.region = raster.Rect{X0: min(x0, x1), Y0: min(y0, y1), X1: max(x0, x1), Y1: max(y0, y1)}
		o.hasRegion = true
	}
}

// WithPixelOfInterest records the shading inputs and results of one pixel
// for later retrieval with PixelInfo and DebugPixel.
func WithPixelOfInterest(x, y int) Option {
	return func(o *options) {
		o.pixelX, o.pixelY = x, y
		o.hasPixel = true
	}
}

// WithWorkers shades pixels on n goroutines. Values below 2 shade on the
// calling goroutine. Parallel shading is suspended while breakpoints or a
// pixel of interest are active.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = max(1, n)
	}
}

// WithDepthTest enables or disables depth testing for every pass. When
// enabled (the default) each pass's DepthTest field decides.
func WithDepthTest(enabled bool) Option {
	return func(o *options) {
		o.depthTest = enabled
	}
}

// WithConditionCacheSize sets how many compiled breakpoint conditions are
// kept between breakpoint sets. 0 means unlimited.
func WithConditionCacheSize(n int) Option {
	return func(o *options) {
		o.conditionCacheSize = max(0, n)
	}
}
