// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shaderdbg

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/shaderdbg/internal/color"
)

// dimFactor is the brightness kept by pixels that are not highlighted in
// an overlay.
const dimFactor = 0.3

// undefinedBehaviorColor marks flagged pixels: opaque white.
const undefinedBehaviorColor = 0xFFFFFFFF

func packColor(c [4]float32) uint32 {
	return color.PackRGBA8(color.ColorF32{R: c[0], G: c[1], B: c[2], A: c[3]})
}

func packGPUColor(c gputypes.Color) uint32 {
	return color.PackRGBA8(color.ColorF32{R: float32(c.R), G: float32(c.G), B: float32(c.B), A: float32(c.A)})
}

// AllocateHeatmap returns a W*H*3 RGB float image of the per-pixel
// instruction counts, normalized to the largest count.
func (a *Analyzer) AllocateHeatmap() []float32 {
	out := make([]float32, 3*len(a.instructions))
	peak := a.stats.InstructionsMax
	for i, n := range a.instructions {
		var t float32
		if peak > 0 {
			t = float32(n) / float32(peak)
		}
		c := color.Heatmap(t)
		out[3*i], out[3*i+1], out[3*i+2] = c.R, c.G, c.B
	}
	return out
}

// AllocateUndefinedBehaviorMap returns the colour buffer with flagged
// pixels in opaque white and every other pixel dimmed.
func (a *Analyzer) AllocateUndefinedBehaviorMap() []uint32 {
	out := make([]uint32, len(a.color))
	for i, c := range a.color {
		if a.ub[i] != 0 {
			out[i] = undefinedBehaviorColor
		} else {
			out[i] = color.Darken(c, dimFactor)
		}
	}
	return out
}

// AllocateGlobalBreakpointsMap returns the colour buffer with every pixel
// that hit a breakpoint painted in that breakpoint's colour; the highest
// index wins when several hit. It returns nil while no breakpoints are
// set.
func (a *Analyzer) AllocateGlobalBreakpointsMap() []uint32 {
	if len(a.breakpoints) == 0 || a.hits == nil {
		return nil
	}
	colors := make([]uint32, len(a.breakpoints))
	for i, r := range a.breakpoints {
		colors[i] = packGPUColor(r.bp.Color)
	}
	out := make([]uint32, len(a.color))
	for i, c := range a.color {
		out[i] = color.Darken(c, dimFactor)
		mask := a.hits[i]
		for b := len(colors) - 1; b >= 0; b-- {
			if mask&(1<<b) != 0 {
				out[i] = colors[b]
				break
			}
		}
	}
	return out
}
