// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shaderdbg

// Stats are the counters of one analysis run. They reset on Init.
//
// Every triangle that reaches the rasterizer is either discarded as back
// facing or rasterized. Zero-area triangles cover no pixel and are not
// counted at all. Every covered pixel is either shaded, discarded by the
// shader or rejected by the depth test:
//
//	TrianglesProcessed == TrianglesDiscarded + TrianglesRasterized
//	Invocations == PixelsShaded + PixelsDiscarded + PixelsFailedDepth
type Stats struct {
	PixelsShaded      int
	PixelsDiscarded   int
	PixelsFailedDepth int
	// PixelsUndefinedBehavior counts distinct pixels with at least one
	// undefined-behavior flag.
	PixelsUndefinedBehavior int

	TrianglesProcessed  int
	TrianglesDiscarded  int
	TrianglesRasterized int

	// Invocations is the number of pixel shader invocations.
	Invocations int
	// Instructions is the total instruction count of all invocations.
	Instructions uint64
	// InstructionsMax is the largest per-pixel instruction count,
	// accumulated over every invocation that shaded the pixel.
	InstructionsMax uint32

	// ShaderErrors counts invocations stopped by a runtime error. They are
	// included in PixelsDiscarded.
	ShaderErrors int
}

// InstructionsAverage returns the mean instruction count per invocation.
func (s Stats) InstructionsAverage() float64 {
	if s.Invocations == 0 {
		return 0
	}
	return float64(s.Instructions) / float64(s.Invocations)
}

// merge adds the pixel counters of o.
func (s *Stats) merge(o *Stats) {
	s.PixelsShaded += o.PixelsShaded
	s.PixelsDiscarded += o.PixelsDiscarded
	s.PixelsFailedDepth += o.PixelsFailedDepth
	s.PixelsUndefinedBehavior += o.PixelsUndefinedBehavior
	s.Invocations += o.Invocations
	s.Instructions += o.Instructions
	s.InstructionsMax = max(s.InstructionsMax, o.InstructionsMax)
	s.ShaderErrors += o.ShaderErrors
}

// CacheStats describes the compiled breakpoint condition cache. The
// counters live as long as the Analyzer; Init does not reset them.
type CacheStats struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	HitRate   float64
	Evictions uint64
}

// ConditionCacheStats reports the compiled condition cache.
func (a *Analyzer) ConditionCacheStats() CacheStats {
	return CacheStats(a.conditions.Stats())
}
