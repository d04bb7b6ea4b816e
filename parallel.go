// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shaderdbg

import (
	"github.com/gogpu/shaderdbg/internal/parallel"
	"github.com/gogpu/shaderdbg/internal/raster"
)

// shadeBands splits box into block-aligned horizontal bands and shades
// them concurrently, one worker and machine set per band. Bands own
// disjoint pixels, so the framebuffer arrays are written without locks.
func (a *Analyzer) shadeBands(rc *renderContext, s *triangleSetup, box raster.Rect) {
	bands := parallel.Bands(box, a.opts.blockSize, len(rc.workers))
	work := make([]func(), len(bands))
	for i, band := range bands {
		w := rc.workers[i]
		work[i] = func() {
			a.walkBlocks(rc, w, s, band)
		}
	}
	a.pool.ExecuteAll(work)

	for _, w := range rc.workers[:len(bands)] {
		a.stats.merge(&w.stats)
		w.stats = Stats{}
	}
}
