// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shaderdbg

import (
	"github.com/gogpu/shaderdbg/internal/raster"
	"github.com/gogpu/shaderdbg/pipeline"
	"github.com/gogpu/shaderdbg/shader"
)

// triangleSetup is the per-triangle interpolation state.
type triangleSetup struct {
	tri    raster.Triangle
	area   float64
	height int

	z    [3]float32
	invW [3]float32

	verts *[3]pipeline.ShadedVertex
	// mask holds the locations written by all three vertices; interp the
	// subset that is perspective-interpolated rather than flat.
	mask, interp uint32

	prim *Primitive
}

// rasterize converts one shaded triangle into pixels. Triangles crossing
// the w=0 plane or lying fully off screen are dropped before they are
// counted.
func (a *Analyzer) rasterize(rc *renderContext, prim *Primitive) {
	s := triangleSetup{verts: &prim.Shaded, height: a.height, prim: prim}
	var pts [3]raster.Point
	for i, v := range prim.Shaded {
		w := v.Position[3]
		if !(w > 0) {
			return
		}
		pts[i] = raster.ToScreen(v.Position[0]/w, v.Position[1]/w, a.width, a.height)
		s.z[i] = v.Position[2] / w
		s.invW[i] = 1 / w
	}

	box := raster.Bounds(pts).Intersect(a.framebuffer())
	if box.Empty() {
		return
	}
	s.tri = raster.NewTriangle(pts[0], pts[1], pts[2])
	area := s.tri.Area2()
	if area == 0 {
		return
	}
	a.stats.TrianglesProcessed++
	if area < 0 {
		a.stats.TrianglesDiscarded++
		return
	}
	s.area = float64(area)
	a.stats.TrianglesRasterized++

	if a.opts.hasRegion {
		box = box.Intersect(a.opts.region)
		if box.Empty() {
			return
		}
	}

	v := &prim.Shaded
	s.mask = v[0].Mask & v[1].Mask & v[2].Mask
	for loc := range shader.MaxLocations {
		if s.mask&(1<<loc) != 0 && interpolated(v[0].Locations[loc], v[1].Locations[loc], v[2].Locations[loc]) {
			s.interp |= 1 << loc
		}
	}

	if rc.parallel && len(rc.workers) > 1 {
		a.shadeBands(rc, &s, box)
		return
	}
	w := rc.workers[0]
	a.walkBlocks(rc, w, &s, box)
	a.stats.merge(&w.stats)
	w.stats = Stats{}
}

// interpolated reports whether a varying is perspective-interpolated.
// Only f32 scalars and vectors of matching size are; everything else
// takes the value of the first vertex.
func interpolated(v0, v1, v2 shader.Value) bool {
	for _, v := range [...]shader.Value{v0, v1, v2} {
		if v.Kind != shader.KindF32 || v.IsMatrix() || v.Len() != v0.Len() {
			return false
		}
	}
	return true
}

// walkBlocks classifies every block overlapping box and shades the
// covered pixels inside box.
func (a *Analyzer) walkBlocks(rc *renderContext, w *shadeWorker, s *triangleSetup, box raster.Rect) {
	bs := a.opts.blockSize
	aligned := box.AlignOut(bs)
	for by := aligned.Y0; by <= aligned.Y1; by += bs {
		for bx := aligned.X0; bx <= aligned.X1; bx += bs {
			block := raster.Rect{X0: bx, Y0: by, X1: bx + bs - 1, Y1: by + bs - 1}
			cov := s.tri.ClassifyBlock(int64(block.X0), int64(block.Y0), int64(block.X1), int64(block.Y1))
			if cov == raster.BlockOutside {
				continue
			}
			r := block.Intersect(box)
			for y := r.Y0; y <= r.Y1; y++ {
				for x := r.X0; x <= r.X1; x++ {
					if cov == raster.BlockPartial && !s.tri.Contains(int64(x), int64(y)) {
						continue
					}
					a.shade(rc, w, s, x, y)
				}
			}
		}
	}
}

// invocation interpolates the pixel shader inputs at (x, y). Points
// outside the triangle extrapolate, which is what derivative neighbors
// need.
func (s *triangleSetup) invocation(x, y int) shader.Invocation {
	w0, w1, w2 := s.tri.Weights(int64(x), int64(y))
	b := [3]float64{float64(w0) / s.area, float64(w1) / s.area, float64(w2) / s.area}

	var z, invW float64
	for i := range b {
		z += b[i] * float64(s.z[i])
		invW += b[i] * float64(s.invW[i])
	}
	pc := b
	if invW != 0 {
		for i := range pc {
			pc[i] = b[i] * float64(s.invW[i]) / invW
		}
	}

	inv := shader.Invocation{
		Position:    [4]float32{float32(x) + 0.5, float32(s.height-1-y) + 0.5, float32(z), float32(invW)},
		FrontFacing: true,
	}
	for loc := range shader.MaxLocations {
		bit := uint32(1) << loc
		if s.mask&bit == 0 {
			continue
		}
		v0 := s.verts[0].Locations[loc]
		if s.interp&bit == 0 {
			inv.Locations[loc] = v0
			continue
		}
		comps := make([]float64, v0.Len())
		for c := range comps {
			for i := range pc {
				comps[c] += pc[i] * s.verts[i].Locations[loc].Comp(c)
			}
		}
		inv.Locations[loc] = shader.Vec(shader.KindF32, comps...)
	}
	return inv
}

// shade runs the pixel shader for one covered pixel and resolves its
// outputs into the framebuffer arrays.
func (a *Analyzer) shade(rc *renderContext, w *shadeWorker, s *triangleSetup, x, y int) {
	idx := a.index(x, y)
	inv := s.invocation(x, y)
	w.stats.Invocations++

	var dxInv, dyInv shader.Invocation
	err := w.fs.Start(inv)
	if err == nil && rc.derivatives {
		// Screen y grows downward, so the vertical neighbor is one
		// buffer row below.
		dxInv, dyInv = s.invocation(x+1, y), s.invocation(x, y-1)
		if err = w.dx.Start(dxInv); err == nil {
			err = w.dy.Start(dyInv)
		}
		w.fs.SetDerivativeStates(w.dx, w.dy)
	}
	if rc.breakpoints {
		rc.hits = 0
	}
	if err == nil {
		err = w.fs.Run()
	}
	if rc.breakpoints && a.hits != nil {
		a.hits[idx] |= rc.hits
	}

	instr := w.fs.Instructions()
	w.stats.Instructions += uint64(instr)
	a.instructions[idx] += uint32(instr)
	w.stats.InstructionsMax = max(w.stats.InstructionsMax, a.instructions[idx])

	if ub := w.fs.UndefinedBehavior(); ub != 0 {
		if a.ub[idx] == 0 {
			w.stats.PixelsUndefinedBehavior++
		}
		a.ub[idx] |= uint32(ub)
	}

	capture := a.opts.hasPixel && x == a.pixel.X && y == a.pixel.Y
	var info PixelInfo
	if capture {
		info = PixelInfo{
			X: x, Y: y, Captured: true,
			Primitive:         *s.prim,
			Program:           w.fs.Program(),
			Globals:           rc.pass.Globals,
			Input:             inv,
			NeighborX:         dxInv,
			NeighborY:         dyInv,
			HasDerivatives:    rc.derivatives,
			Instructions:      instr,
			UndefinedBehavior: w.fs.UndefinedBehavior(),
			Err:               err,
		}
		defer func() { a.pixel = info }()
	}

	switch {
	case err != nil:
		w.stats.ShaderErrors++
		w.stats.PixelsDiscarded++
		info.Discarded = true
		rc.shaderError(err)
		return
	case w.fs.Discarded():
		w.stats.PixelsDiscarded++
		info.Discarded = true
		return
	}

	out := w.fs.Outputs()
	z := inv.Position[2]
	if out.HasDepth {
		z = out.FragDepth
	}
	info.Depth = z
	if rc.depthTest && !(z < a.depth[idx]) {
		w.stats.PixelsFailedDepth++
		info.DepthFailed = true
		return
	}
	a.depth[idx] = z

	if out.Mask&1 != 0 {
		c := outputColor(out.Locations[0])
		info.Color = c
		a.color[idx] = packColor(c)
		if a.floats != nil {
			copy(a.floats[4*idx:4*idx+4], c[:])
		}
	}
	w.stats.PixelsShaded++
}

// outputColor widens a location 0 output to RGBA. Missing channels are 0
// and alpha defaults to 1.
func outputColor(v shader.Value) [4]float32 {
	c := [4]float32{0, 0, 0, 1}
	if !v.Kind.Numeric() {
		return c
	}
	for i := range min(4, v.Len()) {
		c[i] = v.Float(i)
	}
	return c
}
