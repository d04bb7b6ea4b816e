// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package shaderdbg replays render passes on the CPU to debug WGSL shaders
// pixel by pixel.
//
// # Overview
//
// An Analyzer runs every drawable item of a pipeline.Pass through the
// vertex stage, an optional geometry stage, an integer half-plane block
// rasterizer and the pixel shader, all interpreted by the shader package.
// It records per-pixel colour, depth, instruction counts, undefined
// behavior flags and breakpoint hits.
//
// # Quick Start
//
//	ps, err := shader.Compile("red.wgsl", src)
//	if err != nil {
//		return err
//	}
//	pass := &pipeline.Pass{
//		PixelShader: ps,
//		Items: []*pipeline.Item{{
//			Name:     "quad",
//			Type:     pipeline.ItemGeometry,
//			Geometry: pipeline.NewGeometry(pipeline.GeometryRectangle),
//		}},
//	}
//
//	a := shaderdbg.New(shaderdbg.WithPixelOfInterest(10, 10))
//	defer a.Close()
//	a.Init(64, 64, gputypes.Color{A: 1})
//	if err := a.RenderPass(pass); err != nil {
//		return err
//	}
//	heat := a.AllocateHeatmap()
//
// # Coordinate System
//
// Framebuffer arrays are indexed y*width+x with row 0 at the bottom, the
// way normalized device coordinates map onto the viewport. Shaders see
// @builtin(position) with the origin at the top-left pixel centre.
//
// # Breakpoints
//
// SetBreakpoints installs up to MaxBreakpoints line breakpoints, optionally
// conditional. Conditions are compiled lazily against the running pixel
// shader, cached by program and function, and evaluated on private
// machines that never write back into the shading machine. A condition
// that fails to compile or evaluate is false for the rest of the pass.
//
// # Concurrency
//
// An Analyzer is used from one goroutine. WithWorkers shades each triangle
// in block-aligned bands on a worker pool, one cloned machine per band.
package shaderdbg
