// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shaderdbg

import (
	"errors"
	"fmt"

	"github.com/gogpu/shaderdbg/pipeline"
	"github.com/gogpu/shaderdbg/shader"
)

// ErrNotRendered is returned by ReadPixels before the first Render.
var ErrNotRendered = errors.New("shaderdbg: surface not rendered")

// Surface is an off-screen render target whose pixel shader can be
// swapped. The variable value map renders through it.
type Surface interface {
	// PixelShader returns the bound pixel shader.
	PixelShader() *shader.Program
	// SetPixelShader binds p. The previous shader stays bound on error.
	SetPixelShader(p *shader.Program) error
	// Render draws the surface's pass with the bound shader.
	Render() error
	// ReadPixels returns the last render as W*H RGBA floats, row 0 at the
	// bottom.
	ReadPixels() ([]float32, error)
}

// SoftwareSurface is a Surface backed by an Analyzer.
type SoftwareSurface struct {
	pass          pipeline.Pass
	width, height int
	analyzer      *Analyzer
	rendered      bool
}

// NewSoftwareSurface returns a surface drawing a copy of pass into a
// width x height float buffer. Options configure the internal Analyzer;
// breakpoints and the pixel of interest are not used.
func NewSoftwareSurface(pass *pipeline.Pass, width, height int, opts ...Option) *SoftwareSurface {
	a := New(opts...)
	a.captureFloat = true
	return &SoftwareSurface{pass: *pass, width: width, height: height, analyzer: a}
}

// PixelShader returns the bound pixel shader.
func (s *SoftwareSurface) PixelShader() *shader.Program { return s.pass.PixelShader }

// SetPixelShader binds p after generating its SPIR-V, the way a GPU
// upload would, so modules no backend accepts are rejected here.
func (s *SoftwareSurface) SetPixelShader(p *shader.Program) error {
	if p == nil {
		return ErrNoPixelShader
	}
	if _, err := p.SPIRV(); err != nil {
		return fmt.Errorf("shaderdbg: pixel shader %s: %w", p.Name(), err)
	}
	s.pass.PixelShader = p
	return nil
}

// Render clears the surface to the pass clear colour and draws the pass.
func (s *SoftwareSurface) Render() error {
	s.analyzer.Init(s.width, s.height, s.pass.ClearColor)
	if err := s.analyzer.RenderPass(&s.pass); err != nil {
		return err
	}
	s.rendered = true
	return nil
}

// ReadPixels returns a copy of the last render.
func (s *SoftwareSurface) ReadPixels() ([]float32, error) {
	if !s.rendered {
		return nil, ErrNotRendered
	}
	return append([]float32(nil), s.analyzer.floats...), nil
}

// Analyzer returns the Analyzer the surface renders with.
func (s *SoftwareSurface) Analyzer() *Analyzer { return s.analyzer }

// Close releases the internal Analyzer.
func (s *SoftwareSurface) Close() { s.analyzer.Close() }
