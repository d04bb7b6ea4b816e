// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shaderdbg

import (
	"errors"
	"fmt"

	"github.com/gogpu/shaderdbg/shader"
)

// AllocateVariableValueMap renders the surface with a pixel shader that
// outputs variable as it is at line, and returns the resulting W*H RGBA
// float image. Scalars and short vectors are widened to vec4 with alpha 1.
//
// The surface's original shader is rebound and re-rendered before
// returning, whether or not the exposure succeeded. The exposed program is
// a new value; the original is never modified.
func AllocateVariableValueMap(surface Surface, variable string, line int) ([]float32, error) {
	orig := surface.PixelShader()
	if orig == nil {
		return nil, ErrNoPixelShader
	}
	pt, err := shader.FindExtractionPoint(orig, variable, line)
	if err != nil {
		return nil, err
	}
	exposed, err := shader.Expose(orig, pt)
	if err != nil {
		return nil, err
	}

	pixels, err := renderWith(surface, exposed)
	if rerr := restore(surface, orig); rerr != nil {
		err = errors.Join(err, rerr)
	}
	if err != nil {
		Logger().Warn("shaderdbg: variable value map failed", "variable", variable, "line", line, "err", err)
		return nil, err
	}
	Logger().Debug("shaderdbg: variable value map", "variable", variable, "line", line,
		"components", pt.Components)
	return pixels, nil
}

func renderWith(surface Surface, p *shader.Program) ([]float32, error) {
	if err := surface.SetPixelShader(p); err != nil {
		return nil, err
	}
	if err := surface.Render(); err != nil {
		return nil, err
	}
	return surface.ReadPixels()
}

func restore(surface Surface, orig *shader.Program) error {
	if surface.PixelShader() != orig {
		if err := surface.SetPixelShader(orig); err != nil {
			return fmt.Errorf("shaderdbg: restoring pixel shader: %w", err)
		}
	}
	if err := surface.Render(); err != nil {
		return fmt.Errorf("shaderdbg: re-rendering original shader: %w", err)
	}
	return nil
}
