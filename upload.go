// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shaderdbg

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/shaderdbg/internal/color"
)

// ErrNotUpdatable is returned by UpdateRGBA for textures that cannot be
// rewritten in place.
var ErrNotUpdatable = errors.New("shaderdbg: texture does not support updates")

// rgbaBytes converts a packed buffer with row 0 at the bottom into RGBA8
// bytes with the top row first, the layout GPU textures expect.
func rgbaBytes(width, height int, pixels []uint32) ([]byte, error) {
	if width <= 0 || height <= 0 || len(pixels) != width*height {
		return nil, fmt.Errorf("shaderdbg: %d pixels for a %dx%d texture", len(pixels), width, height)
	}
	data := make([]byte, 4*len(pixels))
	row := 4 * width
	for y := range height {
		src := pixels[(height-1-y)*width : (height-y)*width]
		color.Bytes(data[y*row:(y+1)*row], src)
	}
	return data, nil
}

// UploadRGBA creates a host GPU texture from a packed buffer such as
// Color or AllocateUndefinedBehaviorMap.
func UploadRGBA(creator gpucontext.TextureCreator, width, height int, pixels []uint32) (any, error) {
	data, err := rgbaBytes(width, height, pixels)
	if err != nil {
		return nil, err
	}
	tex, err := creator.NewTextureFromRGBA(width, height, data)
	if err != nil {
		return nil, fmt.Errorf("shaderdbg: texture upload: %w", err)
	}
	return tex, nil
}

// UpdateRGBA rewrites a texture created by UploadRGBA.
func UpdateRGBA(tex any, width, height int, pixels []uint32) error {
	updater, ok := tex.(gpucontext.TextureUpdater)
	if !ok {
		return ErrNotUpdatable
	}
	data, err := rgbaBytes(width, height, pixels)
	if err != nil {
		return err
	}
	if err := updater.UpdateData(data); err != nil {
		return fmt.Errorf("shaderdbg: texture update: %w", err)
	}
	return nil
}

// PackHeatmap packs a W*H*3 heatmap from AllocateHeatmap into opaque
// RGBA8 pixels for upload.
func PackHeatmap(heat []float32) []uint32 {
	out := make([]uint32, len(heat)/3)
	for i := range out {
		out[i] = color.PackRGBA8(color.ColorF32{R: heat[3*i], G: heat[3*i+1], B: heat[3*i+2], A: 1})
	}
	return out
}
