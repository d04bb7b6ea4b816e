// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/shaderdbg"
	"github.com/gogpu/shaderdbg/pipeline"
)

// ErrNoAdapter is returned by Open when no Vulkan adapter is present.
var ErrNoAdapter = errors.New("gpu: no adapter")

// Open creates a standalone Vulkan device, preferring a discrete or
// integrated GPU, and returns a surface owning it.
func Open(pass *pipeline.Pass, width, height int) (*Surface, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not registered", ErrNoAdapter)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", ErrNoAdapter, err)
	}
	s, err := openOn(instance, pass, width, height)
	if err != nil {
		instance.Destroy()
		return nil, err
	}
	return s, nil
}

// openOn opens the preferred adapter of instance. The returned surface
// destroys the instance on Close.
func openOn(instance hal.Instance, pass *pipeline.Pass, width, height int) (*Surface, error) {
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	dev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, fmt.Errorf("gpu: open device: %w", err)
	}
	shaderdbg.Logger().Info("gpu: device opened", "adapter", selected.Info.Name)

	s := New(dev.Device, dev.Queue, pass, width, height)
	s.closeDevice = func() {
		dev.Device.Destroy()
		instance.Destroy()
	}
	return s, nil
}

// The vertex buffer holds every attribute of pipeline.Vertex, interleaved;
// the pipeline declares only those the vertex shader reads.
const vertexStride = 18 * 4

var attributeOffsets = [...]int{
	pipeline.LocationPosition: 0,
	pipeline.LocationNormal:   12,
	pipeline.LocationTexcoord: 24,
	pipeline.LocationTangent:  32,
	pipeline.LocationBinormal: 44,
	pipeline.LocationColor:    56,
}

var attributeFormats = [...]gputypes.VertexFormat{
	pipeline.LocationPosition: gputypes.VertexFormatFloat32x3,
	pipeline.LocationNormal:   gputypes.VertexFormatFloat32x3,
	pipeline.LocationTexcoord: gputypes.VertexFormatFloat32x2,
	pipeline.LocationTangent:  gputypes.VertexFormatFloat32x3,
	pipeline.LocationBinormal: gputypes.VertexFormatFloat32x3,
	pipeline.LocationColor:    gputypes.VertexFormatFloat32x4,
}

func appendVertex(b []byte, v *pipeline.Vertex) []byte {
	for loc := pipeline.LocationPosition; loc <= pipeline.LocationColor; loc++ {
		for _, f := range v.Floats(loc) {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
		}
	}
	return b
}
