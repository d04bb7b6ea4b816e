// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

// Package gpu renders debugger surfaces on a wgpu HAL device, so a variable
// value map can be produced by the same hardware that runs the shader.
package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shaderdbg"
	"github.com/gogpu/shaderdbg/pipeline"
	"github.com/gogpu/shaderdbg/shader"
)

// ErrUnsupported is returned for passes the GPU surface cannot reproduce:
// geometry shaders, texture and sampler bindings, and vertex inputs
// outside the fixed vertex record.
var ErrUnsupported = errors.New("gpu: unsupported pass")

const (
	colorFormat = gputypes.TextureFormatRGBA32Float
	depthFormat = gputypes.TextureFormatDepth32Float

	bytesPerPixel = 16
	// copyPitchAlignment is the row alignment of texture to buffer copies.
	copyPitchAlignment = 256
	waitTimeout        = 5 * time.Second
)

// Surface is a shaderdbg.Surface drawn by a HAL device into an RGBA32Float
// texture and read back after every Render.
type Surface struct {
	device hal.Device
	queue  hal.Queue
	// closeDevice releases a device opened by Open.
	closeDevice func()

	pass          pipeline.Pass
	width, height int

	vs     hal.ShaderModule
	vsProg *shader.Program
	fs     hal.ShaderModule

	pixels []float32
}

var _ shaderdbg.Surface = (*Surface)(nil)

// New returns a surface drawing a copy of pass on device. The caller keeps
// ownership of device and queue.
func New(device hal.Device, queue hal.Queue, pass *pipeline.Pass, width, height int) *Surface {
	return &Surface{
		device: device,
		queue:  queue,
		pass:   *pass,
		width:  max(1, width),
		height: max(1, height),
	}
}

// PixelShader returns the bound pixel shader.
func (s *Surface) PixelShader() *shader.Program { return s.pass.PixelShader }

// SetPixelShader uploads p as a SPIR-V module and binds it.
func (s *Surface) SetPixelShader(p *shader.Program) error {
	if p == nil {
		return shaderdbg.ErrNoPixelShader
	}
	mod, err := s.shaderModule(p)
	if err != nil {
		return fmt.Errorf("gpu: pixel shader %s: %w", p.Name(), err)
	}
	if s.fs != nil {
		s.device.DestroyShaderModule(s.fs)
	}
	s.fs = mod
	s.pass.PixelShader = p
	return nil
}

// Render draws the pass and reads the colour target back.
func (s *Surface) Render() error {
	if s.pass.PixelShader == nil {
		return shaderdbg.ErrNoPixelShader
	}
	if s.pass.GeometryShader != nil {
		return fmt.Errorf("%w: geometry shader in pass %q", ErrUnsupported, s.pass.Name)
	}
	if err := uniformsOnly(s.pass.PixelShader); err != nil {
		return err
	}
	if s.fs == nil {
		if err := s.SetPixelShader(s.pass.PixelShader); err != nil {
			return err
		}
	}
	if err := s.bindVertexShader(); err != nil {
		return err
	}

	f := &frame{s: s}
	defer f.destroy()
	if err := f.build(); err != nil {
		return err
	}
	pixels, err := f.draw()
	if err != nil {
		return err
	}
	s.pixels = pixels
	shaderdbg.Logger().Debug("gpu: rendered", "pass", s.pass.Name, "width", s.width, "height", s.height)
	return nil
}

// ReadPixels returns a copy of the last render, row 0 at the bottom.
func (s *Surface) ReadPixels() ([]float32, error) {
	if s.pixels == nil {
		return nil, shaderdbg.ErrNotRendered
	}
	return slices.Clone(s.pixels), nil
}

// Close destroys the shader modules and, for surfaces made by Open, the
// device.
func (s *Surface) Close() {
	if s.fs != nil {
		s.device.DestroyShaderModule(s.fs)
		s.fs = nil
	}
	if s.vs != nil {
		s.device.DestroyShaderModule(s.vs)
		s.vs = nil
	}
	if s.closeDevice != nil {
		s.closeDevice()
		s.closeDevice = nil
	}
}

// uniformsOnly rejects programs binding anything but uniform buffers.
func uniformsOnly(p *shader.Program) error {
	rs, err := p.Resources()
	if err != nil {
		return err
	}
	for _, r := range rs {
		if r.AddressSpace != "uniform" {
			return fmt.Errorf("%w: %s binding %s", ErrUnsupported, r.Type.TypeString(), r.Name)
		}
	}
	return nil
}

func (s *Surface) bindVertexShader() error {
	p := s.pass.VertexShader
	if p == nil {
		var err error
		if p, err = shaderdbg.DefaultVertexShader(); err != nil {
			return err
		}
	}
	if p == s.vsProg {
		return nil
	}
	if err := uniformsOnly(p); err != nil {
		return err
	}
	mod, err := s.shaderModule(p)
	if err != nil {
		return fmt.Errorf("gpu: vertex shader %s: %w", p.Name(), err)
	}
	if s.vs != nil {
		s.device.DestroyShaderModule(s.vs)
	}
	s.vs, s.vsProg = mod, p
	return nil
}

func (s *Surface) shaderModule(p *shader.Program) (hal.ShaderModule, error) {
	code, err := p.SPIRV()
	if err != nil {
		return nil, err
	}
	return s.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  p.Name(),
		Source: hal.ShaderSource{SPIRV: spirvWords(code)},
	})
}

// spirvWords converts SPIR-V bytes to little-endian 32-bit words.
func spirvWords(code []byte) []uint32 {
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[4*i:])
	}
	return words
}

// draw is one item's range in the vertex buffer.
type draw struct {
	first, count, instances uint32
}

// frame holds the per-Render resources, destroyed together.
type frame struct {
	s *Surface

	vertices []byte
	draws    []draw
	attrs    []gputypes.VertexAttribute

	buffers     []hal.Buffer
	groupLayout []hal.BindGroupLayout
	groups      []hal.BindGroup
	layout      hal.PipelineLayout
	pipeline    hal.RenderPipeline

	color, depth         hal.Texture
	colorView, depthView hal.TextureView
	vbuf                 hal.Buffer
}

func (f *frame) build() error {
	if err := f.assemble(); err != nil {
		return err
	}
	if err := f.bindGroups(); err != nil {
		return err
	}
	if err := f.targets(); err != nil {
		return err
	}
	return f.createPipeline()
}

// assemble decodes every item into the interleaved vertex record. Items
// that fail to decode are skipped, as the CPU renderer does.
func (f *frame) assemble() error {
	s := f.s
	ve, err := s.vsProg.EntryFor(ir.StageVertex)
	if err != nil {
		return err
	}
	inputs, err := s.vsProg.Inputs(ve)
	if err != nil {
		return err
	}
	for _, in := range inputs {
		if in.Location > pipeline.LocationColor || in.Type.Kind != shader.KindF32 {
			return fmt.Errorf("%w: vertex input @location(%d) %s", ErrUnsupported, in.Location, in.Type.TypeString())
		}
		f.attrs = append(f.attrs, gputypes.VertexAttribute{
			Format:         attributeFormats[in.Location],
			Offset:         uint64(attributeOffsets[in.Location]),
			ShaderLocation: uint32(in.Location),
		})
	}

	var n uint32
	for _, item := range s.pass.Items {
		tris, err := item.Triangles()
		if err != nil {
			shaderdbg.Logger().Warn("gpu: skipping item", "item", item.Name, "err", err)
			continue
		}
		if len(tris) == 0 {
			continue
		}
		for i := range tris {
			for k := range tris[i].Vertices {
				f.vertices = appendVertex(f.vertices, &tris[i].Vertices[k])
			}
		}
		count := uint32(3 * len(tris))
		f.draws = append(f.draws, draw{first: n, count: count, instances: uint32(item.InstanceCount())})
		n += count
	}
	if len(f.vertices) == 0 {
		return nil
	}
	f.vbuf, err = s.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "shaderdbg_vertices",
		Size:  uint64(len(f.vertices)),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: create vertex buffer: %w", err)
	}
	return s.queue.WriteBuffer(f.vbuf, 0, f.vertices)
}

// binding is one uniform shared by the vertex and pixel stages.
type binding struct {
	res        shader.Resource
	visibility gputypes.ShaderStages
}

// bindGroups uploads every uniform of both stages. Globals come from the
// pass; unset ones are zero.
func (f *frame) bindGroups() error {
	s := f.s
	bound := map[[2]int]*binding{}
	var order [][2]int
	stages := []struct {
		p     *shader.Program
		stage gputypes.ShaderStages
	}{
		{s.vsProg, gputypes.ShaderStageVertex},
		{s.pass.PixelShader, gputypes.ShaderStageFragment},
	}
	for _, st := range stages {
		rs, err := st.p.Resources()
		if err != nil {
			return err
		}
		for _, r := range rs {
			key := [2]int{r.Group, r.Binding}
			if b, ok := bound[key]; ok {
				b.visibility |= st.stage
				continue
			}
			bound[key] = &binding{res: r, visibility: st.stage}
			order = append(order, key)
		}
	}
	if len(order) == 0 {
		return nil
	}

	groups := 0
	for _, key := range order {
		groups = max(groups, key[0]+1)
	}
	layoutEntries := make([][]gputypes.BindGroupLayoutEntry, groups)
	entries := make([][]gputypes.BindGroupEntry, groups)
	for _, key := range order {
		b := bound[key]
		data, err := f.uniform(b.res)
		if err != nil {
			return err
		}
		buf, err := s.device.CreateBuffer(&hal.BufferDescriptor{
			Label: b.res.Name,
			Size:  uint64(len(data)),
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("gpu: create uniform %s: %w", b.res.Name, err)
		}
		f.buffers = append(f.buffers, buf)
		if err := s.queue.WriteBuffer(buf, 0, data); err != nil {
			return fmt.Errorf("gpu: write uniform %s: %w", b.res.Name, err)
		}
		g := key[0]
		layoutEntries[g] = append(layoutEntries[g], gputypes.BindGroupLayoutEntry{
			Binding:    uint32(key[1]),
			Visibility: b.visibility,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		})
		entries[g] = append(entries[g], gputypes.BindGroupEntry{
			Binding:  uint32(key[1]),
			Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Size: uint64(len(data))},
		})
	}

	for g := range groups {
		bgl, err := s.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("shaderdbg_group%d_layout", g),
			Entries: layoutEntries[g],
		})
		if err != nil {
			return fmt.Errorf("gpu: create bind group layout %d: %w", g, err)
		}
		f.groupLayout = append(f.groupLayout, bgl)
		bg, err := s.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   fmt.Sprintf("shaderdbg_group%d", g),
			Layout:  bgl,
			Entries: entries[g],
		})
		if err != nil {
			return fmt.Errorf("gpu: create bind group %d: %w", g, err)
		}
		f.groups = append(f.groups, bg)
	}
	return nil
}

// uniform encodes the pass global bound to r.
func (f *frame) uniform(r shader.Resource) ([]byte, error) {
	want, err := shader.UniformSize(r.Type)
	if err != nil {
		return nil, fmt.Errorf("gpu: uniform %s: %w", r.Name, err)
	}
	v, ok := f.s.pass.Globals[r.Name]
	if !ok {
		return make([]byte, want), nil
	}
	data, err := shader.EncodeUniform(v)
	if err != nil {
		return nil, fmt.Errorf("gpu: uniform %s: %w", r.Name, err)
	}
	if len(data) != want {
		return nil, fmt.Errorf("gpu: uniform %s is %s, want %s", r.Name, v.TypeString(), r.Type.TypeString())
	}
	return data, nil
}

func (f *frame) targets() error {
	s := f.s
	size := hal.Extent3D{Width: uint32(s.width), Height: uint32(s.height), DepthOrArrayLayers: 1}
	var err error
	f.color, err = s.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "shaderdbg_color",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        colorFormat,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("gpu: create colour target: %w", err)
	}
	f.colorView, err = s.device.CreateTextureView(f.color, &hal.TextureViewDescriptor{
		Label:         "shaderdbg_color_view",
		Format:        colorFormat,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		return fmt.Errorf("gpu: create colour view: %w", err)
	}
	if !s.pass.DepthTest {
		return nil
	}
	f.depth, err = s.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "shaderdbg_depth",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        depthFormat,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("gpu: create depth target: %w", err)
	}
	f.depthView, err = s.device.CreateTextureView(f.depth, &hal.TextureViewDescriptor{
		Label:         "shaderdbg_depth_view",
		Format:        depthFormat,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		return fmt.Errorf("gpu: create depth view: %w", err)
	}
	return nil
}

func (f *frame) createPipeline() error {
	s := f.s
	ve, err := s.vsProg.EntryFor(ir.StageVertex)
	if err != nil {
		return err
	}
	fe, err := s.pass.PixelShader.EntryFor(ir.StageFragment)
	if err != nil {
		return err
	}
	f.layout, err = s.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "shaderdbg_pipeline_layout",
		BindGroupLayouts: f.groupLayout,
	})
	if err != nil {
		return fmt.Errorf("gpu: create pipeline layout: %w", err)
	}

	desc := &hal.RenderPipelineDescriptor{
		Label:  "shaderdbg_pipeline",
		Layout: f.layout,
		Vertex: hal.VertexState{
			Module:     s.vs,
			EntryPoint: ve.Name,
			Buffers: []gputypes.VertexBufferLayout{{
				ArrayStride: vertexStride,
				StepMode:    gputypes.VertexStepModeVertex,
				Attributes:  f.attrs,
			}},
		},
		// Matches the CPU rasterizer: counter-clockwise triangles face
		// the viewer and back faces are dropped.
		Primitive: gputypes.PrimitiveState{
			Topology:  gputypes.PrimitiveTopologyTriangleList,
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  gputypes.CullModeBack,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		Fragment: &hal.FragmentState{
			Module:     s.fs,
			EntryPoint: fe.Name,
			Targets: []gputypes.ColorTargetState{{
				Format:    colorFormat,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
	}
	if s.pass.DepthTest {
		desc.DepthStencil = &hal.DepthStencilState{
			Format:            depthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
		}
	}
	f.pipeline, err = s.device.CreateRenderPipeline(desc)
	if err != nil {
		return fmt.Errorf("gpu: create render pipeline: %w", err)
	}
	return nil
}

// draw records the pass and the readback copy, submits them and waits.
func (f *frame) draw() ([]float32, error) {
	s := f.s
	w, h := uint32(s.width), uint32(s.height)
	bytesPerRow := w * bytesPerPixel
	alignedBytesPerRow := (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	stagingSize := uint64(alignedBytesPerRow) * uint64(h)

	staging, err := s.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "shaderdbg_staging",
		Size:  stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create staging buffer: %w", err)
	}
	defer s.device.DestroyBuffer(staging)

	encoder, err := s.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "shaderdbg_encoder"})
	if err != nil {
		return nil, fmt.Errorf("gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("shaderdbg_frame"); err != nil {
		return nil, fmt.Errorf("gpu: begin encoding: %w", err)
	}

	rpDesc := &hal.RenderPassDescriptor{
		Label: "shaderdbg_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       f.colorView,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: s.pass.ClearColor,
		}},
	}
	if f.depthView != nil {
		rpDesc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:            f.depthView,
			DepthLoadOp:     gputypes.LoadOpClear,
			DepthStoreOp:    gputypes.StoreOpDiscard,
			DepthClearValue: 1.0,
		}
	}
	rp := encoder.BeginRenderPass(rpDesc)
	if len(f.draws) > 0 {
		rp.SetPipeline(f.pipeline)
		for i, g := range f.groups {
			rp.SetBindGroup(uint32(i), g, nil)
		}
		rp.SetVertexBuffer(0, f.vbuf, 0)
		for _, d := range f.draws {
			rp.Draw(d.count, d.instances, d.first, 0)
		}
	}
	rp.End()

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: f.color,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(f.color, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: alignedBytesPerRow, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: f.color, MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("gpu: end encoding: %w", err)
	}
	defer s.device.FreeCommandBuffer(cmdBuf)

	fence, err := s.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("gpu: create fence: %w", err)
	}
	defer s.device.DestroyFence(fence)

	if err := s.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("gpu: submit: %w", err)
	}
	ok, err := s.device.Wait(fence, 1, waitTimeout)
	if err != nil {
		return nil, fmt.Errorf("gpu: wait for device: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("gpu: wait for device: timed out after %v", waitTimeout)
	}

	readback := make([]byte, stagingSize)
	if err := s.queue.ReadBuffer(staging, 0, readback); err != nil {
		return nil, fmt.Errorf("gpu: readback: %w", err)
	}
	return unpack(readback, s.width, s.height, int(alignedBytesPerRow)), nil
}

// unpack strips the row padding of an RGBA32Float readback and flips it so
// that row 0 is the bottom of the image.
func unpack(data []byte, width, height, pitch int) []float32 {
	out := make([]float32, 4*width*height)
	for y := range height {
		src := data[(height-1-y)*pitch:]
		dst := out[4*width*y : 4*width*(y+1)]
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
		}
	}
	return out
}

func (f *frame) destroy() {
	d := f.s.device
	if f.pipeline != nil {
		d.DestroyRenderPipeline(f.pipeline)
	}
	if f.layout != nil {
		d.DestroyPipelineLayout(f.layout)
	}
	for _, g := range f.groups {
		d.DestroyBindGroup(g)
	}
	for _, l := range f.groupLayout {
		d.DestroyBindGroupLayout(l)
	}
	for _, b := range f.buffers {
		d.DestroyBuffer(b)
	}
	if f.vbuf != nil {
		d.DestroyBuffer(f.vbuf)
	}
	if f.depthView != nil {
		d.DestroyTextureView(f.depthView)
	}
	if f.depth != nil {
		d.DestroyTexture(f.depth)
	}
	if f.colorView != nil {
		d.DestroyTextureView(f.colorView)
	}
	if f.color != nil {
		d.DestroyTexture(f.color)
	}
}
