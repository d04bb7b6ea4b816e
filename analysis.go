// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shaderdbg

import (
	"errors"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/shaderdbg/internal/cache"
	"github.com/gogpu/shaderdbg/internal/color"
	"github.com/gogpu/shaderdbg/internal/parallel"
	"github.com/gogpu/shaderdbg/internal/raster"
	"github.com/gogpu/shaderdbg/pipeline"
	"github.com/gogpu/shaderdbg/shader"
)

// Errors returned by the Analyzer.
var (
	// ErrNotInitialized is returned when a pass is rendered before Init.
	ErrNotInitialized = errors.New("shaderdbg: analyzer not initialized")

	// ErrNoPixelShader is returned for a pass or surface without a pixel shader.
	ErrNoPixelShader = errors.New("shaderdbg: no pixel shader")

	// ErrNoPixelInfo is returned by DebugPixel when no invocation was
	// recorded for the pixel of interest.
	ErrNoPixelInfo = errors.New("shaderdbg: pixel of interest was not shaded")
)

// Analyzer replays render passes on the CPU and records per-pixel results.
//
// All framebuffer arrays are indexed y*width+x with row 0 at the bottom.
// An Analyzer is not safe for concurrent use; with WithWorkers it shades
// on several goroutines internally but every exported method must be
// called from one goroutine at a time.
type Analyzer struct {
	opts options

	width, height int
	clear         uint32

	color        []uint32
	depth        []float32
	instructions []uint32
	ub           []uint32
	hits         []uint8

	// floats holds unpacked RGBA output for SoftwareSurface.
	floats       []float32
	captureFloat bool

	stats Stats
	pixel PixelInfo

	breakpoints []*breakpointRecord
	conditions  *cache.Cache[conditionKey, *shader.Condition]

	pool *parallel.WorkerPool
}

// New returns an Analyzer. Call Init before rendering.
func New(opts ...Option) *Analyzer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	a := &Analyzer{opts: o}
	// An evicted condition takes the evaluators built from it along.
	a.conditions = cache.New(o.conditionCacheSize, func(k conditionKey, _ *shader.Condition) {
		for _, r := range a.breakpoints {
			if r.cached && r.key == k {
				r.release()
			}
		}
	})
	if o.workers > 1 {
		a.pool = parallel.NewWorkerPool(o.workers)
	}
	return a
}

// Close releases the worker pool, every breakpoint record and the
// compiled conditions.
func (a *Analyzer) Close() {
	a.ClearBreakpoints()
	a.conditions.Clear()
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

// Init reallocates and clears every framebuffer array for a width x height
// target and resets the statistics. The hit mask is allocated only while
// breakpoints are set.
func (a *Analyzer) Init(width, height int, clear gputypes.Color) {
	width, height = max(0, width), max(0, height)
	n := width * height
	a.width, a.height = width, height
	a.clear = color.PackRGBA8(color.ColorF32{
		R: float32(clear.R), G: float32(clear.G), B: float32(clear.B), A: float32(clear.A),
	})

	a.color = make([]uint32, n)
	for i := range a.color {
		a.color[i] = a.clear
	}
	a.depth = make([]float32, n)
	for i := range a.depth {
		a.depth[i] = float32(math.Inf(1))
	}
	a.instructions = make([]uint32, n)
	a.ub = make([]uint32, n)
	a.hits = nil
	if len(a.breakpoints) > 0 {
		a.hits = make([]uint8, n)
	}
	a.floats = nil
	if a.captureFloat {
		a.floats = make([]float32, 4*n)
		c := [4]float32{float32(clear.R), float32(clear.G), float32(clear.B), float32(clear.A)}
		for i := 0; i < n; i++ {
			copy(a.floats[4*i:4*i+4], c[:])
		}
	}

	a.stats = Stats{}
	a.pixel = PixelInfo{}
	if a.opts.hasPixel {
		a.pixel.X, a.pixel.Y = a.opts.pixelX, a.opts.pixelY
	}
	Logger().Debug("shaderdbg: init", "width", width, "height", height)
}

// Size returns the framebuffer dimensions set by Init.
func (a *Analyzer) Size() (width, height int) { return a.width, a.height }

// Color returns the packed RGBA8 colour buffer, red in the low byte.
func (a *Analyzer) Color() []uint32 { return a.color }

// Depth returns the depth buffer. Untouched pixels hold +Inf.
func (a *Analyzer) Depth() []float32 { return a.depth }

// InstructionCounts returns the accumulated instruction count per pixel.
func (a *Analyzer) InstructionCounts() []uint32 { return a.instructions }

// UndefinedBehaviorFlags returns the shader.UBFlags observed per pixel.
func (a *Analyzer) UndefinedBehaviorFlags() []uint32 { return a.ub }

// BreakpointHits returns the per-pixel breakpoint hit mask, bit i for
// breakpoint i. It is nil while no breakpoints are set.
func (a *Analyzer) BreakpointHits() []uint8 { return a.hits }

// Stats returns the counters accumulated since Init.
func (a *Analyzer) Stats() Stats { return a.stats }

// PrimitiveFlags describe how a primitive was produced.
type PrimitiveFlags uint8

const (
	// PrimitiveFetched is set once the vertex data was read from the item.
	PrimitiveFetched PrimitiveFlags = 1 << iota
	// PrimitiveGeometryShaderUsed is set for triangles emitted by a
	// geometry shader.
	PrimitiveGeometryShaderUsed
)

// Primitive is the working set of one triangle on its way through the
// feeder and the rasterizer.
type Primitive struct {
	Pass     *pipeline.Pass
	Item     *pipeline.Item
	Topology gputypes.PrimitiveTopology

	// ID is the primitive index within the item and Instance the instance
	// being drawn.
	ID       int
	Instance int

	Vertices    [3]pipeline.Vertex
	VertexIndex [3]uint32
	// Shaded holds the rasterized triangle after the vertex and geometry
	// stages.
	Shaded [3]pipeline.ShadedVertex

	Flags PrimitiveFlags
}

// PixelInfo is the capture of the last invocation at the pixel of interest.
type PixelInfo struct {
	X, Y     int
	Captured bool

	Primitive Primitive
	Program   *shader.Program
	Globals   map[string]shader.Value

	// Input is the pixel shader invocation. NeighborX and NeighborY are
	// the horizontal and vertical neighbors used for derivatives when
	// HasDerivatives is set.
	Input                shader.Invocation
	NeighborX, NeighborY shader.Invocation
	HasDerivatives       bool

	Color             [4]float32
	Depth             float32
	Discarded         bool
	DepthFailed       bool
	Instructions      int
	UndefinedBehavior shader.UBFlags
	Err               error
}

// PixelInfo returns the pixel of interest capture. Captured is false when
// no pixel of interest is configured or nothing covered it.
func (a *Analyzer) PixelInfo() PixelInfo { return a.pixel }

// DebugPixel returns a pixel shader machine started with the captured
// inputs of the pixel of interest, ready to Step through.
func (a *Analyzer) DebugPixel() (*shader.Machine, error) {
	info := a.pixel
	if !info.Captured {
		return nil, ErrNoPixelInfo
	}
	start := func(inv shader.Invocation) (*shader.Machine, error) {
		e, err := info.Program.EntryFor(ir.StageFragment)
		if err != nil {
			return nil, err
		}
		m, err := shader.NewMachine(info.Program, e.Name)
		if err != nil {
			return nil, err
		}
		bindGlobals(m, info.Globals)
		return m, m.Start(inv)
	}
	m, err := start(info.Input)
	if err != nil {
		return nil, err
	}
	if info.HasDerivatives {
		dx, err := start(info.NeighborX)
		if err != nil {
			return nil, err
		}
		dy, err := start(info.NeighborY)
		if err != nil {
			return nil, err
		}
		m.SetDerivativeStates(dx, dy)
	}
	return m, nil
}

// RenderPass replays every item of the pass into the framebuffer arrays.
// Problems with individual items, primitives and invocations are logged
// and counted, not returned.
func (a *Analyzer) RenderPass(pass *pipeline.Pass) error {
	if a.color == nil {
		return ErrNotInitialized
	}
	if pass == nil || pass.PixelShader == nil {
		return ErrNoPixelShader
	}
	rc, err := a.newRenderContext(pass)
	if err != nil {
		return err
	}
	defer rc.release()

	a.feed(rc)
	Logger().Info("shaderdbg: pass rendered", "pass", pass.Name,
		"triangles", a.stats.TrianglesProcessed, "shaded", a.stats.PixelsShaded)
	return nil
}

// bindGlobals binds every global the machine's program declares.
func bindGlobals(m *shader.Machine, globals map[string]shader.Value) {
	for name, v := range globals {
		err := m.SetGlobal(name, v)
		switch {
		case err == nil, errors.Is(err, shader.ErrUnknownIdentifier):
		default:
			Logger().Warn("shaderdbg: binding global", "name", name, "program", m.Program().Name(), "err", err)
		}
	}
}

func (a *Analyzer) framebuffer() raster.Rect {
	return raster.Framebuffer(a.width, a.height)
}

// index returns the array index of pixel (x, y).
func (a *Analyzer) index(x, y int) int { return y*a.width + x }
