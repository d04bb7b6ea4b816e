// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shaderdbg

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/naga/ir"
	"github.com/gogpu/shaderdbg/pipeline"
	"github.com/gogpu/shaderdbg/shader"
)

// ErrNoPosition is reported when a vertex shader does not write
// @builtin(position).
var ErrNoPosition = errors.New("shaderdbg: vertex shader wrote no position")

// defaultVertexSource passes positions through as clip coordinates and
// forwards the common attributes.
const defaultVertexSource = `struct VertexOut {
    @builtin(position) pos: vec4<f32>,
    @location(0) uv: vec2<f32>,
    @location(1) normal: vec3<f32>,
    @location(2) color: vec4<f32>,
}

@vertex
fn vs_main(
    @location(0) position: vec3<f32>,
    @location(1) normal: vec3<f32>,
    @location(2) uv: vec2<f32>,
    @location(5) color: vec4<f32>,
) -> VertexOut {
    var out: VertexOut;
    out.pos = vec4<f32>(position, 1.0);
    out.uv = uv;
    out.normal = normal;
    out.color = color;
    return out;
}
`

var defaultVertexShader = sync.OnceValues(func() (*shader.Program, error) {
	return shader.Compile("default.vs.wgsl", defaultVertexSource)
})

// DefaultVertexShader returns the vertex shader used by passes that set
// none.
func DefaultVertexShader() (*shader.Program, error) { return defaultVertexShader() }

// shadeWorker owns the pixel shader machines of one raster band.
type shadeWorker struct {
	fs     *shader.Machine
	dx, dy *shader.Machine
	stats  Stats
}

// renderContext is the per-pass state shared by the feeder and the
// rasterizer.
type renderContext struct {
	pass *pipeline.Pass

	vs      *shader.Machine
	workers []*shadeWorker

	derivatives bool
	depthTest   bool
	breakpoints bool
	parallel    bool

	// hits collects breakpoint bits during the current invocation.
	hits uint8

	errOnce sync.Once
}

func (a *Analyzer) newRenderContext(pass *pipeline.Pass) (*renderContext, error) {
	vsProg := pass.VertexShader
	if vsProg == nil {
		var err error
		if vsProg, err = defaultVertexShader(); err != nil {
			return nil, fmt.Errorf("shaderdbg: default vertex shader: %w", err)
		}
	}
	ve, err := vsProg.EntryFor(ir.StageVertex)
	if err != nil {
		return nil, err
	}
	vs, err := shader.NewMachine(vsProg, ve.Name)
	if err != nil {
		return nil, err
	}
	bindGlobals(vs, pass.Globals)

	fe, err := pass.PixelShader.EntryFor(ir.StageFragment)
	if err != nil {
		return nil, err
	}
	fs, err := shader.NewMachine(pass.PixelShader, fe.Name)
	if err != nil {
		return nil, err
	}
	bindGlobals(fs, pass.Globals)

	rc := &renderContext{
		pass:        pass,
		vs:          vs,
		derivatives: pass.PixelShader.UsesDerivatives(),
		depthTest:   a.opts.depthTest && pass.DepthTest,
		breakpoints: len(a.breakpoints) > 0,
	}
	rc.parallel = a.pool != nil && !rc.breakpoints && !a.opts.hasPixel

	n := 1
	if rc.parallel {
		n = a.pool.Workers()
	}
	for i := range n {
		w := &shadeWorker{fs: fs}
		if i > 0 {
			w.fs = fs.Clone()
		}
		if rc.derivatives {
			w.dx, w.dy = w.fs.Clone(), w.fs.Clone()
		}
		rc.workers = append(rc.workers, w)
	}

	if rc.breakpoints {
		fs.SetLineHook(func(m *shader.Machine) {
			// Neighbor machines are stepped by the main one and never
			// carry the hook, so only the main invocation can hit.
			rc.hits |= a.checkBreakpoints(m)
		})
	}
	return rc, nil
}

// release drops the machines so a finished pass holds no interpreter
// state.
func (rc *renderContext) release() {
	if len(rc.workers) > 0 {
		rc.workers[0].fs.SetLineHook(nil)
	}
	rc.workers = nil
	rc.vs = nil
}

// shaderError logs the first pixel shader failure of the pass.
func (rc *renderContext) shaderError(err error) {
	rc.errOnce.Do(func() {
		Logger().Warn("shaderdbg: pixel shader failed", "pass", rc.pass.Name, "err", err)
	})
}

// feed runs every item of the pass through the vertex and geometry
// stages and hands the resulting triangles to the rasterizer.
func (a *Analyzer) feed(rc *renderContext) {
	for _, item := range rc.pass.Items {
		tris, err := item.Triangles()
		if err != nil {
			Logger().Warn("shaderdbg: skipping item", "item", item.Name, "err", err)
			continue
		}
		if len(tris) == 0 {
			Logger().Info("shaderdbg: empty item", "item", item.Name)
			continue
		}
		for inst := range item.InstanceCount() {
			for _, t := range tris {
				prim := Primitive{
					Pass:        rc.pass,
					Item:        item,
					Topology:    item.Topology,
					ID:          t.ID,
					Instance:    inst,
					Vertices:    t.Vertices,
					VertexIndex: t.VertexIndex,
					Flags:       PrimitiveFetched,
				}
				a.processPrimitive(rc, &prim)
			}
		}
	}
}

func (a *Analyzer) processPrimitive(rc *renderContext, prim *Primitive) {
	var shaded [3]pipeline.ShadedVertex
	for k := range shaded {
		v, err := rc.shadeVertex(&prim.Vertices[k], prim.VertexIndex[k], uint32(prim.Instance))
		if err != nil {
			Logger().Warn("shaderdbg: vertex shader failed", "item", prim.Item.Name,
				"primitive", prim.ID, "vertex", prim.VertexIndex[k], "err", err)
			return
		}
		shaded[k] = v
	}

	gs := rc.pass.GeometryShader
	if gs == nil {
		prim.Shaded = shaded
		a.rasterize(rc, prim)
		return
	}
	strips, err := gs.Process(shaded, prim.ID)
	if err != nil {
		Logger().Warn("shaderdbg: geometry shader failed", "item", prim.Item.Name,
			"primitive", prim.ID, "err", err)
		return
	}
	for _, strip := range strips {
		for _, tri := range pipeline.ExpandStrip(strip) {
			out := *prim
			out.Shaded = tri
			out.Flags |= PrimitiveGeometryShaderUsed
			a.rasterize(rc, &out)
		}
	}
}

// shadeVertex runs the vertex shader for one vertex.
func (rc *renderContext) shadeVertex(v *pipeline.Vertex, index, instance uint32) (pipeline.ShadedVertex, error) {
	inv := shader.Invocation{VertexIndex: index, InstanceIndex: instance}
	for loc := pipeline.LocationPosition; loc <= pipeline.LocationColor; loc++ {
		inv.Locations[loc] = shader.VecF32(v.Floats(loc)...)
	}
	if err := rc.vs.Start(inv); err != nil {
		return pipeline.ShadedVertex{}, err
	}
	if err := rc.vs.Run(); err != nil {
		return pipeline.ShadedVertex{}, err
	}
	out := rc.vs.Outputs()
	if !out.HasPosition || out.Position.Len() < 4 {
		return pipeline.ShadedVertex{}, ErrNoPosition
	}
	sv := pipeline.ShadedVertex{Locations: out.Locations, Mask: out.Mask}
	for i := range sv.Position {
		sv.Position[i] = out.Position.Float(i)
	}
	return sv, nil
}
