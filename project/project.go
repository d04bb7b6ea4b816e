// Package project loads debugger sessions from TOML or YAML files: the
// render target, the passes with their shaders, items and globals, and the
// breakpoints to set.
//
// Relative shader and texture paths resolve against the project file's
// directory.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/math/f32"

	"github.com/gogpu/shaderdbg"
	"github.com/gogpu/shaderdbg/internal/image"
	"github.com/gogpu/shaderdbg/pipeline"
	"github.com/gogpu/shaderdbg/shader"
)

// Project errors.
var (
	// ErrUnknownFormat is returned for files that are neither TOML nor YAML.
	ErrUnknownFormat = errors.New("project: unknown file format")

	// ErrInvalid is returned for well-formed files describing an unusable
	// session.
	ErrInvalid = errors.New("project: invalid project")
)

// File is the on-disk schema.
type File struct {
	Width     int   `toml:"width" yaml:"width"`
	Height    int   `toml:"height" yaml:"height"`
	Workers   int   `toml:"workers" yaml:"workers"`
	BlockSize int   `toml:"block_size" yaml:"block_size"`
	Pixel     []int `toml:"pixel" yaml:"pixel"`
	Region    []int `toml:"region" yaml:"region"`

	Breakpoints []BreakpointSpec `toml:"breakpoints" yaml:"breakpoints"`
	Passes      []PassSpec       `toml:"passes" yaml:"passes"`
}

// BreakpointSpec is one breakpoint.
type BreakpointSpec struct {
	Line      int       `toml:"line" yaml:"line"`
	Function  string    `toml:"function" yaml:"function"`
	Condition string    `toml:"condition" yaml:"condition"`
	Color     []float64 `toml:"color" yaml:"color"`
}

// PassSpec is one render pass.
type PassSpec struct {
	Name         string       `toml:"name" yaml:"name"`
	VertexShader string       `toml:"vertex_shader" yaml:"vertex_shader"`
	PixelShader  string       `toml:"pixel_shader" yaml:"pixel_shader"`
	Clear        []float64    `toml:"clear" yaml:"clear"`
	DepthTest    bool         `toml:"depth_test" yaml:"depth_test"`
	Items        []ItemSpec   `toml:"items" yaml:"items"`
	Globals      []GlobalSpec `toml:"globals" yaml:"globals"`
}

// ItemSpec is one drawable. Type is geometry, model or buffer.
type ItemSpec struct {
	Name string `toml:"name" yaml:"name"`
	Type string `toml:"type" yaml:"type"`

	// Geometry items.
	Geometry string    `toml:"geometry" yaml:"geometry"`
	Size     []float32 `toml:"size" yaml:"size"`
	Position []float32 `toml:"position" yaml:"position"`

	// Model and buffer items. Buffer items encode Vertices with Format.
	Topology string      `toml:"topology" yaml:"topology"`
	Format   string      `toml:"format" yaml:"format"`
	Vertices [][]float32 `toml:"vertices" yaml:"vertices"`
	Indices  []uint32    `toml:"indices" yaml:"indices"`

	Instances int `toml:"instances" yaml:"instances"`
}

// GlobalSpec binds a shader global. Type is f32, i32, u32, bool, vecN,
// matCxR, struct, texture or sampler.
type GlobalSpec struct {
	Name  string    `toml:"name" yaml:"name"`
	Type  string    `toml:"type" yaml:"type"`
	Value []float64 `toml:"value" yaml:"value"`

	// Texture is a PNG path; without it a texture is a solid Value colour.
	Texture string       `toml:"texture" yaml:"texture"`
	Fields  []GlobalSpec `toml:"fields" yaml:"fields"`
}

// Project is a loaded session ready to render.
type Project struct {
	Path          string
	Width, Height int

	Passes      []*pipeline.Pass
	Breakpoints []shaderdbg.Breakpoint

	// Sources lists every shader file, for watching.
	Sources []string

	file File
}

// Load reads and resolves a project file.
func Load(path string) (*Project, error) {
	var f File
	if err := Open(&f, path); err != nil {
		return nil, err
	}
	return Resolve(&f, filepath.Dir(path), path)
}

// Resolve compiles the shaders and builds the passes of f. dir is the base
// for relative paths.
func Resolve(f *File, dir, path string) (*Project, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrInvalid, f.Width, f.Height)
	}
	if len(f.Passes) == 0 {
		return nil, fmt.Errorf("%w: no passes", ErrInvalid)
	}
	p := &Project{Path: path, Width: f.Width, Height: f.Height, file: *f}
	r := resolver{dir: dir, programs: make(map[string]*shader.Program)}

	for i := range f.Passes {
		pass, err := r.pass(&f.Passes[i])
		if err != nil {
			return nil, err
		}
		p.Passes = append(p.Passes, pass)
	}
	p.Sources = r.sources

	for _, bs := range f.Breakpoints {
		if bs.Line <= 0 {
			return nil, fmt.Errorf("%w: breakpoint line %d", ErrInvalid, bs.Line)
		}
		c, err := colorOf(bs.Color, gputypes.Color{R: 1, A: 1})
		if err != nil {
			return nil, fmt.Errorf("breakpoint at line %d: %w", bs.Line, err)
		}
		p.Breakpoints = append(p.Breakpoints, shaderdbg.Breakpoint{
			Line: bs.Line, Function: bs.Function, Condition: bs.Condition, Color: c,
		})
	}
	return p, nil
}

// Options returns the Analyzer options the project asks for.
func (p *Project) Options() []shaderdbg.Option {
	f := &p.file
	var opts []shaderdbg.Option
	if f.Workers > 0 {
		opts = append(opts, shaderdbg.WithWorkers(f.Workers))
	}
	if f.BlockSize > 0 {
		opts = append(opts, shaderdbg.WithBlockSize(f.BlockSize))
	}
	if len(f.Pixel) == 2 {
		opts = append(opts, shaderdbg.WithPixelOfInterest(f.Pixel[0], f.Pixel[1]))
	}
	if len(f.Region) == 4 {
		opts = append(opts, shaderdbg.WithRegion(f.Region[0], f.Region[1], f.Region[2], f.Region[3]))
	}
	return opts
}

type resolver struct {
	dir      string
	programs map[string]*shader.Program
	sources  []string
}

func (r *resolver) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(r.dir, p)
}

// program compiles a shader file once per project.
func (r *resolver) program(name string) (*shader.Program, error) {
	path := r.path(name)
	if p, ok := r.programs[path]; ok {
		return p, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	p, err := shader.Compile(filepath.Base(path), string(src))
	if err != nil {
		return nil, err
	}
	r.programs[path] = p
	r.sources = append(r.sources, path)
	return p, nil
}

func (r *resolver) pass(ps *PassSpec) (*pipeline.Pass, error) {
	if ps.PixelShader == "" {
		return nil, fmt.Errorf("%w: pass %q has no pixel shader", ErrInvalid, ps.Name)
	}
	pass := &pipeline.Pass{Name: ps.Name, DepthTest: ps.DepthTest}
	var err error
	if pass.PixelShader, err = r.program(ps.PixelShader); err != nil {
		return nil, err
	}
	if ps.VertexShader != "" {
		if pass.VertexShader, err = r.program(ps.VertexShader); err != nil {
			return nil, err
		}
	}
	if pass.ClearColor, err = colorOf(ps.Clear, gputypes.Color{A: 1}); err != nil {
		return nil, fmt.Errorf("pass %q: %w", ps.Name, err)
	}
	for i := range ps.Items {
		it, err := item(&ps.Items[i])
		if err != nil {
			return nil, fmt.Errorf("pass %q: %w", ps.Name, err)
		}
		pass.Items = append(pass.Items, it)
	}
	if len(ps.Globals) > 0 {
		pass.Globals = make(map[string]shader.Value, len(ps.Globals))
		for i := range ps.Globals {
			g := &ps.Globals[i]
			v, err := r.global(g)
			if err != nil {
				return nil, fmt.Errorf("pass %q: global %q: %w", ps.Name, g.Name, err)
			}
			pass.Globals[g.Name] = v
		}
	}
	return pass, nil
}

var geometryKinds = map[string]pipeline.GeometryKind{
	"rectangle": pipeline.GeometryRectangle,
	"triangle":  pipeline.GeometryTriangle,
	"plane":     pipeline.GeometryPlane,
	"cube":      pipeline.GeometryCube,
}

var topologies = map[string]gputypes.PrimitiveTopology{
	"":               gputypes.PrimitiveTopologyTriangleList,
	"triangle-list":  gputypes.PrimitiveTopologyTriangleList,
	"triangle-strip": gputypes.PrimitiveTopologyTriangleStrip,
	"point-list":     gputypes.PrimitiveTopologyPointList,
	"line-list":      gputypes.PrimitiveTopologyLineList,
	"line-strip":     gputypes.PrimitiveTopologyLineStrip,
}

func item(is *ItemSpec) (*pipeline.Item, error) {
	it := &pipeline.Item{Name: is.Name, Instances: is.Instances}
	topo, ok := topologies[strings.ToLower(is.Topology)]
	if !ok {
		return nil, fmt.Errorf("%w: item %q: topology %q", ErrInvalid, is.Name, is.Topology)
	}
	it.Topology = topo

	switch strings.ToLower(is.Type) {
	case "geometry", "":
		kind, ok := geometryKinds[strings.ToLower(is.Geometry)]
		if !ok {
			return nil, fmt.Errorf("%w: item %q: geometry %q", ErrInvalid, is.Name, is.Geometry)
		}
		it.Type = pipeline.ItemGeometry
		it.Geometry = pipeline.NewGeometry(kind)
		copy(it.Geometry.Size[:], is.Size)
		copy(it.Geometry.Position[:], is.Position)
	case "model":
		it.Type = pipeline.ItemModel
		it.Model = &pipeline.Model{Vertices: vertices(is.Vertices), Indices: is.Indices}
	case "buffer":
		layout, err := pipeline.ParseInputLayout(is.Format)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", is.Name, err)
		}
		it.Type = pipeline.ItemVertexBuffer
		it.Buffer = &pipeline.VertexBuffer{Format: is.Format, Data: layout.EncodeVertices(vertices(is.Vertices))}
	default:
		return nil, fmt.Errorf("%w: item %q: type %q", ErrInvalid, is.Name, is.Type)
	}
	return it, nil
}

// vertices reads rows of position, normal and texcoord floats.
func vertices(rows [][]float32) []pipeline.Vertex {
	out := make([]pipeline.Vertex, len(rows))
	for i, row := range rows {
		v := pipeline.Vertex{Color: f32.Vec4{1, 1, 1, 1}}
		n := copy(v.Position[:], row)
		row = row[n:]
		n = copy(v.Normal[:], row)
		row = row[n:]
		copy(v.Texcoord[:], row)
		out[i] = v
	}
	return out
}

func (r *resolver) global(g *GlobalSpec) (shader.Value, error) {
	t := strings.ToLower(g.Type)
	switch {
	case t == "texture":
		if g.Texture == "" {
			c := [4]float32{0, 0, 0, 1}
			for i := range min(4, len(g.Value)) {
				c[i] = float32(g.Value[i])
			}
			return shader.TextureValue(shader.SolidTexture(c)), nil
		}
		img, err := image.LoadPNG(r.path(g.Texture))
		if err != nil {
			return shader.Value{}, err
		}
		return shader.TextureValue(shader.NewImageTexture(img)), nil
	case t == "sampler":
		return shader.SamplerValue(), nil
	case t == "struct":
		names := make([]string, len(g.Fields))
		fields := make([]shader.Value, len(g.Fields))
		for i := range g.Fields {
			v, err := r.global(&g.Fields[i])
			if err != nil {
				return shader.Value{}, fmt.Errorf("field %q: %w", g.Fields[i].Name, err)
			}
			names[i], fields[i] = g.Fields[i].Name, v
		}
		return shader.Struct("", names, fields), nil
	}
	return numeric(t, g.Value)
}

// numeric parses scalar, vector and matrix globals. Vectors take the
// element kind from a suffix (vec3i, vec2u); matrices are f32 and
// column-major.
func numeric(t string, vals []float64) (shader.Value, error) {
	kinds := map[string]shader.Kind{"f32": shader.KindF32, "i32": shader.KindI32, "u32": shader.KindU32, "bool": shader.KindBool}
	if k, ok := kinds[t]; ok {
		if len(vals) != 1 {
			return shader.Value{}, fmt.Errorf("%w: %s needs 1 value, got %d", ErrInvalid, t, len(vals))
		}
		return shader.Vec(k, vals[0]), nil
	}

	var cols, rows int
	if _, err := fmt.Sscanf(t, "mat%dx%d", &cols, &rows); err == nil {
		if cols < 2 || cols > 4 || rows < 2 || rows > 4 || len(vals) != cols*rows {
			return shader.Value{}, fmt.Errorf("%w: %s with %d values", ErrInvalid, t, len(vals))
		}
		comps := make([]float32, len(vals))
		for i, v := range vals {
			comps[i] = float32(v)
		}
		return shader.Mat(cols, rows, comps...), nil
	}

	if strings.HasPrefix(t, "vec") && len(t) >= 4 {
		n := int(t[3] - '0')
		kind := shader.KindF32
		switch t[4:] {
		case "", "f":
		case "i":
			kind = shader.KindI32
		case "u":
			kind = shader.KindU32
		default:
			return shader.Value{}, fmt.Errorf("%w: type %q", ErrInvalid, t)
		}
		if n < 2 || n > 4 || len(vals) != n {
			return shader.Value{}, fmt.Errorf("%w: %s with %d values", ErrInvalid, t, len(vals))
		}
		return shader.Vec(kind, vals...), nil
	}
	return shader.Value{}, fmt.Errorf("%w: type %q", ErrInvalid, t)
}

func colorOf(vals []float64, def gputypes.Color) (gputypes.Color, error) {
	switch len(vals) {
	case 0:
		return def, nil
	case 3:
		return gputypes.Color{R: vals[0], G: vals[1], B: vals[2], A: 1}, nil
	case 4:
		return gputypes.Color{R: vals[0], G: vals[1], B: vals[2], A: vals[3]}, nil
	}
	return gputypes.Color{}, fmt.Errorf("%w: colour needs 3 or 4 values, got %d", ErrInvalid, len(vals))
}
