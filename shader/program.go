package shader

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
	"github.com/gogpu/naga/wgsl"
)

// MaxLocations is the number of user-defined inter-stage locations.
const MaxLocations = 16

// EntryPoint is a shader stage entry function.
type EntryPoint struct {
	Name     string
	Stage    ir.ShaderStage
	Function *wgsl.FunctionDecl
}

// Program is a parsed and validated WGSL module ready for interpretation.
// A Program is immutable and safe for concurrent use by many machines.
type Program struct {
	name   string
	source string

	ast    *wgsl.Module
	module *ir.Module

	structs   map[string]*wgsl.StructDecl
	aliases   map[string]wgsl.Type
	consts    map[string]*wgsl.ConstDecl
	globals   []*wgsl.VarDecl
	functions map[string]*wgsl.FunctionDecl
	entries   []EntryPoint

	types       map[wgsl.Type]Value
	literals    map[*wgsl.Literal]Value
	derivatives bool
	fingerprint uint64

	spirvOnce sync.Once
	spirv     []byte
	spirvErr  error
}

// Compile parses, lowers and validates WGSL source.
func Compile(name, source string) (*Program, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("shader: %s: %w", name, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("shader: %s: lower: %w", name, err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrValidation, name, err)
	}
	if len(verrs) > 0 {
		return nil, fmt.Errorf("%w: %s: %s", ErrValidation, name, verrs[0].Message)
	}
	p, err := newProgram(name, source, ast, module)
	if err != nil {
		return nil, err
	}
	slogger().Debug("shader: compiled", "name", name, "entries", len(p.entries), "derivatives", p.derivatives)
	return p, nil
}

func newProgram(name, source string, ast *wgsl.Module, module *ir.Module) (*Program, error) {
	p := &Program{
		name:      name,
		source:    source,
		ast:       ast,
		module:    module,
		structs:   make(map[string]*wgsl.StructDecl, len(ast.Structs)),
		aliases:   make(map[string]wgsl.Type, len(ast.Aliases)),
		consts:    make(map[string]*wgsl.ConstDecl, len(ast.Constants)),
		globals:   ast.GlobalVars,
		functions: make(map[string]*wgsl.FunctionDecl, len(ast.Functions)),
		types:     make(map[wgsl.Type]Value),
		literals:  make(map[*wgsl.Literal]Value),
	}
	for _, s := range ast.Structs {
		p.structs[s.Name] = s
	}
	for _, a := range ast.Aliases {
		p.aliases[a.Name] = a.Type
	}
	for _, c := range ast.Constants {
		p.consts[c.Name] = c
	}

	stages := make(map[string]ir.ShaderStage)
	if module != nil {
		for _, ep := range module.EntryPoints {
			stages[ep.Name] = ep.Stage
		}
	}
	for _, fn := range ast.Functions {
		p.functions[fn.Name] = fn
		stage, ok := stages[fn.Name]
		if !ok {
			switch {
			case hasAttr(fn.Attributes, "vertex"):
				stage, ok = ir.StageVertex, true
			case hasAttr(fn.Attributes, "fragment"):
				stage, ok = ir.StageFragment, true
			case hasAttr(fn.Attributes, "compute"):
				stage, ok = ir.StageCompute, true
			}
		}
		if ok {
			p.entries = append(p.entries, EntryPoint{Name: fn.Name, Stage: stage, Function: fn})
		}
	}

	if err := p.precompute(); err != nil {
		return nil, fmt.Errorf("shader: %s: %w", name, err)
	}

	h := fnv.New64a()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(source))
	p.fingerprint = h.Sum64()
	return p, nil
}

// precompute resolves every type and literal in the module once, so that
// machines never mutate the program.
func (p *Program) precompute() error {
	var firstErr error
	addType := func(t wgsl.Type) {
		if t == nil {
			return
		}
		if _, ok := p.types[t]; ok {
			return
		}
		v, err := p.resolveType(t, 0)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		p.types[t] = v
	}
	visit := func(node any) {
		switch n := node.(type) {
		case *wgsl.VarDecl:
			addType(n.Type)
		case *wgsl.ConstDecl:
			addType(n.Type)
		case *wgsl.ConstructExpr:
			addType(n.Type)
		case *wgsl.BitcastExpr:
			addType(n.Type)
		case *wgsl.Literal:
			if v, err := parseLiteral(n); err == nil {
				p.literals[n] = v
			} else if firstErr == nil {
				firstErr = err
			}
		case *wgsl.CallExpr:
			if _, ok := derivativeFuncs[n.Func.Name]; ok {
				p.derivatives = true
			}
		}
	}

	for _, s := range p.ast.Structs {
		for _, m := range s.Members {
			addType(m.Type)
		}
	}
	for _, a := range p.ast.Aliases {
		addType(a.Type)
	}
	for _, c := range p.ast.Constants {
		visit(c)
		walkExpr(c.Init, visit)
	}
	for _, g := range p.ast.GlobalVars {
		visit(g)
		walkExpr(g.Init, visit)
	}
	for _, fn := range p.ast.Functions {
		for _, prm := range fn.Params {
			addType(prm.Type)
		}
		addType(fn.ReturnType)
		if fn.Body != nil {
			walkStmts(fn.Body.Statements, visit)
		}
	}
	return firstErr
}

// Name returns the name the program was compiled under.
func (p *Program) Name() string { return p.name }

// Source returns the WGSL source text.
func (p *Program) Source() string { return p.source }

// AST returns the parsed module. Callers must not modify it.
func (p *Program) AST() *wgsl.Module { return p.ast }

// Module returns the lowered IR, or nil for programs that were not lowered.
func (p *Program) Module() *ir.Module { return p.module }

// Fingerprint identifies the program name and source.
func (p *Program) Fingerprint() uint64 { return p.fingerprint }

// UsesDerivatives reports whether any function calls a derivative builtin.
func (p *Program) UsesDerivatives() bool { return p.derivatives }

// Entries returns the program's entry points in declaration order.
func (p *Program) Entries() []EntryPoint { return p.entries }

// Function returns the named function declaration.
func (p *Program) Function(name string) (*wgsl.FunctionDecl, bool) {
	fn, ok := p.functions[name]
	return fn, ok
}

// Entry returns the named entry point.
func (p *Program) Entry(name string) (*EntryPoint, error) {
	for i := range p.entries {
		if p.entries[i].Name == name {
			return &p.entries[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q in %s", ErrNoEntryPoint, name, p.name)
}

// EntryFor returns the first entry point of the given stage.
func (p *Program) EntryFor(stage ir.ShaderStage) (*EntryPoint, error) {
	for i := range p.entries {
		if p.entries[i].Stage == stage {
			return &p.entries[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no stage %d entry in %s", ErrNoEntryPoint, stage, p.name)
}

// SPIRV generates a SPIR-V binary for the program. The result is cached.
func (p *Program) SPIRV() ([]byte, error) {
	p.spirvOnce.Do(func() {
		if p.module == nil {
			p.spirvErr = fmt.Errorf("%w: %s has no lowered module", ErrUnsupported, p.name)
			return
		}
		p.spirv, p.spirvErr = naga.GenerateSPIRV(p.module, spirv.Options{
			Version: spirv.Version1_3,
		})
	})
	return p.spirv, p.spirvErr
}

// Outputs is an entry point result split by interface binding.
type Outputs struct {
	Position    Value
	HasPosition bool
	FragDepth   float32
	HasDepth    bool
	Locations   [MaxLocations]Value
	// Mask has bit i set when Locations[i] was written.
	Mask uint32
}

// SplitOutput sorts an entry point's return value into builtins and
// located outputs.
func (p *Program) SplitOutput(e *EntryPoint, out Value) Outputs {
	var o Outputs
	if out.Kind == KindStruct {
		if s, ok := p.structs[out.TypeName]; ok {
			for i, m := range s.Members {
				if i < len(out.Fields) {
					o.bind(m.Attributes, out.Fields[i])
				}
			}
		}
		return o
	}
	o.bind(e.Function.ReturnAttrs, out)
	return o
}

func (o *Outputs) bind(attrs []wgsl.Attribute, v Value) {
	if b, ok := attrBuiltin(attrs); ok {
		switch b {
		case "position":
			o.Position, o.HasPosition = v, true
		case "frag_depth":
			o.FragDepth, o.HasDepth = v.Float(0), true
		}
		return
	}
	if loc, ok := attrLocation(attrs); ok && loc < MaxLocations {
		o.Locations[loc] = v
		o.Mask |= 1 << loc
	}
}
