package shader

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"strings"

	"github.com/gogpu/naga/wgsl"
)

const (
	maxCallDepth      = 64
	maxLoopIterations = 1 << 16
)

// Invocation is the per-invocation input of an entry point.
type Invocation struct {
	// Position is the fragment position (x, y, z, 1/w) in framebuffer
	// coordinates with the origin at the top-left.
	Position      [4]float32
	FrontFacing   bool
	VertexIndex   uint32
	InstanceIndex uint32
	SampleIndex   uint32
	Locations     [MaxLocations]Value
}

type binding struct {
	name    string
	val     *Value
	mutable bool
	init    bool
}

type frame struct {
	fn     *wgsl.FunctionDecl
	vars   []binding
	scopes []int
	line   int
	ret    Value
}

type control uint8

const (
	ctrlNext control = iota
	ctrlBreak
	ctrlContinue
	ctrlReturn
)

// abort unwinds an invocation abandoned while stepping.
type abort struct{}

// Machine executes one entry point of a Program, one invocation at a time.
// A Machine is not safe for concurrent use; use Clone to obtain
// independent machines.
type Machine struct {
	prog  *Program
	entry *EntryPoint

	bound   map[string]Value
	globals []binding
	consts  map[string]Value
	ctors   map[string]Value

	frames []*frame
	inv    Invocation

	dx, dy *Machine
	hook   func(*Machine)

	out          Value
	discarded    bool
	started      bool
	done         bool
	instructions int
	ub           UBFlags
	err          error
	line         int

	next  func() (int, bool)
	stop  func()
	yield func(int) bool
}

// NewMachine returns a machine for the named entry point of p.
func NewMachine(p *Program, entry string) (*Machine, error) {
	e, err := p.Entry(entry)
	if err != nil {
		return nil, err
	}
	return newMachine(p, e), nil
}

func newMachine(p *Program, e *EntryPoint) *Machine {
	return &Machine{
		prog:   p,
		entry:  e,
		bound:  make(map[string]Value),
		consts: make(map[string]Value),
		ctors:  make(map[string]Value),
	}
}

// Program returns the program the machine executes.
func (m *Machine) Program() *Program { return m.prog }

// Entry returns the entry point the machine executes.
func (m *Machine) Entry() *EntryPoint { return m.entry }

// Clone returns a fresh machine for the same entry point with the same
// bound globals. Execution state, hooks and derivative states are not
// copied.
func (m *Machine) Clone() *Machine {
	c := newMachine(m.prog, m.entry)
	c.bound = maps.Clone(m.bound)
	return c
}

// SetGlobal binds a module-scope variable, typically a uniform, texture or
// sampler. Bindings persist across invocations.
func (m *Machine) SetGlobal(name string, v Value) error {
	var decl *wgsl.VarDecl
	for _, g := range m.prog.globals {
		if g.Name == name {
			decl = g
			break
		}
	}
	if decl == nil {
		return fmt.Errorf("%w: global %q", ErrUnknownIdentifier, name)
	}
	if decl.Type != nil && v.Kind != KindTexture && v.Kind != KindSampler {
		tmpl, err := m.prog.typeTemplate(decl.Type)
		if err != nil {
			return err
		}
		if v, err = coerce(v, tmpl); err != nil {
			return fmt.Errorf("global %q: %w", name, err)
		}
	}
	m.bound[name] = v.Clone()
	for i := range m.globals {
		if m.globals[i].name == name {
			*m.globals[i].val = v.Clone()
		}
	}
	return nil
}

// SetDerivativeStates installs the machines shading the horizontal and
// vertical neighbors of this invocation. They must have been started for
// the neighbor pixels; this machine keeps them in step while it executes
// its entry function.
func (m *Machine) SetDerivativeStates(dx, dy *Machine) {
	m.dx, m.dy = dx, dy
}

// DerivativeStates returns the machines installed by SetDerivativeStates.
func (m *Machine) DerivativeStates() (dx, dy *Machine) { return m.dx, m.dy }

// SetLineHook registers fn to run before every statement executes.
func (m *Machine) SetLineHook(fn func(*Machine)) { m.hook = fn }

// Start prepares a new invocation. Any invocation in progress is abandoned.
func (m *Machine) Start(inv Invocation) error {
	m.reset()
	m.inv = inv
	if err := m.initGlobals(); err != nil {
		return err
	}
	fr := &frame{fn: m.entry.Function}
	for _, p := range m.entry.Function.Params {
		v, err := m.entryArg(p.Attributes, p.Type)
		if err != nil {
			return fmt.Errorf("shader: %s: parameter %s: %w", m.entry.Name, p.Name, err)
		}
		fr.vars = append(fr.vars, binding{name: p.Name, val: &v, init: true})
	}
	m.frames = append(m.frames, fr)
	m.started = true
	return nil
}

func (m *Machine) reset() {
	if m.stop != nil {
		m.stop()
		m.next, m.stop = nil, nil
	}
	m.frames = m.frames[:0]
	m.globals = m.globals[:0]
	m.out = Value{}
	m.discarded = false
	m.started = false
	m.done = false
	m.instructions = 0
	m.ub = 0
	m.err = nil
	m.line = 0
}

func (m *Machine) initGlobals() (err error) {
	defer func() {
		if r := recover(); r != nil {
			re, ok := r.(*RuntimeError)
			if !ok {
				panic(r)
			}
			err = re
		}
	}()
	for _, g := range m.prog.globals {
		var v Value
		if b, ok := m.bound[g.Name]; ok {
			v = b.Clone()
		} else {
			tmpl, err := m.prog.typeTemplate(g.Type)
			if err != nil {
				return err
			}
			v = tmpl.Clone()
			if g.Init != nil {
				if v, err = coerce(m.eval(g.Init), tmpl); err != nil {
					return err
				}
			}
		}
		m.globals = append(m.globals, binding{name: g.Name, val: &v, mutable: true, init: true})
	}
	return nil
}

// entryArg builds an entry point parameter from the invocation inputs.
func (m *Machine) entryArg(attrs []wgsl.Attribute, t wgsl.Type) (Value, error) {
	tmpl, err := m.prog.typeTemplate(t)
	if err != nil {
		return Value{}, err
	}
	if b, ok := attrBuiltin(attrs); ok {
		switch b {
		case "position":
			p := m.inv.Position
			return VecF32(p[0], p[1], p[2], p[3]), nil
		case "front_facing":
			return Bool(m.inv.FrontFacing), nil
		case "vertex_index":
			return U32(m.inv.VertexIndex), nil
		case "instance_index":
			return U32(m.inv.InstanceIndex), nil
		case "sample_index":
			return U32(m.inv.SampleIndex), nil
		case "sample_mask":
			return U32(^uint32(0)), nil
		}
		return tmpl, nil
	}
	if loc, ok := attrLocation(attrs); ok && loc < MaxLocations {
		return adaptLocation(m.inv.Locations[loc], tmpl), nil
	}
	if tmpl.Kind == KindStruct {
		s := m.prog.structs[tmpl.TypeName]
		out := tmpl.Clone()
		for i, mem := range s.Members {
			v, err := m.entryArg(mem.Attributes, mem.Type)
			if err != nil {
				return Value{}, err
			}
			out.Fields[i] = v
		}
		return out, nil
	}
	return tmpl, nil
}

// adaptLocation converts an inter-stage value to the declared input type.
// Missing components default to (0, 0, 0, 1).
func adaptLocation(v, tmpl Value) Value {
	if v.Kind == KindInvalid || !tmpl.Kind.Numeric() {
		return tmpl
	}
	if v.Len() == tmpl.Len() && v.Kind == tmpl.Kind {
		return concrete(v)
	}
	c, err := convert(v, tmpl.Kind)
	if err != nil {
		return tmpl
	}
	out := tmpl
	for i := 0; i < out.Len(); i++ {
		switch {
		case i < c.Len():
			out.comps[i] = c.comps[i]
		case i == 3:
			out.set(i, 1)
		default:
			out.comps[i] = 0
		}
	}
	return out
}

// Run executes the invocation to completion. A discard is not an error;
// see Discarded.
func (m *Machine) Run() error {
	if !m.started {
		return fmt.Errorf("shader: %s: Run before Start", m.entry.Name)
	}
	if m.next != nil {
		for m.Step() {
		}
		return m.err
	}
	if !m.done {
		m.execute()
	}
	return m.err
}

// Step executes until the invocation is about to run its next statement
// and reports whether it paused there. It returns false once the
// invocation has finished.
func (m *Machine) Step() bool {
	if !m.started || m.done {
		return false
	}
	if m.next == nil {
		m.next, m.stop = iter.Pull(m.statements())
	}
	if _, ok := m.next(); ok {
		return true
	}
	m.next, m.stop = nil, nil
	return false
}

func (m *Machine) statements() iter.Seq[int] {
	return func(yield func(int) bool) {
		m.yield = yield
		defer func() { m.yield = nil }()
		m.execute()
	}
}

func (m *Machine) execute() {
	defer m.finish()
	fr := m.frames[0]
	if m.execBlock(fr.fn.Body.Statements) == ctrlReturn {
		m.out = fr.ret
	}
}

func (m *Machine) finish() {
	m.done = true
	r := recover()
	switch e := r.(type) {
	case nil:
	case halt:
		m.discarded = true
	case abort:
	case *RuntimeError:
		m.err = e
	default:
		panic(r)
	}
}

// Done reports whether the invocation has finished.
func (m *Machine) Done() bool { return m.done }

// Line returns the source line of the statement about to run, or of the
// last statement run.
func (m *Machine) Line() int { return m.line }

// Function returns the name of the function currently executing.
func (m *Machine) Function() string {
	if len(m.frames) == 0 {
		return m.entry.Name
	}
	return m.top().fn.Name
}

// Depth returns the number of active call frames.
func (m *Machine) Depth() int { return len(m.frames) }

// Output returns the entry point's return value.
func (m *Machine) Output() Value { return m.out }

// Outputs returns the return value split by interface binding.
func (m *Machine) Outputs() Outputs { return m.prog.SplitOutput(m.entry, m.out) }

// Discarded reports whether the invocation executed discard.
func (m *Machine) Discarded() bool { return m.discarded }

// Instructions returns the number of statements and expressions evaluated.
func (m *Machine) Instructions() int { return m.instructions }

// UndefinedBehavior returns the conditions flagged so far.
func (m *Machine) UndefinedBehavior() UBFlags { return m.ub }

// Err returns the runtime error that stopped the invocation, if any.
func (m *Machine) Err() error { return m.err }

// Lookup returns a copy of the named variable as seen from the current
// function. Dotted paths select struct members and vector swizzles.
func (m *Machine) Lookup(path string) (v Value, ok bool) {
	name, rest, _ := strings.Cut(path, ".")
	b := m.binding(name)
	switch {
	case b != nil:
		v = *b.val
	case m.hasConst(name):
		v = m.constValue(name)
	default:
		return Value{}, false
	}
	if rest == "" {
		return v.Clone(), true
	}
	defer func() {
		if r := recover(); r != nil {
			if _, isRE := r.(*RuntimeError); !isRE {
				panic(r)
			}
			v, ok = Value{}, false
		}
	}()
	for _, member := range strings.Split(rest, ".") {
		v = m.member(v, member)
	}
	return v.Clone(), true
}

// SetVariable overwrites a variable visible from the current function.
func (m *Machine) SetVariable(name string, v Value) error {
	b := m.binding(name)
	if b == nil {
		return fmt.Errorf("%w: %q", ErrUnknownIdentifier, name)
	}
	nv, err := coerce(v, *b.val)
	if err != nil {
		return fmt.Errorf("variable %q: %w", name, err)
	}
	*b.val = nv.Clone()
	b.init = true
	return nil
}

// Snapshot returns copies of every variable visible from the current
// function, keyed by name. Inner declarations hide outer ones.
func (m *Machine) Snapshot() map[string]Value {
	out := make(map[string]Value)
	for _, g := range m.globals {
		out[g.name] = g.val.Clone()
	}
	if len(m.frames) > 0 {
		for _, b := range m.top().vars {
			out[b.name] = b.val.Clone()
		}
	}
	return out
}

// Call runs a non-entry function with the given arguments, outside of any
// invocation. Module globals are initialized from the bound values.
func (m *Machine) Call(name string, args ...Value) (Value, error) {
	fn, ok := m.prog.functions[name]
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}
	if len(args) != len(fn.Params) {
		return Value{}, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrTypeMismatch, name, len(fn.Params), len(args))
	}
	m.reset()
	if err := m.initGlobals(); err != nil {
		return Value{}, err
	}
	env := make([]binding, len(args))
	for i, p := range fn.Params {
		v := args[i].Clone()
		if _, isPtr := p.Type.(*wgsl.PtrType); !isPtr {
			tmpl, err := m.prog.typeTemplate(p.Type)
			if err != nil {
				return Value{}, err
			}
			if v, err = coerce(v, tmpl); err != nil {
				return Value{}, fmt.Errorf("%s: parameter %s: %w", name, p.Name, err)
			}
		}
		env[i] = binding{name: p.Name, val: &v, init: true}
	}
	return m.invoke(fn, env)
}

// enter resets the machine and opens a frame for fn with env pre-bound,
// without running it.
func (m *Machine) enter(fn *wgsl.FunctionDecl, env []binding) *frame {
	m.frames = m.frames[:0]
	m.out = Value{}
	m.discarded = false
	m.done = false
	m.ub = 0
	m.err = nil
	fr := &frame{fn: fn, vars: env}
	m.frames = append(m.frames, fr)
	m.started = true
	return fr
}

// invoke runs fn to completion in a fresh frame.
func (m *Machine) invoke(fn *wgsl.FunctionDecl, env []binding) (v Value, err error) {
	fr := m.enter(fn, env)
	defer func() {
		m.done = true
		if r := recover(); r != nil {
			switch e := r.(type) {
			case *RuntimeError:
				m.err, err = e, e
			case halt:
				m.discarded = true
				err = fmt.Errorf("%w: discard outside an entry point", ErrUnsupported)
			default:
				panic(r)
			}
		}
	}()
	if m.execBlock(fn.Body.Statements) == ctrlReturn {
		m.out = fr.ret
	}
	return m.out, nil
}

func (m *Machine) top() *frame { return m.frames[len(m.frames)-1] }

// binding resolves a variable name in the current function, then globals.
func (m *Machine) binding(name string) *binding {
	if len(m.frames) > 0 {
		vars := m.top().vars
		for i := len(vars) - 1; i >= 0; i-- {
			if vars[i].name == name {
				return &vars[i]
			}
		}
	}
	for i := range m.globals {
		if m.globals[i].name == name {
			return &m.globals[i]
		}
	}
	return nil
}

func (m *Machine) hasConst(name string) bool {
	_, ok := m.prog.consts[name]
	return ok
}

// constValue evaluates a module constant once per machine.
func (m *Machine) constValue(name string) Value {
	if v, ok := m.consts[name]; ok {
		return v
	}
	c := m.prog.consts[name]
	v := m.eval(c.Init)
	if c.Type != nil {
		tmpl, err := m.prog.typeTemplate(c.Type)
		m.check(err)
		v, err = coerce(v, tmpl)
		m.check(err)
	}
	m.consts[name] = v
	return v
}

func (m *Machine) bind(name string, v Value, mutable, init bool) {
	fr := m.top()
	fr.vars = append(fr.vars, binding{name: name, val: &v, mutable: mutable, init: init})
}

func (m *Machine) openScope() {
	fr := m.top()
	fr.scopes = append(fr.scopes, len(fr.vars))
	if m.mirrors() {
		m.dx.mirrorScope(true)
		m.dy.mirrorScope(true)
	}
}

func (m *Machine) closeScope() {
	fr := m.top()
	n := len(fr.scopes) - 1
	clear(fr.vars[fr.scopes[n]:])
	fr.vars = fr.vars[:fr.scopes[n]]
	fr.scopes = fr.scopes[:n]
	if m.mirrors() {
		m.dx.mirrorScope(false)
		m.dy.mirrorScope(false)
	}
}

// mirrors reports whether statements executed now must be replayed on
// the derivative states.
func (m *Machine) mirrors() bool {
	return len(m.frames) == 1 && m.dx != nil && m.dy != nil
}

func (m *Machine) mirrorScope(open bool) {
	if len(m.frames) != 1 {
		return
	}
	if open {
		m.openScope()
	} else if len(m.top().scopes) > 0 {
		m.closeScope()
	}
}

// mirror replays a straight-line statement on a derivative state. Failures
// only affect the neighbor's values.
func (m *Machine) mirror(s wgsl.Stmt) {
	if len(m.frames) != 1 {
		return
	}
	defer m.recoverQuiet(len(m.frames))
	m.exec(s)
}

// evalQuiet evaluates e in the current frame, returning zero on failure.
func (m *Machine) evalQuiet(e wgsl.Expr) (v Value, ok bool) {
	if len(m.frames) == 0 {
		return Value{}, false
	}
	defer func() {
		if r := recover(); r != nil {
			m.unwind(r, 1)
			v, ok = Value{}, false
		}
	}()
	return m.eval(e), true
}

func (m *Machine) recoverQuiet(depth int) {
	if r := recover(); r != nil {
		m.unwind(r, depth)
	}
}

func (m *Machine) unwind(r any, depth int) {
	switch r.(type) {
	case *RuntimeError, halt:
		if len(m.frames) > depth {
			m.frames = m.frames[:depth]
		}
	default:
		panic(r)
	}
}

// before runs at each statement boundary.
func (m *Machine) before(s wgsl.Stmt) {
	m.instructions++
	line := stmtLine(s)
	m.line = line
	m.top().line = line
	if m.hook != nil {
		m.hook(m)
	}
	if m.yield != nil && !m.yield(line) {
		panic(abort{})
	}
}

func (m *Machine) flag(f UBFlags) { m.ub |= f }

func (m *Machine) fail(err error) {
	panic(&RuntimeError{Function: m.Function(), Line: m.line, Err: err})
}

func (m *Machine) check(err error) {
	if err != nil {
		var re *RuntimeError
		if errors.As(err, &re) {
			panic(re)
		}
		m.fail(err)
	}
}
