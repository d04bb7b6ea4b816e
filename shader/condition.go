package shader

import (
	"fmt"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/wgsl"
)

const conditionFunc = "shaderdbg_condition"

// Condition is a breakpoint condition compiled against one function of a
// program. It is immutable and may be shared by many evaluators.
type Condition struct {
	Function string
	Expr     string
	// Captured lists the function parameters, locals and globals the
	// expression reads, in first-use order.
	Captured []string

	prog    *Program
	fn      *wgsl.FunctionDecl
	globals map[string]bool
}

// CompileCondition compiles expr as a boolean expression evaluated in the
// scope of function. Module constants, structs and helper functions of p
// remain visible.
func CompileCondition(p *Program, function, expr string) (*Condition, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrDegenerateCondition)
	}
	target, ok := p.functions[function]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, function)
	}

	src := "fn " + conditionFunc + "() -> bool {\n\treturn (" + expr + ");\n}\n"
	snippet, err := naga.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrDegenerateCondition, expr, err)
	}
	if len(snippet.Functions) != 1 || snippet.Functions[0].Body == nil ||
		len(snippet.Functions[0].Body.Statements) != 1 {
		return nil, fmt.Errorf("%w: %q is not a single expression", ErrDegenerateCondition, expr)
	}
	fn := snippet.Functions[0]
	ret, ok := fn.Body.Statements[0].(*wgsl.ReturnStmt)
	if !ok || ret.Value == nil {
		return nil, fmt.Errorf("%w: %q is not a single expression", ErrDegenerateCondition, expr)
	}

	scope := make(map[string]bool)
	for _, prm := range target.Params {
		scope[prm.Name] = true
	}
	walkStmts(target.Body.Statements, func(node any) {
		switch n := node.(type) {
		case *wgsl.VarDecl:
			scope[n.Name] = true
		case *wgsl.ConstDecl:
			scope[n.Name] = true
		}
	})
	globals := make(map[string]bool, len(p.globals))
	for _, g := range p.globals {
		globals[g.Name] = true
	}

	c := &Condition{Function: function, Expr: expr, globals: make(map[string]bool)}
	seen := make(map[string]bool)
	walkExpr(ret.Value, func(node any) {
		id, ok := node.(*wgsl.Ident)
		if !ok || seen[id.Name] {
			return
		}
		seen[id.Name] = true
		switch {
		case scope[id.Name]:
			c.Captured = append(c.Captured, id.Name)
		case globals[id.Name]:
			c.Captured = append(c.Captured, id.Name)
			c.globals[id.Name] = true
		case p.consts[id.Name] != nil:
		default:
			if err == nil {
				err = fmt.Errorf("%w: %q in condition %q", ErrUnknownIdentifier, id.Name, expr)
			}
		}
	})
	if err != nil {
		return nil, err
	}

	mod := &wgsl.Module{
		Structs:    p.ast.Structs,
		GlobalVars: p.ast.GlobalVars,
		Aliases:    p.ast.Aliases,
		Constants:  p.ast.Constants,
	}
	for _, f := range p.ast.Functions {
		if !isEntry(p, f) {
			mod.Functions = append(mod.Functions, f)
		}
	}
	mod.Functions = append(mod.Functions, fn)
	prog, err := newProgram(p.name+"#condition", src, mod, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrDegenerateCondition, expr, err)
	}
	c.prog, c.fn = prog, fn
	slogger().Debug("shader: compiled condition", "function", function, "expr", expr, "captured", c.Captured)
	return c, nil
}

func isEntry(p *Program, fn *wgsl.FunctionDecl) bool {
	for _, e := range p.entries {
		if e.Function == fn {
			return true
		}
	}
	return false
}

// Evaluator evaluates a condition in a private machine. Evaluators are not
// safe for concurrent use.
type Evaluator struct {
	cond   *Condition
	vm     *Machine
	dx, dy *Machine
}

// NewEvaluator returns an evaluator for c with its own machines.
func NewEvaluator(c *Condition) *Evaluator {
	entry := &EntryPoint{Name: conditionFunc, Function: c.fn}
	return &Evaluator{
		cond: c,
		vm:   newMachine(c.prog, entry),
		dx:   newMachine(c.prog, entry),
		dy:   newMachine(c.prog, entry),
	}
}

// Condition returns the compiled condition.
func (e *Evaluator) Condition() *Condition { return e.cond }

// Evaluate copies the variables the condition reads from main, including
// the derivative states when main is in its entry function, and evaluates
// the condition. It returns false when a captured local is not yet in
// scope. main is never modified.
func (e *Evaluator) Evaluate(main *Machine) (bool, error) {
	if e.vm == nil {
		return false, fmt.Errorf("%w: evaluator released", ErrUnsupported)
	}
	env, ok := e.capture(main, e.vm)
	if !ok {
		return false, nil
	}
	e.vm.dx, e.vm.dy = nil, nil
	if main.dx != nil && main.dy != nil && main.Depth() == 1 {
		envX, okX := e.capture(main.dx, e.dx)
		envY, okY := e.capture(main.dy, e.dy)
		if okX && okY {
			e.dx.enter(e.cond.fn, envX)
			e.dy.enter(e.cond.fn, envY)
			e.vm.dx, e.vm.dy = e.dx, e.dy
		}
	}
	v, err := e.vm.invoke(e.cond.fn, env)
	if err != nil {
		return false, err
	}
	if v.Kind != KindBool || v.Len() != 1 {
		return false, fmt.Errorf("%w: condition %q is %s, want bool", ErrTypeMismatch, e.cond.Expr, v.TypeString())
	}
	return v.Truth(0), nil
}

// capture copies globals and captured locals of src into dst and returns
// the local environment.
func (e *Evaluator) capture(src, dst *Machine) ([]binding, bool) {
	if len(src.frames) == 0 {
		return nil, false
	}
	dst.globals = dst.globals[:0]
	for _, g := range src.globals {
		v := copyIn(*g.val)
		dst.globals = append(dst.globals, binding{name: g.name, val: &v, mutable: true, init: true})
	}
	env := make([]binding, 0, len(e.cond.Captured))
	for _, name := range e.cond.Captured {
		if e.cond.globals[name] {
			continue
		}
		b := src.binding(name)
		if b == nil {
			return nil, false
		}
		v := copyIn(*b.val)
		env = append(env, binding{name: name, val: &v, mutable: b.mutable, init: b.init})
	}
	return env, true
}

// copyIn deep-copies v, including the referent of a pointer.
func copyIn(v Value) Value {
	if v.Kind == KindPointer && v.ref != nil {
		r := v.ref.Clone()
		return Value{Kind: KindPointer, ref: &r}
	}
	return v.Clone()
}

// Release drops the evaluator's machines.
func (e *Evaluator) Release() {
	e.vm, e.dx, e.dy = nil, nil, nil
}
