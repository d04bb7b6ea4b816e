package shader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/wgsl"
)

// PathStep addresses one statement on the way to an extraction point.
type PathStep struct {
	// Index is the statement index within the enclosing block.
	Index int
	// Block selects the nested block of that statement to descend into:
	// 0 for bodies, 1 for else branches and loop continuing blocks, the
	// case index for switches. It is unused on the last step.
	Block int
}

// ExtractionPoint is a variable at a statement of a fragment entry point,
// with the statically inferred shape of its value.
type ExtractionPoint struct {
	Function   string
	Variable   string
	Line       int
	Path       []PathStep
	Kind       Kind
	Components int
}

// FindExtractionPoint locates variable at line in the fragment entry point
// of p. When several statements start on the line the innermost one wins.
// Variable may be a dotted path into a struct or a swizzle.
func FindExtractionPoint(p *Program, variable string, line int) (ExtractionPoint, error) {
	e, err := p.EntryFor(ir.StageFragment)
	if err != nil {
		return ExtractionPoint{}, err
	}
	path, ok := locate(e.Function.Body.Statements, line, nil)
	if !ok {
		return ExtractionPoint{}, fmt.Errorf("%w: no statement of %s at line %d", ErrNoExtractionPoint, e.Name, line)
	}

	env := p.typeEnv(e.Function, path)
	root, _, _ := strings.Cut(variable, ".")
	if _, ok := env[root]; !ok {
		return ExtractionPoint{}, fmt.Errorf("%w: %q is not in scope at line %d", ErrNoExtractionPoint, variable, line)
	}
	t, ok := p.staticType(variableExpr(variable), env)
	if !ok || t.Kind == KindInvalid || !t.Kind.Numeric() || t.IsMatrix() || t.Len() > 4 {
		return ExtractionPoint{}, fmt.Errorf("%w: %q at line %d", ErrUnknownVariableType, variable, line)
	}
	return ExtractionPoint{
		Function:   e.Name,
		Variable:   variable,
		Line:       line,
		Path:       path,
		Kind:       t.Kind,
		Components: t.Len(),
	}, nil
}

// locate returns the path to the innermost statement starting on line.
func locate(stmts []wgsl.Stmt, line int, prefix []PathStep) ([]PathStep, bool) {
	var found []PathStep
	for i, s := range stmts {
		for b, child := range children(s) {
			step := append(append([]PathStep(nil), prefix...), PathStep{Index: i, Block: b})
			if p, ok := locate(child, line, step); ok {
				found = p
			}
		}
		if found == nil && stmtLine(s) == line {
			found = append(append([]PathStep(nil), prefix...), PathStep{Index: i})
		}
		if found != nil {
			return found, true
		}
	}
	return nil, false
}

// children returns the nested statement lists of s.
func children(s wgsl.Stmt) [][]wgsl.Stmt {
	switch s := s.(type) {
	case *wgsl.BlockStmt:
		return [][]wgsl.Stmt{s.Statements}
	case *wgsl.IfStmt:
		out := [][]wgsl.Stmt{s.Body.Statements}
		switch e := s.Else.(type) {
		case *wgsl.BlockStmt:
			out = append(out, e.Statements)
		case *wgsl.IfStmt:
			out = append(out, []wgsl.Stmt{e})
		}
		return out
	case *wgsl.ForStmt:
		return [][]wgsl.Stmt{s.Body.Statements}
	case *wgsl.WhileStmt:
		return [][]wgsl.Stmt{s.Body.Statements}
	case *wgsl.LoopStmt:
		if s.Continuing != nil {
			return [][]wgsl.Stmt{s.Body.Statements, s.Continuing.Statements}
		}
		return [][]wgsl.Stmt{s.Body.Statements}
	case *wgsl.SwitchStmt:
		out := make([][]wgsl.Stmt, len(s.Cases))
		for i, c := range s.Cases {
			out[i] = c.Body.Statements
		}
		return out
	}
	return nil
}

func variableExpr(variable string) wgsl.Expr {
	parts := strings.Split(variable, ".")
	var e wgsl.Expr = &wgsl.Ident{Name: parts[0]}
	for _, m := range parts[1:] {
		e = &wgsl.MemberExpr{Expr: e, Member: m}
	}
	return e
}

// typeEnv collects the types of everything visible at the end of path:
// globals, parameters and the locals declared before the target, plus the
// target itself when it is a declaration.
func (p *Program) typeEnv(fn *wgsl.FunctionDecl, path []PathStep) map[string]Value {
	env := make(map[string]Value)
	for _, g := range p.globals {
		if t, err := p.typeTemplate(g.Type); err == nil {
			env[g.Name] = t
		}
	}
	for _, prm := range fn.Params {
		if t, err := p.typeTemplate(prm.Type); err == nil {
			env[prm.Name] = t
		}
	}
	declare := func(node any) {
		var name string
		var typ wgsl.Type
		var init wgsl.Expr
		switch n := node.(type) {
		case *wgsl.VarDecl:
			name, typ, init = n.Name, n.Type, n.Init
		case *wgsl.ConstDecl:
			name, typ, init = n.Name, n.Type, n.Init
		default:
			return
		}
		if typ != nil {
			if t, err := p.typeTemplate(typ); err == nil {
				env[name] = t
				return
			}
		}
		if t, ok := p.staticType(init, env); ok {
			env[name] = concrete(t)
		} else {
			env[name] = Value{}
		}
	}

	stmts := fn.Body.Statements
	for depth, step := range path {
		walkStmts(stmts[:step.Index], declare)
		s := stmts[step.Index]
		if depth == len(path)-1 {
			declare(s)
			break
		}
		if f, ok := s.(*wgsl.ForStmt); ok && f.Init != nil {
			walkStmt(f.Init, declare)
		}
		stmts = children(s)[step.Block]
	}
	return env
}

// Builtins whose result has the type of their first argument.
var sameAsArg = map[string]bool{
	"abs": true, "sign": true, "floor": true, "ceil": true, "round": true,
	"trunc": true, "fract": true, "sqrt": true, "inverseSqrt": true,
	"exp": true, "exp2": true, "log": true, "log2": true, "sin": true,
	"cos": true, "tan": true, "asin": true, "acos": true, "atan": true,
	"sinh": true, "cosh": true, "tanh": true, "asinh": true, "acosh": true,
	"atanh": true, "radians": true, "degrees": true, "saturate": true,
	"pow": true, "atan2": true, "step": true, "mix": true,
	"smoothstep": true, "fma": true, "min": true, "max": true,
	"clamp": true, "normalize": true, "reflect": true, "faceForward": true,
	"refract": true, "select": true, "transpose": true, "countOneBits": true,
	"countLeadingZeros": true, "countTrailingZeros": true,
	"reverseBits": true,
}

// staticType infers the type of e without evaluating it.
func (p *Program) staticType(e wgsl.Expr, env map[string]Value) (Value, bool) {
	switch e := e.(type) {
	case *wgsl.Literal:
		v, err := parseLiteral(e)
		return v, err == nil
	case *wgsl.Ident:
		if t, ok := env[e.Name]; ok {
			return t, t.Kind != KindInvalid
		}
		if c, ok := p.consts[e.Name]; ok {
			if c.Type != nil {
				t, err := p.typeTemplate(c.Type)
				return t, err == nil
			}
			return p.staticType(c.Init, env)
		}
	case *wgsl.ConstructExpr:
		if nt, ok := e.Type.(*wgsl.NamedType); ok && len(nt.TypeParams) == 0 {
			if cols, rows, kind, ok := shapeOf(nt.Name); ok && kind == KindInvalid {
				args := make([]Value, 0, len(e.Args))
				for _, a := range e.Args {
					if t, ok := p.staticType(a, env); ok {
						args = append(args, t)
					}
				}
				return Value{Kind: inferKind(args), Size: rows, Cols: cols}, true
			}
		}
		t, err := p.typeTemplate(e.Type)
		return t, err == nil
	case *wgsl.BitcastExpr:
		t, err := p.typeTemplate(e.Type)
		return t, err == nil
	case *wgsl.CallExpr:
		return p.callType(e, env)
	case *wgsl.UnaryExpr:
		if e.Op == wgsl.TokenAmpersand {
			return Value{}, false
		}
		t, ok := p.staticType(e.Operand, env)
		if ok && e.Op == wgsl.TokenBang && t.Kind != KindBool {
			return Value{}, false
		}
		return t, ok
	case *wgsl.BinaryExpr:
		return p.binaryType(e, env)
	case *wgsl.MemberExpr:
		base, ok := p.staticType(e.Expr, env)
		if !ok {
			return Value{}, false
		}
		if base.Kind == KindStruct {
			return base.Field(e.Member)
		}
		if base.IsVector() {
			if idx, ok := swizzle(e.Member, base.Size); ok {
				return Value{Kind: base.Kind, Size: len(idx)}, true
			}
		}
	case *wgsl.IndexExpr:
		base, ok := p.staticType(e.Expr, env)
		switch {
		case !ok:
		case base.Kind == KindArray && len(base.Fields) > 0:
			return base.Fields[0], true
		case base.IsMatrix():
			return Value{Kind: base.Kind, Size: base.Size}, true
		case base.IsVector():
			return Value{Kind: base.Kind, Size: 1}, true
		}
	}
	return Value{}, false
}

func (p *Program) callType(e *wgsl.CallExpr, env map[string]Value) (Value, bool) {
	name := e.Func.Name
	if fn, ok := p.functions[name]; ok {
		if fn.ReturnType == nil {
			return Value{}, false
		}
		t, err := p.typeTemplate(fn.ReturnType)
		return t, err == nil
	}
	if p.isTypeName(name) {
		t, err := p.resolveNamed(&wgsl.NamedType{Name: name}, 0)
		return t, err == nil
	}
	arg := func(i int) (Value, bool) {
		if i >= len(e.Args) {
			return Value{}, false
		}
		return p.staticType(e.Args[i], env)
	}
	switch {
	case derivativeFuncs[name] != 0, sameAsArg[name]:
		t, ok := arg(0)
		if name == "select" {
			t, ok = arg(1)
		}
		return concrete(t), ok
	}
	switch name {
	case "length", "distance", "determinant":
		return F32(0), true
	case "dot":
		t, ok := arg(0)
		return Value{Kind: t.Kind, Size: 1}, ok
	case "cross":
		return VecF32(0, 0, 0), true
	case "all", "any":
		return Bool(false), true
	case "textureSample", "textureSampleLevel", "textureSampleBias",
		"textureSampleGrad", "textureLoad", "unpack4x8unorm":
		return VecF32(0, 0, 0, 0), true
	case "textureDimensions":
		return Vec(KindU32, 0, 0), true
	case "arrayLength", "pack4x8unorm":
		return U32(0), true
	}
	return Value{}, false
}

func (p *Program) binaryType(e *wgsl.BinaryExpr, env map[string]Value) (Value, bool) {
	l, okL := p.staticType(e.Left, env)
	r, okR := p.staticType(e.Right, env)
	if !okL || !okR {
		return Value{}, false
	}
	switch {
	case e.Op == wgsl.TokenAmpAmp || e.Op == wgsl.TokenPipePipe:
		return Bool(false), true
	case e.Op == wgsl.TokenStar && l.IsMatrix() && r.IsVector():
		return Value{Kind: l.Kind, Size: l.Size}, true
	case e.Op == wgsl.TokenStar && l.IsVector() && r.IsMatrix():
		return Value{Kind: r.Kind, Size: r.Cols}, true
	case e.Op == wgsl.TokenStar && l.IsMatrix() && r.IsMatrix():
		return Value{Kind: l.Kind, Size: l.Size, Cols: r.Cols}, true
	}
	out := l
	if l.IsScalar() {
		out.Size, out.Cols = r.Size, r.Cols
	}
	switch {
	case isComparison(e.Op):
		out.Kind = KindBool
	case e.Op == wgsl.TokenLessLess || e.Op == wgsl.TokenGreaterGreater:
	case l.Abstract && !r.Abstract:
		out.Kind = r.Kind
	case l.Abstract && r.Abstract && r.Kind == KindF32:
		out.Kind = KindF32
	}
	out.Abstract = false
	return out, true
}

// Expose returns a new program whose fragment entry point stops at pt and
// returns the variable converted to vec4<f32> at @location(0). Earlier
// returns, and the paths that skip the extraction point, return
// vec4<f32>(0, 0, 0, 1). p is not modified.
func Expose(p *Program, pt ExtractionPoint) (*Program, error) {
	e, err := p.Entry(pt.Function)
	if err != nil {
		return nil, err
	}
	if len(pt.Path) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrNoExtractionPoint)
	}
	body, err := truncate(e.Function.Body.Statements, pt.Path, promote(pt))
	if err != nil {
		return nil, err
	}

	fn := &wgsl.FunctionDecl{
		Name:       e.Function.Name,
		Params:     e.Function.Params,
		ReturnType: vecType(4),
		ReturnAttrs: []wgsl.Attribute{{
			Name: "location",
			Args: []wgsl.Expr{&wgsl.Literal{Kind: wgsl.TokenIntLiteral, Value: "0"}},
		}},
		Attributes: e.Function.Attributes,
		Body:       &wgsl.BlockStmt{Statements: body, Span: e.Function.Body.Span},
		Span:       e.Function.Span,
	}
	ast := *p.ast
	ast.Functions = make([]*wgsl.FunctionDecl, len(p.ast.Functions))
	for i, f := range p.ast.Functions {
		if f == e.Function {
			f = fn
		}
		ast.Functions[i] = f
	}

	name := p.name + "#" + pt.Variable + "@" + strconv.Itoa(pt.Line)
	module, err := naga.LowerWithSource(&ast, p.source)
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
	out, err := newProgram(name, p.source, &ast, module)
	if err != nil {
		return nil, err
	}
	slogger().Debug("shader: exposed variable", "program", p.name, "variable", pt.Variable, "line", pt.Line)
	return out, nil
}

func truncate(stmts []wgsl.Stmt, path []PathStep, final *wgsl.ReturnStmt) ([]wgsl.Stmt, error) {
	step := path[0]
	if step.Index >= len(stmts) {
		return nil, fmt.Errorf("%w: path out of range", ErrNoExtractionPoint)
	}
	out := make([]wgsl.Stmt, 0, step.Index+2)
	for _, s := range stmts[:step.Index] {
		out = append(out, fallbackReturns(s))
	}
	target := stmts[step.Index]
	if len(path) == 1 {
		if _, isRet := target.(*wgsl.ReturnStmt); !isRet {
			out = append(out, fallbackReturns(target))
		}
		return append(out, final), nil
	}
	kids := children(target)
	if step.Block >= len(kids) {
		return nil, fmt.Errorf("%w: path out of range", ErrNoExtractionPoint)
	}
	inner, err := truncate(kids[step.Block], path[1:], final)
	if err != nil {
		return nil, err
	}
	return append(out, replaceChild(target, step.Block, inner), fallbackReturn()), nil
}

// replaceChild copies s with nested block i replaced by stmts. Blocks
// that follow the replaced one are dropped; alternatives keep their code.
func replaceChild(s wgsl.Stmt, i int, stmts []wgsl.Stmt) wgsl.Stmt {
	block := &wgsl.BlockStmt{Statements: stmts}
	switch s := s.(type) {
	case *wgsl.BlockStmt:
		return block
	case *wgsl.IfStmt:
		c := *s
		if i == 0 {
			c.Body = block
			c.Else = fallbackReturns(s.Else)
		} else {
			c.Body = fallbackReturns(s.Body).(*wgsl.BlockStmt)
			c.Else = block
		}
		return &c
	case *wgsl.ForStmt:
		c := *s
		c.Body = block
		return &c
	case *wgsl.WhileStmt:
		c := *s
		c.Body = block
		return &c
	case *wgsl.LoopStmt:
		c := *s
		if i == 0 {
			c.Body, c.Continuing = block, nil
		} else {
			c.Body = fallbackReturns(s.Body).(*wgsl.BlockStmt)
			c.Continuing = block
		}
		return &c
	case *wgsl.SwitchStmt:
		c := *s
		c.Cases = make([]*wgsl.SwitchCaseClause, len(s.Cases))
		for j, cc := range s.Cases {
			n := *cc
			if j == i {
				n.Body = block
			} else {
				n.Body = fallbackReturns(cc.Body).(*wgsl.BlockStmt)
			}
			c.Cases[j] = &n
		}
		return &c
	}
	return s
}

// fallbackReturns copies s with every return replaced by the fallback.
func fallbackReturns(s wgsl.Stmt) wgsl.Stmt {
	switch s := s.(type) {
	case *wgsl.ReturnStmt:
		return fallbackReturn()
	case *wgsl.BlockStmt:
		if s == nil {
			return s
		}
		out := make([]wgsl.Stmt, len(s.Statements))
		for i, st := range s.Statements {
			out[i] = fallbackReturns(st)
		}
		return &wgsl.BlockStmt{Statements: out, Span: s.Span}
	case *wgsl.IfStmt:
		c := *s
		c.Body = fallbackReturns(s.Body).(*wgsl.BlockStmt)
		if s.Else != nil {
			c.Else = fallbackReturns(s.Else)
		}
		return &c
	case *wgsl.ForStmt:
		c := *s
		c.Body = fallbackReturns(s.Body).(*wgsl.BlockStmt)
		return &c
	case *wgsl.WhileStmt:
		c := *s
		c.Body = fallbackReturns(s.Body).(*wgsl.BlockStmt)
		return &c
	case *wgsl.LoopStmt:
		c := *s
		c.Body = fallbackReturns(s.Body).(*wgsl.BlockStmt)
		if s.Continuing != nil {
			c.Continuing = fallbackReturns(s.Continuing).(*wgsl.BlockStmt)
		}
		return &c
	case *wgsl.SwitchStmt:
		c := *s
		c.Cases = make([]*wgsl.SwitchCaseClause, len(s.Cases))
		for i, cc := range s.Cases {
			n := *cc
			n.Body = fallbackReturns(cc.Body).(*wgsl.BlockStmt)
			c.Cases[i] = &n
		}
		return &c
	}
	return s
}

func vecType(n int) wgsl.Type {
	return &wgsl.NamedType{
		Name:       "vec" + strconv.Itoa(n),
		TypeParams: []wgsl.Type{&wgsl.NamedType{Name: "f32"}},
	}
}

func floatLit(s string) wgsl.Expr {
	return &wgsl.Literal{Kind: wgsl.TokenFloatLiteral, Value: s}
}

func fallbackReturn() *wgsl.ReturnStmt {
	return &wgsl.ReturnStmt{Value: &wgsl.ConstructExpr{
		Type: vecType(4),
		Args: []wgsl.Expr{floatLit("0.0"), floatLit("0.0"), floatLit("0.0"), floatLit("1.0")},
	}}
}

// promote builds the return of the exposed variable: its components in
// order, padded with zeros and an alpha of one.
func promote(pt ExtractionPoint) *wgsl.ReturnStmt {
	v := variableExpr(pt.Variable)
	if pt.Kind != KindF32 {
		var t wgsl.Type = &wgsl.NamedType{Name: "f32"}
		if pt.Components > 1 {
			t = vecType(pt.Components)
		}
		v = &wgsl.ConstructExpr{Type: t, Args: []wgsl.Expr{v}}
	}
	args := []wgsl.Expr{v}
	switch pt.Components {
	case 1:
		args = append(args, floatLit("0.0"), floatLit("0.0"), floatLit("1.0"))
	case 2:
		args = append(args, floatLit("0.0"), floatLit("1.0"))
	case 3:
		args = append(args, floatLit("1.0"))
	}
	return &wgsl.ReturnStmt{Value: &wgsl.ConstructExpr{Type: vecType(4), Args: args}}
}
