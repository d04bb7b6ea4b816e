package shader

import "github.com/gogpu/naga/wgsl"

// walkStmts calls visit for every statement and expression reachable from
// stmts, parents before children.
func walkStmts(stmts []wgsl.Stmt, visit func(node any)) {
	for _, s := range stmts {
		walkStmt(s, visit)
	}
}

func walkStmt(s wgsl.Stmt, visit func(node any)) {
	if s == nil {
		return
	}
	visit(s)
	switch s := s.(type) {
	case *wgsl.BlockStmt:
		if s != nil {
			walkStmts(s.Statements, visit)
		}
	case *wgsl.VarDecl:
		walkExpr(s.Init, visit)
	case *wgsl.ConstDecl:
		walkExpr(s.Init, visit)
	case *wgsl.ReturnStmt:
		walkExpr(s.Value, visit)
	case *wgsl.IfStmt:
		walkExpr(s.Condition, visit)
		walkStmt(s.Body, visit)
		walkStmt(s.Else, visit)
	case *wgsl.ForStmt:
		walkStmt(s.Init, visit)
		walkExpr(s.Condition, visit)
		walkStmt(s.Update, visit)
		walkStmt(s.Body, visit)
	case *wgsl.WhileStmt:
		walkExpr(s.Condition, visit)
		walkStmt(s.Body, visit)
	case *wgsl.LoopStmt:
		walkStmt(s.Body, visit)
		if s.Continuing != nil {
			walkStmt(s.Continuing, visit)
		}
	case *wgsl.AssignStmt:
		walkExpr(s.Left, visit)
		walkExpr(s.Right, visit)
	case *wgsl.ExprStmt:
		walkExpr(s.Expr, visit)
	case *wgsl.SwitchStmt:
		walkExpr(s.Selector, visit)
		for _, c := range s.Cases {
			for _, sel := range c.Selectors {
				walkExpr(sel, visit)
			}
			walkStmt(c.Body, visit)
		}
	}
}

func walkExpr(e wgsl.Expr, visit func(node any)) {
	if e == nil {
		return
	}
	visit(e)
	switch e := e.(type) {
	case *wgsl.BinaryExpr:
		walkExpr(e.Left, visit)
		walkExpr(e.Right, visit)
	case *wgsl.UnaryExpr:
		walkExpr(e.Operand, visit)
	case *wgsl.CallExpr:
		for _, a := range e.Args {
			walkExpr(a, visit)
		}
	case *wgsl.IndexExpr:
		walkExpr(e.Expr, visit)
		walkExpr(e.Index, visit)
	case *wgsl.MemberExpr:
		walkExpr(e.Expr, visit)
	case *wgsl.ConstructExpr:
		for _, a := range e.Args {
			walkExpr(a, visit)
		}
	case *wgsl.BitcastExpr:
		walkExpr(e.Expr, visit)
	}
}

// stmtLine returns the source line a statement starts on.
func stmtLine(s wgsl.Stmt) int {
	if s == nil {
		return 0
	}
	return s.Pos().Start.Line
}

// attrArg returns the first argument of the named attribute as text.
func attrArg(attrs []wgsl.Attribute, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name != name {
			continue
		}
		if len(a.Args) == 0 {
			return "", true
		}
		switch arg := a.Args[0].(type) {
		case *wgsl.Ident:
			return arg.Name, true
		case *wgsl.Literal:
			return arg.Value, true
		}
		return "", true
	}
	return "", false
}

// attrLocation returns the @location index, if present.
func attrLocation(attrs []wgsl.Attribute) (int, bool) {
	s, ok := attrArg(attrs, "location")
	if !ok {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// attrBuiltin returns the @builtin name, if present.
func attrBuiltin(attrs []wgsl.Attribute) (string, bool) {
	return attrArg(attrs, "builtin")
}

func hasAttr(attrs []wgsl.Attribute, name string) bool {
	_, ok := attrArg(attrs, name)
	return ok
}
