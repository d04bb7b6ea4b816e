package shader

import (
	"fmt"

	"github.com/gogpu/naga/wgsl"
)

func (m *Machine) execBlock(stmts []wgsl.Stmt) control {
	m.openScope()
	for _, s := range stmts {
		if c := m.exec(s); c != ctrlNext {
			m.closeScope()
			return c
		}
	}
	m.closeScope()
	return ctrlNext
}

func (m *Machine) exec(s wgsl.Stmt) control {
	if b, ok := s.(*wgsl.BlockStmt); ok {
		return m.execBlock(b.Statements)
	}
	m.before(s)
	switch s := s.(type) {
	case *wgsl.VarDecl:
		m.declare(s.Name, s.Type, s.Init, true)
	case *wgsl.ConstDecl:
		m.declare(s.Name, s.Type, s.Init, false)
	case *wgsl.AssignStmt:
		m.assign(s)
	case *wgsl.ExprStmt:
		m.eval(s.Expr)
	case *wgsl.ReturnStmt:
		return m.execReturn(s)
	case *wgsl.IfStmt:
		return m.execIf(s)
	case *wgsl.ForStmt:
		return m.execFor(s)
	case *wgsl.WhileStmt:
		return m.execWhile(s)
	case *wgsl.LoopStmt:
		return m.execLoop(s)
	case *wgsl.SwitchStmt:
		return m.execSwitch(s)
	case *wgsl.BreakStmt:
		return ctrlBreak
	case *wgsl.ContinueStmt:
		return ctrlContinue
	case *wgsl.DiscardStmt:
		m.discarded = true
		panic(halt{})
	default:
		m.fail(fmt.Errorf("%w: statement %T", ErrUnsupported, s))
	}
	if m.mirrors() {
		m.dx.mirror(s)
		m.dy.mirror(s)
	}
	return ctrlNext
}

func (m *Machine) declare(name string, t wgsl.Type, init wgsl.Expr, mutable bool) {
	var tmpl Value
	if t != nil {
		var err error
		tmpl, err = m.prog.typeTemplate(t)
		m.check(err)
	}
	if init == nil {
		m.bind(name, tmpl.Clone(), mutable, false)
		return
	}
	v := m.eval(init)
	if t != nil && v.Kind != KindPointer {
		var err error
		v, err = coerce(v, tmpl)
		m.check(err)
	} else {
		v = concrete(v).Clone()
	}
	m.bind(name, v, mutable, true)
}

var compoundOps = map[wgsl.TokenKind]wgsl.TokenKind{
	wgsl.TokenPlusEqual:           wgsl.TokenPlus,
	wgsl.TokenMinusEqual:          wgsl.TokenMinus,
	wgsl.TokenStarEqual:           wgsl.TokenStar,
	wgsl.TokenSlashEqual:          wgsl.TokenSlash,
	wgsl.TokenPercentEqual:        wgsl.TokenPercent,
	wgsl.TokenAmpEqual:            wgsl.TokenAmpersand,
	wgsl.TokenPipeEqual:           wgsl.TokenPipe,
	wgsl.TokenCaretEqual:          wgsl.TokenCaret,
	wgsl.TokenLessLessEqual:       wgsl.TokenLessLess,
	wgsl.TokenGreaterGreaterEqual: wgsl.TokenGreaterGreater,
}

func (m *Machine) assign(s *wgsl.AssignStmt) {
	if id, ok := s.Left.(*wgsl.Ident); ok && id.Name == "_" {
		m.eval(s.Right)
		return
	}
	v := m.eval(s.Right)
	if op, ok := compoundOps[s.Op]; ok {
		v = m.binop(op, m.eval(s.Left), v)
	}
	m.store(s.Left, v)
}

func (m *Machine) execReturn(s *wgsl.ReturnStmt) control {
	fr := m.top()
	if s.Value == nil {
		fr.ret = Value{}
		return ctrlReturn
	}
	v := m.eval(s.Value)
	if fr.fn.ReturnType != nil {
		tmpl, err := m.prog.typeTemplate(fr.fn.ReturnType)
		m.check(err)
		v, err = coerce(v, tmpl)
		m.check(err)
	} else {
		v = concrete(v).Clone()
	}
	fr.ret = v
	return ctrlReturn
}

func (m *Machine) execIf(s *wgsl.IfStmt) control {
	if m.condition(s.Condition) {
		return m.execBlock(s.Body.Statements)
	}
	if s.Else != nil {
		return m.exec(s.Else)
	}
	return ctrlNext
}

func (m *Machine) condition(e wgsl.Expr) bool {
	v := m.eval(e)
	if v.Kind != KindBool || v.Len() != 1 {
		m.fail(fmt.Errorf("%w: condition is %s, want bool", ErrTypeMismatch, v.TypeString()))
	}
	return v.Truth(0)
}

// loopGuard reports whether a loop may run another iteration.
func (m *Machine) loopGuard(iter int) bool {
	if iter < maxLoopIterations {
		return true
	}
	m.flag(UBInfiniteLoop)
	return false
}

func (m *Machine) execFor(s *wgsl.ForStmt) control {
	m.openScope()
	defer m.closeScopeIfOpen(len(m.frames), len(m.top().scopes))
	if s.Init != nil {
		m.exec(s.Init)
	}
	for iter := 0; m.loopGuard(iter); iter++ {
		if s.Condition != nil && !m.condition(s.Condition) {
			break
		}
		switch m.execBlock(s.Body.Statements) {
		case ctrlBreak:
			return ctrlNext
		case ctrlReturn:
			return ctrlReturn
		}
		if s.Update != nil {
			m.exec(s.Update)
		}
	}
	return ctrlNext
}

// closeScopeIfOpen closes the scope opened by a loop header once the loop
// exits normally. Panics leave the frame to be discarded.
func (m *Machine) closeScopeIfOpen(depth, scopes int) {
	if len(m.frames) == depth && len(m.top().scopes) == scopes {
		m.closeScope()
	}
}

func (m *Machine) execWhile(s *wgsl.WhileStmt) control {
	for iter := 0; m.loopGuard(iter); iter++ {
		if !m.condition(s.Condition) {
			break
		}
		switch m.execBlock(s.Body.Statements) {
		case ctrlBreak:
			return ctrlNext
		case ctrlReturn:
			return ctrlReturn
		}
	}
	return ctrlNext
}

func (m *Machine) execLoop(s *wgsl.LoopStmt) control {
	for iter := 0; m.loopGuard(iter); iter++ {
		switch m.execBlock(s.Body.Statements) {
		case ctrlBreak:
			return ctrlNext
		case ctrlReturn:
			return ctrlReturn
		}
		if s.Continuing != nil {
			switch m.execBlock(s.Continuing.Statements) {
			case ctrlBreak:
				return ctrlNext
			case ctrlReturn:
				return ctrlReturn
			}
		}
	}
	return ctrlNext
}

func (m *Machine) execSwitch(s *wgsl.SwitchStmt) control {
	sel := m.eval(s.Selector)
	if !sel.IsScalar() || (sel.Kind != KindI32 && sel.Kind != KindU32) {
		m.fail(fmt.Errorf("%w: switch selector is %s", ErrTypeMismatch, sel.TypeString()))
	}
	var chosen *wgsl.SwitchCaseClause
	for _, c := range s.Cases {
		if c.IsDefault && chosen == nil {
			chosen = c
		}
		for _, e := range c.Selectors {
			if m.eval(e).comps[0] == sel.comps[0] {
				return m.switchBody(c)
			}
		}
	}
	if chosen == nil {
		return ctrlNext
	}
	return m.switchBody(chosen)
}

func (m *Machine) switchBody(c *wgsl.SwitchCaseClause) control {
	ctl := m.execBlock(c.Body.Statements)
	if ctl == ctrlBreak {
		return ctrlNext
	}
	return ctl
}
