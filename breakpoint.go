// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shaderdbg

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/shaderdbg/shader"
)

// MaxBreakpoints is the number of breakpoints tracked in the hit mask.
// Breakpoints past this index are ignored.
const MaxBreakpoints = 8

// Breakpoint stops pixel shader inspection at a source line.
type Breakpoint struct {
	// Line is the 1-based source line in the pixel shader.
	Line int
	// Function restricts the breakpoint to one function. Empty matches
	// whatever function is executing at Line.
	Function string
	// Condition is a WGSL boolean expression over the variables in scope
	// at Line. Empty means unconditional.
	Condition string
	// Color is the overlay colour of pixels that hit the breakpoint.
	Color gputypes.Color
}

// conditionKey identifies a compiled condition across breakpoint sets.
type conditionKey struct {
	program  uint64
	function string
	expr     string
}

// breakpointRecord is the session state of one breakpoint. The evaluator
// owns the condition's private machine; release frees both together.
type breakpointRecord struct {
	bp  Breakpoint
	bit uint8

	// prog and function are what the evaluator was compiled against, or
	// what compilation failed for. A pass with a different pixel shader
	// recompiles.
	prog     *shader.Program
	function string
	key      conditionKey
	cached   bool
	failed   bool
	warned   bool
	eval     *shader.Evaluator
}

func (r *breakpointRecord) release() {
	if r.eval != nil {
		r.eval.Release()
		r.eval = nil
	}
	r.prog = nil
	r.key = conditionKey{}
	r.cached = false
	r.failed = false
}

// SetBreakpoints replaces the breakpoint set, releasing every previous
// record. Only the first MaxBreakpoints are kept. The hit mask is
// (re)allocated to match the current framebuffer.
func (a *Analyzer) SetBreakpoints(bps []Breakpoint) {
	a.ClearBreakpoints()
	if len(bps) > MaxBreakpoints {
		Logger().Warn("shaderdbg: too many breakpoints", "count", len(bps), "kept", MaxBreakpoints)
		bps = bps[:MaxBreakpoints]
	}
	for i, bp := range bps {
		a.breakpoints = append(a.breakpoints, &breakpointRecord{bp: bp, bit: uint8(1) << i})
	}
	if len(a.breakpoints) > 0 && a.color != nil {
		a.hits = make([]uint8, a.width*a.height)
	}
	Logger().Info("shaderdbg: breakpoints set", "count", len(a.breakpoints))
}

// ClearBreakpoints releases every breakpoint record and drops the hit mask.
func (a *Analyzer) ClearBreakpoints() {
	for _, r := range a.breakpoints {
		r.release()
	}
	a.breakpoints = nil
	a.hits = nil
}

// Breakpoints returns the active breakpoints in hit-mask bit order.
func (a *Analyzer) Breakpoints() []Breakpoint {
	out := make([]Breakpoint, len(a.breakpoints))
	for i, r := range a.breakpoints {
		out[i] = r.bp
	}
	return out
}

// checkBreakpoints runs before every statement of the pixel shader and
// returns the bits of the breakpoints that hit there.
func (a *Analyzer) checkBreakpoints(m *shader.Machine) uint8 {
	var hits uint8
	line, fn := m.Line(), m.Function()
	for _, r := range a.breakpoints {
		if r.bp.Line != line || (r.bp.Function != "" && r.bp.Function != fn) {
			continue
		}
		if r.bp.Condition == "" {
			hits |= r.bit
			continue
		}
		if r.evaluate(a, m) {
			hits |= r.bit
		}
	}
	return hits
}

// evaluate compiles the condition on first use and evaluates it against
// the state of m. A condition that does not compile is false until the
// pixel shader or function changes. An evaluation error is false for the
// current pixel only.
func (r *breakpointRecord) evaluate(a *Analyzer, m *shader.Machine) bool {
	prog, fn := m.Program(), m.Function()
	same := r.prog == prog && r.function == fn
	if r.failed && same {
		return false
	}
	if !r.cached || !same {
		r.release()
		key := conditionKey{program: prog.Fingerprint(), function: fn, expr: r.bp.Condition}
		cond, err := a.conditions.GetOrCreate(key, func() (*shader.Condition, error) {
			return shader.CompileCondition(prog, fn, r.bp.Condition)
		})
		r.prog, r.function = prog, fn
		if err != nil {
			Logger().Warn("shaderdbg: breakpoint condition failed to compile",
				"line", r.bp.Line, "condition", r.bp.Condition, "err", err)
			r.failed = true
			return false
		}
		r.eval = shader.NewEvaluator(cond)
		r.key, r.cached = key, true
	}
	hit, err := r.eval.Evaluate(m)
	if err != nil {
		if !r.warned {
			Logger().Warn("shaderdbg: breakpoint condition failed",
				"line", r.bp.Line, "condition", r.bp.Condition, "err", err)
			r.warned = true
		}
		return false
	}
	return hit
}
