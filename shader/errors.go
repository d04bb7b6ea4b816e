package shader

import (
	"errors"
	"fmt"
	"strings"
)

// Compilation and execution errors.
var (
	// ErrNoEntryPoint is returned when the requested entry point does not exist.
	ErrNoEntryPoint = errors.New("shader: entry point not found")

	// ErrValidation is returned when the lowered module fails validation.
	ErrValidation = errors.New("shader: validation failed")

	// ErrUnknownIdentifier is returned for names that resolve to nothing.
	ErrUnknownIdentifier = errors.New("shader: unknown identifier")

	// ErrUnknownFunction is returned when a call or lookup names no function.
	ErrUnknownFunction = errors.New("shader: unknown function")

	// ErrUnknownType is returned for type names that cannot be resolved.
	ErrUnknownType = errors.New("shader: unknown type")

	// ErrTypeMismatch is returned when operand shapes are incompatible.
	ErrTypeMismatch = errors.New("shader: type mismatch")

	// ErrUnsupported is returned for language features the interpreter lacks.
	ErrUnsupported = errors.New("shader: unsupported construct")

	// ErrCallDepth is returned when nested calls exceed the stack limit.
	ErrCallDepth = errors.New("shader: call depth exceeded")

	// ErrDegenerateCondition is returned when a breakpoint condition has
	// no evaluable body.
	ErrDegenerateCondition = errors.New("shader: degenerate condition")

	// ErrNoExtractionPoint is returned when a variable cannot be located at
	// the requested line.
	ErrNoExtractionPoint = errors.New("shader: no extraction point")

	// ErrUnknownVariableType is returned when the shape of a variable cannot
	// be inferred statically.
	ErrUnknownVariableType = errors.New("shader: cannot infer variable type")
)

// RuntimeError is an execution failure tied to a source location.
type RuntimeError struct {
	Function string
	Line     int
	Err      error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("shader: %s:%d: %v", e.Function, e.Line, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// halt unwinds the Go stack when an invocation discards.
type halt struct{}

// UBFlags records undefined-behavior conditions observed during execution.
type UBFlags uint32

// Undefined-behavior conditions.
const (
	UBDivisionByZero UBFlags = 1 << iota
	UBIndexOutOfBounds
	UBUninitializedRead
	UBInvalidMathDomain
	UBShiftOverflow
	UBInfiniteLoop
)

var ubNames = [...]string{
	"division-by-zero",
	"index-out-of-bounds",
	"uninitialized-read",
	"invalid-math-domain",
	"shift-overflow",
	"infinite-loop",
}

// String lists the set flags separated by '|'.
func (f UBFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for i, name := range ubNames {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}
