package shader

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"strconv"
)

// Input is one @location input of an entry point.
type Input struct {
	Location int
	// Type is a zero value of the declared type.
	Type Value
}

// Inputs lists the @location inputs of e in location order, including
// those declared as members of a struct parameter.
func (p *Program) Inputs(e *EntryPoint) ([]Input, error) {
	var out []Input
	for _, prm := range e.Function.Params {
		tmpl, err := p.typeTemplate(prm.Type)
		if err != nil {
			return nil, err
		}
		if loc, ok := attrLocation(prm.Attributes); ok {
			out = append(out, Input{Location: loc, Type: tmpl})
			continue
		}
		if tmpl.Kind != KindStruct {
			continue
		}
		for _, mem := range p.structs[tmpl.TypeName].Members {
			loc, ok := attrLocation(mem.Attributes)
			if !ok {
				continue
			}
			mt, err := p.typeTemplate(mem.Type)
			if err != nil {
				return nil, err
			}
			out = append(out, Input{Location: loc, Type: mt})
		}
	}
	slices.SortFunc(out, func(a, b Input) int { return a.Location - b.Location })
	return out, nil
}

// Resource is a module-scope variable bound with @group and @binding.
type Resource struct {
	Name         string
	Group        int
	Binding      int
	AddressSpace string
	Type         Value
}

// Resources lists the bound globals of the program.
func (p *Program) Resources() ([]Resource, error) {
	var out []Resource
	for _, g := range p.globals {
		gs, ok1 := attrArg(g.Attributes, "group")
		bs, ok2 := attrArg(g.Attributes, "binding")
		if !ok1 || !ok2 {
			continue
		}
		group, err := strconv.Atoi(gs)
		if err != nil {
			return nil, fmt.Errorf("%w: @group(%s) on %s", ErrUnsupported, gs, g.Name)
		}
		bind, err := strconv.Atoi(bs)
		if err != nil {
			return nil, fmt.Errorf("%w: @binding(%s) on %s", ErrUnsupported, bs, g.Name)
		}
		tmpl, err := p.typeTemplate(g.Type)
		if err != nil {
			return nil, err
		}
		out = append(out, Resource{Name: g.Name, Group: group, Binding: bind, AddressSpace: g.AddressSpace, Type: tmpl})
	}
	return out, nil
}

// UniformSize returns the size in bytes of v in the uniform address space.
func UniformSize(v Value) (int, error) {
	_, size, err := uniformLayout(v)
	return size, err
}

// EncodeUniform lays v out with the uniform address space rules: vec3 and
// vec4 align to 16 bytes, matrix columns are padded to a vector, and
// struct members and array elements align to 16.
func EncodeUniform(v Value) ([]byte, error) {
	_, size, err := uniformLayout(v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if err := putUniform(buf, v); err != nil {
		return nil, err
	}
	return buf, nil
}

func roundUp(align, n int) int {
	return (n + align - 1) / align * align
}

// vectorLayout is the alignment and size of an n-component vector of
// 4-byte scalars.
func vectorLayout(n int) (align, size int) {
	switch n {
	case 1:
		return 4, 4
	case 2:
		return 8, 8
	case 3:
		return 16, 12
	}
	return 16, 16
}

func uniformLayout(v Value) (align, size int, err error) {
	switch v.Kind {
	case KindF32, KindI32, KindU32:
		if v.IsMatrix() {
			a, s := vectorLayout(v.Size)
			return a, v.Cols * roundUp(a, s), nil
		}
		a, s := vectorLayout(v.Size)
		return a, s, nil
	case KindStruct:
		off, maxAlign := 0, 4
		for _, f := range v.Fields {
			a, s, err := uniformLayout(f)
			if err != nil {
				return 0, 0, err
			}
			a = memberAlign(f, a)
			off = roundUp(a, off) + s
			maxAlign = max(maxAlign, a)
		}
		maxAlign = roundUp(16, maxAlign)
		return maxAlign, roundUp(maxAlign, off), nil
	case KindArray:
		if len(v.Fields) == 0 {
			return 0, 0, fmt.Errorf("%w: runtime-sized array in a uniform", ErrUnsupported)
		}
		a, s, err := uniformLayout(v.Fields[0])
		if err != nil {
			return 0, 0, err
		}
		a = roundUp(16, a)
		return a, len(v.Fields) * roundUp(a, s), nil
	}
	return 0, 0, fmt.Errorf("%w: %s in a uniform", ErrUnsupported, v.TypeString())
}

// memberAlign applies the uniform rule that struct-typed members start on
// a 16-byte boundary.
func memberAlign(v Value, a int) int {
	if v.Kind == KindStruct || v.Kind == KindArray {
		return roundUp(16, a)
	}
	return a
}

func putUniform(buf []byte, v Value) error {
	switch v.Kind {
	case KindF32, KindI32, KindU32:
		stride := v.Size
		if v.IsMatrix() {
			a, s := vectorLayout(v.Size)
			stride = roundUp(a, s) / 4
		}
		for c := 0; c < max(1, v.Cols); c++ {
			for r := 0; r < v.Size; r++ {
				putScalar(buf[4*(c*stride+r):], v.Kind, v.Comp(c*v.Size+r))
			}
		}
		return nil
	case KindStruct:
		off := 0
		for _, f := range v.Fields {
			a, s, err := uniformLayout(f)
			if err != nil {
				return err
			}
			off = roundUp(memberAlign(f, a), off)
			if err := putUniform(buf[off:off+s], f); err != nil {
				return err
			}
			off += s
		}
		return nil
	case KindArray:
		a, s, err := uniformLayout(v.Fields[0])
		if err != nil {
			return err
		}
		stride := roundUp(roundUp(16, a), s)
		for i, e := range v.Fields {
			if err := putUniform(buf[i*stride:i*stride+s], e); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %s in a uniform", ErrUnsupported, v.TypeString())
}

func putScalar(b []byte, kind Kind, c float64) {
	var bits uint32
	switch kind {
	case KindF32:
		bits = math.Float32bits(float32(c))
	case KindI32:
		bits = uint32(int32(int64(c)))
	default:
		bits = uint32(int64(c))
	}
	binary.LittleEndian.PutUint32(b, bits)
}
