// tensor.go - Dichte In-Memory-Tensoren fuer den KV-Cache
//
// Dieses Modul enthaelt:
// - Tensor: dichter, row-major Tensor mit F32- oder F16-Speicher
// - Zeros/FromFloats: Konstruktoren
// - At/Set/Floats: Elementzugriff
// - Cast: Konvertierung zwischen Datentypen
// - Concat: Verkettung entlang einer Achse (Append-Pfad)
// - Gather: Index-Selektion entlang einer Achse (Trim/Reorder-Pfad)
//
// Alle Operationen sind reine Speicherbewegung; ungueltige Argumente sind
// Programmierfehler des Aufrufers und fuehren zu panic.
package ml

import (
	"fmt"
	"slices"

	"github.com/x448/float16"
)

// Tensor is a dense row-major tensor. F16 storage halves cache residency and
// matches what inference runtimes keep in their KV caches by default.
type Tensor struct {
	dtype DType
	shape []int
	f32   []float32
	f16   []float16.Float16
}

func Zeros(dtype DType, shape ...int) *Tensor {
	t := &Tensor{dtype: dtype, shape: slices.Clone(shape)}

	switch dtype {
	case DTypeF32:
		t.f32 = make([]float32, t.Elems())
	case DTypeF16:
		t.f16 = make([]float16.Float16, t.Elems())
	default:
		panic(fmt.Errorf("unsupported dtype %v", dtype))
	}

	return t
}

func FromFloats(data []float32, shape ...int) *Tensor {
	t := &Tensor{dtype: DTypeF32, shape: slices.Clone(shape)}
	if len(data) != t.Elems() {
		panic(fmt.Errorf("data length %v does not match shape %v", len(data), shape))
	}

	t.f32 = slices.Clone(data)
	return t
}

func (t *Tensor) DType() DType {
	return t.dtype
}

func (t *Tensor) Shape() []int {
	return slices.Clone(t.shape)
}

func (t *Tensor) Dim(i int) int {
	return t.shape[i]
}

func (t *Tensor) Elems() int {
	n := 1
	for _, d := range t.shape {
		n *= d
	}

	return n
}

func (t *Tensor) offset(index ...int) int {
	if len(index) != len(t.shape) {
		panic(fmt.Errorf("index rank %v does not match tensor rank %v", len(index), len(t.shape)))
	}

	offset := 0
	for i, idx := range index {
		if idx < 0 || idx >= t.shape[i] {
			panic(fmt.Errorf("index %v out of range for axis %v (size %v)", idx, i, t.shape[i]))
		}

		offset = offset*t.shape[i] + idx
	}

	return offset
}

func (t *Tensor) At(index ...int) float32 {
	i := t.offset(index...)
	if t.dtype == DTypeF16 {
		return t.f16[i].Float32()
	}

	return t.f32[i]
}

func (t *Tensor) Set(value float32, index ...int) {
	i := t.offset(index...)
	if t.dtype == DTypeF16 {
		t.f16[i] = float16.Fromfloat32(value)
		return
	}

	t.f32[i] = value
}

// Floats materializes the tensor contents as float32 in row-major order.
func (t *Tensor) Floats() []float32 {
	if t.dtype == DTypeF32 {
		return slices.Clone(t.f32)
	}

	out := make([]float32, len(t.f16))
	for i, v := range t.f16 {
		out[i] = v.Float32()
	}

	return out
}

func (t *Tensor) Cast(dtype DType) *Tensor {
	if dtype == t.dtype {
		return t.Clone()
	}

	out := Zeros(dtype, t.shape...)
	switch dtype {
	case DTypeF16:
		for i, v := range t.f32 {
			out.f16[i] = float16.Fromfloat32(v)
		}
	case DTypeF32:
		for i, v := range t.f16 {
			out.f32[i] = v.Float32()
		}
	default:
		panic(fmt.Errorf("unsupported dtype %v", dtype))
	}

	return out
}

func (t *Tensor) Clone() *Tensor {
	out := &Tensor{dtype: t.dtype, shape: slices.Clone(t.shape)}
	out.f32 = slices.Clone(t.f32)
	out.f16 = slices.Clone(t.f16)
	return out
}

func (t *Tensor) Equal(other *Tensor) bool {
	if other == nil || t.dtype != other.dtype || !slices.Equal(t.shape, other.shape) {
		return false
	}

	return slices.Equal(t.f32, other.f32) && slices.Equal(t.f16, other.f16)
}

// copyBlock copies n contiguous elements between tensors of the same dtype.
func copyBlock(dst, src *Tensor, dstOff, srcOff, n int) {
	if dst.dtype == DTypeF16 {
		copy(dst.f16[dstOff:dstOff+n], src.f16[srcOff:srcOff+n])
		return
	}

	copy(dst.f32[dstOff:dstOff+n], src.f32[srcOff:srcOff+n])
}

// innerSize is the number of elements spanned by one index step on axis.
func innerSize(shape []int, axis int) int {
	n := 1
	for _, d := range shape[axis+1:] {
		n *= d
	}

	return n
}

// outerSize is the number of independent blocks ahead of axis.
func outerSize(shape []int, axis int) int {
	n := 1
	for _, d := range shape[:axis] {
		n *= d
	}

	return n
}

// Concat concatenates tensors along the given axis. All inputs must share
// dtype and shape on every other axis.
func Concat(axis int, tensors ...*Tensor) *Tensor {
	if len(tensors) == 0 {
		panic("concat of zero tensors")
	}

	first := tensors[0]
	if axis < 0 || axis >= len(first.shape) {
		panic(fmt.Errorf("concat axis %v out of range for rank %v", axis, len(first.shape)))
	}

	total := 0
	for _, t := range tensors {
		if t.dtype != first.dtype || len(t.shape) != len(first.shape) {
			panic(fmt.Errorf("concat inputs disagree on dtype or rank"))
		}

		for i, d := range t.shape {
			if i != axis && d != first.shape[i] {
				panic(fmt.Errorf("concat inputs disagree on axis %v (%v vs %v)", i, d, first.shape[i]))
			}
		}

		total += t.shape[axis]
	}

	outShape := slices.Clone(first.shape)
	outShape[axis] = total
	out := Zeros(first.dtype, outShape...)

	inner := innerSize(outShape, axis)
	outer := outerSize(outShape, axis)

	for o := range outer {
		dstOff := o * total * inner
		for _, t := range tensors {
			n := t.shape[axis] * inner
			copyBlock(out, t, dstOff, o*n, n)
			dstOff += n
		}
	}

	return out
}

// Gather selects the given indices along axis, in order. Indices may repeat;
// the result's axis length equals len(indices).
func (t *Tensor) Gather(axis int, indices []int) *Tensor {
	if axis < 0 || axis >= len(t.shape) {
		panic(fmt.Errorf("gather axis %v out of range for rank %v", axis, len(t.shape)))
	}

	for _, idx := range indices {
		if idx < 0 || idx >= t.shape[axis] {
			panic(fmt.Errorf("gather index %v out of range for axis %v (size %v)", idx, axis, t.shape[axis]))
		}
	}

	outShape := slices.Clone(t.shape)
	outShape[axis] = len(indices)
	out := Zeros(t.dtype, outShape...)

	inner := innerSize(t.shape, axis)
	outer := outerSize(t.shape, axis)
	srcAxis := t.shape[axis]

	for o := range outer {
		for i, idx := range indices {
			copyBlock(out, t,
				(o*len(indices)+i)*inner,
				(o*srcAxis+idx)*inner,
				inner,
			)
		}
	}

	return out
}
