// rope.go - Rotary Positional Embeddings auf kompaktierten Positions-IDs
//
// Dieses Modul enthaelt:
// - RoPE: vorab berechnete cos/sin-Tabellen ueber den beschraenkten
//   Positionsraum [0, Kapazitaet)
// - Apply: Rotation eines Q- oder K-Tensors mit gegebenen Positions-IDs
//
// Die Tabellen decken genau den kompaktierten ID-Raum des Caches ab; echte
// Generierungsschritte tauchen hier nie als Index auf.
package model

import (
	"fmt"
	"math"

	"github.com/streamkv/streamkv/ml"
)

// DefaultFreqBase is the rotary frequency base shared by the supported
// rotary architectures.
const DefaultFreqBase = 10000.0

type RoPE struct {
	cosTable []float32 // [maxPositions * halfDim]
	sinTable []float32
	headDim  int
	halfDim  int
	maxPos   int
}

// NewRoPE precomputes cos/sin lookup tables for every position id the cache
// can hand out. maxPositions is the cache capacity (sink + window).
func NewRoPE(headDim int, freqBase float64, maxPositions int) *RoPE {
	halfDim := headDim / 2

	cosTable := make([]float32, maxPositions*halfDim)
	sinTable := make([]float32, maxPositions*halfDim)

	for pos := range maxPositions {
		base := pos * halfDim
		for i := range halfDim {
			freq := 1.0 / math.Pow(freqBase, float64(2*i)/float64(headDim))
			angle := float64(pos) * freq
			cosTable[base+i] = float32(math.Cos(angle))
			sinTable[base+i] = float32(math.Sin(angle))
		}
	}

	return &RoPE{
		cosTable: cosTable,
		sinTable: sinTable,
		headDim:  headDim,
		halfDim:  halfDim,
		maxPos:   maxPositions,
	}
}

// Apply rotates x with the given per-slot position ids and returns a new
// tensor. x is a query or key tensor in the layout's native axis order; its
// head axis may carry either query heads or kv heads.
func (r *RoPE) Apply(x *ml.Tensor, order ml.AxisOrder, positions []int32) (*ml.Tensor, error) {
	shape := x.Shape()

	slotsAxis, headsAxis := 2, 1
	if order == ml.OrderBatchSlotsHeadsDim {
		slotsAxis, headsAxis = 1, 2
	}

	if shape[3] != r.headDim {
		return nil, fmt.Errorf("head dim %v does not match rope dim %v", shape[3], r.headDim)
	}

	if len(positions) != shape[slotsAxis] {
		return nil, fmt.Errorf("%v position ids for %v slots", len(positions), shape[slotsAxis])
	}

	out := x.Clone()
	index := make([]int, 4)

	for b := range shape[0] {
		index[0] = b
		for h := range shape[headsAxis] {
			index[headsAxis] = h
			for s := range shape[slotsAxis] {
				pos := int(positions[s])
				if pos < 0 || pos >= r.maxPos {
					return nil, fmt.Errorf("position id %v outside table range [0, %v)", pos, r.maxPos)
				}

				index[slotsAxis] = s
				base := pos * r.halfDim

				// rotate pairs (i, i+halfDim)
				for i := range r.halfDim {
					cos := r.cosTable[base+i]
					sin := r.sinTable[base+i]

					index[3] = i
					x1 := x.At(index...)
					index[3] = i + r.halfDim
					x2 := x.At(index...)

					out.Set(x2*cos+x1*sin, index...)
					index[3] = i
					out.Set(x1*cos-x2*sin, index...)
				}
			}
		}
	}

	return out, nil
}
