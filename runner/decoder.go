// decoder.go - Decoder-Interface und synthetischer Decoder
//
// Dieses Modul enthaelt:
// - Decoder: liefert pro Schritt die neuen Q/K/V-Tensoren aller Layer
// - SyntheticDecoder: deterministischer Decoder ohne Gewichte fuer
//   Benchmarks und Tests
package runner

import (
	"math/rand/v2"

	"github.com/streamkv/streamkv/ml"
)

// Decoder produces the per-layer tensors for the next decode step. Real
// integrations back this with a transformer forward pass; the cache only
// cares that every layer is covered.
type Decoder interface {
	// Forward returns per-layer query, key and value tensors for the newly
	// generated token(s) of the given step, in the layout's native order.
	Forward(step int) (queries, keys, values []*ml.Tensor, err error)
}

// SyntheticDecoder emits seeded pseudo-random projections. It produces the
// same tensor traffic per step as a real model with the same layout, which
// is all the cache and benchmark need.
type SyntheticDecoder struct {
	layout    ml.KVLayout
	numLayers int
	batchSize int
	rng       *rand.Rand
}

func NewSyntheticDecoder(layout ml.KVLayout, numLayers, batchSize int, seed uint64) *SyntheticDecoder {
	return &SyntheticDecoder{
		layout:    layout,
		numLayers: numLayers,
		batchSize: batchSize,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (d *SyntheticDecoder) random(shape []int) *ml.Tensor {
	n := 1
	for _, dim := range shape {
		n *= dim
	}

	data := make([]float32, n)
	for i := range data {
		data[i] = d.rng.Float32()*2 - 1
	}

	return ml.FromFloats(data, shape...)
}

func (d *SyntheticDecoder) Forward(step int) ([]*ml.Tensor, []*ml.Tensor, []*ml.Tensor, error) {
	kvShape := d.layout.ShapeFor(d.batchSize, 1)

	qShape := make([]int, len(kvShape))
	copy(qShape, kvShape)
	qHeadsAxis := 3 - d.layout.SlotsAxis()
	qShape[qHeadsAxis] = d.layout.NumHeads

	queries := make([]*ml.Tensor, d.numLayers)
	keys := make([]*ml.Tensor, d.numLayers)
	values := make([]*ml.Tensor, d.numLayers)
	for i := range d.numLayers {
		queries[i] = d.random(qShape)
		keys[i] = d.random(kvShape)
		values[i] = d.random(kvShape)
	}

	return queries, keys, values, nil
}
