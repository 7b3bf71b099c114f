// attention.go - Attention gegen den abstrakten KV-Cache
//
// Dieses Modul enthaelt:
// - Attention: Scaled-Dot-Product-Attention ueber die kompaktierten
//   Cache-Inhalte, inkl. GQA/MQA-Head-Sharing, kausaler Maske und
//   Rotary-/ALiBi-Positionskodierung
//
// Es gibt genau eine Attention-Implementierung; Architekturen unterscheiden
// sich nur durch ihren Layout-Deskriptor.
package model

import (
	"fmt"
	"math"

	"github.com/streamkv/streamkv/ml"
)

// Attention computes attention for the newest tokens of one layer.
//
// query covers the t newly decoded tokens; key and value are the layer's
// full cached tensors as returned by the cache after this step's update.
// positions are the compacted ids for every cache slot; the query tokens
// occupy the trailing t ids. All tensors are in the layout's native axis
// order. The result has the query's shape.
//
// Rotary encoding is applied here, at attention time, with the compacted
// ids: cached keys are stored unrotated, so a token's rotation follows its
// current slot rather than its true generation step. ALiBi biases use slot
// distance in the same compacted space. Learned encodings consume the ids
// upstream at embedding time and need nothing here.
func Attention(query, key, value *ml.Tensor, positions []int32, layout ml.KVLayout, rope *RoPE) (*ml.Tensor, error) {
	qShape := query.Shape()
	kShape := key.Shape()

	if len(qShape) != 4 || len(kShape) != 4 {
		return nil, fmt.Errorf("expected rank 4 tensors (query %v, key %v)", qShape, kShape)
	}

	slotsAxis := layout.SlotsAxis()
	headsAxis := 3 - slotsAxis // the non-batch, non-dim axis

	t := qShape[slotsAxis]
	n := kShape[slotsAxis]
	batch := qShape[0]

	switch {
	case qShape[headsAxis] != layout.NumHeads:
		return nil, fmt.Errorf("query has %v heads, layout wants %v", qShape[headsAxis], layout.NumHeads)
	case kShape[headsAxis] != layout.NumKVHeads:
		return nil, fmt.Errorf("key has %v heads, layout wants %v", kShape[headsAxis], layout.NumKVHeads)
	case qShape[3] != layout.HeadDim || kShape[3] != layout.HeadDim:
		return nil, fmt.Errorf("head dim mismatch (query %v, key %v, layout %v)", qShape[3], kShape[3], layout.HeadDim)
	case len(positions) != n:
		return nil, fmt.Errorf("%v position ids for %v cache slots", len(positions), n)
	case t > n:
		return nil, fmt.Errorf("query covers %v tokens but cache holds only %v", t, n)
	case kShape[0] != batch || value.Dim(0) != batch:
		return nil, fmt.Errorf("batch size mismatch (query %v, key %v, value %v)", batch, kShape[0], value.Dim(0))
	}

	if layout.Encoding == ml.EncodingRotary {
		if rope == nil {
			return nil, fmt.Errorf("rotary layout requires a rope table")
		}

		var err error
		if key, err = rope.Apply(key, layout.Order, positions); err != nil {
			return nil, fmt.Errorf("rotate keys: %w", err)
		}

		if query, err = rope.Apply(query, layout.Order, positions[n-t:]); err != nil {
			return nil, fmt.Errorf("rotate queries: %w", err)
		}
	}

	var slopes []float32
	if layout.Encoding == ml.EncodingALiBi {
		slopes = ALiBiSlopes(layout.NumHeads)
	}

	// index builds a native-order index for (batch, head, slot, dim)
	index := func(b, h, s, d int) []int {
		if layout.Order == ml.OrderBatchSlotsHeadsDim {
			return []int{b, s, h, d}
		}

		return []int{b, h, s, d}
	}

	groupSize := layout.GroupSize()
	scale := 1 / math.Sqrt(float64(layout.HeadDim))

	out := ml.Zeros(ml.DTypeF32, qShape...)
	scores := make([]float64, n)

	for b := range batch {
		for qh := range layout.NumHeads {
			kvh := qh / groupSize

			for qi := range t {
				qPos := positions[n-t+qi]

				for kj := range n {
					kPos := positions[kj]
					if kPos > qPos {
						scores[kj] = math.Inf(-1)
						continue
					}

					var dot float64
					for d := range layout.HeadDim {
						dot += float64(query.At(index(b, qh, qi, d)...)) * float64(key.At(index(b, kvh, kj, d)...))
					}

					score := dot * scale
					if slopes != nil {
						score += float64(slopes[qh]) * float64(kPos-qPos)
					}

					scores[kj] = score
				}

				// softmax over the unmasked slots
				maxScore := math.Inf(-1)
				for _, s := range scores {
					maxScore = math.Max(maxScore, s)
				}

				var sum float64
				for kj, s := range scores {
					if math.IsInf(s, -1) {
						scores[kj] = 0
						continue
					}

					scores[kj] = math.Exp(s - maxScore)
					sum += scores[kj]
				}

				for d := range layout.HeadDim {
					var acc float64
					for kj := range n {
						if scores[kj] == 0 {
							continue
						}

						acc += scores[kj] / sum * float64(value.At(index(b, kvh, kj, d)...))
					}

					out.Set(float32(acc), index(b, qh, qi, d)...)
				}
			}
		}
	}

	return out, nil
}
