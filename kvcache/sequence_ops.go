// sequence_ops.go - Beam-Operationen
//
// Dieses Modul verwaltet Batch-bezogene Operationen:
// - Reorder: Re-Indizierung aller Layer entlang der Batch-Achse nach
//   Beam-Re-Ranking
package kvcache

import (
	"fmt"

	"github.com/streamkv/streamkv/ml"
)

// Reorder re-indexes every layer's stored tensors along the batch dimension
// according to the given gather list: output beam i takes the history of
// input beam indices[i]. Indices may repeat (a surviving beam can fan out).
//
// All replacement tensors are built before any are installed, so every layer
// is reordered identically and atomically. A partial reorder would let beams
// read another beam's history, which is why validation failures leave the
// cache untouched.
func (c *AttentionSink) Reorder(indices []int) error {
	n, err := c.checkLockstep()
	if err != nil {
		return err
	}

	if n == 0 {
		return nil
	}

	if len(indices) != c.batchSize {
		return fmt.Errorf("%w: reorder of %v beams against batch size %v", ErrInconsistentCacheState, len(indices), c.batchSize)
	}

	for _, idx := range indices {
		if idx < 0 || idx >= c.batchSize {
			return fmt.Errorf("%w: beam index %v out of range (batch size %v)", ErrInconsistentCacheState, idx, c.batchSize)
		}
	}

	axis := c.layout.BatchAxis()
	keys := make([]*ml.Tensor, c.numLayers)
	values := make([]*ml.Tensor, c.numLayers)
	for i := range c.numLayers {
		keys[i] = c.keys[i].Gather(axis, indices)
		values[i] = c.values[i].Gather(axis, indices)
	}

	c.keys = keys
	c.values = values

	return nil
}
