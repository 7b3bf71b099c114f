// forward.go - Eviction und Positions-Remapping
//
// Dieses Modul enthaelt die Kernlogik des Eviction-Policy:
// - StartForward: Lockstep-Pruefung, Eviction, kompaktierte Positions-IDs
// - Update: Schrittvertrag fuer den Forward-Pass (Append aller Layer +
//   StartForward in einem Aufruf)
// - checkLockstep/evict: interne Invariantenpflege
package kvcache

import (
	"fmt"
	"log/slog"

	"github.com/streamkv/streamkv/ml"
)

// StartForward restores the capacity invariant after the current step's
// appends and returns the compacted position ids for the next forward pass.
//
// Sink slots keep ids 0..sinkSize-1 permanently; window slots follow
// contiguously. The ids therefore never exceed sinkSize+windowSize-1, no
// matter how many tokens have been generated: positional encodings see a
// contiguous, bounded address space with no gap where tokens were evicted.
func (c *AttentionSink) StartForward() ([]int32, error) {
	n, err := c.checkLockstep()
	if err != nil {
		return nil, err
	}

	c.seenTokens += n - c.compactedLen

	if excess := n - c.Capacity(); excess > 0 {
		c.evict(n, excess)
		n = c.Capacity()

		slog.Debug("evicted kv cache slots",
			"excess", excess,
			"sink", c.sinkSize,
			"window", c.windowSize,
			"seen", c.seenTokens)
	}

	c.compactedLen = n

	positions := make([]int32, n)
	for i := range positions {
		positions[i] = int32(i)
	}

	return positions, nil
}

// checkLockstep verifies that every layer stores the same number of slots
// and that each key tensor is paired with an equally long value tensor.
func (c *AttentionSink) checkLockstep() (int, error) {
	axis := c.layout.SlotsAxis()
	n := c.layerLen(0)

	for i := range c.numLayers {
		if (c.keys[i] == nil) != (c.values[i] == nil) {
			return 0, fmt.Errorf("%w: layer %v has keys without values", ErrInconsistentCacheState, i)
		}

		if c.layerLen(i) != n {
			return 0, fmt.Errorf("%w: layer %v has %v slots, layer 0 has %v", ErrInconsistentCacheState, i, c.layerLen(i), n)
		}

		if c.values[i] != nil && c.values[i].Dim(axis) != n {
			return 0, fmt.Errorf("%w: layer %v value length %v does not match key length %v", ErrInconsistentCacheState, i, c.values[i].Dim(axis), n)
		}
	}

	return n, nil
}

// evict drops the oldest non-sink slots [sinkSize, sinkSize+excess) from
// every layer, preserving recency ordering within the window. All layers are
// compacted in one pass so they can never drift apart.
func (c *AttentionSink) evict(n, excess int) {
	keep := make([]int, 0, n-excess)
	for i := range c.sinkSize {
		keep = append(keep, i)
	}
	for i := c.sinkSize + excess; i < n; i++ {
		keep = append(keep, i)
	}

	axis := c.layout.SlotsAxis()
	for i := range c.numLayers {
		c.keys[i] = c.keys[i].Gather(axis, keep)
		c.values[i] = c.values[i].Gather(axis, keep)
	}
}

// Update is the per-step contract consumed by the forward pass: append the
// newly computed key/value tensors for every layer, restore the capacity
// bound and hand back the updated per-layer tensors plus the position ids
// for this step's attention and positional encoding.
//
// Nothing is mutated unless every layer's tensors pass validation, so a
// rejected update leaves the cache in its last-known-good state.
func (c *AttentionSink) Update(keys, values []*ml.Tensor) ([]*ml.Tensor, []*ml.Tensor, []int32, error) {
	if len(keys) != c.numLayers || len(values) != c.numLayers {
		return nil, nil, nil, fmt.Errorf("%w: got %v key and %v value tensors for %v layers", ErrIncompatibleAppend, len(keys), len(values), c.numLayers)
	}

	axis := c.layout.SlotsAxis()
	for i := range c.numLayers {
		if err := c.validateAppend(keys[i], values[i]); err != nil {
			return nil, nil, nil, fmt.Errorf("layer %v: %w", i, err)
		}

		if keys[i].Dim(axis) != keys[0].Dim(axis) {
			return nil, nil, nil, fmt.Errorf("%w: layer %v appends %v tokens, layer 0 appends %v", ErrIncompatibleAppend, i, keys[i].Dim(axis), keys[0].Dim(axis))
		}
	}

	prev := c.curLayer
	for i := range c.numLayers {
		c.SetLayer(i)
		if err := c.Put(keys[i], values[i]); err != nil {
			// validation above makes this unreachable
			c.curLayer = prev
			return nil, nil, nil, err
		}
	}
	c.curLayer = prev

	positions, err := c.StartForward()
	if err != nil {
		return nil, nil, nil, err
	}

	outKeys := make([]*ml.Tensor, c.numLayers)
	outValues := make([]*ml.Tensor, c.numLayers)
	for i := range c.numLayers {
		outKeys[i] = c.keys[i]
		outValues[i] = c.values[i]
	}

	return outKeys, outValues, positions, nil
}
