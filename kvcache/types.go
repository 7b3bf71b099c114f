// types.go - Typen und Datenstrukturen des Attention-Sink-Caches
//
// Dieses Modul enthaelt die Typdefinition des AttentionSink-Caches.
// Der Cache haelt pro Layer ein Key/Value-Tensorpaar und wird von genau
// einem Decode-Loop sequentiell mutiert.
package kvcache

import (
	"github.com/streamkv/streamkv/ml"
)

// AttentionSink stores K and V tensors per layer while keeping total length
// bounded at sinkSize+windowSize slots. The first sinkSize slots are never
// evicted; everything else rolls as a window over the most recent tokens.
//
// Slots are indexed contiguously from 0 after compaction; they are not the
// true generation step. Position ids handed to the positional encoding are
// always 0..Len()-1, so the encoding operates on a stable, bounded
// coordinate space no matter how many tokens have been produced.
type AttentionSink struct {
	dtype  ml.DType
	layout ml.KVLayout

	// sinkSize is the permanent prefix, windowSize the maximum number of
	// trailing slots retained. Both fixed at construction.
	sinkSize   int
	windowSize int
	numLayers  int

	// the active layer for Get and Put
	curLayer int

	// batchSize is established by the first append and fixed thereafter;
	// 0 while the cache is still empty
	batchSize int

	// seenTokens counts tokens ever appended (true generation steps).
	// compactedLen is the length after the last StartForward; the delta to
	// the current stored length is what the most recent appends added.
	seenTokens   int
	compactedLen int

	// ** cache data storage **

	// per layer; nil until the first Put for that layer
	keys, values []*ml.Tensor
}

var _ Cache = (*AttentionSink)(nil)

// layerLen returns the stored slot count of a layer, 0 if still unallocated.
func (c *AttentionSink) layerLen(layer int) int {
	if c.keys[layer] == nil {
		return 0
	}

	return c.keys[layer].Dim(c.layout.SlotsAxis())
}

// Len returns the current compacted cache length.
func (c *AttentionSink) Len() int {
	return c.layerLen(0)
}

// SeenTokens returns the number of tokens ever appended, counting tokens
// that have since been evicted.
func (c *AttentionSink) SeenTokens() int {
	return c.seenTokens
}

// Capacity returns the bound the eviction policy maintains.
func (c *AttentionSink) Capacity() int {
	return c.sinkSize + c.windowSize
}

// SinkSize returns the size of the permanent prefix.
func (c *AttentionSink) SinkSize() int {
	return c.sinkSize
}

// WindowSize returns the maximum number of trailing slots retained.
func (c *AttentionSink) WindowSize() int {
	return c.windowSize
}

// Layout returns the layout descriptor supplied at construction.
func (c *AttentionSink) Layout() ml.KVLayout {
	return c.layout
}
