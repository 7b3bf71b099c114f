// cache.go - Cache-Interface und Fehlerdefinitionen
//
// Dieses Modul enthaelt:
// - Cache: Interface fuer KV-Caches aus Sicht der Attention-Schicht
// - Fehler-Sentinels: ErrInvalidConfiguration, ErrInconsistentCacheState,
//   ErrIncompatibleAppend
//
// Die Attention-Schicht wird genau einmal gegen dieses Interface
// implementiert; jede Architektur liefert nur ihren Layout-Deskriptor.
package kvcache

import (
	"errors"

	"github.com/streamkv/streamkv/ml"
)

var (
	// ErrInvalidConfiguration indicates a construction time configuration
	// that leaves no room for recent-token retention. Fatal to the session.
	ErrInvalidConfiguration = errors.New("invalid kv cache configuration")

	// ErrInconsistentCacheState indicates that layers have drifted out of
	// lockstep. The cache can no longer be trusted and the session must be
	// aborted; no partial recovery is attempted.
	ErrInconsistentCacheState = errors.New("kv cache layers out of lockstep")

	// ErrIncompatibleAppend indicates that appended tensors do not match the
	// layout descriptor established at construction. The append is rejected
	// before any layer is mutated.
	ErrIncompatibleAppend = errors.New("appended tensors incompatible with cache layout")
)

// Cache is the capability the model integration layer decodes against.
// Callers drive it strictly sequentially: per step, Put (or Update) for every
// layer, then StartForward before the next attention computation.
type Cache interface {
	// SetLayer sets the active layer for Get and Put
	SetLayer(layer int)

	// Put appends newly computed key/value features for one or more new
	// tokens to the active layer
	Put(key, value *ml.Tensor) error

	// Get returns the active layer's stored key/value tensors in slot order,
	// reflecting the most recent eviction
	Get() (*ml.Tensor, *ml.Tensor)

	// StartForward enforces the capacity bound and returns the compacted
	// position ids to use for the next forward pass
	StartForward() ([]int32, error)

	// Reorder re-indexes every layer along the batch axis, atomically, to
	// follow beam re-ranking
	Reorder(indices []int) error

	// Len is the current compacted length; SeenTokens the true count of
	// tokens ever appended. Both are read-only introspection.
	Len() int
	SeenTokens() int
}
