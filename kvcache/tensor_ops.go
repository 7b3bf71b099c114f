// tensor_ops.go - Tensor-Operationen (Get/Put)
//
// Dieses Modul enthaelt die Kern-Tensor-Operationen:
// - SetLayer: Setzt den aktiven Layer
// - Put: Schreibt neue Key/Value-Tensoren in den Cache
// - Get: Liest Key/Value-Tensoren aus dem Cache
// - validateAppend: Shape-Pruefung gegen den Layout-Deskriptor
package kvcache

import (
	"fmt"
	"slices"

	"github.com/streamkv/streamkv/ml"
)

func (c *AttentionSink) SetLayer(layer int) {
	if layer < 0 || layer >= c.numLayers {
		panic(fmt.Errorf("layer %v out of range (layers: %v)", layer, c.numLayers))
	}

	c.curLayer = layer
}

// validateAppend checks a key/value pair against the layout descriptor
// without touching any cache state.
func (c *AttentionSink) validateAppend(key, value *ml.Tensor) error {
	if key == nil || value == nil {
		return fmt.Errorf("%w: nil tensor", ErrIncompatibleAppend)
	}

	shape := key.Shape()
	if len(shape) != 4 {
		return fmt.Errorf("%w: expected rank 4, got %v", ErrIncompatibleAppend, len(shape))
	}

	if !slices.Equal(shape, value.Shape()) {
		return fmt.Errorf("%w: key shape %v does not match value shape %v", ErrIncompatibleAppend, shape, value.Shape())
	}

	batch := shape[c.layout.BatchAxis()]
	if c.batchSize != 0 && batch != c.batchSize {
		return fmt.Errorf("%w: batch size %v does not match established batch size %v", ErrIncompatibleAppend, batch, c.batchSize)
	}

	tokens := shape[c.layout.SlotsAxis()]
	if tokens <= 0 {
		return fmt.Errorf("%w: append covers no tokens", ErrIncompatibleAppend)
	}

	want := c.layout.ShapeFor(batch, tokens)
	if !slices.Equal(shape, want) {
		return fmt.Errorf("%w: shape %v does not match layout %v", ErrIncompatibleAppend, shape, want)
	}

	if key.DType() != ml.DTypeF32 && key.DType() != ml.DTypeF16 {
		return fmt.Errorf("%w: unsupported dtype %v", ErrIncompatibleAppend, key.DType())
	}

	return nil
}

// Put appends newly computed key/value features for one or more new tokens
// to the active layer. It does not itself enforce the capacity bound; that
// happens in StartForward once all layers have been appended.
func (c *AttentionSink) Put(key, value *ml.Tensor) error {
	if err := c.validateAppend(key, value); err != nil {
		return err
	}

	if c.batchSize == 0 {
		c.batchSize = key.Dim(c.layout.BatchAxis())
	}

	key = key.Cast(c.dtype)
	value = value.Cast(c.dtype)

	axis := c.layout.SlotsAxis()
	if c.keys[c.curLayer] == nil {
		c.keys[c.curLayer] = key
		c.values[c.curLayer] = value
		return nil
	}

	c.keys[c.curLayer] = ml.Concat(axis, c.keys[c.curLayer], key)
	c.values[c.curLayer] = ml.Concat(axis, c.values[c.curLayer], value)

	return nil
}

// Get returns the active layer's stored tensors in slot order. Repeated calls
// without an intervening mutation return identical tensors. Callers must
// treat the result as read-only.
func (c *AttentionSink) Get() (*ml.Tensor, *ml.Tensor) {
	return c.keys[c.curLayer], c.values[c.curLayer]
}
