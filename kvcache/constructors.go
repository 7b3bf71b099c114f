// constructors.go - Konstruktoren und Konfigurationsvalidierung
//
// Dieses Modul enthaelt alle Factory-Funktionen zur Erstellung
// verschiedener Cache-Varianten:
// - NewAttentionSinkCache: Sink-Praefix + rollendes Fenster
// - NewSlidingWindowCache: reines Sliding Window (sinkSize = 0)
//
// Fehlkonfigurationen schlagen hier sofort fehl statt spaeter im
// Decode-Loop stillschweigend zu degradieren.
package kvcache

import (
	"fmt"

	"github.com/streamkv/streamkv/ml"
)

func NewAttentionSinkCache(sinkSize, windowSize, numLayers int, layout ml.KVLayout, dtype ml.DType) (*AttentionSink, error) {
	if sinkSize < 0 {
		return nil, fmt.Errorf("%w: sink size must be non-negative (got %v)", ErrInvalidConfiguration, sinkSize)
	}

	if windowSize <= 0 {
		return nil, fmt.Errorf("%w: window size must be positive (got %v)", ErrInvalidConfiguration, windowSize)
	}

	if numLayers <= 0 {
		return nil, fmt.Errorf("%w: layer count must be positive (got %v)", ErrInvalidConfiguration, numLayers)
	}

	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	if dtype != ml.DTypeF32 && dtype != ml.DTypeF16 {
		return nil, fmt.Errorf("%w: unsupported cache dtype %v", ErrInvalidConfiguration, dtype)
	}

	return &AttentionSink{
		dtype:      dtype,
		layout:     layout,
		sinkSize:   sinkSize,
		windowSize: windowSize,
		numLayers:  numLayers,
		keys:       make([]*ml.Tensor, numLayers),
		values:     make([]*ml.Tensor, numLayers),
	}, nil
}

// NewSlidingWindowCache degenerates to plain sliding-window attention with no
// permanent prefix: every slot is evictable.
func NewSlidingWindowCache(windowSize, numLayers int, layout ml.KVLayout, dtype ml.DType) (*AttentionSink, error) {
	return NewAttentionSinkCache(0, windowSize, numLayers, layout, dtype)
}
