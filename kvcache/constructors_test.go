// constructors_test.go - Tests fuer Konstruktion und Konfigurationsfehler
package kvcache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streamkv/streamkv/ml"
)

func TestInvalidConfiguration(t *testing.T) {
	layout := testLayout()

	cases := []struct {
		name       string
		sinkSize   int
		windowSize int
		numLayers  int
		layout     ml.KVLayout
		dtype      ml.DType
	}{
		{"zero window", 4, 0, 2, layout, ml.DTypeF32},
		{"negative window", 4, -1, 2, layout, ml.DTypeF32},
		{"negative sink", -1, 8, 2, layout, ml.DTypeF32},
		{"zero layers", 4, 8, 0, layout, ml.DTypeF32},
		{"bad dtype", 4, 8, 2, layout, ml.DTypeOther},
		{"zero heads", 4, 8, 2, ml.KVLayout{NumHeads: 0, NumKVHeads: 1, HeadDim: 4}, ml.DTypeF32},
		{"indivisible heads", 4, 8, 2, ml.KVLayout{NumHeads: 6, NumKVHeads: 4, HeadDim: 4}, ml.DTypeF32},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAttentionSinkCache(tt.sinkSize, tt.windowSize, tt.numLayers, tt.layout, tt.dtype)
			require.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}
}

func TestValidConfiguration(t *testing.T) {
	cache, err := NewAttentionSinkCache(4, 1020, 2, testLayout(), ml.DTypeF16)
	require.NoError(t, err)
	require.Equal(t, 1024, cache.Capacity())
	require.Equal(t, 4, cache.SinkSize())
	require.Equal(t, 1020, cache.WindowSize())
	require.Equal(t, 0, cache.Len())
	require.Equal(t, 0, cache.SeenTokens())
}

func TestZeroSinkConfiguration(t *testing.T) {
	cache, err := NewSlidingWindowCache(8, 1, testLayout(), ml.DTypeF32)
	require.NoError(t, err)
	require.Equal(t, 0, cache.SinkSize())
	require.Equal(t, 8, cache.Capacity())
}
