// tensor_ops_test.go - Tests fuer Put/Get und Shape-Validierung
package kvcache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streamkv/streamkv/ml"
)

func TestIncompatibleAppend(t *testing.T) {
	layout := testLayout()

	good, goodV := stepKV(layout, 1, 1, 0)

	cases := []struct {
		name  string
		key   *ml.Tensor
		value *ml.Tensor
	}{
		{"nil key", nil, goodV},
		{"wrong rank", ml.Zeros(ml.DTypeF32, 2, 1, 4), goodV},
		{"wrong kv heads", ml.Zeros(ml.DTypeF32, 1, 3, 1, 4), ml.Zeros(ml.DTypeF32, 1, 3, 1, 4)},
		{"wrong head dim", ml.Zeros(ml.DTypeF32, 1, 2, 1, 8), ml.Zeros(ml.DTypeF32, 1, 2, 1, 8)},
		{"key value shape mismatch", good, ml.Zeros(ml.DTypeF32, 1, 2, 2, 4)},
		{"zero tokens", ml.Zeros(ml.DTypeF32, 1, 2, 0, 4), ml.Zeros(ml.DTypeF32, 1, 2, 0, 4)},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			cache, err := NewAttentionSinkCache(1, 3, 1, layout, ml.DTypeF32)
			require.NoError(t, err)

			cache.SetLayer(0)
			err = cache.Put(tt.key, tt.value)
			require.ErrorIs(t, err, ErrIncompatibleAppend)

			// the cache must remain in its last-known-good state
			require.Equal(t, 0, cache.Len())
		})
	}
}

func TestBatchSizeEstablishedByFirstAppend(t *testing.T) {
	cache, err := NewAttentionSinkCache(1, 3, 1, testLayout(), ml.DTypeF32)
	require.NoError(t, err)

	key, value := stepKV(cache.layout, 2, 1, 0)
	cache.SetLayer(0)
	require.NoError(t, cache.Put(key, value))

	// a later append with a different batch size is rejected
	key, value = stepKV(cache.layout, 3, 1, 1)
	err = cache.Put(key, value)
	require.ErrorIs(t, err, ErrIncompatibleAppend)
}

func TestF16Storage(t *testing.T) {
	cache, err := NewAttentionSinkCache(1, 3, 1, testLayout(), ml.DTypeF16)
	require.NoError(t, err)

	key, value := stepKV(cache.layout, 1, 2, 0)
	cache.SetLayer(0)
	require.NoError(t, cache.Put(key, value))

	k, v := cache.Get()
	require.Equal(t, ml.DTypeF16, k.DType())
	require.Equal(t, ml.DTypeF16, v.DType())

	// small integral token ids survive the f16 round trip exactly
	require.Equal(t, float32(0), k.At(0, 0, 0, 0))
	require.Equal(t, float32(1), k.At(0, 0, 1, 0))
	require.Equal(t, float32(1.5), v.At(0, 0, 1, 0))
}

func TestSetLayerOutOfRange(t *testing.T) {
	cache, err := NewAttentionSinkCache(1, 3, 2, testLayout(), ml.DTypeF32)
	require.NoError(t, err)

	require.Panics(t, func() { cache.SetLayer(2) })
	require.Panics(t, func() { cache.SetLayer(-1) })
}
