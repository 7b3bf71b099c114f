// attention_test.go - Tests fuer die Attention ueber kompaktierten Caches
package model

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streamkv/streamkv/ml"
)

func learnedLayout() ml.KVLayout {
	return ml.KVLayout{
		Order:      ml.OrderBatchHeadsSlotsDim,
		Encoding:   ml.EncodingLearned,
		NumHeads:   2,
		NumKVHeads: 1,
		HeadDim:    4,
	}
}

func setVec(x *ml.Tensor, b, h, s int, vec []float32) {
	for d, v := range vec {
		x.Set(v, b, h, s, d)
	}
}

func TestAttentionSingleSlot(t *testing.T) {
	layout := learnedLayout()

	query := ml.Zeros(ml.DTypeF32, 1, 2, 1, 4)
	key := ml.Zeros(ml.DTypeF32, 1, 1, 1, 4)
	value := ml.Zeros(ml.DTypeF32, 1, 1, 1, 4)

	setVec(query, 0, 0, 0, []float32{1, 2, 3, 4})
	setVec(query, 0, 1, 0, []float32{4, 3, 2, 1})
	setVec(key, 0, 0, 0, []float32{1, 0, 0, 0})
	setVec(value, 0, 0, 0, []float32{7, 8, 9, 10})

	out, err := Attention(query, key, value, []int32{0}, layout, nil)
	require.NoError(t, err)

	// a lone slot gets all attention mass on every query head
	for h := range 2 {
		for d := range 4 {
			require.InDelta(t, value.At(0, 0, 0, d), out.At(0, h, 0, d), 1e-5)
		}
	}
}

func TestAttentionFollowsKeyAlignment(t *testing.T) {
	layout := learnedLayout()

	query := ml.Zeros(ml.DTypeF32, 1, 2, 1, 4)
	key := ml.Zeros(ml.DTypeF32, 1, 1, 2, 4)
	value := ml.Zeros(ml.DTypeF32, 1, 1, 2, 4)

	setVec(key, 0, 0, 0, []float32{10, 0, 0, 0})
	setVec(key, 0, 0, 1, []float32{-10, 0, 0, 0})
	setVec(value, 0, 0, 0, []float32{1, 1, 1, 1})
	setVec(value, 0, 0, 1, []float32{-1, -1, -1, -1})
	setVec(query, 0, 0, 0, []float32{10, 0, 0, 0})
	setVec(query, 0, 1, 0, []float32{10, 0, 0, 0})

	out, err := Attention(query, key, value, []int32{0, 1}, layout, nil)
	require.NoError(t, err)

	// the query aligns with slot 0, which should dominate the softmax;
	// both query heads share the single kv head
	for h := range 2 {
		for d := range 4 {
			require.InDelta(t, 1.0, out.At(0, h, 0, d), 1e-4)
		}
	}
}

func TestAttentionCausalMask(t *testing.T) {
	layout := learnedLayout()

	// two fresh tokens: the first must not see the second even though the
	// second's key aligns perfectly with its query
	query := ml.Zeros(ml.DTypeF32, 1, 2, 2, 4)
	key := ml.Zeros(ml.DTypeF32, 1, 1, 2, 4)
	value := ml.Zeros(ml.DTypeF32, 1, 1, 2, 4)

	setVec(key, 0, 0, 1, []float32{10, 0, 0, 0})
	setVec(value, 0, 0, 0, []float32{5, 5, 5, 5})
	setVec(value, 0, 0, 1, []float32{-5, -5, -5, -5})

	for h := range 2 {
		setVec(query, 0, h, 0, []float32{10, 0, 0, 0})
		setVec(query, 0, h, 1, []float32{10, 0, 0, 0})
	}

	out, err := Attention(query, key, value, []int32{0, 1}, layout, nil)
	require.NoError(t, err)

	for h := range 2 {
		// token 0: slot 1 is masked, slot 0 is the only contributor
		require.InDelta(t, 5.0, out.At(0, h, 0, 0), 1e-5)

		// token 1: dominated by the aligned slot 1
		require.InDelta(t, -5.0, out.At(0, h, 1, 0), 1e-4)
	}
}

func TestAttentionALiBiPrefersNearbySlots(t *testing.T) {
	layout, err := LayoutFor("mpt", 2, 2, 4)
	require.NoError(t, err)

	// identical keys: without bias both slots would tie; the ALiBi distance
	// penalty must tilt the result toward the closer slot
	query := ml.Zeros(ml.DTypeF32, 1, 1, 2, 4)
	key := ml.Zeros(ml.DTypeF32, 1, 2, 2, 4)
	value := ml.Zeros(ml.DTypeF32, 1, 2, 2, 4)

	for h := range 2 {
		setVec2(key, 0, 0, h, []float32{1, 0, 0, 0})
		setVec2(key, 0, 1, h, []float32{1, 0, 0, 0})
		setVec2(value, 0, 0, h, []float32{1, 0, 0, 0})
		setVec2(value, 0, 1, h, []float32{3, 0, 0, 0})
		setVec2(query, 0, 0, h, []float32{1, 0, 0, 0})
	}

	out, err := Attention(query, key, value, []int32{0, 1}, layout, nil)
	require.NoError(t, err)

	for h := range 2 {
		got := out.At(0, 0, h, 0)
		require.Greater(t, got, float32(2), "nearby slot must outweigh the distant one")
		require.Less(t, got, float32(3))
	}
}

// setVec2 writes a head vector in slots-before-heads order.
func setVec2(x *ml.Tensor, b, s, h int, vec []float32) {
	for d, v := range vec {
		x.Set(v, b, s, h, d)
	}
}

func TestAttentionRotaryMatchesCompactedSpace(t *testing.T) {
	layout, err := LayoutFor("llama", 2, 1, 4)
	require.NoError(t, err)

	rope := NewRoPE(4, DefaultFreqBase, 8)

	query := ml.Zeros(ml.DTypeF32, 1, 2, 1, 4)
	key := ml.Zeros(ml.DTypeF32, 1, 1, 3, 4)
	value := ml.Zeros(ml.DTypeF32, 1, 1, 3, 4)

	for s := range 3 {
		setVec(key, 0, 0, s, []float32{1, 2, 3, 4})
		setVec(value, 0, 0, s, []float32{float32(s), 0, 0, 0})
	}
	setVec(query, 0, 0, 0, []float32{1, 2, 3, 4})
	setVec(query, 0, 1, 0, []float32{1, 2, 3, 4})

	out, err := Attention(query, key, value, []int32{0, 1, 2}, layout, rope)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 1, 4}, out.Shape())

	// all weights are finite and the output is a convex combination of the
	// value vectors
	got := out.At(0, 0, 0, 0)
	require.GreaterOrEqual(t, got, float32(0))
	require.LessOrEqual(t, got, float32(2))
}

func TestAttentionArgumentValidation(t *testing.T) {
	layout := learnedLayout()

	query := ml.Zeros(ml.DTypeF32, 1, 2, 1, 4)
	key := ml.Zeros(ml.DTypeF32, 1, 1, 2, 4)
	value := ml.Zeros(ml.DTypeF32, 1, 1, 2, 4)

	_, err := Attention(query, key, value, []int32{0}, layout, nil)
	require.Error(t, err, "position count must match cache slots")

	bigQuery := ml.Zeros(ml.DTypeF32, 1, 2, 3, 4)
	_, err = Attention(bigQuery, key, value, []int32{0, 1}, layout, nil)
	require.Error(t, err, "query cannot cover more tokens than the cache holds")

	rotary := layout
	rotary.Encoding = ml.EncodingRotary
	_, err = Attention(query, key, value, []int32{0, 1}, rotary, nil)
	require.Error(t, err, "rotary layouts need a rope table")
}
