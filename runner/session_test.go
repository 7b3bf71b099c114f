// session_test.go - Tests fuer den Decode-Loop
package runner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streamkv/streamkv/kvcache"
	"github.com/streamkv/streamkv/ml"
	"github.com/streamkv/streamkv/model"
)

func sessionFor(t *testing.T, arch string, heads, kvHeads, sink, window, layers, batch int) *Session {
	t.Helper()

	layout, err := model.LayoutFor(arch, heads, kvHeads, 8)
	require.NoError(t, err)

	cache, err := kvcache.NewAttentionSinkCache(sink, window, layers, layout, ml.DTypeF32)
	require.NoError(t, err)

	decoder := NewSyntheticDecoder(layout, layers, batch, 7)
	return NewSession(cache, decoder)
}

func TestSessionBoundedMemory(t *testing.T) {
	session := sessionFor(t, "llama", 4, 2, 2, 6, 3, 1)
	require.NotEmpty(t, session.ID())

	for i := range 40 {
		res, err := session.Step()
		require.NoError(t, err)

		want := min(i+1, 8)
		require.Equal(t, want, res.CacheLen, "cache must never exceed sink+window")
		require.Equal(t, i+1, res.SeenTokens)
		require.Len(t, res.Positions, want)
		require.Len(t, res.Outputs, 3)

		for _, out := range res.Outputs {
			require.Equal(t, session.Cache().Layout().ShapeFor(1, 1)[0], out.Dim(0))
		}
	}
}

func TestSessionDeterministic(t *testing.T) {
	a := sessionFor(t, "gptneox", 2, 2, 1, 4, 2, 1)
	b := sessionFor(t, "gptneox", 2, 2, 1, 4, 2, 1)

	for range 10 {
		ra, err := a.Step()
		require.NoError(t, err)

		rb, err := b.Step()
		require.NoError(t, err)

		for i := range ra.Outputs {
			require.True(t, ra.Outputs[i].Equal(rb.Outputs[i]))
		}
	}
}

func TestSessionALiBiArch(t *testing.T) {
	session := sessionFor(t, "mpt", 2, 2, 1, 3, 2, 1)

	for range 12 {
		res, err := session.Step()
		require.NoError(t, err)
		require.LessOrEqual(t, res.CacheLen, 4)
	}
}

func TestSessionBeams(t *testing.T) {
	session := sessionFor(t, "falcon", 4, 1, 1, 4, 2, 3)

	_, err := session.Step()
	require.NoError(t, err)

	for i := range 10 {
		res, err := session.StepBeams([]int{i % 3, (i + 1) % 3, 0})
		require.NoError(t, err)
		require.LessOrEqual(t, res.CacheLen, 5)
	}

	// a reorder list that does not cover every beam must abort the step
	_, err = session.StepBeams([]int{0, 1})
	require.ErrorIs(t, err, kvcache.ErrInconsistentCacheState)
}
