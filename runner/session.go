// session.go - Generierungs-Session ueber dem Attention-Sink-Cache
//
// Dieses Modul enthaelt:
// - Session: ein Decode-Loop (ein Produzent, strikt sequentiell)
// - Step/StepBeams: append -> evict -> positions -> attention pro Schritt
//
// Die Session besitzt Cache und Decoder exklusiv; es gibt keine
// nebenlaeufige Mutation einer Session.
package runner

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/streamkv/streamkv/kvcache"
	"github.com/streamkv/streamkv/ml"
	"github.com/streamkv/streamkv/model"
)

type Session struct {
	id      string
	cache   *kvcache.AttentionSink
	decoder Decoder
	rope    *model.RoPE
	step    int
}

// StepResult reports one decode step for logging and measurement consumers.
// These consumers are read-only; they never mutate cache state.
type StepResult struct {
	Positions  []int32
	Outputs    []*ml.Tensor
	CacheLen   int
	SeenTokens int
}

func NewSession(cache *kvcache.AttentionSink, decoder Decoder) *Session {
	layout := cache.Layout()

	var rope *model.RoPE
	if layout.Encoding == ml.EncodingRotary {
		// the table only ever needs to cover the compacted id space
		rope = model.NewRoPE(layout.HeadDim, model.DefaultFreqBase, cache.Capacity())
	}

	return &Session{
		id:      uuid.NewString(),
		cache:   cache,
		decoder: decoder,
		rope:    rope,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Cache() *kvcache.AttentionSink {
	return s.cache
}

// Step runs one decode iteration: fetch new per-layer tensors from the
// decoder, update the cache (append + evict) and attend over the compacted
// contents with the returned position ids.
func (s *Session) Step() (*StepResult, error) {
	queries, keys, values, err := s.decoder.Forward(s.step)
	if err != nil {
		return nil, fmt.Errorf("decoder step %v: %w", s.step, err)
	}

	ks, vs, positions, err := s.cache.Update(keys, values)
	if err != nil {
		return nil, fmt.Errorf("cache update at step %v: %w", s.step, err)
	}

	layout := s.cache.Layout()
	outputs := make([]*ml.Tensor, len(ks))
	for i := range ks {
		outputs[i], err = model.Attention(queries[i], ks[i], vs[i], positions, layout, s.rope)
		if err != nil {
			return nil, fmt.Errorf("attention layer %v at step %v: %w", i, s.step, err)
		}
	}

	s.step++
	if s.step%512 == 0 {
		slog.Debug("decode progress",
			"session", s.id,
			"step", s.step,
			"cache_len", s.cache.Len(),
			"seen", s.cache.SeenTokens())
	}

	return &StepResult{
		Positions:  positions,
		Outputs:    outputs,
		CacheLen:   s.cache.Len(),
		SeenTokens: s.cache.SeenTokens(),
	}, nil
}

// StepBeams applies the beam permutation selected after the previous step
// and then decodes as usual. The reorder must land before the next append,
// otherwise beams would read another beam's history.
func (s *Session) StepBeams(beams []int) (*StepResult, error) {
	if err := s.cache.Reorder(beams); err != nil {
		return nil, fmt.Errorf("beam reorder at step %v: %w", s.step, err)
	}

	return s.Step()
}
