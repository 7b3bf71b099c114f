// architectures.go - Architektur-Registry fuer Layout-Deskriptoren
//
// Dieses Modul enthaelt:
// - Register: Registriert eine Architektur mit ihrer Layout-Funktion
// - LayoutFor: Liefert den KVLayout-Deskriptor einer Architektur
// - Architectures: Listet alle registrierten Architekturen
//
// Jede Architektur liefert ausschliesslich ihren Layout-Deskriptor; die
// Attention-Berechnung selbst ist einmal gegen kvcache.Cache implementiert.
package model

import (
	"fmt"
	"slices"

	"github.com/streamkv/streamkv/ml"
)

// LayoutFn builds an architecture's KVLayout from its head configuration.
type LayoutFn func(numHeads, numKVHeads, headDim int) (ml.KVLayout, error)

var architectures = make(map[string]LayoutFn)

func Register(name string, fn LayoutFn) {
	if _, ok := architectures[name]; ok {
		panic(fmt.Sprintf("architecture %q already registered", name))
	}

	architectures[name] = fn
}

func LayoutFor(arch string, numHeads, numKVHeads, headDim int) (ml.KVLayout, error) {
	fn, ok := architectures[arch]
	if !ok {
		return ml.KVLayout{}, fmt.Errorf("unsupported architecture %q", arch)
	}

	layout, err := fn(numHeads, numKVHeads, headDim)
	if err != nil {
		return ml.KVLayout{}, err
	}

	if err := layout.Validate(); err != nil {
		return ml.KVLayout{}, fmt.Errorf("architecture %q: %w", arch, err)
	}

	return layout, nil
}

func Architectures() []string {
	names := make([]string, 0, len(architectures))
	for name := range architectures {
		names = append(names, name)
	}

	slices.Sort(names)
	return names
}

func init() {
	// llama family: rotary, grouped-query attention
	Register("llama", func(numHeads, numKVHeads, headDim int) (ml.KVLayout, error) {
		return ml.KVLayout{
			Order:      ml.OrderBatchHeadsSlotsDim,
			Encoding:   ml.EncodingRotary,
			NumHeads:   numHeads,
			NumKVHeads: numKVHeads,
			HeadDim:    headDim,
		}, nil
	})

	// falcon: rotary, multi-query attention (a single shared kv head)
	Register("falcon", func(numHeads, numKVHeads, headDim int) (ml.KVLayout, error) {
		if numKVHeads != 1 {
			return ml.KVLayout{}, fmt.Errorf("falcon uses multi-query attention, want 1 kv head (got %v)", numKVHeads)
		}

		return ml.KVLayout{
			Order:      ml.OrderBatchHeadsSlotsDim,
			Encoding:   ml.EncodingRotary,
			NumHeads:   numHeads,
			NumKVHeads: 1,
			HeadDim:    headDim,
		}, nil
	})

	// mpt: ALiBi, multi-head attention, sequence axis ahead of heads
	Register("mpt", func(numHeads, numKVHeads, headDim int) (ml.KVLayout, error) {
		if numKVHeads != numHeads {
			return ml.KVLayout{}, fmt.Errorf("mpt uses multi-head attention, want %v kv heads (got %v)", numHeads, numKVHeads)
		}

		return ml.KVLayout{
			Order:      ml.OrderBatchSlotsHeadsDim,
			Encoding:   ml.EncodingALiBi,
			NumHeads:   numHeads,
			NumKVHeads: numHeads,
			HeadDim:    headDim,
		}, nil
	})

	// gptneox/pythia: rotary, multi-head attention
	Register("gptneox", func(numHeads, numKVHeads, headDim int) (ml.KVLayout, error) {
		if numKVHeads != numHeads {
			return ml.KVLayout{}, fmt.Errorf("gptneox uses multi-head attention, want %v kv heads (got %v)", numHeads, numKVHeads)
		}

		return ml.KVLayout{
			Order:      ml.OrderBatchHeadsSlotsDim,
			Encoding:   ml.EncodingRotary,
			NumHeads:   numHeads,
			NumKVHeads: numHeads,
			HeadDim:    headDim,
		}, nil
	})
}
