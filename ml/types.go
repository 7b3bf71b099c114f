// types.go - Datentypen und Layout-Deskriptoren fuer KV-Tensoren
//
// Dieses Modul enthaelt:
// - DType: Element-Datentyp der Tensoren (F32, F16)
// - AxisOrder: Achsenreihenfolge der KV-Tensoren je Architektur
// - PositionEncoding: Art der Positionskodierung (Rotary, ALiBi, Learned)
// - KVLayout: Layout-Deskriptor, einmal pro Cache-Konstruktion festgelegt
package ml

import "fmt"

// DType represents the data type of tensor elements.
type DType int

const (
	DTypeOther DType = iota
	DTypeF32
	DTypeF16
)

func (d DType) String() string {
	switch d {
	case DTypeF32:
		return "f32"
	case DTypeF16:
		return "f16"
	default:
		return "other"
	}
}

// ParseDType maps the user facing cache type names onto a DType.
func ParseDType(s string) (DType, error) {
	switch s {
	case "f32", "fp32":
		return DTypeF32, nil
	case "f16", "fp16":
		return DTypeF16, nil
	default:
		return DTypeOther, fmt.Errorf("unsupported kv cache type %q", s)
	}
}

// AxisOrder describes how an architecture arranges the axes of its per-layer
// key/value tensors. All supported orders keep batch as the leading axis.
type AxisOrder int

const (
	// OrderBatchHeadsSlotsDim is [batch, kv heads, slots, head dim], the
	// layout used by the llama family.
	OrderBatchHeadsSlotsDim AxisOrder = iota

	// OrderBatchSlotsHeadsDim is [batch, slots, kv heads, head dim], used by
	// architectures that keep the sequence axis ahead of the head axis.
	OrderBatchSlotsHeadsDim
)

// PositionEncoding identifies the positional encoding scheme an architecture
// applies with the position ids handed out by the cache.
type PositionEncoding int

const (
	EncodingRotary PositionEncoding = iota
	EncodingALiBi
	EncodingLearned
)

// KVLayout is the per-architecture tensor layout descriptor. It is supplied
// once at cache construction and never changes during a session. Grouped and
// multi-query attention are expressed through NumKVHeads < NumHeads.
type KVLayout struct {
	Order      AxisOrder
	Encoding   PositionEncoding
	NumHeads   int
	NumKVHeads int
	HeadDim    int
}

func (l KVLayout) Validate() error {
	if l.NumHeads <= 0 || l.NumKVHeads <= 0 || l.HeadDim <= 0 {
		return fmt.Errorf("head configuration must be positive (heads: %v kv heads: %v head dim: %v)", l.NumHeads, l.NumKVHeads, l.HeadDim)
	}

	if l.NumHeads%l.NumKVHeads != 0 {
		return fmt.Errorf("query heads (%v) must be divisible by kv heads (%v)", l.NumHeads, l.NumKVHeads)
	}

	switch l.Order {
	case OrderBatchHeadsSlotsDim, OrderBatchSlotsHeadsDim:
	default:
		return fmt.Errorf("unknown axis order %v", l.Order)
	}

	switch l.Encoding {
	case EncodingRotary, EncodingALiBi, EncodingLearned:
	default:
		return fmt.Errorf("unknown position encoding %v", l.Encoding)
	}

	return nil
}

// GroupSize is the head sharing factor: how many query heads read from each
// kv head. 1 for standard multi-head attention, NumHeads for multi-query.
func (l KVLayout) GroupSize() int {
	return l.NumHeads / l.NumKVHeads
}

// BatchAxis returns the axis indexing beams/batch entries.
func (l KVLayout) BatchAxis() int {
	return 0
}

// SlotsAxis returns the axis indexing cache slots (token positions).
func (l KVLayout) SlotsAxis() int {
	if l.Order == OrderBatchSlotsHeadsDim {
		return 1
	}

	return 2
}

// ShapeFor returns the expected kv tensor shape for a given batch size and
// slot count in this layout's native axis order.
func (l KVLayout) ShapeFor(batch, slots int) []int {
	if l.Order == OrderBatchSlotsHeadsDim {
		return []int{batch, slots, l.NumKVHeads, l.HeadDim}
	}

	return []int{batch, l.NumKVHeads, slots, l.HeadDim}
}
