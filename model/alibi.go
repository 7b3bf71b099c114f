// alibi.go - ALiBi-Slopes fuer Architekturen ohne Rotary-Encoding
//
// Dieses Modul enthaelt:
// - ALiBiSlopes: geometrische Slope-Folge pro Attention-Head
//
// Der Bias selbst wird in der Attention aus den kompaktierten
// Positions-IDs gebildet (Distanz im kompaktierten Raum).
package model

import "math"

// ALiBiSlopes returns one negative-bias slope per head. For a power-of-two
// head count the slopes are 2^(-8i/n); otherwise the closest power of two is
// used and interleaved with its half-step sequence.
func ALiBiSlopes(numHeads int) []float32 {
	slopesFor := func(n int) []float32 {
		start := math.Pow(2, -8.0/float64(n))
		slopes := make([]float32, n)
		ratio := start
		for i := range n {
			slopes[i] = float32(ratio)
			ratio *= start
		}
		return slopes
	}

	if numHeads&(numHeads-1) == 0 {
		return slopesFor(numHeads)
	}

	closest := 1
	for closest*2 < numHeads {
		closest *= 2
	}

	slopes := slopesFor(closest)
	extra := slopesFor(closest * 2)
	for i := 0; len(slopes) < numHeads; i += 2 {
		slopes = append(slopes, extra[i])
	}

	return slopes
}
