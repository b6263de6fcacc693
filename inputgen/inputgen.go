// Package inputgen produces the per-register input byte patterns fed
// into the sandbox.  The sequence is infinite: a deterministic phase
// of corner-case patterns biased toward boundary values, followed by
// repeated rounds of prng-driven random fills.
package inputgen

import (
	"math/rand"
)

// Number of random fills per exploration round.  Advance reports a
// rollover each time a round completes so that batched advancement in
// the search loop can break early.
const randomRoundLength = 16

type Generator struct {
	size int // pattern size in bytes
	prng *rand.Rand

	deterministic [][]byte

	// Index into the deterministic phase, or len(deterministic)+k
	// while k patterns into the current random round.
	position int

	current []byte
}

// The prng is owned by the caller and shared between all generators of
// one instruction; reproducibility depends on its seeding.
func New(widthBits int, prng *rand.Rand) *Generator {
	size := widthBits / 8
	if size == 0 {
		size = 1
	}

	gen := &Generator{
		size:          size,
		prng:          prng,
		deterministic: cornerPatterns(size),
	}
	gen.current = gen.deterministic[0]
	return gen
}

// Current returns the current pattern.  Corner-case patterns are
// shared with the generator's table; callers must not modify them.
func (gen *Generator) Current() []byte {
	return gen.current
}

// Advance moves to the next pattern.  It returns true iff the
// generator entered a new random exploration round: once when the
// deterministic phase is exhausted, then each time a round completes.
func (gen *Generator) Advance() bool {
	gen.position++

	numDeterministic := len(gen.deterministic)
	if gen.position < numDeterministic {
		gen.current = gen.deterministic[gen.position]
		return false
	}

	// Rollover fires on every entry into a random exploration round:
	// once when the deterministic phase exhausts, then once per
	// completed random round.
	rolledOver := gen.position == numDeterministic
	if gen.position >= numDeterministic+randomRoundLength {
		gen.position = numDeterministic
		rolledOver = true
	}

	gen.current = gen.randomFill()
	return rolledOver
}

func (gen *Generator) randomFill() []byte {
	pattern := make([]byte, gen.size)
	for idx := range pattern {
		pattern[idx] = byte(gen.prng.Intn(256))
	}
	return pattern
}

func cornerPatterns(size int) [][]byte {
	fill := func(value byte) []byte {
		pattern := make([]byte, size)
		for idx := range pattern {
			pattern[idx] = value
		}
		return pattern
	}

	singleBit := func(bitPos int) []byte {
		pattern := make([]byte, size)
		pattern[bitPos/8] = 1 << (bitPos % 8)
		return pattern
	}

	patterns := [][]byte{
		fill(0x00),
		fill(0xFF),
		singleBit(size*8 - 1), // msb only
		singleBit(0),          // lsb only
	}

	// Single bit sweep over the remaining positions.
	for bitPos := 1; bitPos < size*8-1; bitPos++ {
		patterns = append(patterns, singleBit(bitPos))
	}

	patterns = append(patterns, fill(0xAA), fill(0x55))

	// Per-byte boundary values.
	for _, value := range []byte{0x01, 0x7F, 0x80, 0xFE} {
		patterns = append(patterns, fill(value))
	}

	return patterns
}
