// Package random provides the uniform random sources used by the roster
// generator and the draw policies.
//
// Every consumer depends on the narrow Source interface so tests can replay
// an exact sequence of values. Production code uses either the auto-seeded
// math/rand/v2 generator or a PCG seeded from a recorded seed, which makes a
// whole session reproducible from one number.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// Source yields uniform values in [0, 1).
type Source interface {
	Float64() float64
}

// global delegates to the math/rand/v2 top-level generator (auto-seeded).
type global struct{}

func (global) Float64() float64 { return rand.Float64() }

// Default returns the process-wide auto-seeded source.
func Default() Source {
	return global{}
}

// New returns a deterministic PCG source for the given seed.
// Two sources built from the same seed produce the same sequence.
func New(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewSeed generates a seed using crypto/rand.
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// rosterSalt moves the roster stream of a seed away from its draw stream.
const rosterSalt = 0xd1b54a32d192ed03

// Split derives the roster generator's source and the draw source from one
// seed. The draw source equals New(seed); the roster source follows a
// different sequence, so generated rarities do not mirror the draws.
func Split(seed uint64) (roster, draw Source) {
	return New(seed ^ rosterSalt), New(seed)
}
