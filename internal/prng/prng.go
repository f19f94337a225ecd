// Package prng is the seeded pseudo-random source used by synthesis.
// All arithmetic is on uint32 so sequences match across platforms.
package prng

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Rand is a mulberry32 generator. Not safe for concurrent use; each
// render owns its own instance.
type Rand struct {
	state uint32
}

// New seeds a generator from an arbitrary string. The empty string
// seeds state 0.
func New(seed string) *Rand {
	return &Rand{state: HashSeed(seed)}
}

// HashSeed reduces a seed string to 32 bits (h = h*31 + b over UTF-8 bytes).
func HashSeed(seed string) uint32 {
	var h uint32
	for i := 0; i < len(seed); i++ {
		h = h*31 + uint32(seed[i])
	}
	return h
}

func (r *Rand) next32() uint32 {
	r.state += 0x6D2B79F5
	t := r.state
	t = (t ^ t>>15) * (t | 1)
	t ^= t + (t^t>>7)*(t|61)
	return t ^ t>>14
}

// Next returns a value in [0, 1).
func (r *Rand) Next() float64 {
	return float64(r.next32()) / 4294967296.0
}

// NextRange returns a value in [min, max).
func (r *Rand) NextRange(min, max float64) float64 {
	return min + r.Next()*(max-min)
}

// DeriveSeed builds a stable seed from the JSON encoding of inputs.
// Callers must clear any explicit seed field before passing a config in.
func DeriveSeed(inputs ...any) string {
	d := xxhash.New()
	for _, in := range inputs {
		b, err := json.Marshal(in)
		if err != nil {
			b = []byte(fmt.Sprintf("%#v", in))
		}
		d.Write(b)
		d.Write([]byte{0})
	}
	return strconv.FormatUint(d.Sum64(), 16)
}
