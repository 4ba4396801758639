// Package entropy provides the simulation's randomness: dispatch shuffling,
// hour suggestions and price noise all draw from one seeded source so that a
// run is reproducible from its seed.
// Seed 0 asks for a fresh seed from crypto/rand.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	mrand "math/rand"
)

// Source is a seeded pseudo-random source. Not goroutine-safe; it is owned by
// a single simulation run and only touched from inside a tick.
type Source struct {
	seed int64
	rng  *mrand.Rand
}

// NewSource creates a Source. A zero seed is replaced by one from crypto/rand.
func NewSource(seed int64) *Source {
	if seed == 0 {
		seed = CryptoSeed()
		slog.Debug("entropy seeded from crypto/rand", "seed", seed)
	}
	return &Source{
		seed: seed,
		rng:  mrand.New(mrand.NewSource(seed)),
	}
}

// Seed returns the seed the source was created (or last reset) with.
func (s *Source) Seed() int64 { return s.seed }

// Reset rewinds the source to its seed so a new run replays the same stream.
func (s *Source) Reset() {
	s.rng = mrand.New(mrand.NewSource(s.seed))
}

// Float returns a random float64 in [0, 1).
func (s *Source) Float() float64 {
	return s.rng.Float64()
}

// IntRange returns a uniformly distributed int in [min, max].
// Inverted bounds are swapped.
func (s *Source) IntRange(min, max int) int {
	if max < min {
		min, max = max, min
	}
	return min + s.rng.Intn(max-min+1)
}

// Shuffle permutes n elements in place using swap (Fisher-Yates).
func (s *Source) Shuffle(n int, swap func(i, j int)) {
	s.rng.Shuffle(n, swap)
}

// CryptoSeed returns a non-zero seed read from crypto/rand.
func CryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// This should never happen; fall back to a fixed seed.
		return 42
	}
	seed := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if seed == 0 {
		seed = 1
	}
	return seed
}

// Read fills p with pseudo-random bytes so the source can back io.Reader
// consumers such as uuid.NewRandomFromReader. It never fails.
func (s *Source) Read(p []byte) (int, error) {
	return s.rng.Read(p)
}
