package provider

import "math/rand"

// newShuffler returns a seeded PRNG for a provider's random-draw/shuffle
// modes. Seeded from the value count rather than the current time since
// providers must not depend on wall-clock (emphasis on
// deterministic, replayable test runs).
func newShuffler(n int) *rand.Rand {
	return rand.New(rand.NewSource(int64(n) + 1))
}
