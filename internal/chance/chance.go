// Package chance is the seeded randomness behind the fault-injection
// branches of the controller, the cache layer and the warmup strategy.
package chance

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Source is safe for concurrent use.
type Source struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func New(seed uint64) *Source {
	return &Source{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandom seeds from the runtime's random source.
func NewRandom() *Source {
	return New(rand.Uint64())
}

// Roll reports true with probability p. p <= 0 never fires, p >= 1 always does.
func (s *Source) Roll(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64() < p
}

// Duration returns a uniform duration in [0, max].
func (s *Source) Duration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.rnd.Int64N(int64(max) + 1))
}

// Sign returns -1 or +1 with equal probability.
func (s *Source) Sign() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rnd.IntN(2) == 0 {
		return -1
	}
	return 1
}
