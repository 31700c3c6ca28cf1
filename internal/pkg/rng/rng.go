// Package rng provides the random source used by the economy's numeric policy.
// Every policy function takes a Source explicitly so tests can seed or script it.
package rng

import (
	"math/rand"
	"sync"
	"time"
)

// Source is a random number source for inclusive integer ranges and
// half-open float ranges.
type Source interface {
	// IntRange returns a uniform integer in [min, max]. If max < min, min is returned.
	IntRange(min, max int64) int64
	// Float64Range returns a uniform float in [min, max).
	Float64Range(min, max float64) float64
}

// Locked wraps *rand.Rand with a mutex; rand.Rand is not safe for concurrent use.
type Locked struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSeeded creates a Source with a fixed seed.
func NewSeeded(seed int64) *Locked {
	return &Locked{r: rand.New(rand.NewSource(seed))}
}

// New creates a Source seeded from the current time.
func New() *Locked {
	return NewSeeded(time.Now().UnixNano())
}

// IntRange returns a uniform integer in [min, max].
func (l *Locked) IntRange(min, max int64) int64 {
	if max <= min {
		return min
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return min + l.r.Int63n(max-min+1)
}

// Float64Range returns a uniform float in [min, max).
func (l *Locked) Float64Range(min, max float64) float64 {
	if max <= min {
		return min
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return min + l.r.Float64()*(max-min)
}

// DurationRange returns a uniform duration in [min, max], at second granularity.
func DurationRange(src Source, min, max time.Duration) time.Duration {
	secs := src.IntRange(int64(min/time.Second), int64(max/time.Second))
	return time.Duration(secs) * time.Second
}

// Fixed is a Source that always returns the same values. Useful for pinning
// a policy branch in tests.
type Fixed struct {
	Int   int64
	Float float64
}

// IntRange returns f.Int clamped to [min, max].
func (f Fixed) IntRange(min, max int64) int64 {
	switch {
	case f.Int < min:
		return min
	case f.Int > max:
		return max
	}
	return f.Int
}

// Float64Range returns f.Float clamped to [min, max].
func (f Fixed) Float64Range(min, max float64) float64 {
	switch {
	case f.Float < min:
		return min
	case f.Float > max:
		return max
	}
	return f.Float
}

// Script returns queued integers and floats in order and falls back to the
// range minimum once a queue is empty. Values are clamped to the requested range.
type Script struct {
	mu     sync.Mutex
	ints   []int64
	floats []float64
}

// NewScript creates a Script source.
func NewScript(ints []int64, floats []float64) *Script {
	return &Script{ints: ints, floats: floats}
}

// IntRange pops the next scripted integer.
func (s *Script) IntRange(min, max int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ints) == 0 {
		return min
	}
	v := s.ints[0]
	s.ints = s.ints[1:]
	return Fixed{Int: v}.IntRange(min, max)
}

// Float64Range pops the next scripted float.
func (s *Script) Float64Range(min, max float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.floats) == 0 {
		return min
	}
	v := s.floats[0]
	s.floats = s.floats[1:]
	return Fixed{Float: v}.Float64Range(min, max)
}
