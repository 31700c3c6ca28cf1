package rng

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestIntRangeStaysInBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Int64().Draw(t, "seed")
		min := rapid.Int64Range(-1000, 1000).Draw(t, "min")
		span := rapid.Int64Range(0, 1000).Draw(t, "span")

		v := NewSeeded(seed).IntRange(min, min+span)
		if v < min || v > min+span {
			t.Fatalf("IntRange(%d, %d) = %d", min, min+span, v)
		}
	})
}

func TestFloat64RangeStaysInBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Int64().Draw(t, "seed")
		v := NewSeeded(seed).Float64Range(0.10, 0.35)
		if v < 0.10 || v >= 0.35 {
			t.Fatalf("Float64Range(0.10, 0.35) = %f", v)
		}
	})
}

func TestSeededIsDeterministic(t *testing.T) {
	a, b := NewSeeded(42), NewSeeded(42)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.IntRange(1, 100), b.IntRange(1, 100))
	}
}

func TestDurationRange(t *testing.T) {
	d := DurationRange(Fixed{Int: 0}, time.Hour, 3*time.Hour)
	assert.Equal(t, time.Hour, d)

	d = DurationRange(Fixed{Int: 1 << 40}, time.Hour, 3*time.Hour)
	assert.Equal(t, 3*time.Hour, d)
}

func TestScriptFallsBackToMinimum(t *testing.T) {
	s := NewScript([]int64{7, 500}, []float64{0.2})

	assert.Equal(t, int64(7), s.IntRange(1, 100))
	assert.Equal(t, int64(100), s.IntRange(1, 100), "clamped to max")
	assert.Equal(t, int64(1), s.IntRange(1, 100), "empty queue")
	assert.InDelta(t, 0.2, s.Float64Range(0.1, 0.35), 1e-9)
	assert.InDelta(t, 0.1, s.Float64Range(0.1, 0.35), 1e-9)
}
