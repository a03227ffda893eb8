// Package backoff computes retry delays. It centralizes the delay math so
// the client and its tests share one implementation.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay to wait before the attempt following the given
// zero-based attempt number.
type Strategy interface {
	Delay(attempt int, base time.Duration) time.Duration
}

// ExponentialJitter grows the base delay by Multiplier each attempt and
// scales the result by a factor drawn uniformly from [JitterLow, JitterHigh].
// The multiplicative jitter keeps the expected delay centered on the
// exponential curve while desynchronizing concurrent retry loops.
type ExponentialJitter struct {
	Multiplier float64
	JitterLow  float64
	JitterHigh float64
	Max        time.Duration
}

// Delay implements Strategy.
func (s ExponentialJitter) Delay(attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Prevent overflow by limiting attempt.
	if attempt > 30 {
		attempt = 30
	}

	multiplier := s.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	delay := float64(base) * Pow(multiplier, attempt)

	low, high := s.JitterLow, s.JitterHigh
	if low <= 0 || high < low {
		low, high = 1, 1
	}
	delay *= low + rand.Float64()*(high-low)

	result := time.Duration(delay)
	if s.Max > 0 && (result > s.Max || result < 0) {
		result = s.Max
	}
	return result
}

// Pow calculates base^exponent for float64 without pulling in math.Pow's
// special-case handling.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
