package nn

import (
	"fmt"
	"math"
)

// LRScheduler maps training progress to a learning rate.
type LRScheduler interface {
	// Rate returns the learning rate for progress p (current epoch / final epoch).
	Rate(p float64) float64

	// Name returns the scheduler name
	Name() string
}

// ============================================================================
// Exponential Decay Scheduler
// ============================================================================

// ExponentialDecayScheduler computes initial * decayRate^(p / decaySteps).
// With Staircase set the exponent is floored.
type ExponentialDecayScheduler struct {
	initialLR  float64
	decayRate  float64
	decaySteps float64

	Staircase bool
}

func NewExponentialDecayScheduler(initialLR, decayRate, decaySteps float64) *ExponentialDecayScheduler {
	return &ExponentialDecayScheduler{
		initialLR:  initialLR,
		decayRate:  decayRate,
		decaySteps: decaySteps,
	}
}

func (s *ExponentialDecayScheduler) Rate(p float64) float64 {
	exponent := p / s.decaySteps
	if s.Staircase {
		exponent = math.Floor(exponent)
	}
	return s.initialLR * math.Pow(s.decayRate, exponent)
}

// Progress returns epoch / epochEnd, the argument Rate expects.
func Progress(epoch, epochEnd int) float64 {
	if epochEnd <= 0 {
		return 0
	}
	return float64(epoch) / float64(epochEnd)
}

func (s *ExponentialDecayScheduler) Name() string {
	if s.Staircase {
		return "ExponentialDecay(staircase)"
	}
	return "ExponentialDecay"
}

func (s *ExponentialDecayScheduler) String() string {
	return fmt.Sprintf("%s(lr=%g, rate=%g, steps=%g)", s.Name(), s.initialLR, s.decayRate, s.decaySteps)
}
