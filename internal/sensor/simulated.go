package sensor

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/srg/edad/internal/eda"
)

// Simulated waveform shape
const (
	tonicBase      = 60.0
	tonicAmplitude = 25.0
	tonicPeriod    = 120 // samples per slow drift cycle
	noiseAmplitude = 2.0
	phasicChance   = 0.04
	phasicPeak     = 70.0
	phasicDecay    = 0.75
)

// Simulated produces a deterministic skin-conductance-like signal: a slow
// tonic drift with noise and occasional phasic responses that decay over a
// few samples. The same seed always yields the same sequence.
type Simulated struct {
	rng    *rand.Rand
	pace   pacer
	step   int
	phasic float64
}

// NewSimulated creates a source emitting one level per interval.
func NewSimulated(interval time.Duration, seed int64) *Simulated {
	return &Simulated{
		rng:  rand.New(rand.NewSource(seed)), //nolint:gosec // not used for security
		pace: pacer{interval: interval},
	}
}

func (s *Simulated) Next(ctx context.Context) (eda.Level, error) {
	if err := s.pace.wait(ctx); err != nil {
		return 0, err
	}
	return s.sample(), nil
}

func (s *Simulated) sample() eda.Level {
	tonic := tonicBase + tonicAmplitude*math.Sin(2*math.Pi*float64(s.step)/tonicPeriod)
	s.step++

	s.phasic *= phasicDecay
	if s.rng.Float64() < phasicChance {
		s.phasic += phasicPeak
	}
	noise := (s.rng.Float64()*2 - 1) * noiseAmplitude

	return clamp(tonic + s.phasic + noise)
}

// Close stops the pacing ticker.
func (s *Simulated) Close() error {
	s.pace.stop()
	return nil
}
