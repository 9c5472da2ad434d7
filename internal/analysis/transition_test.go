package analysis

import (
	"math"
	"testing"
)

func buildSeam(freq, sampleRate float64, total int) []float32 {
	return sineWave(freq, sampleRate, total)
}

func TestScoreTransitionContinuousSineHighQuality(t *testing.T) {
	sampleRate := 44100.0
	total := TransitionWindow * 4
	samples := buildSeam(220, sampleRate, total)
	s := TransitionWindow
	e := TransitionWindow * 3
	quality, metrics := ScoreTransition(samples, s, e)
	if quality < 5 {
		t.Errorf("quality = %v for continuous sine seam, want >= 5", quality)
	}
	if metrics.HarmonicContinuity < 0.5 {
		t.Errorf("harmonicContinuity = %v, want high for matched sine", metrics.HarmonicContinuity)
	}
}

func TestScoreTransitionZeroBothBonus(t *testing.T) {
	total := TransitionWindow * 4
	samples := make([]float32, total)
	s := TransitionWindow
	e := TransitionWindow * 3
	_, metrics := ScoreTransition(samples, s, e)
	if !metrics.ZeroStart || !metrics.ZeroEnd {
		t.Fatalf("expected zero start/end for silent buffer, got %+v", metrics)
	}
}

func TestScoreTransitionLoudDiscontinuity(t *testing.T) {
	total := TransitionWindow * 4
	samples := make([]float32, total)
	for i := TransitionWindow; i < TransitionWindow*2; i++ {
		samples[i] = 1.0
	}
	for i := TransitionWindow * 2; i < TransitionWindow*3; i++ {
		samples[i] = -1.0
	}
	s := TransitionWindow
	e := TransitionWindow * 3
	quality, metrics := ScoreTransition(samples, s, e)
	if metrics.PhaseJump < 1.5 {
		t.Errorf("phaseJump = %v, want large for +1/-1 discontinuity", metrics.PhaseJump)
	}
	if quality > 10 {
		t.Errorf("quality = %v, exceeds clip of 10", quality)
	}
}

func TestSubEnvelopesOrderingNearestSeamFirst(t *testing.T) {
	x := make([]float32, EnvelopeSubWindow*EnvelopeSubCount)
	for i := range x {
		x[i] = float32(i)
	}
	tail := subEnvelopes(x, true)
	head := subEnvelopes(x, false)
	if tail[0] <= tail[1] {
		t.Errorf("tail envelope not decreasing away from seam: %v", tail)
	}
	if head[0] >= head[1] {
		t.Errorf("head envelope not increasing away from seam: %v", head)
	}
}

func TestHarmonicContinuitySelfSimilarity(t *testing.T) {
	mag := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	if got := harmonicContinuity(mag, mag); math.Abs(got-1) > 1e-9 {
		t.Errorf("harmonicContinuity(x, x) = %v, want 1", got)
	}
}
