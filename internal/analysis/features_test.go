package analysis

import (
	"context"
	"math"
	"testing"
)

func sineWave(freq, sampleRate float64, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / sampleRate))
	}
	return out
}

func TestExtractWindowCount(t *testing.T) {
	sampleRate := 44100.0
	samples := sineWave(440, sampleRate, WindowSize+HopSize*3)
	fe := NewFeatureExtractor(sampleRate)
	feats, err := fe.Extract(context.Background(), samples)
	if err != nil {
		t.Fatal(err)
	}
	want := (len(samples)-WindowSize)/HopSize + 1
	if len(feats) != want {
		t.Errorf("len(feats) = %d, want %d", len(feats), want)
	}
}

func TestExtractTooShort(t *testing.T) {
	fe := NewFeatureExtractor(44100)
	feats, err := fe.Extract(context.Background(), make([]float32, WindowSize-1))
	if err != nil {
		t.Fatal(err)
	}
	if feats != nil {
		t.Errorf("expected nil for too-short input, got %d features", len(feats))
	}
}

func TestExtractTimeOffsetsStrictlyIncreasing(t *testing.T) {
	sampleRate := 44100.0
	samples := sineWave(220, sampleRate, WindowSize+HopSize*5)
	fe := NewFeatureExtractor(sampleRate)
	feats, err := fe.Extract(context.Background(), samples)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(feats); i++ {
		if feats[i].TimeOffset <= feats[i-1].TimeOffset {
			t.Fatalf("time offsets not strictly increasing at %d: %v <= %v", i, feats[i].TimeOffset, feats[i-1].TimeOffset)
		}
	}
}

func TestExtractCancellation(t *testing.T) {
	sampleRate := 44100.0
	samples := sineWave(440, sampleRate, WindowSize+HopSize*50)
	fe := NewFeatureExtractor(sampleRate)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fe.Extract(ctx, samples)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestSpectralCentroidHigherForHigherFrequency(t *testing.T) {
	sampleRate := 44100.0
	fe := NewFeatureExtractor(sampleRate)
	low := sineWave(220, sampleRate, WindowSize+HopSize)
	high := sineWave(4000, sampleRate, WindowSize+HopSize)

	lowFeats, err := fe.Extract(context.Background(), low)
	if err != nil {
		t.Fatal(err)
	}
	highFeats, err := fe.Extract(context.Background(), high)
	if err != nil {
		t.Fatal(err)
	}
	if highFeats[0].SpectralCentroid <= lowFeats[0].SpectralCentroid {
		t.Errorf("expected higher centroid for higher frequency tone: low=%v high=%v",
			lowFeats[0].SpectralCentroid, highFeats[0].SpectralCentroid)
	}
}

func TestZeroCrossingRateSilence(t *testing.T) {
	x := make([]float32, WindowSize)
	if got := zeroCrossingRate(x); got != 0 {
		t.Errorf("zeroCrossingRate(silence) = %v, want 0", got)
	}
}

func TestRMSOfConstant(t *testing.T) {
	x := make([]float32, 100)
	for i := range x {
		x[i] = 0.5
	}
	if got := rms(x); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("rms = %v, want 0.5", got)
	}
}
