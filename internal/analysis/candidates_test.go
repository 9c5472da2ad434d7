package analysis

import (
	"context"
	"testing"
)

func TestDedupeSortedRemovesNearDuplicates(t *testing.T) {
	in := []float64{1.0, 1.0000001, 2.0, 2.5, 2.5000002}
	out := dedupeSorted(in)
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3: %v", len(out), out)
	}
}

func TestDedupeSortedEmpty(t *testing.T) {
	if got := dedupeSorted(nil); got != nil {
		t.Errorf("dedupeSorted(nil) = %v, want nil", got)
	}
}

func TestEnumeratePairsRespectsLengthBounds(t *testing.T) {
	seeds := []float64{0, 1, 5, 50, 99}
	duration := 100.0
	pairs := enumeratePairs(seeds, duration)
	for _, p := range pairs {
		length := p.e - p.s
		if length < MinSectionDuration || length > MaxLoopFractionOfDuration*duration {
			t.Errorf("pair %+v has out-of-bounds length %v", p, length)
		}
	}
}

func TestStrideSampleCapsCount(t *testing.T) {
	pairs := make([]pair, 5000)
	out := strideSample(pairs, MaxCandidatePairs)
	if len(out) != MaxCandidatePairs {
		t.Fatalf("len(out) = %d, want %d", len(out), MaxCandidatePairs)
	}
}

func TestStrideSampleNoOpUnderCap(t *testing.T) {
	pairs := make([]pair, 10)
	out := strideSample(pairs, MaxCandidatePairs)
	if len(out) != 10 {
		t.Fatalf("len(out) = %d, want 10", len(out))
	}
}

func TestFallbackCandidatesNoSections(t *testing.T) {
	cands := fallbackCandidates(nil, 90)
	if len(cands) != 1 {
		t.Fatal("expected exactly one fallback candidate")
	}
	if cands[0].StartTime != 30 || cands[0].EndTime != 90 {
		t.Errorf("got %+v, want start=30 end=90", cands[0])
	}
}

func TestFallbackCandidatesOneSection(t *testing.T) {
	sections := []Section{{StartTime: 0, EndTime: 30}}
	cands := fallbackCandidates(sections, 30)
	if cands[0].StartTime != 10 || cands[0].EndTime != 30 {
		t.Errorf("got %+v, want start=10 end=30", cands[0])
	}
}

func TestFallbackCandidatesManySections(t *testing.T) {
	sections := []Section{
		{StartTime: 0, EndTime: 10},
		{StartTime: 10, EndTime: 20},
		{StartTime: 20, EndTime: 30},
	}
	cands := fallbackCandidates(sections, 30)
	if cands[0].StartTime != 10 || cands[0].EndTime != 30 {
		t.Errorf("got %+v, want start=10 end=30", cands[0])
	}
}

func TestFindCandidatesCancellation(t *testing.T) {
	sampleRate := 44100.0
	samples := sineWave(220, sampleRate, int(10*sampleRate))
	feats := constFeats(200, HopSize, sampleRate, 0.3, 0.1)
	sections := []Section{{StartTime: 1, EndTime: 4}, {StartTime: 4, EndTime: 8}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FindCandidates(ctx, samples, sampleRate, feats, sections, 10)
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestFindCandidatesFallsBackWhenNoSeeds(t *testing.T) {
	sampleRate := 44100.0
	samples := sineWave(220, sampleRate, TransitionWindow*4)
	cands, err := FindCandidates(context.Background(), samples, sampleRate, nil, nil, float64(len(samples))/sampleRate)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected fallback candidate, got %d", len(cands))
	}
}
