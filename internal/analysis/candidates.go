package analysis

import (
	"context"
	"math"
	"sort"
)

// FindCandidates runs the candidate seeding, scoring, and re-ranking
// pipeline. samples is the mono channel used for transition scoring;
// sampleRate converts between seconds and frame indices.
func FindCandidates(ctx context.Context, samples []float32, sampleRate float64, feats []AudioFeatures, sections []Section, duration float64) ([]LoopCandidate, error) {
	rawSeeds := seedTimes(feats, sections, duration)
	if len(rawSeeds) == 0 {
		return fallbackCandidates(sections, duration), nil
	}

	refined := make([]float64, len(rawSeeds))
	for i, t := range rawSeeds {
		refined[i] = refineToZeroCrossing(samples, sampleRate, t)
	}
	seeds := dedupeSorted(refined)

	pairs := enumeratePairs(seeds, duration)
	pairs = strideSample(pairs, MaxCandidatePairs)

	var scored []LoopCandidate
	for i, p := range pairs {
		if i%YieldEveryNPairs == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		sFrame := int(p.s * sampleRate)
		eFrame := int(p.e * sampleRate)
		if eFrame-TransitionWindow < 0 || eFrame+0 > len(samples) || sFrame+TransitionWindow > len(samples) || sFrame < 0 {
			continue
		}
		quality, metrics := ScoreTransition(samples, sFrame, eFrame)
		if quality <= MinQualityToKeep {
			continue
		}
		scored = append(scored, LoopCandidate{
			StartTime: p.s,
			EndTime:   p.e,
			Quality:   quality,
			Metrics:   metrics,
		})
	}

	if len(scored) == 0 {
		return fallbackCandidates(sections, duration), nil
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Quality > scored[j].Quality })
	if len(scored) > MaxCandidatesRetained {
		scored = scored[:MaxCandidatesRetained]
	}
	rerank(scored, sections, duration)
	sort.Slice(scored, func(i, j int) bool { return scored[i].Quality > scored[j].Quality })
	return scored, nil
}

type pair struct{ s, e float64 }

// seedTimes gathers candidate boundary times from section edges and
// phrase boundaries, then de-duplicates. Zero-crossing refinement of the
// seeds is done by the caller.
func seedTimes(feats []AudioFeatures, sections []Section, duration float64) []float64 {
	var times []float64

	for _, sec := range sections {
		if sec.StartTime > SeedEdgeGuardSeconds && sec.StartTime < duration-SeedEdgeGuardSeconds {
			times = append(times, sec.StartTime)
		}
		if sec.EndTime > SeedEdgeGuardSeconds && sec.EndTime < duration-SeedEdgeGuardSeconds {
			times = append(times, sec.EndTime)
		}
	}

	times = append(times, phraseBoundaryTimes(feats)...)

	return dedupeSorted(times)
}

func phraseBoundaryTimes(feats []AudioFeatures) []float64 {
	var out []float64
	w := SectionHalfWindow
	for i := w; i < len(feats)-w; i++ {
		fluxBefore := meanFlux(feats[i-w : i])
		fluxAfter := meanFlux(feats[i+1 : i+1+w])
		rmsBefore := meanRMS(feats[i-w : i])
		rmsAfter := meanRMS(feats[i+1 : i+1+w])

		dF := relDelta(fluxAfter, fluxBefore)
		dR := relDelta(rmsAfter, rmsBefore)

		if dF > PhraseFluxThreshold || dR > PhraseRMSThreshold {
			out = append(out, feats[i].TimeOffset)
		}
	}
	return out
}

// refineToZeroCrossing searches samples within ±ZeroCrossingSearchSec of
// seedTime for the nearest sign change, returning its time via linear
// interpolation between the bracketing samples.
func refineToZeroCrossing(samples []float32, sampleRate float64, seedTime float64) float64 {
	center := int(seedTime * sampleRate)
	span := int(ZeroCrossingSearchSec * sampleRate)
	lo := center - span
	hi := center + span
	if lo < 1 {
		lo = 1
	}
	if hi > len(samples)-1 {
		hi = len(samples) - 1
	}

	best := center
	bestDist := math.MaxInt64
	for i := lo; i <= hi; i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			dist := i - center
			if dist < 0 {
				dist = -dist
			}
			if dist < bestDist {
				bestDist = dist
				best = i
			}
		}
	}
	if bestDist == math.MaxInt64 {
		return seedTime
	}

	a, b := samples[best-1], samples[best]
	var frac float64
	if a != b {
		frac = float64(-a) / float64(b-a)
	}
	return (float64(best-1) + frac) / sampleRate
}

func dedupeSorted(times []float64) []float64 {
	if len(times) == 0 {
		return nil
	}
	sort.Float64s(times)
	out := times[:1]
	for _, t := range times[1:] {
		if t-out[len(out)-1] > 1e-6 {
			out = append(out, t)
		}
	}
	return out
}

func enumeratePairs(seeds []float64, duration float64) []pair {
	var out []pair
	for _, s := range seeds {
		for _, e := range seeds {
			if e <= s {
				continue
			}
			length := e - s
			if length < MinSectionDuration || length > MaxLoopFractionOfDuration*duration {
				continue
			}
			out = append(out, pair{s: s, e: e})
		}
	}
	return out
}

func strideSample(pairs []pair, cap int) []pair {
	if len(pairs) <= cap {
		return pairs
	}
	stride := float64(len(pairs)) / float64(cap)
	out := make([]pair, 0, cap)
	for i := 0; i < cap; i++ {
		idx := int(float64(i) * stride)
		if idx >= len(pairs) {
			idx = len(pairs) - 1
		}
		out = append(out, pairs[idx])
	}
	return out
}

func rerank(cands []LoopCandidate, sections []Section, duration float64) {
	for i := range cands {
		c := &cands[i]
		bonus := 0.0
		for _, sec := range sections {
			if math.Abs(c.StartTime-sec.StartTime) <= StructuralBoundaryTolSec {
				bonus += StructuralBoundaryBonus
			}
			if math.Abs(c.EndTime-sec.EndTime) <= StructuralBoundaryTolSec {
				bonus += StructuralBoundaryBonus
			}
		}
		length := c.EndTime - c.StartTime
		frac := length / duration
		r := math.Max(0, math.Min(1, (frac-StructuralLengthMin)/(StructuralLengthMax-StructuralLengthMin)))
		bonus += StructuralLengthBonusMax * r
		if frac > StructuralLongPenaltyFrac {
			bonus -= StructuralLongPenalty
		}
		c.Quality = math.Max(0, math.Min(10, c.Quality+bonus))
	}
}

// fallbackCandidates derives a structural guess when scoring produced
// nothing worth keeping; the chosen end still passes through the fade-out
// guard in the caller.
func fallbackCandidates(sections []Section, duration float64) []LoopCandidate {
	var start, end float64
	switch len(sections) {
	case 0:
		start = duration / 3
		end = duration
	case 1:
		sec := sections[0]
		start = sec.StartTime + (sec.EndTime-sec.StartTime)/3
		end = sec.EndTime
	default:
		start = sections[0].EndTime
		end = sections[len(sections)-1].EndTime
	}
	return []LoopCandidate{{StartTime: start, EndTime: end, Quality: 0}}
}
