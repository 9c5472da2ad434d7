package analysis

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// ScoreTransition evaluates the loop seam quality at a candidate (s, e)
// boundary: s and e are frame indices into a mono sample slice, each with
// TransitionWindow frames of context on the appropriate side.
// Callers must ensure e-TransitionWindow >= 0, e <= len(samples), s >= 0
// and s+TransitionWindow <= len(samples); ScoreTransition does not
// bounds-check.
func ScoreTransition(samples []float32, s, e int) (quality float64, metrics CandidateMetrics) {
	pre := samples[e-TransitionWindow : e]
	post := samples[s : s+TransitionWindow]

	rmsPre := rms(pre)
	rmsPost := rms(post)
	volumeChange := math.Abs(rmsPre-rmsPost) / math.Max(changeEpsilon, math.Max(rmsPre, rmsPost)) * 100

	phaseJump := math.Abs(float64(pre[len(pre)-1]) - float64(post[0]))
	zeroEnd := math.Abs(float64(pre[len(pre)-1])) < ZeroThreshold
	zeroStart := math.Abs(float64(post[0])) < ZeroThreshold

	fft := fourier.NewFFT(nextPowerOfTwo(TransitionWindow))
	preMag := magnitudeSpectrum(fft, pre)
	postMag := magnitudeSpectrum(fft, post)

	spectralDiff := spectralDifference(preMag, postMag)
	harmonic := harmonicContinuity(preMag, postMag)
	envelope := envelopeContinuity(pre, post)

	volumeScore := 10 * (1 - math.Min(1, volumeChange/100))
	phaseScore := 10 * (1 - math.Min(1, phaseJump*5))
	spectralScore := 10 * (1 - math.Min(1, spectralDiff*2))
	harmonicScore := 10 * harmonic
	envelopeScore := 10 * envelope

	quality = VolumeWeight*volumeScore + PhaseWeight*phaseScore +
		SpectralWeight*spectralScore + HarmonicWeight*harmonicScore +
		EnvelopeWeight*envelopeScore

	if zeroStart && zeroEnd {
		quality += ZeroBothBonus
	}
	quality = math.Min(quality, 10)

	metrics = CandidateMetrics{
		VolumeChangePercent: volumeChange,
		PhaseJump:           phaseJump,
		SpectralDifference:  spectralDiff,
		HarmonicContinuity:  harmonic,
		EnvelopeContinuity:  envelope,
		ZeroStart:           zeroStart,
		ZeroEnd:             zeroEnd,
	}
	return quality, metrics
}

func magnitudeSpectrum(fft *fourier.FFT, x []float32) []float64 {
	padded := make([]float64, fft.Len())
	for i, v := range x {
		if i >= len(padded) {
			break
		}
		padded[i] = float64(v)
	}
	coeffs := fft.Coefficients(nil, padded)
	mag := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mag[i] = math.Hypot(real(c), imag(c))
	}
	return mag
}

func spectralDifference(pre, post []float64) float64 {
	var num, den float64
	n := minInt(len(pre), len(post))
	for b := 0; b < n; b++ {
		num += math.Abs(pre[b] - post[b])
		den += math.Max(pre[b], post[b])
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// harmonicContinuity is the cosine similarity of the lower quarter of the
// two magnitude spectra, where most harmonic energy concentrates.
func harmonicContinuity(pre, post []float64) float64 {
	n := minInt(len(pre), len(post)) / 4
	if n == 0 {
		return 0
	}
	var dot, normPre, normPost float64
	for b := 0; b < n; b++ {
		dot += pre[b] * post[b]
		normPre += pre[b] * pre[b]
		normPost += post[b] * post[b]
	}
	denom := math.Sqrt(normPre) * math.Sqrt(normPost)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// envelopeContinuity compares the last/first three 128-frame RMS
// sub-envelopes of the pre/post windows.
func envelopeContinuity(pre, post []float32) float64 {
	preTail := subEnvelopes(pre, true)
	postHead := subEnvelopes(post, false)

	var num, den float64
	for i := 0; i < EnvelopeSubCount; i++ {
		num += math.Abs(preTail[i] - postHead[i])
		den += math.Max(preTail[i], postHead[i])
	}
	if den == 0 {
		return 1
	}
	return 1 - num/den
}

// subEnvelopes returns EnvelopeSubCount RMS values over the trailing (fromEnd
// true) or leading (fromEnd false) EnvelopeSubWindow-frame buckets.
func subEnvelopes(x []float32, fromEnd bool) [EnvelopeSubCount]float64 {
	var out [EnvelopeSubCount]float64
	for i := 0; i < EnvelopeSubCount; i++ {
		var start, end int
		if fromEnd {
			end = len(x) - i*EnvelopeSubWindow
			start = end - EnvelopeSubWindow
		} else {
			start = i * EnvelopeSubWindow
			end = start + EnvelopeSubWindow
		}
		if start < 0 {
			start = 0
		}
		if end > len(x) {
			end = len(x)
		}
		if end <= start {
			out[i] = 0
			continue
		}
		out[i] = rms(x[start:end])
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
