package analysis

import (
	"context"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// FeatureExtractor produces a time-ordered sequence of AudioFeatures from
// a mono channel of float samples, using WindowSize-frame windows stepped
// by HopSize (50% overlap).
type FeatureExtractor struct {
	sampleRate float64
	fftSize    int
	window     []float64
	fft        *fourier.FFT
}

// NewFeatureExtractor builds an extractor for the given sample rate. The FFT
// operates on the Hann-windowed analysis window zero-padded to the next
// power of two at or above WindowSize.
func NewFeatureExtractor(sampleRate float64) *FeatureExtractor {
	fftSize := nextPowerOfTwo(WindowSize)
	window := make([]float64, WindowSize)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(WindowSize-1)))
	}
	return &FeatureExtractor{
		sampleRate: sampleRate,
		fftSize:    fftSize,
		window:     window,
		fft:        fourier.NewFFT(fftSize),
	}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	return p
}

// Extract runs the windowed pipeline over channel-0 samples, yielding
// control via ctx at least once per YieldEveryNWindows windows so the
// overall analysis stays cancelable. It returns ctx.Err() if cancelled
// partway through; partial results are discarded by the caller.
func (fe *FeatureExtractor) Extract(ctx context.Context, samples []float32) ([]AudioFeatures, error) {
	if len(samples) < WindowSize {
		return nil, nil
	}
	numWindows := (len(samples)-WindowSize)/HopSize + 1
	out := make([]AudioFeatures, 0, numWindows)

	windowed := make([]float64, fe.fftSize)
	var prevMag []float64

	for k := 0; k < numWindows; k++ {
		if k%YieldEveryNWindows == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}

		start := k * HopSize
		for i := range windowed {
			if i < WindowSize {
				windowed[i] = float64(samples[start+i]) * fe.window[i]
			} else {
				windowed[i] = 0
			}
		}

		coeffs := fe.fft.Coefficients(nil, windowed)
		mag := make([]float64, len(coeffs))
		for i, c := range coeffs {
			mag[i] = math.Hypot(real(c), imag(c))
		}

		f := AudioFeatures{
			TimeOffset:       float64(start) / fe.sampleRate,
			RMS:              rms(samples[start : start+WindowSize]),
			SpectralCentroid: spectralCentroid(mag, fe.sampleRate, fe.fftSize),
			SpectralFlux:     spectralFlux(mag, prevMag),
			ZeroCrossingRate: zeroCrossingRate(samples[start : start+WindowSize]),
		}
		out = append(out, f)
		prevMag = mag
	}
	return out, nil
}

func rms(x []float32) float64 {
	var sum float64
	for _, v := range x {
		fv := float64(v)
		sum += fv * fv
	}
	return math.Sqrt(sum / float64(len(x)))
}

// spectralCentroid is the magnitude-weighted mean bin frequency over the
// non-redundant half of the spectrum (bins [0, fftSize/2]).
func spectralCentroid(mag []float64, sampleRate float64, fftSize int) float64 {
	nyquistBins := fftSize/2 + 1
	if nyquistBins > len(mag) {
		nyquistBins = len(mag)
	}
	var weighted, total float64
	for b := 0; b < nyquistBins; b++ {
		freq := float64(b) * sampleRate / float64(fftSize)
		weighted += freq * mag[b]
		total += mag[b]
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// spectralFlux is the half-wave-rectified frame-to-frame magnitude
// difference; zero for the first window (no predecessor).
func spectralFlux(mag, prevMag []float64) float64 {
	if prevMag == nil {
		return 0
	}
	var sum float64
	n := len(mag)
	if len(prevMag) < n {
		n = len(prevMag)
	}
	for b := 0; b < n; b++ {
		d := mag[b] - prevMag[b]
		if d > 0 {
			sum += d
		}
	}
	return sum
}

func zeroCrossingRate(x []float32) float64 {
	crossings := 0
	for i := 1; i < len(x); i++ {
		if (x[i-1] >= 0) != (x[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(x))
}
