package analysis

import (
	"context"
	"math"
)

// BuildSimilarityMatrix computes the self-similarity matrix over a feature
// sequence: distance(i, j) is the weighted Euclidean norm of the
// per-feature differences, similarity = 1 − min(1, distance/2). The matrix
// is symmetric with an identity diagonal by construction (distance(i, i) =
// 0). Construction yields per row so the caller can cancel long runs.
func BuildSimilarityMatrix(ctx context.Context, feats []AudioFeatures) (*SimilarityMatrix, error) {
	n := len(feats)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		m[i][i] = 1
		for j := i + 1; j < n; j++ {
			sim := similarity(feats[i], feats[j])
			m[i][j] = sim
			m[j][i] = sim
		}
	}
	return &SimilarityMatrix{M: m}, nil
}

func similarity(a, b AudioFeatures) float64 {
	d := weightedDistance(a, b)
	return 1 - math.Min(1, d/2)
}

func weightedDistance(a, b AudioFeatures) float64 {
	drms := (a.RMS - b.RMS) * WeightRMS
	dcen := (a.SpectralCentroid - b.SpectralCentroid) * WeightCentroid
	dflx := (a.SpectralFlux - b.SpectralFlux) * WeightFlux
	dzcr := (a.ZeroCrossingRate - b.ZeroCrossingRate) * WeightZCR
	return math.Sqrt(drms*drms + dcen*dcen + dflx*dflx + dzcr*dzcr)
}
