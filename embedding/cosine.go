package embedding

import "math"

// Cosine returns the cosine similarity of a and b, clamped to [-1, 1].
// Mismatched lengths and zero vectors yield 0.0 rather than NaN, so a
// degenerate embedding never poisons downstream score arithmetic.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1.0 {
		return 1.0
	}
	if sim < -1.0 {
		return -1.0
	}
	return sim
}

// Mean returns the element-wise average of the given vectors. Vectors whose
// length differs from the first are skipped. Returns nil for empty input.
func Mean(vecs [][]float64) []float64 {
	var mean []float64
	count := 0
	for _, v := range vecs {
		if len(v) == 0 {
			continue
		}
		if mean == nil {
			mean = make([]float64, len(v))
		}
		if len(v) != len(mean) {
			continue
		}
		for i := range v {
			mean[i] += v[i]
		}
		count++
	}
	if count == 0 {
		return nil
	}
	for i := range mean {
		mean[i] /= float64(count)
	}
	return mean
}
