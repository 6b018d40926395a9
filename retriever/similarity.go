package retriever

import "math"

// CosineSimilarity returns the cosine of the angle between a and b. The
// caller guarantees equal lengths. A zero-magnitude vector yields 0.
func CosineSimilarity(a, b []float32) float64 {
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return clamp(dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Norm is the Euclidean length of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// CosineWithNorm scores b against a query whose norm is already known.
// It produces the same value as CosineSimilarity(query, b).
func CosineWithNorm(query []float32, queryNorm float64, b []float32) float64 {
	var dotProduct, normB float64
	for i := range query {
		dotProduct += float64(query[i]) * float64(b[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if queryNorm == 0 || normB == 0 {
		return 0.0
	}

	return clamp(dotProduct / (queryNorm * math.Sqrt(normB)))
}

// Round4 rounds a score to four decimals.
func Round4(score float64) float64 {
	return math.Round(score*1e4) / 1e4
}

func clamp(s float64) float64 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
