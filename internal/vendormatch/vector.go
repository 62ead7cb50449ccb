package vendormatch

import "math"

// termFrequencies counts tokens and normalizes by document length.
func termFrequencies(tokens []string) map[string]float64 {
	if len(tokens) == 0 {
		return nil
	}
	tf := make(map[string]float64, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	total := float64(len(tokens))
	for tok := range tf {
		tf[tok] /= total
	}
	return tf
}

// CosineSimilarity computes the cosine of the angle between two sparse
// vectors; missing tokens are implicitly zero. Either vector empty yields 0.
func CosineSimilarity(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	// Iterate the smaller vector for the dot product.
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}

	var dot float64
	for tok, av := range small {
		if bv, ok := large[tok]; ok {
			dot += av * bv
		}
	}
	if dot == 0 {
		return 0
	}

	var normA, normB float64
	for _, v := range a {
		normA += v * v
	}
	for _, v := range b {
		normB += v * v
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// meanVector averages a set of sparse vectors; absent tokens count as zero.
func meanVector(vectors []map[string]float64) map[string]float64 {
	if len(vectors) == 0 {
		return nil
	}
	sum := make(map[string]float64)
	for _, vec := range vectors {
		for tok, v := range vec {
			sum[tok] += v
		}
	}
	n := float64(len(vectors))
	for tok := range sum {
		sum[tok] /= n
	}
	return sum
}
