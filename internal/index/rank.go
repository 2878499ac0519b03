package index

import "math"

// BM25 parameters, same tuning the platform has always used.
const (
	k1 = 1.2
	b  = 0.75
)

func computeIDF(totalDocs, docFreq int) float64 {
	if docFreq == 0 {
		return 0
	}
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq, docLength, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	if denominator == 0 {
		return 0
	}
	return termFreq * (k1 + 1) / denominator
}
