package searcher

import "math"

// CorpusStats is the corpus-wide input to scoring.
type CorpusStats struct {
	TotalDocs    int
	AvgDocLength float64
}

// Scorer computes the contribution of one term occurrence set to a
// document's relevance. The default combines a saturating term-frequency
// component with inverse document frequency; callers needing a different
// formula plug their own Scorer into the Evaluator.
type Scorer interface {
	Score(termFreq, docFreq, docLength int, stats CorpusStats) float64
}

// BM25Scorer is the default Scorer.
type BM25Scorer struct {
	K1 float64
	B  float64
}

// NewBM25Scorer returns a BM25Scorer with the conventional parameters.
func NewBM25Scorer() BM25Scorer {
	return BM25Scorer{K1: 1.2, B: 0.75}
}

func (s BM25Scorer) Score(termFreq, docFreq, docLength int, stats CorpusStats) float64 {
	if termFreq == 0 || docFreq == 0 {
		return 0
	}
	idf := s.idf(stats.TotalDocs, docFreq)
	return idf * s.tfNorm(float64(termFreq), float64(docLength), stats.AvgDocLength)
}

// idf is strictly positive even when every document contains the term, so a
// match never scores to exactly zero.
func (s BM25Scorer) idf(totalDocs, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func (s BM25Scorer) tfNorm(termFreq, docLength, avgDocLength float64) float64 {
	lengthRatio := 1.0
	if avgDocLength > 0 {
		lengthRatio = docLength / avgDocLength
	}
	denominator := termFreq + s.K1*(1-s.B+s.B*lengthRatio)
	return (termFreq * (s.K1 + 1)) / denominator
}
