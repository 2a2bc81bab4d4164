// Package similarity holds the pure vector math behind semantic search:
// pairwise metrics, top-k ranking, reranking, and aggregation.
package similarity

import (
	"fmt"
	"math"
	"sort"

	apperrors "github.com/scriptvec/scriptvec/internal/pkg/errors"
)

type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
	MetricDot       Metric = "dot"
	MetricManhattan Metric = "manhattan"
)

// Match is one scored candidate, higher score meaning more similar.
type Match struct {
	Index int
	Score float64
}

// Calculate scores two vectors under the given metric. Cosine returns 0 when
// either vector has zero magnitude.
func Calculate(a, b []float32, metric Metric) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: dimension mismatch %d vs %d", apperrors.ErrValidation, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("%w: empty vectors", apperrors.ErrValidation)
	}
	switch metric {
	case MetricCosine, "":
		return cosine(a, b), nil
	case MetricEuclidean:
		return euclidean(a, b), nil
	case MetricDot:
		return dot(a, b), nil
	case MetricManhattan:
		return manhattan(a, b), nil
	default:
		return 0, fmt.Errorf("%w: unknown metric %q", apperrors.ErrValidation, metric)
	}
}

// IsDistance reports whether lower scores mean closer for the metric.
func IsDistance(metric Metric) bool {
	return metric == MetricEuclidean || metric == MetricManhattan
}

func cosine(a, b []float32) float64 {
	var dp, na, nb float64
	for i := range a {
		dp += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dp / (math.Sqrt(na) * math.Sqrt(nb))
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func manhattan(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return sum
}

// FindMostSimilar ranks candidates against the query and returns the top k
// descending. Distance metrics are folded to a bounded similarity via
// exp(-distance) so higher is always better. Candidates that fail to score
// (e.g. dimension mismatch) are skipped. A positive threshold drops scores
// below it.
func FindMostSimilar(query []float32, candidates [][]float32, topK int, threshold float64, metric Metric) []Match {
	matches := make([]Match, 0, len(candidates))
	for i, cand := range candidates {
		score, err := Calculate(query, cand, metric)
		if err != nil {
			continue
		}
		if IsDistance(metric) {
			score = math.Exp(-score)
		}
		if threshold > 0 && score < threshold {
			continue
		}
		matches = append(matches, Match{Index: i, Score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if topK > 0 && topK < len(matches) {
		matches = matches[:topK]
	}
	return matches
}

// BatchSimilarity computes the full symmetric pairwise matrix with a 1.0
// diagonal.
func BatchSimilarity(vectors [][]float32, metric Metric) ([][]float64, error) {
	n := len(vectors)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1.0
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			score, err := Calculate(vectors[i], vectors[j], metric)
			if err != nil {
				return nil, err
			}
			matrix[i][j] = score
			matrix[j][i] = score
		}
	}
	return matrix, nil
}

// Rerank re-scores an existing candidate set under a different metric and
// re-sorts it. Candidates that fail to score are dropped.
func Rerank(query []float32, candidates [][]float32, indices []int, metric Metric) []Match {
	matches := make([]Match, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(candidates) {
			continue
		}
		score, err := Calculate(query, candidates[idx], metric)
		if err != nil {
			continue
		}
		if IsDistance(metric) {
			score = math.Exp(-score)
		}
		matches = append(matches, Match{Index: idx, Score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// NormalizeToUnit divides each vector by its own magnitude. Zero vectors are
// returned unchanged.
func NormalizeToUnit(vectors [][]float32) [][]float32 {
	out := make([][]float32, len(vectors))
	for i, vec := range vectors {
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			out[i] = vec
			continue
		}
		scaled := make([]float32, len(vec))
		for j, v := range vec {
			scaled[j] = float32(float64(v) / norm)
		}
		out[i] = scaled
	}
	return out
}

// Centroid returns the element-wise mean of the vectors.
func Centroid(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: centroid of empty set", apperrors.ErrValidation)
	}
	dim := len(vectors[0])
	sums := make([]float64, dim)
	for _, vec := range vectors {
		if len(vec) != dim {
			return nil, fmt.Errorf("%w: dimension mismatch %d vs %d", apperrors.ErrValidation, len(vec), dim)
		}
		for i, v := range vec {
			sums[i] += float64(v)
		}
	}
	out := make([]float32, dim)
	for i, s := range sums {
		out[i] = float32(s / float64(len(vectors)))
	}
	return out, nil
}
