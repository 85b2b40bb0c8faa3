package vectormath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{1, 2, 3}
	require.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
	require.InDelta(t, 0.0, CosineDistance(v, v), 1e-9)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	require.InDelta(t, 0.0, CosineSimilarity(a, b), 1e-9)
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}
	require.Equal(t, 0.0, CosineSimilarity(a, b))
}

func TestNormalizeUnitNorm(t *testing.T) {
	v := []float32{3, 4}
	n := Normalize(v)
	require.InDelta(t, 1.0, math.Sqrt(Dot(n, n)), 1e-6)
}

func TestToPgvectorLiteral(t *testing.T) {
	lit := ToPgvectorLiteral([]float32{0.5, -1, 2})
	require.Equal(t, "[0.5,-1,2]", lit)
}
