package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// pearsonEpsilon keeps the batch correlation finite for constant columns.
const pearsonEpsilon = 1e-4

// ============================================================================
// Correlation Computation Functions
// ============================================================================

// Pearson computes the [outputs x outputs] correlation matrix between the
// columns of pred and actual:
//
//	cov[i][j]   = sum_r (P[r][i] - mean P_i) * (Y[r][j] - mean Y_j)
//	denom[i][j] = sqrt(varP_i * varY_j) + 1e-4
//
// where var is the per-column sum of squared deviations. A nil or empty
// partition yields a matrix of NaN.
func Pearson(pred, actual *mat.Dense, outputs int) *mat.Dense {
	out := zeros(outputs, outputs)
	if pred == nil || actual == nil || pred.IsEmpty() || actual.IsEmpty() {
		out.Apply(func(_, _ int, _ float64) float64 { return math.NaN() }, out)
		return out
	}

	pc := centerColumns(pred)
	yc := centerColumns(actual)

	var cov mat.Dense
	cov.Mul(pc.T(), yc)

	varP := columnSumSquares(pc)
	varY := columnSumSquares(yc)
	for i := 0; i < outputs; i++ {
		for j := 0; j < outputs; j++ {
			out.Set(i, j, cov.At(i, j)/(math.Sqrt(varP[i]*varY[j])+pearsonEpsilon))
		}
	}
	return out
}

// MeanDiagonal averages the diagonal of a square matrix.
func MeanDiagonal(m *mat.Dense) float64 {
	r, _ := m.Dims()
	if r == 0 {
		return math.NaN()
	}
	diag := make([]float64, r)
	for i := range diag {
		diag[i] = m.At(i, i)
	}
	return stat.Mean(diag, nil)
}

// ColumnCorrelation is the Pearson coefficient of each column of actual
// against the same column of pred, averaged across columns. Fewer than two
// rows yield NaN.
func ColumnCorrelation(actual, pred *mat.Dense) float64 {
	if actual == nil || pred == nil || actual.IsEmpty() || pred.IsEmpty() {
		return math.NaN()
	}
	rows, outputs := actual.Dims()
	if rows < 2 {
		return math.NaN()
	}

	corr := make([]float64, outputs)
	for j := range corr {
		corr[j] = stat.Correlation(mat.Col(nil, j, actual), mat.Col(nil, j, pred), nil)
	}
	return floats.Sum(corr) / float64(outputs)
}

// centerColumns returns m with each column's mean subtracted.
func centerColumns(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.DenseCopyOf(m)
	for j := 0; j < c; j++ {
		mean := stat.Mean(mat.Col(nil, j, m), nil)
		for i := 0; i < r; i++ {
			out.Set(i, j, out.At(i, j)-mean)
		}
	}
	return out
}

func columnSumSquares(m *mat.Dense) []float64 {
	_, c := m.Dims()
	out := make([]float64, c)
	for j := range out {
		col := mat.Col(nil, j, m)
		out[j] = floats.Dot(col, col)
	}
	return out
}
