package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/openfluke/recurrent/nn"
)

// Result is the training history of a session.
type Result struct {
	Epochs          []int
	Losses          []float64 // summed training loss per epoch
	LossesOOS       []float64 // summed out-of-sample loss per epoch
	CorrOOSPerEpoch []float64 // Pearson over the epoch's concatenated oos rows

	// Per-batch mean diagonal of the batch Pearson matrices.
	CorrIS  []float64
	CorrOOS []float64

	// De-normalized rows of every evaluated batch, nil when none were seen.
	ActualIS     *mat.Dense
	ActualOOS    *mat.Dense
	PredictedIS  *mat.Dense
	PredictedOOS *mat.Dense

	// Weights is set when requested through TrainOptions.ReturnWeights.
	Weights *nn.Snapshot
}

// rowBuffer concatenates matrices with equal column counts.
type rowBuffer struct {
	cols int
	data []float64
}

func (b *rowBuffer) append(m *mat.Dense) {
	if m == nil {
		return
	}
	r, c := m.Dims()
	b.cols = c
	for i := 0; i < r; i++ {
		b.data = append(b.data, m.RawRowView(i)...)
	}
}

func (b *rowBuffer) rows() int {
	if b.cols == 0 {
		return 0
	}
	return len(b.data) / b.cols
}

// dense copies the buffer into a matrix, nil when empty.
func (b *rowBuffer) dense() *mat.Dense {
	if len(b.data) == 0 {
		return nil
	}
	return mat.NewDense(b.rows(), b.cols, append([]float64(nil), b.data...))
}

// history accumulates across epochs and calls until a fresh session.
type history struct {
	epochs          []int
	losses          []float64
	lossesOOS       []float64
	corrOOSPerEpoch []float64
	corrIS          []float64
	corrOOS         []float64

	actualIS, actualOOS       rowBuffer
	predictedIS, predictedOOS rowBuffer
}

func (h *history) reset() {
	*h = history{}
}

func (h *history) result() *Result {
	return &Result{
		Epochs:          append([]int(nil), h.epochs...),
		Losses:          append([]float64(nil), h.losses...),
		LossesOOS:       append([]float64(nil), h.lossesOOS...),
		CorrOOSPerEpoch: append([]float64(nil), h.corrOOSPerEpoch...),
		CorrIS:          append([]float64(nil), h.corrIS...),
		CorrOOS:         append([]float64(nil), h.corrOOS...),
		ActualIS:        h.actualIS.dense(),
		ActualOOS:       h.actualOOS.dense(),
		PredictedIS:     h.predictedIS.dense(),
		PredictedOOS:    h.predictedOOS.dense(),
	}
}
