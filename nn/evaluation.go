package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ============================================================================
// Split-aware loss and metrics
// ============================================================================

// Evaluation is the result of one dropout-free pass over a batch.
type Evaluation struct {
	Pred    *mat.Dense // [rows x outputs]
	Loss    float64    // 0.5 * in-sample SSE plus regularization
	LossOOS float64    // 0.5 * out-of-sample SSE, NaN when there are no oos rows
	CorrIS  *mat.Dense // [outputs x outputs] batch Pearson, in-sample
	CorrOOS *mat.Dense // [outputs x outputs] batch Pearson, out-of-sample
}

// SplitRows partitions m at cutoff into rows [0, cutoff) and [cutoff, end).
// An empty partition is returned as nil. cutoff is clamped to [0, rows].
func SplitRows(m *mat.Dense, cutoff int) (in, out *mat.Dense) {
	r, c := m.Dims()
	cutoff = max(0, min(cutoff, r))
	if cutoff > 0 {
		in = mat.DenseCopyOf(m.Slice(0, cutoff, 0, c))
	}
	if cutoff < r {
		out = mat.DenseCopyOf(m.Slice(cutoff, r, 0, c))
	}
	return in, out
}

// halfSSE is 0.5 * sum((p - y)^2), NaN when either side is missing.
func halfSSE(pred, actual *mat.Dense) float64 {
	if pred == nil || actual == nil {
		return math.NaN()
	}
	d := sub(pred, actual)
	return 0.5 * mat.Sum(mulElem(d, d))
}

// RegularizationPenalty is sum over all parameters of l1*|w| + l2*0.5*w^2.
func (n *Network) RegularizationPenalty() float64 {
	l1, l2 := n.hp.L1Reg, n.hp.L2Reg
	if l1 == 0 && l2 == 0 {
		return 0
	}
	total := 0.0
	for _, p := range n.params {
		for _, w := range p.Value.RawMatrix().Data {
			total += l1*math.Abs(w) + l2*0.5*w*w
		}
	}
	return total
}

// addRegularizationGrad adds l1*sign(w) + l2*w to every gradient.
func (n *Network) addRegularizationGrad() {
	l1, l2 := n.hp.L1Reg, n.hp.L2Reg
	if l1 == 0 && l2 == 0 {
		return
	}
	for _, p := range n.params {
		g := p.Grad.RawMatrix().Data
		for j, w := range p.Value.RawMatrix().Data {
			sign := 0.0
			switch {
			case w > 0:
				sign = 1
			case w < 0:
				sign = -1
			}
			g[j] += l1*sign + l2*w
		}
	}
}

// Evaluate predicts xs with dropout disabled and scores the prediction
// against y split at cutoff. Rows at or past cutoff never contribute to Loss.
func (n *Network) Evaluate(xs []*mat.Dense, y *mat.Dense, cutoff int) Evaluation {
	pred := n.Predict(xs)
	predIS, predOOS := SplitRows(pred, cutoff)
	yIS, yOOS := SplitRows(y, cutoff)

	outputs := n.hp.OutputFeatures
	return Evaluation{
		Pred:    pred,
		Loss:    n.Loss(pred, y, cutoff),
		LossOOS: halfSSE(predOOS, yOOS),
		CorrIS:  Pearson(predIS, yIS, outputs),
		CorrOOS: Pearson(predOOS, yOOS, outputs),
	}
}
