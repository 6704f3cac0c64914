package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Loss computes the training loss of a forward pass: 0.5 * in-sample SSE
// plus the regularization penalty.
func (n *Network) Loss(pred, y *mat.Dense, cutoff int) float64 {
	loss := n.RegularizationPenalty()
	predIS, _ := SplitRows(pred, cutoff)
	yIS, _ := SplitRows(y, cutoff)
	if predIS != nil {
		loss += halfSSE(predIS, yIS)
	}
	return loss
}

// lossGradient is dL/dpred: the residual on in-sample rows and zero on
// out-of-sample rows.
func lossGradient(pred, y *mat.Dense, cutoff int) *mat.Dense {
	grad := sub(pred, y)
	r, c := grad.Dims()
	for i := max(cutoff, 0); i < r; i++ {
		for j := 0; j < c; j++ {
			grad.Set(i, j, 0)
		}
	}
	return grad
}

// Gradients clears and recomputes every Param.Grad for one forward pass with
// dropout at keepProb, returning the training loss of that pass.
func (n *Network) Gradients(xs []*mat.Dense, y *mat.Dense, cutoff int, keepProb float64, rng *rand.Rand) float64 {
	n.ZeroGrad()
	pred, tr := n.Forward(xs, keepProb, rng)
	loss := n.Loss(pred, y, cutoff)
	n.addRegularizationGrad()
	n.Backward(tr, lossGradient(pred, y, cutoff))
	return loss
}

// TrainStep runs one gradient step on the in-sample rows of a batch and
// returns the training loss measured before the update.
func (n *Network) TrainStep(xs []*mat.Dense, y *mat.Dense, cutoff int, keepProb float64, rng *rand.Rand, opt *AdamOptimizer, lr float64) float64 {
	loss := n.Gradients(xs, y, cutoff, keepProb, rng)
	opt.Step(n.params, lr)
	return loss
}
