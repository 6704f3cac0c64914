package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Initial distribution of the output projection.
const (
	projectionMean   = 0.0
	projectionStdDev = 0.6
)

// denseLayer projects the terminal hidden state to the output features: y = h @ W + b
type denseLayer struct {
	weights *Param // [hiddenSize x outputs]
	bias    *Param // [1 x outputs]
}

func newDenseLayer(prefix string, inputSize, outputSize int) *denseLayer {
	return &denseLayer{
		weights: newParam(prefix+"/fc1/W_fc1", inputSize, outputSize),
		bias:    newParam(prefix+"/fc1/b_fc1", 1, outputSize),
	}
}

func (d *denseLayer) params() []*Param {
	return []*Param{d.weights, d.bias}
}

func (d *denseLayer) init(rng *rand.Rand) {
	d.weights.initTruncatedNormal(rng, projectionMean, projectionStdDev)
	d.bias.initTruncatedNormal(rng, projectionMean, projectionStdDev)
}

func (d *denseLayer) forward(h *mat.Dense) *mat.Dense {
	out := mul(h, d.weights.Value)
	addRowVector(out, d.bias.Value)
	return out
}

// backward accumulates parameter gradients and returns dL/dh.
func (d *denseLayer) backward(h, dOut *mat.Dense) *mat.Dense {
	d.weights.Grad.Add(d.weights.Grad, mul(h.T(), dOut))
	addColumnSums(d.bias.Grad, dOut)
	return mul(dOut, d.weights.Value.T())
}
