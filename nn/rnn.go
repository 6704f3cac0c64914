package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// rnnCell is the basic recurrent cell: h_t = act([x_t, h_{t-1}] @ W + b)
type rnnCell struct {
	inputSize  int
	hiddenSize int
	activation ActivationType

	kernel *Param // [inputSize+hiddenSize x hiddenSize]
	bias   *Param // [1 x hiddenSize]
}

type rnnCache struct {
	concat *mat.Dense // [x_t, h_{t-1}]
	z      *mat.Dense // pre-activation
}

func newRNNCell(prefix string, inputSize, hiddenSize int, activation ActivationType) *rnnCell {
	return &rnnCell{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		activation: activation,
		kernel:     newParam(prefix+"/basic_rnn_cell/kernel", inputSize+hiddenSize, hiddenSize),
		bias:       newParam(prefix+"/basic_rnn_cell/bias", 1, hiddenSize),
	}
}

func (r *rnnCell) kind() CellKind { return CellRNN }

func (r *rnnCell) params() []*Param {
	return []*Param{r.kernel, r.bias}
}

func (r *rnnCell) init(rng *rand.Rand) {
	r.kernel.initGlorotUniform(rng)
	r.bias.initConstant(0)
}

func (r *rnnCell) zeroState(batch int) cellState {
	return cellState{h: zeros(batch, r.hiddenSize)}
}

func (r *rnnCell) step(x *mat.Dense, prev cellState) (cellState, any) {
	concat := hcat(x, prev.h)
	z := mul(concat, r.kernel.Value)
	addRowVector(z, r.bias.Value)
	return cellState{h: activateMatrix(z, r.activation)}, &rnnCache{concat: concat, z: z}
}

func (r *rnnCell) stepBackward(cached any, dh, _ *mat.Dense) (dx, dhPrev, dcPrev *mat.Dense) {
	s := cached.(*rnnCache)

	dz := mulElem(dh, activateDerivativeMatrix(s.z, r.activation))
	r.kernel.Grad.Add(r.kernel.Grad, mul(s.concat.T(), dz))
	addColumnSums(r.bias.Grad, dz)

	dConcat := mul(dz, r.kernel.Value.T())
	return cols(dConcat, 0, r.inputSize), cols(dConcat, r.inputSize, r.inputSize+r.hiddenSize), nil
}

func (r *rnnCell) weights() CellWeights {
	return RNNWeights{
		Kernel: mat.DenseCopyOf(r.kernel.Value),
		Bias:   mat.DenseCopyOf(r.bias.Value),
	}
}

func (r *rnnCell) String() string {
	return fmt.Sprintf("RNN(%d->%d, %s)", r.inputSize, r.hiddenSize, r.activation)
}
