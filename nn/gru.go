package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// gruCell computes
//
//	r, u = sigmoid([x, h]Wg + bg)
//	cand = act([x, r ⊙ h]Wc + bc)
//	h'   = u ⊙ h + (1 - u) ⊙ cand
//
// Gate biases start at 1.0 so the cell initially carries its state forward.
type gruCell struct {
	inputSize  int
	hiddenSize int
	activation ActivationType

	gateKernel *Param // [inputSize+hiddenSize x 2*hiddenSize], columns r then u
	gateBias   *Param // [1 x 2*hiddenSize]
	candKernel *Param // [inputSize+hiddenSize x hiddenSize]
	candBias   *Param // [1 x hiddenSize]
}

type gruCache struct {
	concat     *mat.Dense // [x, h_{t-1}]
	hPrev      *mat.Dense
	r, u       *mat.Dense
	candConcat *mat.Dense // [x, r ⊙ h_{t-1}]
	zc         *mat.Dense // candidate pre-activation
	cand       *mat.Dense
}

func newGRUCell(prefix string, inputSize, hiddenSize int, activation ActivationType) *gruCell {
	return &gruCell{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		activation: activation,
		gateKernel: newParam(prefix+"/gru_cell/gates/kernel", inputSize+hiddenSize, 2*hiddenSize),
		gateBias:   newParam(prefix+"/gru_cell/gates/bias", 1, 2*hiddenSize),
		candKernel: newParam(prefix+"/gru_cell/candidate/kernel", inputSize+hiddenSize, hiddenSize),
		candBias:   newParam(prefix+"/gru_cell/candidate/bias", 1, hiddenSize),
	}
}

func (g *gruCell) kind() CellKind { return CellGRU }

func (g *gruCell) params() []*Param {
	return []*Param{g.gateKernel, g.gateBias, g.candKernel, g.candBias}
}

func (g *gruCell) init(rng *rand.Rand) {
	g.gateKernel.initGlorotUniform(rng)
	g.gateBias.initConstant(1.0)
	g.candKernel.initGlorotUniform(rng)
	g.candBias.initConstant(0)
}

func (g *gruCell) zeroState(batch int) cellState {
	return cellState{h: zeros(batch, g.hiddenSize)}
}

func (g *gruCell) step(x *mat.Dense, prev cellState) (cellState, any) {
	h := g.hiddenSize
	concat := hcat(x, prev.h)
	zg := mul(concat, g.gateKernel.Value)
	addRowVector(zg, g.gateBias.Value)

	r := sigmoidMatrix(cols(zg, 0, h))
	u := sigmoidMatrix(cols(zg, h, 2*h))

	candConcat := hcat(x, mulElem(r, prev.h))
	zc := mul(candConcat, g.candKernel.Value)
	addRowVector(zc, g.candBias.Value)
	cand := activateMatrix(zc, g.activation)

	hNew := add(mulElem(u, prev.h), mulElem(oneMinus(u), cand))
	cache := &gruCache{concat: concat, hPrev: prev.h, r: r, u: u, candConcat: candConcat, zc: zc, cand: cand}
	return cellState{h: hNew}, cache
}

func (g *gruCell) stepBackward(cached any, dh, _ *mat.Dense) (dx, dhPrev, dcPrev *mat.Dense) {
	s := cached.(*gruCache)
	in, h := g.inputSize, g.hiddenSize

	du := mulElem(dh, sub(s.hPrev, s.cand))
	dCand := mulElem(dh, oneMinus(s.u))
	dhPrev = mulElem(dh, s.u)

	// candidate path
	dzc := mulElem(dCand, activateDerivativeMatrix(s.zc, g.activation))
	g.candKernel.Grad.Add(g.candKernel.Grad, mul(s.candConcat.T(), dzc))
	addColumnSums(g.candBias.Grad, dzc)
	dCandConcat := mul(dzc, g.candKernel.Value.T())
	dx = cols(dCandConcat, 0, in)
	dResetState := cols(dCandConcat, in, in+h)
	dhPrev.Add(dhPrev, mulElem(dResetState, s.r))
	dr := mulElem(dResetState, s.hPrev)

	// gates path
	dzr := mulElem(dr, sigmoidGrad(s.r))
	dzu := mulElem(du, sigmoidGrad(s.u))
	dzg := hcat(dzr, dzu)
	g.gateKernel.Grad.Add(g.gateKernel.Grad, mul(s.concat.T(), dzg))
	addColumnSums(g.gateBias.Grad, dzg)
	dConcat := mul(dzg, g.gateKernel.Value.T())
	dx.Add(dx, cols(dConcat, 0, in))
	dhPrev.Add(dhPrev, cols(dConcat, in, in+h))

	return dx, dhPrev, nil
}

func (g *gruCell) weights() CellWeights {
	return GRUWeights{
		GateKernel:      mat.DenseCopyOf(g.gateKernel.Value),
		GateBias:        mat.DenseCopyOf(g.gateBias.Value),
		CandidateKernel: mat.DenseCopyOf(g.candKernel.Value),
		CandidateBias:   mat.DenseCopyOf(g.candBias.Value),
	}
}

func (g *gruCell) String() string {
	return fmt.Sprintf("GRU(%d->%d, %s)", g.inputSize, g.hiddenSize, g.activation)
}
