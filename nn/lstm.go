package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// lstmCell is a fused-kernel LSTM.
// Kernel columns hold the four gates in the order i (input), j (candidate),
// f (forget), o (output); a constant forget bias of 1.0 is added to f.
// With peepholes the i and f gates also see c_{t-1} and the o gate sees c_t
// through per-unit diagonal weights.
type lstmCell struct {
	inputSize  int
	hiddenSize int
	activation ActivationType
	peepholes  bool
	forgetBias float64

	kernel *Param // [inputSize+hiddenSize x 4*hiddenSize]
	bias   *Param // [1 x 4*hiddenSize]

	peepI *Param // [1 x hiddenSize]
	peepF *Param
	peepO *Param
}

// lstmCache holds everything the backward pass needs from one time step
type lstmCache struct {
	concat *mat.Dense // [x_t, h_{t-1}]
	cPrev  *mat.Dense
	i, f   *mat.Dense // gate activations
	o      *mat.Dense
	zj     *mat.Dense // candidate pre-activation
	g      *mat.Dense // act(zj)
	c      *mat.Dense // new cell state
	cAct   *mat.Dense // act(c_t)
}

func newLSTMCell(prefix string, inputSize, hiddenSize int, activation ActivationType, peepholes bool) *lstmCell {
	l := &lstmCell{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		activation: activation,
		peepholes:  peepholes,
		forgetBias: 1.0,
		kernel:     newParam(prefix+"/lstm_cell/kernel", inputSize+hiddenSize, 4*hiddenSize),
		bias:       newParam(prefix+"/lstm_cell/bias", 1, 4*hiddenSize),
	}
	if peepholes {
		l.peepI = newParam(prefix+"/lstm_cell/w_i_diag", 1, hiddenSize)
		l.peepF = newParam(prefix+"/lstm_cell/w_f_diag", 1, hiddenSize)
		l.peepO = newParam(prefix+"/lstm_cell/w_o_diag", 1, hiddenSize)
	}
	return l
}

func (l *lstmCell) kind() CellKind { return CellLSTM }

func (l *lstmCell) params() []*Param {
	ps := []*Param{l.kernel, l.bias}
	if l.peepholes {
		ps = append(ps, l.peepI, l.peepF, l.peepO)
	}
	return ps
}

func (l *lstmCell) init(rng *rand.Rand) {
	l.kernel.initGlorotUniform(rng)
	l.bias.initConstant(0)
	if l.peepholes {
		l.peepI.initGlorotUniform(rng)
		l.peepF.initGlorotUniform(rng)
		l.peepO.initGlorotUniform(rng)
	}
}

func (l *lstmCell) zeroState(batch int) cellState {
	return cellState{h: zeros(batch, l.hiddenSize), c: zeros(batch, l.hiddenSize)}
}

func (l *lstmCell) step(x *mat.Dense, prev cellState) (cellState, any) {
	h := l.hiddenSize
	concat := hcat(x, prev.h)
	z := mul(concat, l.kernel.Value)
	addRowVector(z, l.bias.Value)

	zi := cols(z, 0, h)
	zj := cols(z, h, 2*h)
	zf := cols(z, 2*h, 3*h)
	zo := cols(z, 3*h, 4*h)

	if l.peepholes {
		zi.Add(zi, mulRowVector(prev.c, l.peepI.Value))
		zf.Add(zf, mulRowVector(prev.c, l.peepF.Value))
	}
	forget := l.forgetBias
	zf.Apply(func(_, _ int, v float64) float64 { return v + forget }, zf)

	i := sigmoidMatrix(zi)
	f := sigmoidMatrix(zf)
	g := activateMatrix(zj, l.activation)

	c := add(mulElem(f, prev.c), mulElem(i, g))
	if l.peepholes {
		zo.Add(zo, mulRowVector(c, l.peepO.Value))
	}
	o := sigmoidMatrix(zo)
	cAct := activateMatrix(c, l.activation)
	hNew := mulElem(o, cAct)

	cache := &lstmCache{concat: concat, cPrev: prev.c, i: i, f: f, o: o, zj: zj, g: g, c: c, cAct: cAct}
	return cellState{h: hNew, c: c}, cache
}

func (l *lstmCell) stepBackward(cached any, dh, dcNext *mat.Dense) (dx, dhPrev, dcPrev *mat.Dense) {
	s := cached.(*lstmCache)

	// h_t = o ⊙ act(c_t)
	do := mulElem(dh, s.cAct)
	dc := mulElem(mulElem(dh, s.o), activateDerivativeMatrix(s.c, l.activation))
	accumulate(dc, dcNext)

	dzo := mulElem(do, sigmoidGrad(s.o))
	if l.peepholes {
		dc.Add(dc, mulRowVector(dzo, l.peepO.Value))
		addColumnSums(l.peepO.Grad, mulElem(dzo, s.c))
	}

	// c_t = f ⊙ c_{t-1} + i ⊙ g
	dzf := mulElem(mulElem(dc, s.cPrev), sigmoidGrad(s.f))
	dzi := mulElem(mulElem(dc, s.g), sigmoidGrad(s.i))
	dzj := mulElem(mulElem(dc, s.i), activateDerivativeMatrix(s.zj, l.activation))
	dcPrev = mulElem(dc, s.f)
	if l.peepholes {
		dcPrev.Add(dcPrev, mulRowVector(dzf, l.peepF.Value))
		dcPrev.Add(dcPrev, mulRowVector(dzi, l.peepI.Value))
		addColumnSums(l.peepF.Grad, mulElem(dzf, s.cPrev))
		addColumnSums(l.peepI.Grad, mulElem(dzi, s.cPrev))
	}

	dz := hcat(dzi, dzj, dzf, dzo)
	l.kernel.Grad.Add(l.kernel.Grad, mul(s.concat.T(), dz))
	addColumnSums(l.bias.Grad, dz)

	dConcat := mul(dz, l.kernel.Value.T())
	return cols(dConcat, 0, l.inputSize), cols(dConcat, l.inputSize, l.inputSize+l.hiddenSize), dcPrev
}

func (l *lstmCell) weights() CellWeights {
	return LSTMWeights{
		Kernel: mat.DenseCopyOf(l.kernel.Value),
		Bias:   mat.DenseCopyOf(l.bias.Value),
	}
}

func (l *lstmCell) String() string {
	return fmt.Sprintf("LSTM(%d->%d, %s, peepholes=%t)", l.inputSize, l.hiddenSize, l.activation, l.peepholes)
}
