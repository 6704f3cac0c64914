package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// cellState is the recurrent state carried between time steps. c is only
// set for LSTM cells.
type cellState struct {
	h *mat.Dense
	c *mat.Dense
}

// cell is one recurrent layer. step consumes the layer input at time t and
// returns the new state plus whatever stepBackward needs later.
type cell interface {
	kind() CellKind
	params() []*Param
	init(rng *rand.Rand)
	zeroState(batch int) cellState
	step(x *mat.Dense, prev cellState) (cellState, any)
	// stepBackward takes dL/dh_t and dL/dc_t (nil when not an LSTM or when
	// no gradient flows) and returns dL/dx_t, dL/dh_{t-1}, dL/dc_{t-1}.
	stepBackward(cache any, dh, dc *mat.Dense) (dx, dhPrev, dcPrev *mat.Dense)
	weights() CellWeights
}

// Network is a stack of recurrent layers followed by a dense projection of
// the last layer's terminal hidden state.
type Network struct {
	hp     HyperParams
	scope  string
	cells  []cell
	output *denseLayer
	params []*Param
}

// Trace records one forward pass for Backward.
type Trace struct {
	caches [][]any        // [time][layer]
	masks  [][]*mat.Dense // [time][layer] scaled dropout masks, nil when dropout is off
	final  *mat.Dense     // terminal hidden state of the last layer
}

// Build validates hp and constructs a network under scope, initialised from hp.Seed.
func Build(hp HyperParams, scope string) (*Network, error) {
	if err := hp.Validate(); err != nil {
		return nil, err
	}
	if scope == "" {
		scope = "rnn"
	}

	n := &Network{hp: hp, scope: scope}
	inputSize := hp.InputFeatures
	for l := 0; l < hp.Layers; l++ {
		prefix := layerScope(scope, l)
		var c cell
		switch hp.Cell {
		case CellLSTM:
			c = newLSTMCell(prefix, inputSize, hp.States, hp.Activation, hp.Peepholes)
		case CellGRU:
			c = newGRUCell(prefix, inputSize, hp.States, hp.Activation)
		case CellRNN:
			c = newRNNCell(prefix, inputSize, hp.States, hp.Activation)
		default:
			return nil, fmt.Errorf("%w: cell_type %s is not recognized", ErrConfig, hp.Cell)
		}
		n.cells = append(n.cells, c)
		n.params = append(n.params, c.params()...)
		inputSize = hp.States
	}
	n.output = newDenseLayer(scope+"/model", hp.States, hp.OutputFeatures)
	n.params = append(n.params, n.output.params()...)

	n.Init(hp.Seed)
	return n, nil
}

// Init re-draws every parameter from a generator seeded with seed.
// Equal seeds give identical parameters.
func (n *Network) Init(seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for _, c := range n.cells {
		c.init(rng)
	}
	n.output.init(rng)
	for _, p := range n.params {
		p.zeroGrad()
	}
}

// HyperParams returns the configuration the network was built with.
func (n *Network) HyperParams() HyperParams { return n.hp }

// Scope returns the name prefix of every parameter.
func (n *Network) Scope() string { return n.scope }

// Params returns all learnable parameters in a fixed order.
func (n *Network) Params() []*Param { return n.params }

// Param looks up a parameter by name.
func (n *Network) Param(name string) (*Param, bool) {
	for _, p := range n.params {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// TotalParameters counts every scalar weight of the network.
func (n *Network) TotalParameters() int {
	total := 0
	for _, p := range n.params {
		total += p.Size()
	}
	return total
}

// Clone returns a deep copy sharing no storage with n.
func (n *Network) Clone() *Network {
	out, err := Build(n.hp, n.scope)
	if err != nil {
		// n was built from the same HyperParams, so this cannot fail.
		panic(err)
	}
	for i, p := range n.params {
		out.params[i].Value.Copy(p.Value)
	}
	return out
}

// Forward runs the stacked cells over every time step of xs and projects
// the last layer's terminal hidden state. Layer outputs feeding the next
// layer are dropped with probability 1-keepProb; keepProb >= 1 disables
// dropout and rng may then be nil.
func (n *Network) Forward(xs []*mat.Dense, keepProb float64, rng *rand.Rand) (*mat.Dense, *Trace) {
	batch, _ := xs[0].Dims()
	layers := len(n.cells)
	dropout := keepProb < 1

	states := make([]cellState, layers)
	for l, c := range n.cells {
		states[l] = c.zeroState(batch)
	}

	tr := &Trace{
		caches: make([][]any, len(xs)),
		masks:  make([][]*mat.Dense, len(xs)),
	}
	for t, x := range xs {
		tr.caches[t] = make([]any, layers)
		tr.masks[t] = make([]*mat.Dense, layers)
		in := x
		for l, c := range n.cells {
			st, cache := c.step(in, states[l])
			states[l] = st
			tr.caches[t][l] = cache
			in = st.h
			// The last layer's per-step output is never consumed, only its state.
			if dropout && l < layers-1 {
				mask := dropoutMask(rng, batch, n.hp.States, keepProb)
				tr.masks[t][l] = mask
				in = mulElem(st.h, mask)
			}
		}
	}

	tr.final = states[layers-1].h
	return n.output.forward(tr.final), tr
}

// Predict runs a forward pass with dropout disabled.
func (n *Network) Predict(xs []*mat.Dense) *mat.Dense {
	pred, _ := n.Forward(xs, 1, nil)
	return pred
}

// Backward propagates dL/dpred through the projection and back through
// time, adding into every Param.Grad. Gradients are not cleared first.
func (n *Network) Backward(tr *Trace, dPred *mat.Dense) {
	layers := len(n.cells)
	dh := make([]*mat.Dense, layers)
	dc := make([]*mat.Dense, layers)
	dh[layers-1] = n.output.backward(tr.final, dPred)

	for t := len(tr.caches) - 1; t >= 0; t-- {
		var fromAbove *mat.Dense
		for l := layers - 1; l >= 0; l-- {
			grad := sumOrZero(dh[l], fromAbove)
			fromAbove = nil
			if grad == nil && dc[l] == nil {
				dh[l] = nil
				continue
			}
			if grad == nil {
				r, c := dc[l].Dims()
				grad = zeros(r, c)
			}
			dx, dhPrev, dcPrev := n.cells[l].stepBackward(tr.caches[t][l], grad, dc[l])
			dh[l], dc[l] = dhPrev, dcPrev
			if l > 0 {
				if mask := tr.masks[t][l-1]; mask != nil {
					dx = mulElem(dx, mask)
				}
				fromAbove = dx
			}
		}
	}
}

// ZeroGrad clears the gradient buffer of every parameter.
func (n *Network) ZeroGrad() {
	for _, p := range n.params {
		p.zeroGrad()
	}
}

// Snapshot copies the last recurrent layer and the projection.
func (n *Network) Snapshot() Snapshot {
	return Snapshot{
		Cell:          n.cells[len(n.cells)-1].weights(),
		OutputWeights: mat.DenseCopyOf(n.output.weights.Value),
		OutputBias:    mat.DenseCopyOf(n.output.bias.Value),
	}
}

func (n *Network) String() string {
	return fmt.Sprintf("%s: %d x %v -> dense(%d->%d), %d parameters",
		n.scope, len(n.cells), n.cells[0], n.hp.States, n.hp.OutputFeatures, n.TotalParameters())
}

// dropoutMask returns a [rows x cols] matrix of 0 and 1/keepProb entries.
func dropoutMask(rng *rand.Rand, rows, cols int, keepProb float64) *mat.Dense {
	mask := zeros(rows, cols)
	data := mask.RawMatrix().Data
	scale := 1 / keepProb
	for i := range data {
		if rng.Float64() < keepProb {
			data[i] = scale
		}
	}
	return mask
}
