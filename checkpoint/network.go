package checkpoint

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/openfluke/recurrent/nn"
)

// Optimizer slot suffixes, appended to the parameter name.
const (
	firstMomentSuffix  = "/Adam"
	secondMomentSuffix = "/Adam_1"
)

// FromNetwork captures every parameter of net and, when opt is not nil, its
// moment slots.
func FromNetwork(sessionID string, epoch int, net *nn.Network, opt *nn.AdamOptimizer) *Checkpoint {
	hp := net.HyperParams()
	c := &Checkpoint{
		SessionID: sessionID,
		Epoch:     epoch,
		Scope:     net.Scope(),
		Cell:      hp.Cell.String(),
		SavedAt:   time.Now(),
	}
	for _, p := range net.Params() {
		c.Tensors = append(c.Tensors, tensorOf(p.Name, p.Value))
	}

	if opt != nil {
		st := opt.State()
		c.OptimizerStep = st.Step
		for _, p := range net.Params() {
			if m, ok := st.M[p.Name]; ok {
				c.Tensors = append(c.Tensors, tensorOf(p.Name+firstMomentSuffix, m))
				c.Tensors = append(c.Tensors, tensorOf(p.Name+secondMomentSuffix, st.V[p.Name]))
			}
		}
	}
	return c
}

// Restore copies the stored parameters into net and, when opt is not nil,
// replaces its state with the stored slots. net is left untouched on error.
func (c *Checkpoint) Restore(net *nn.Network, opt *nn.AdamOptimizer) error {
	hp := net.HyperParams()
	if c.Cell != "" && c.Cell != hp.Cell.String() {
		return fmt.Errorf("checkpoint holds a %s network, model is %s", c.Cell, hp.Cell)
	}

	values := make([]*mat.Dense, len(net.Params()))
	for i, p := range net.Params() {
		m, err := c.matrix(p.Name, p)
		if err != nil {
			return err
		}
		values[i] = m
	}

	var st nn.AdamState
	if opt != nil {
		st = nn.AdamState{
			Step: c.OptimizerStep,
			M:    make(map[string]*mat.Dense),
			V:    make(map[string]*mat.Dense),
		}
		for _, p := range net.Params() {
			_, okM := c.Lookup(p.Name + firstMomentSuffix)
			_, okV := c.Lookup(p.Name + secondMomentSuffix)
			if !okM || !okV {
				continue
			}
			m, err := c.matrix(p.Name+firstMomentSuffix, p)
			if err != nil {
				return err
			}
			v, err := c.matrix(p.Name+secondMomentSuffix, p)
			if err != nil {
				return err
			}
			st.M[p.Name] = m
			st.V[p.Name] = v
		}
	}

	for i, p := range net.Params() {
		p.Value.Copy(values[i])
	}
	if opt != nil {
		if err := opt.LoadState(st); err != nil {
			return fmt.Errorf("failed to restore optimizer: %w", err)
		}
	}
	return nil
}

func (c *Checkpoint) matrix(name string, p *nn.Param) (*mat.Dense, error) {
	t, ok := c.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingTensor, name)
	}
	r, col := p.Dims()
	if t.Rows != r || t.Cols != col {
		return nil, fmt.Errorf("%w: %s is %dx%d, network expects %dx%d", ErrFormat, name, t.Rows, t.Cols, r, col)
	}
	if len(t.Data) != r*col {
		return nil, fmt.Errorf("%w: %s holds %d values, expected %d", ErrFormat, name, len(t.Data), r*col)
	}
	return mat.NewDense(t.Rows, t.Cols, t.Data), nil
}

func tensorOf(name string, m *mat.Dense) Tensor {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, m.RawRowView(i)...)
	}
	return Tensor{Name: name, Rows: r, Cols: c, Data: data}
}
