package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ============================================================================
// Adam Optimizer
// ============================================================================

// AdamOptimizer keeps first and second moment slots per parameter name.
type AdamOptimizer struct {
	beta1   float64
	beta2   float64
	epsilon float64
	step    int

	// First moment estimates (momentum)
	m map[string]*mat.Dense

	// Second moment estimates (variance)
	v map[string]*mat.Dense
}

func NewAdamOptimizer(beta1, beta2, epsilon float64) *AdamOptimizer {
	return &AdamOptimizer{
		beta1:   beta1,
		beta2:   beta2,
		epsilon: epsilon,
		m:       make(map[string]*mat.Dense),
		v:       make(map[string]*mat.Dense),
	}
}

func NewAdamOptimizerDefault() *AdamOptimizer {
	return NewAdamOptimizer(0.9, 0.999, 1e-8)
}

// Step applies one update to every parameter from its accumulated gradient.
func (opt *AdamOptimizer) Step(params []*Param, learningRate float64) {
	opt.step++

	// Bias correction factors
	biasCorrection1 := 1.0 - math.Pow(opt.beta1, float64(opt.step))
	biasCorrection2 := 1.0 - math.Pow(opt.beta2, float64(opt.step))

	for _, p := range params {
		if opt.m[p.Name] == nil {
			r, c := p.Dims()
			opt.m[p.Name] = zeros(r, c)
			opt.v[p.Name] = zeros(r, c)
		}
		m := opt.m[p.Name].RawMatrix().Data
		v := opt.v[p.Name].RawMatrix().Data
		w := p.Value.RawMatrix().Data
		g := p.Grad.RawMatrix().Data

		for j := range w {
			m[j] = opt.beta1*m[j] + (1-opt.beta1)*g[j]
			v[j] = opt.beta2*v[j] + (1-opt.beta2)*g[j]*g[j]

			mHat := m[j] / biasCorrection1
			vHat := v[j] / biasCorrection2

			w[j] -= learningRate * mHat / (math.Sqrt(vHat) + opt.epsilon)
		}
	}
}

func (opt *AdamOptimizer) Reset() {
	opt.step = 0
	opt.m = make(map[string]*mat.Dense)
	opt.v = make(map[string]*mat.Dense)
}

// AdamState is the exportable slot state of an AdamOptimizer.
type AdamState struct {
	Step int
	M    map[string]*mat.Dense
	V    map[string]*mat.Dense
}

// State copies the step count and moment slots.
func (opt *AdamOptimizer) State() AdamState {
	st := AdamState{
		Step: opt.step,
		M:    make(map[string]*mat.Dense, len(opt.m)),
		V:    make(map[string]*mat.Dense, len(opt.v)),
	}
	for k, m := range opt.m {
		st.M[k] = mat.DenseCopyOf(m)
	}
	for k, v := range opt.v {
		st.V[k] = mat.DenseCopyOf(v)
	}
	return st
}

// LoadState replaces the optimizer state. Every slot must have a matching pair.
func (opt *AdamOptimizer) LoadState(st AdamState) error {
	if st.Step < 0 {
		return fmt.Errorf("adam: negative step count %d", st.Step)
	}
	if len(st.M) != len(st.V) {
		return fmt.Errorf("adam: %d first-moment slots but %d second-moment slots", len(st.M), len(st.V))
	}
	m := make(map[string]*mat.Dense, len(st.M))
	v := make(map[string]*mat.Dense, len(st.V))
	for k, sm := range st.M {
		sv, ok := st.V[k]
		if !ok {
			return fmt.Errorf("adam: slot %q has no second moment", k)
		}
		mr, mc := sm.Dims()
		vr, vc := sv.Dims()
		if mr != vr || mc != vc {
			return fmt.Errorf("adam: slot %q moments differ in shape", k)
		}
		m[k] = mat.DenseCopyOf(sm)
		v[k] = mat.DenseCopyOf(sv)
	}
	opt.step, opt.m, opt.v = st.Step, m, v
	return nil
}

// Steps returns how many updates have been applied.
func (opt *AdamOptimizer) Steps() int { return opt.step }

func (opt *AdamOptimizer) Name() string {
	return "Adam"
}
