package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Param is one learnable tensor together with its gradient buffer.
// Biases and peephole diagonals are stored as 1 x n row vectors.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

func newParam(name string, rows, cols int) *Param {
	return &Param{
		Name:  name,
		Value: zeros(rows, cols),
		Grad:  zeros(rows, cols),
	}
}

// Dims returns the shape of the parameter.
func (p *Param) Dims() (int, int) {
	return p.Value.Dims()
}

// Size returns the number of scalar values in the parameter.
func (p *Param) Size() int {
	r, c := p.Value.Dims()
	return r * c
}

func (p *Param) zeroGrad() {
	p.Grad.Zero()
}

func (p *Param) clone() *Param {
	return &Param{
		Name:  p.Name,
		Value: mat.DenseCopyOf(p.Value),
		Grad:  mat.DenseCopyOf(p.Grad),
	}
}

// fill sets every value with the result of f.
func (p *Param) fill(f func() float64) {
	data := p.Value.RawMatrix().Data
	for i := range data {
		data[i] = f()
	}
}

// initGlorotUniform draws from U(-limit, limit), limit = sqrt(6 / (fanIn + fanOut)).
// Row vectors use their length for both fans.
func (p *Param) initGlorotUniform(rng *rand.Rand) {
	r, c := p.Dims()
	fanIn, fanOut := r, c
	if r == 1 {
		fanIn = c
	}
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	p.fill(func() float64 { return (rng.Float64()*2 - 1) * limit })
}

// initTruncatedNormal draws from N(mean, stddev) re-sampling anything further
// than two standard deviations from the mean.
func (p *Param) initTruncatedNormal(rng *rand.Rand, mean, stddev float64) {
	p.fill(func() float64 {
		for {
			v := rng.NormFloat64()
			if math.Abs(v) <= 2 {
				return mean + v*stddev
			}
		}
	})
}

func (p *Param) initConstant(v float64) {
	p.fill(func() float64 { return v })
}
