package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// mapMatrix returns f applied element-wise to m.
func mapMatrix(m *mat.Dense, f func(float64) float64) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 { return f(v) }, m)
	return &out
}

// mulElem returns a ⊙ b.
func mulElem(a, b mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.MulElem(a, b)
	return &out
}

func add(a, b mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Add(a, b)
	return &out
}

func sub(a, b mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Sub(a, b)
	return &out
}

func mul(a, b mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

// oneMinus returns 1 - m.
func oneMinus(m *mat.Dense) *mat.Dense {
	return mapMatrix(m, func(v float64) float64 { return 1 - v })
}

// hcat concatenates matrices with equal row counts left to right.
func hcat(ms ...*mat.Dense) *mat.Dense {
	out := ms[0]
	for _, m := range ms[1:] {
		var next mat.Dense
		next.Augment(out, m)
		out = &next
	}
	if len(ms) == 1 {
		return mat.DenseCopyOf(out)
	}
	return out
}

// cols copies columns [from, to) of m.
func cols(m *mat.Dense, from, to int) *mat.Dense {
	r, _ := m.Dims()
	return mat.DenseCopyOf(m.Slice(0, r, from, to))
}

// addRowVector adds the 1 x n row vector v to every row of m in place.
func addRowVector(m, v *mat.Dense) {
	r, c := m.Dims()
	row := v.RawRowView(0)
	for i := 0; i < r; i++ {
		dst := m.RawRowView(i)
		for j := 0; j < c; j++ {
			dst[j] += row[j]
		}
	}
}

// mulRowVector returns m with every row multiplied element-wise by the 1 x n row vector v.
func mulRowVector(m, v *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(m)
	r, c := out.Dims()
	row := v.RawRowView(0)
	for i := 0; i < r; i++ {
		dst := out.RawRowView(i)
		for j := 0; j < c; j++ {
			dst[j] *= row[j]
		}
	}
	return out
}

// addColumnSums accumulates the column sums of m into the 1 x n row vector dst.
func addColumnSums(dst, m *mat.Dense) {
	r, c := m.Dims()
	acc := dst.RawRowView(0)
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for j := 0; j < c; j++ {
			acc[j] += row[j]
		}
	}
}

// accumulate adds src into dst in place; a nil src is a no-op.
func accumulate(dst, src *mat.Dense) {
	if src == nil {
		return
	}
	dst.Add(dst, src)
}

// sumOrZero returns a + b treating nil operands as zero matrices.
func sumOrZero(a, b *mat.Dense) *mat.Dense {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return add(a, b)
}

func zeros(r, c int) *mat.Dense {
	return mat.NewDense(r, c, nil)
}

// TimeMajor converts a [batch][time][features] block into one
// [batch x features] matrix per time step.
func TimeMajor(x [][][]float64) ([]*mat.Dense, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	steps := len(x[0])
	if steps == 0 {
		return nil, fmt.Errorf("batch has no time steps")
	}
	features := len(x[0][0])
	if features == 0 {
		return nil, fmt.Errorf("batch has no features")
	}

	out := make([]*mat.Dense, steps)
	for t := range out {
		out[t] = mat.NewDense(len(x), features, nil)
	}
	for b, seq := range x {
		if len(seq) != steps {
			return nil, fmt.Errorf("row %d has %d time steps, expected %d", b, len(seq), steps)
		}
		for t, v := range seq {
			if len(v) != features {
				return nil, fmt.Errorf("row %d step %d has %d features, expected %d", b, t, len(v), features)
			}
			out[t].SetRow(b, v)
		}
	}
	return out, nil
}

// AllFinite reports whether every value of the block is a finite number.
func AllFinite(x [][][]float64) bool {
	for _, seq := range x {
		for _, v := range seq {
			for _, f := range v {
				if math.IsNaN(f) || math.IsInf(f, 0) {
					return false
				}
			}
		}
	}
	return true
}
