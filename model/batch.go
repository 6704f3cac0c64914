package model

import (
	"fmt"
	"iter"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/openfluke/recurrent/nn"
)

// Batch is one block of sequences.
//
// X is [rows][time][features] and Y is [rows x outputs]. Rows before
// InSample are used for gradient steps, the rest only for evaluation.
// Mean and Std de-normalize Y and the predictions: an empty slice means
// identity, a single value is broadcast, otherwise one value per output.
// Inference batches may leave everything but X unset.
type Batch struct {
	X        [][][]float64
	Y        *mat.Dense
	Mean     []float64
	Std      []float64
	Index    []int64
	InSample int
	ID       string
}

// Rows returns the number of sequences in the batch.
func (b Batch) Rows() int { return len(b.X) }

// Feeder yields the batches of one pass over the data. Training calls it
// once per epoch, so it must be restartable.
type Feeder func() iter.Seq[Batch]

// SliceFeeder feeds the given batches in order on every call.
func SliceFeeder(batches ...Batch) Feeder {
	return func() iter.Seq[Batch] {
		return func(yield func(Batch) bool) {
			for _, b := range batches {
				if !yield(b) {
					return
				}
			}
		}
	}
}

// finite reports whether X and Y hold only finite numbers.
func (b Batch) finite() bool {
	if !nn.AllFinite(b.X) {
		return false
	}
	if b.Y == nil {
		return true
	}
	r, _ := b.Y.Dims()
	for i := 0; i < r; i++ {
		if !allFinite(b.Y.RawRowView(i)) {
			return false
		}
	}
	return true
}

func allFinite(v []float64) bool {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// validateTraining checks a training batch against the network shape.
func validateTraining(b Batch, hp nn.HyperParams) error {
	if err := validateInput(b, hp); err != nil {
		return err
	}
	rows := b.Rows()
	if b.Y == nil {
		return fmt.Errorf("%w: batch %s has no labels", ErrShape, b.ID)
	}
	if yr, yc := b.Y.Dims(); yr != rows || yc != hp.OutputFeatures {
		return fmt.Errorf("%w: batch %s labels are %dx%d, expected %dx%d", ErrShape, b.ID, yr, yc, rows, hp.OutputFeatures)
	}
	if b.InSample < 0 || b.InSample > rows {
		return fmt.Errorf("%w: batch %s in-sample size %d outside [0, %d]", ErrShape, b.ID, b.InSample, rows)
	}
	return validateScaling(b, hp.OutputFeatures)
}

// validateInput checks the X block of any batch.
func validateInput(b Batch, hp nn.HyperParams) error {
	rows := b.Rows()
	if rows == 0 {
		return fmt.Errorf("%w: batch %s is empty", ErrShape, b.ID)
	}
	if hp.BatchSize > 0 && rows != hp.BatchSize {
		return fmt.Errorf("%w: batch %s has %d rows, expected %d", ErrShape, b.ID, rows, hp.BatchSize)
	}
	for r, seq := range b.X {
		for t, v := range seq {
			if len(v) != hp.InputFeatures {
				return fmt.Errorf("%w: batch %s row %d step %d has %d features, expected %d",
					ErrShape, b.ID, r, t, len(v), hp.InputFeatures)
			}
		}
	}
	return nil
}

func validateScaling(b Batch, outputs int) error {
	for _, s := range []struct {
		name string
		v    []float64
	}{{"mean", b.Mean}, {"std", b.Std}} {
		name, v := s.name, s.v
		if n := len(v); n > 1 && n != outputs {
			return fmt.Errorf("%w: batch %s %s has %d values, expected 1 or %d", ErrShape, b.ID, name, n, outputs)
		}
		if !allFinite(v) {
			return fmt.Errorf("%w: batch %s %s is not finite", ErrShape, b.ID, name)
		}
	}
	return nil
}

// denormalize returns m * std + mean, column-wise.
func denormalize(m *mat.Dense, mean, std []float64) *mat.Dense {
	if m == nil {
		return nil
	}
	out := mat.DenseCopyOf(m)
	if len(mean) == 0 && len(std) == 0 {
		return out
	}
	r, c := out.Dims()
	for j := 0; j < c; j++ {
		mu, sigma := scaleAt(mean, j, 0), scaleAt(std, j, 1)
		for i := 0; i < r; i++ {
			out.Set(i, j, out.At(i, j)*sigma+mu)
		}
	}
	return out
}

func scaleAt(v []float64, j int, identity float64) float64 {
	switch len(v) {
	case 0:
		return identity
	case 1:
		return v[0]
	}
	return v[j]
}
