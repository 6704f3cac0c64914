package model

import (
	"fmt"
	"iter"

	"gonum.org/v1/gonum/mat"

	"github.com/openfluke/recurrent/checkpoint"
	"github.com/openfluke/recurrent/nn"
)

// Prediction is the output for one inference batch. Pred and Y are
// de-normalized with the batch's Mean and Std; the other fields are passed
// through from the batch.
type Prediction struct {
	Pred  *mat.Dense
	X     [][][]float64
	Y     *mat.Dense
	Mean  []float64
	Std   []float64
	Index []int64
	ID    string
}

// Predict streams predictions for every batch of feed.
//
// The parameters come from the named checkpoint under ModelDir, or from the
// active session's latest checkpoint when name is empty. Nothing is read
// until the sequence is ranged over, and every range restores afresh. The
// model stays locked while the sequence runs, so feed should be finite.
// Training history and checkpoints are left untouched.
func (m *Model) Predict(feed Feeder, name string) iter.Seq2[Prediction, error] {
	return func(yield func(Prediction, error) bool) {
		if !m.mu.TryLock() {
			yield(Prediction{}, ErrBusy)
			return
		}
		defer m.mu.Unlock()

		net, err := m.restoreForInference(name)
		if err != nil {
			yield(Prediction{}, err)
			return
		}

		sess, err := m.openSession(false)
		if err != nil {
			yield(Prediction{}, err)
			return
		}
		defer sess.close()
		if name != "" {
			sess.log.Info("Restored pre-trained model successfully")
		}
		m.logParameters(sess.log)

		for b := range feed() {
			p, err := predictBatch(net, b, m.cfg.HyperParams)
			if !yield(p, err) || err != nil {
				return
			}
		}
	}
}

// PredictBatch predicts one input block with the active session's latest
// checkpoint.
func (m *Model) PredictBatch(x [][][]float64) (*mat.Dense, error) {
	for p, err := range m.Predict(SliceFeeder(Batch{X: x}), "") {
		if err != nil {
			return nil, err
		}
		return p.Pred, nil
	}
	return nil, fmt.Errorf("%w: no prediction produced", ErrShape)
}

// restoreForInference loads the parameters into a copy of the network so
// the live one is never modified.
func (m *Model) restoreForInference(name string) (*nn.Network, error) {
	if m.net == nil {
		return nil, ErrNotBuilt
	}
	if name == "" {
		if m.sessionID == "" {
			return nil, ErrNoSession
		}
		name = checkpoint.LatestName(m.sessionID)
	}

	ck, err := checkpoint.Load(m.checkpointPath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to restore %s: %w", name, err)
	}
	net := m.net.Clone()
	if err := ck.Restore(net, nil); err != nil {
		return nil, fmt.Errorf("failed to restore %s: %w", name, err)
	}
	if m.sessionID == "" {
		m.sessionID = newSessionID()
		m.log.WithField("session", m.sessionID).Info("New session id created for restored pre-trained model")
	}
	return net, nil
}

func predictBatch(net *nn.Network, b Batch, hp nn.HyperParams) (Prediction, error) {
	if err := validateInput(b, hp); err != nil {
		return Prediction{}, err
	}
	if err := validateScaling(b, hp.OutputFeatures); err != nil {
		return Prediction{}, err
	}
	if b.Y != nil {
		if _, yc := b.Y.Dims(); yc != hp.OutputFeatures {
			return Prediction{}, fmt.Errorf("%w: batch %s labels have %d columns, expected %d", ErrShape, b.ID, yc, hp.OutputFeatures)
		}
	}
	xs, err := nn.TimeMajor(b.X)
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: batch %s: %v", ErrShape, b.ID, err)
	}

	return Prediction{
		Pred:  denormalize(net.Predict(xs), b.Mean, b.Std),
		X:     b.X,
		Y:     denormalize(b.Y, b.Mean, b.Std),
		Mean:  b.Mean,
		Std:   b.Std,
		Index: b.Index,
		ID:    b.ID,
	}, nil
}
