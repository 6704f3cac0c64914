package nn

import (
	"errors"
	"fmt"
)

// ErrConfig is returned for hyperparameters that cannot produce a network.
var ErrConfig = errors.New("nn: invalid configuration")

// HyperParams fixes the topology and training constants of one network.
// A built Network keeps its own copy; changing a HyperParams value after
// Build has no effect on it.
type HyperParams struct {
	InputFeatures  int `json:"n_input_features"`
	OutputFeatures int `json:"n_output_features"`
	BatchSize      int `json:"batch_size"` // 0 accepts any number of rows

	Cell       CellKind       `json:"cell_type"`
	States     int            `json:"n_states"` // hidden width of every cell
	Layers     int            `json:"n_layers"`
	Peepholes  bool           `json:"use_peepholes"` // LSTM only
	TimeSteps  int            `json:"n_time_steps"`  // recorded; the unroll follows the input
	Activation ActivationType `json:"activation"`

	KeepProb float64 `json:"keep_prob"`
	L1Reg    float64 `json:"l1_reg"`
	L2Reg    float64 `json:"l2_reg"`

	LearningRate    float64 `json:"start_learning_rate"`
	DecaySteps      float64 `json:"decay_steps"`
	DecayRate       float64 `json:"decay_rate"`
	InnerIterations int     `json:"inner_iteration"`

	// ForwardStep is the forward-prediction horizon. It is logged with the
	// session parameters but nothing in training or loss consumes it.
	ForwardStep int `json:"forward_step"`

	Seed int64 `json:"seed"`
}

// DefaultHyperParams returns the defaults of a single-layer LSTM regressor.
// InputFeatures has no default and must be set before Build.
func DefaultHyperParams() HyperParams {
	return HyperParams{
		OutputFeatures:  1,
		Cell:            CellLSTM,
		States:          50,
		Layers:          1,
		Peepholes:       true,
		TimeSteps:       10,
		Activation:      ActivationReLU,
		KeepProb:        0.5,
		L1Reg:           1e-2,
		L2Reg:           1e-3,
		LearningRate:    0.001,
		DecaySteps:      1,
		DecayRate:       0.3,
		InnerIterations: 10,
		ForwardStep:     1,
		Seed:            42,
	}
}

// Validate reports the first problem that would make Build fail.
func (hp HyperParams) Validate() error {
	switch {
	case hp.InputFeatures <= 0:
		return fmt.Errorf("%w: n_input_features is required and must be positive, got %d", ErrConfig, hp.InputFeatures)
	case hp.OutputFeatures <= 0:
		return fmt.Errorf("%w: n_output_features must be positive, got %d", ErrConfig, hp.OutputFeatures)
	case hp.BatchSize < 0:
		return fmt.Errorf("%w: batch_size must be >= 0, got %d", ErrConfig, hp.BatchSize)
	case !hp.Cell.Valid():
		return fmt.Errorf("%w: cell_type %d is not recognized", ErrConfig, int(hp.Cell))
	case hp.States <= 0:
		return fmt.Errorf("%w: n_states must be positive, got %d", ErrConfig, hp.States)
	case hp.Layers <= 0:
		return fmt.Errorf("%w: n_layers must be positive, got %d", ErrConfig, hp.Layers)
	case !hp.Activation.Valid():
		return fmt.Errorf("%w: activation %d is not recognized", ErrConfig, int(hp.Activation))
	case hp.KeepProb <= 0 || hp.KeepProb > 1:
		return fmt.Errorf("%w: keep_prob must be in (0, 1], got %g", ErrConfig, hp.KeepProb)
	case hp.L1Reg < 0 || hp.L2Reg < 0:
		return fmt.Errorf("%w: regularization scales must be >= 0", ErrConfig)
	case hp.LearningRate <= 0:
		return fmt.Errorf("%w: start_learning_rate must be positive, got %g", ErrConfig, hp.LearningRate)
	case hp.DecaySteps <= 0:
		return fmt.Errorf("%w: decay_steps must be positive, got %g", ErrConfig, hp.DecaySteps)
	case hp.DecayRate <= 0:
		return fmt.Errorf("%w: decay_rate must be positive, got %g", ErrConfig, hp.DecayRate)
	case hp.InnerIterations < 1:
		return fmt.Errorf("%w: inner_iteration has to be >= 1, got %d", ErrConfig, hp.InnerIterations)
	}
	return nil
}
