package nn

import (
	"fmt"
	"strings"
)

// CellKind selects the recurrent cell used by every layer of the stack.
type CellKind int

const (
	CellLSTM CellKind = 0 // Long Short-Term Memory, optional peepholes
	CellGRU  CellKind = 1 // Gated Recurrent Unit
	CellRNN  CellKind = 2 // Basic recurrent cell: h' = act([x, h]W + b)
)

func (k CellKind) String() string {
	switch k {
	case CellLSTM:
		return "LSTM"
	case CellGRU:
		return "GRU"
	case CellRNN:
		return "RNN"
	default:
		return fmt.Sprintf("CellKind(%d)", int(k))
	}
}

// Valid reports whether k names a known cell.
func (k CellKind) Valid() bool {
	return k == CellLSTM || k == CellGRU || k == CellRNN
}

// ParseCellKind accepts "lstm", "gru" and "rnn" in any case.
func ParseCellKind(s string) (CellKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LSTM":
		return CellLSTM, nil
	case "GRU":
		return CellGRU, nil
	case "RNN":
		return CellRNN, nil
	}
	return 0, fmt.Errorf("%w: cell type %q is not recognized", ErrConfig, s)
}

func (k CellKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: cell kind %d is not recognized", ErrConfig, int(k))
	}
	return []byte(k.String()), nil
}

func (k *CellKind) UnmarshalText(text []byte) error {
	parsed, err := ParseCellKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ActivationType defines the activation used inside the recurrent cells
type ActivationType int

const (
	ActivationReLU      ActivationType = 0 // max(0, v)
	ActivationSigmoid   ActivationType = 1 // 1 / (1 + exp(-v))
	ActivationTanh      ActivationType = 2 // tanh(v)
	ActivationSoftplus  ActivationType = 3 // log(1 + exp(v))
	ActivationLeakyReLU ActivationType = 4 // v if v >= 0, else v * 0.2
	ActivationLinear    ActivationType = 5 // v
	ActivationELU       ActivationType = 6 // v if v >= 0, else exp(v) - 1
)

var activationNames = map[ActivationType]string{
	ActivationReLU:      "relu",
	ActivationSigmoid:   "sigmoid",
	ActivationTanh:      "tanh",
	ActivationSoftplus:  "softplus",
	ActivationLeakyReLU: "leaky_relu",
	ActivationLinear:    "linear",
	ActivationELU:       "elu",
}

func (a ActivationType) String() string {
	if name, ok := activationNames[a]; ok {
		return name
	}
	return fmt.Sprintf("ActivationType(%d)", int(a))
}

// Valid reports whether a names a known activation.
func (a ActivationType) Valid() bool {
	_, ok := activationNames[a]
	return ok
}

// ParseActivation maps a name such as "relu" or "tanh" to its ActivationType.
func ParseActivation(s string) (ActivationType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for a, n := range activationNames {
		if n == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: activation %q is not recognized", ErrConfig, s)
}

func (a ActivationType) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: activation %d is not recognized", ErrConfig, int(a))
	}
	return []byte(a.String()), nil
}

func (a *ActivationType) UnmarshalText(text []byte) error {
	parsed, err := ParseActivation(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
