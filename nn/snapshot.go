package nn

import "gonum.org/v1/gonum/mat"

// CellWeights is the parameter set of one recurrent layer. The concrete type
// depends on the cell: LSTMWeights, GRUWeights or RNNWeights.
type CellWeights interface {
	Kind() CellKind
}

// LSTMWeights is the fused kernel [in+H x 4H] and bias [1 x 4H], gates in i, j, f, o order.
type LSTMWeights struct {
	Kernel *mat.Dense
	Bias   *mat.Dense
}

func (LSTMWeights) Kind() CellKind { return CellLSTM }

// GRUWeights splits the reset/update gates from the candidate projection.
type GRUWeights struct {
	GateKernel      *mat.Dense // [in+H x 2H]
	GateBias        *mat.Dense // [1 x 2H]
	CandidateKernel *mat.Dense // [in+H x H]
	CandidateBias   *mat.Dense // [1 x H]
}

func (GRUWeights) Kind() CellKind { return CellGRU }

// RNNWeights is the single kernel [in+H x H] and bias [1 x H].
type RNNWeights struct {
	Kernel *mat.Dense
	Bias   *mat.Dense
}

func (RNNWeights) Kind() CellKind { return CellRNN }

// Snapshot copies the last recurrent layer and the output projection.
type Snapshot struct {
	Cell          CellWeights
	OutputWeights *mat.Dense // [H x outputs]
	OutputBias    *mat.Dense // [1 x outputs]
}
