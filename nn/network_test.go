package nn

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func testHyperParams(kind CellKind, features, states, layers, outputs int) HyperParams {
	hp := DefaultHyperParams()
	hp.InputFeatures = features
	hp.OutputFeatures = outputs
	hp.Cell = kind
	hp.States = states
	hp.Layers = layers
	return hp
}

// randomSequence builds [steps] matrices of [rows x features] uniform values in [-1, 1).
func randomSequence(rng *rand.Rand, steps, rows, features int) []*mat.Dense {
	xs := make([]*mat.Dense, steps)
	for t := range xs {
		data := make([]float64, rows*features)
		for i := range data {
			data[i] = rng.Float64()*2 - 1
		}
		xs[t] = mat.NewDense(rows, features, data)
	}
	return xs
}

func randomMatrix(rng *rand.Rand, rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(rows, cols, data)
}

func TestBuildRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*HyperParams)
	}{
		{"missing features", func(hp *HyperParams) { hp.InputFeatures = 0 }},
		{"unknown cell", func(hp *HyperParams) { hp.Cell = CellKind(9) }},
		{"unknown activation", func(hp *HyperParams) { hp.Activation = ActivationType(42) }},
		{"zero states", func(hp *HyperParams) { hp.States = 0 }},
		{"zero layers", func(hp *HyperParams) { hp.Layers = 0 }},
		{"keep prob zero", func(hp *HyperParams) { hp.KeepProb = 0 }},
		{"keep prob above one", func(hp *HyperParams) { hp.KeepProb = 1.5 }},
		{"negative l2", func(hp *HyperParams) { hp.L2Reg = -1 }},
		{"zero decay steps", func(hp *HyperParams) { hp.DecaySteps = 0 }},
		{"zero inner iterations", func(hp *HyperParams) { hp.InnerIterations = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hp := testHyperParams(CellLSTM, 3, 4, 1, 1)
			tt.mutate(&hp)
			if _, err := Build(hp, "test"); !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestParameterNamesAndShapes(t *testing.T) {
	n, err := Build(testHyperParams(CellLSTM, 10, 30, 2, 20), "lstm")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expected := map[string][2]int{
		"lstm/rnn/multi_rnn_cell/cell_0/lstm_cell/kernel":   {40, 120},
		"lstm/rnn/multi_rnn_cell/cell_0/lstm_cell/bias":     {1, 120},
		"lstm/rnn/multi_rnn_cell/cell_0/lstm_cell/w_f_diag": {1, 30},
		"lstm/rnn/multi_rnn_cell/cell_1/lstm_cell/kernel":   {60, 120},
		"lstm/model/fc1/W_fc1":                              {30, 20},
		"lstm/model/fc1/b_fc1":                              {1, 20},
	}
	for name, shape := range expected {
		p, ok := n.Param(name)
		if !ok {
			t.Errorf("missing parameter %s", name)
			continue
		}
		if r, c := p.Dims(); r != shape[0] || c != shape[1] {
			t.Errorf("%s: expected %dx%d, got %dx%d", name, shape[0], shape[1], r, c)
		}
	}
	// 2 layers x (kernel, bias, 3 peepholes) + projection
	if len(n.Params()) != 12 {
		t.Errorf("expected 12 parameters, got %d", len(n.Params()))
	}
}

func TestInitDeterministic(t *testing.T) {
	for _, kind := range []CellKind{CellLSTM, CellGRU, CellRNN} {
		hp := testHyperParams(kind, 4, 6, 2, 2)
		a, _ := Build(hp, "a")
		b, _ := Build(hp, "a")
		for i, p := range a.Params() {
			if !mat.Equal(p.Value, b.Params()[i].Value) {
				t.Errorf("%s: %s differs between equal seeds", kind, p.Name)
			}
		}

		b.Init(hp.Seed + 1)
		if mat.Equal(a.Params()[0].Value, b.Params()[0].Value) {
			t.Errorf("%s: different seeds produced identical kernels", kind)
		}
	}
}

func TestInitialValues(t *testing.T) {
	n, _ := Build(testHyperParams(CellGRU, 3, 5, 1, 1), "gru")
	gateBias, _ := n.Param("gru/rnn/multi_rnn_cell/cell_0/gru_cell/gates/bias")
	for _, v := range gateBias.Value.RawMatrix().Data {
		if v != 1 {
			t.Fatalf("GRU gate bias should start at 1, got %v", v)
		}
	}

	w, _ := n.Param("gru/model/fc1/W_fc1")
	for _, v := range w.Value.RawMatrix().Data {
		if math.Abs(v) > 2*projectionStdDev {
			t.Fatalf("projection weight %v outside the truncated range", v)
		}
	}

	kernel, _ := n.Param("gru/rnn/multi_rnn_cell/cell_0/gru_cell/candidate/kernel")
	limit := math.Sqrt(6.0 / float64(8+5))
	for _, v := range kernel.Value.RawMatrix().Data {
		if math.Abs(v) > limit {
			t.Fatalf("glorot value %v beyond limit %v", v, limit)
		}
	}
}

func TestGradientCheck(t *testing.T) {
	tests := []struct {
		name      string
		kind      CellKind
		layers    int
		peepholes bool
		keepProb  float64
	}{
		{"lstm peepholes", CellLSTM, 1, true, 1},
		{"lstm stacked", CellLSTM, 2, false, 1},
		{"lstm stacked dropout", CellLSTM, 2, true, 0.7},
		{"gru", CellGRU, 1, false, 1},
		{"gru stacked dropout", CellGRU, 2, false, 0.6},
		{"rnn stacked", CellRNN, 2, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hp := testHyperParams(tt.kind, 3, 4, tt.layers, 2)
			hp.Peepholes = tt.peepholes
			hp.Activation = ActivationTanh
			hp.L1Reg = 0
			hp.L2Reg = 1e-2
			n, err := Build(hp, "check")
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}

			rng := rand.New(rand.NewSource(3))
			xs := randomSequence(rng, 4, 5, 3)
			y := randomMatrix(rng, 5, 2)
			const cutoff = 3

			const maskSeed = 11
			n.Gradients(xs, y, cutoff, tt.keepProb, rand.New(rand.NewSource(maskSeed)))

			for _, p := range n.Params() {
				values := p.Value.RawMatrix().Data
				analytic := append([]float64(nil), p.Grad.RawMatrix().Data...)
				start := append([]float64(nil), values...)

				loss := func(x []float64) float64 {
					copy(values, x)
					pred, _ := n.Forward(xs, tt.keepProb, rand.New(rand.NewSource(maskSeed)))
					return n.Loss(pred, y, cutoff)
				}
				numeric := make([]float64, len(values))
				fd.Gradient(numeric, loss, start, &fd.Settings{Formula: fd.Central, Step: 1e-6})
				copy(values, start)

				if !floats.EqualApprox(analytic, numeric, 1e-5) {
					t.Errorf("%s: analytic and numeric gradients differ\n analytic %v\n numeric  %v", p.Name, analytic, numeric)
				}
			}
		})
	}
}

func TestOutOfSampleRowsCarryNoGradient(t *testing.T) {
	hp := testHyperParams(CellRNN, 2, 3, 1, 1)
	hp.L1Reg, hp.L2Reg = 0, 0
	n, _ := Build(hp, "rnn")

	rng := rand.New(rand.NewSource(5))
	xs := randomSequence(rng, 3, 6, 2)
	y := randomMatrix(rng, 6, 1)

	n.Gradients(xs, y, 4, 1, nil)
	before := mat.DenseCopyOf(n.Params()[0].Grad)

	// Changing the labels past the cutoff must not move the gradient.
	y.Set(4, 0, 100)
	y.Set(5, 0, -100)
	n.Gradients(xs, y, 4, 1, nil)
	if !mat.EqualApprox(before, n.Params()[0].Grad, 1e-12) {
		t.Error("out-of-sample labels leaked into the gradient")
	}
}

func TestPredictIgnoresKeepProb(t *testing.T) {
	hp := testHyperParams(CellLSTM, 3, 5, 2, 1)
	hp.KeepProb = 0.2
	n, _ := Build(hp, "lstm")
	xs := randomSequence(rand.New(rand.NewSource(1)), 4, 3, 3)

	if !mat.Equal(n.Predict(xs), n.Predict(xs)) {
		t.Error("Predict is not deterministic")
	}
	pred, _ := n.Forward(xs, 1, nil)
	if !mat.Equal(n.Predict(xs), pred) {
		t.Error("Predict should equal a forward pass with keepProb 1")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	n, _ := Build(testHyperParams(CellGRU, 2, 3, 1, 1), "gru")
	c := n.Clone()
	xs := randomSequence(rand.New(rand.NewSource(2)), 3, 2, 2)

	if !mat.Equal(n.Predict(xs), c.Predict(xs)) {
		t.Fatal("clone predicts differently")
	}
	c.Params()[0].Value.Set(0, 0, 5)
	if n.Params()[0].Value.At(0, 0) == 5 {
		t.Error("clone shares storage with the original")
	}
}

func TestSnapshotCellKinds(t *testing.T) {
	tests := []struct {
		kind CellKind
		rows int
		cols int
	}{
		{CellLSTM, 4 + 3, 4 * 3},
		{CellGRU, 4 + 3, 2 * 3},
		{CellRNN, 4 + 3, 3},
	}
	for _, tt := range tests {
		n, _ := Build(testHyperParams(tt.kind, 4, 3, 1, 2), "snap")
		snap := n.Snapshot()
		if snap.Cell.Kind() != tt.kind {
			t.Errorf("expected %s weights, got %s", tt.kind, snap.Cell.Kind())
		}

		var kernel *mat.Dense
		switch w := snap.Cell.(type) {
		case LSTMWeights:
			kernel = w.Kernel
		case GRUWeights:
			kernel = w.GateKernel
		case RNNWeights:
			kernel = w.Kernel
		}
		if r, c := kernel.Dims(); r != tt.rows || c != tt.cols {
			t.Errorf("%s: kernel is %dx%d, expected %dx%d", tt.kind, r, c, tt.rows, tt.cols)
		}
		if r, c := snap.OutputWeights.Dims(); r != 3 || c != 2 {
			t.Errorf("%s: output weights are %dx%d", tt.kind, r, c)
		}
	}
}

func TestAdamReducesLoss(t *testing.T) {
	hp := testHyperParams(CellRNN, 2, 8, 1, 1)
	hp.Activation = ActivationTanh
	hp.L1Reg, hp.L2Reg = 0, 0
	n, _ := Build(hp, "rnn")

	rng := rand.New(rand.NewSource(9))
	xs := randomSequence(rng, 3, 16, 2)
	// Target: the sum of the last inputs, which the cell can represent.
	y := mat.NewDense(16, 1, nil)
	for i := 0; i < 16; i++ {
		y.Set(i, 0, 0.5*(xs[2].At(i, 0)+xs[2].At(i, 1)))
	}

	opt := NewAdamOptimizerDefault()
	first := n.TrainStep(xs, y, 16, 1, nil, opt, 1e-2)
	for i := 0; i < 200; i++ {
		n.TrainStep(xs, y, 16, 1, nil, opt, 1e-2)
	}
	last := n.Evaluate(xs, y, 16).Loss
	if last >= first {
		t.Errorf("loss did not decrease: %v -> %v", first, last)
	}
	if opt.Steps() != 201 {
		t.Errorf("expected 201 optimizer steps, got %d", opt.Steps())
	}
}

func TestAdamStateRoundTrip(t *testing.T) {
	n, _ := Build(testHyperParams(CellRNN, 2, 3, 1, 1), "rnn")
	rng := rand.New(rand.NewSource(4))
	xs := randomSequence(rng, 2, 4, 2)
	y := randomMatrix(rng, 4, 1)

	opt := NewAdamOptimizerDefault()
	for i := 0; i < 3; i++ {
		n.TrainStep(xs, y, 4, 1, nil, opt, 1e-3)
	}

	restored := NewAdamOptimizerDefault()
	if err := restored.LoadState(opt.State()); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}

	a, b := n.Clone(), n.Clone()
	a.TrainStep(xs, y, 4, 1, nil, opt, 1e-3)
	b.TrainStep(xs, y, 4, 1, nil, restored, 1e-3)
	for i, p := range a.Params() {
		if !mat.Equal(p.Value, b.Params()[i].Value) {
			t.Errorf("%s diverged after restoring optimizer state", p.Name)
		}
	}

	opt.Reset()
	if opt.Steps() != 0 || len(opt.State().M) != 0 {
		t.Error("Reset did not clear the optimizer")
	}
}

func TestAdamLoadStateRejectsUnpairedSlots(t *testing.T) {
	st := AdamState{
		Step: 1,
		M:    map[string]*mat.Dense{"w": zeros(1, 2)},
		V:    map[string]*mat.Dense{"b": zeros(1, 2)},
	}
	if err := NewAdamOptimizerDefault().LoadState(st); err == nil {
		t.Error("expected an error for unpaired slots")
	}
}

func TestNetworkString(t *testing.T) {
	n, _ := Build(testHyperParams(CellLSTM, 3, 4, 2, 1), "lstm")
	s := n.String()
	if !strings.Contains(s, "LSTM(3->4") || !strings.Contains(s, "lstm") {
		t.Errorf("unexpected description %q", s)
	}
}
