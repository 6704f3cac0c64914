package model

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/openfluke/recurrent/nn"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"n_input_features": 7,
		"cell_type": "gru",
		"activation": "tanh",
		"n_layers": 3,
		"model_dir": "/tmp/models"
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.InputFeatures != 7 || cfg.Cell != nn.CellGRU || cfg.Activation != nn.ActivationTanh || cfg.Layers != 3 {
		t.Errorf("overrides not applied: %+v", cfg.HyperParams)
	}
	if cfg.ModelDir != "/tmp/models" || cfg.LogDir != "logs" || cfg.States != 50 {
		t.Errorf("defaults not kept: %+v", cfg)
	}
}

func TestConfigSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := DefaultConfig()
	cfg.InputFeatures = 4
	cfg.Cell = nn.CellRNN
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	back, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if back != cfg {
		t.Errorf("config changed on round trip:\n%+v\n%+v", cfg, back)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected an error for a missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte(`{"cell_type": "transformer"}`), 0o644)
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected an error for an unknown cell type")
	}
}

func TestDenormalize(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	tests := []struct {
		name      string
		mean, std []float64
		want      []float64
	}{
		{"identity", nil, nil, []float64{1, 2, 3, 4}},
		{"broadcast", []float64{1}, []float64{2}, []float64{3, 5, 7, 9}},
		{"per column", []float64{0, 10}, []float64{1, -1}, []float64{1, 8, 3, 6}},
	}
	for _, tt := range tests {
		got := denormalize(m, tt.mean, tt.std)
		if !mat.Equal(got, mat.NewDense(2, 2, tt.want)) {
			t.Errorf("%s: got %v", tt.name, mat.Formatted(got))
		}
	}
	if denormalize(nil, nil, nil) != nil {
		t.Error("nil input should stay nil")
	}
}

func TestBatchFinite(t *testing.T) {
	b := sineBatch(1, 3, 2, 2, 1, 2)
	if !b.finite() {
		t.Fatal("clean batch reported as non-finite")
	}
	b.Y.Set(1, 0, math.Inf(1))
	if b.finite() {
		t.Error("infinite label not detected")
	}
}

func TestSliceFeederRestarts(t *testing.T) {
	feed := SliceFeeder(Batch{ID: "a"}, Batch{ID: "b"})
	for pass := 0; pass < 2; pass++ {
		var ids []string
		for b := range feed() {
			ids = append(ids, b.ID)
		}
		if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
			t.Errorf("pass %d yielded %v", pass, ids)
		}
	}
}

func TestStatusString(t *testing.T) {
	if StatusRestoredFromCheckpoint.String() != "restored" || Status(42).String() != "Status(42)" {
		t.Error("unexpected status names")
	}
}
