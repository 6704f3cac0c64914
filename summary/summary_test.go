package summary

import (
	"math"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/openfluke/recurrent/nn"
)

func TestWriteAndRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	w, err := Open(dir, "SID")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	hp := nn.DefaultHyperParams()
	hp.InputFeatures = 2
	net, err := nn.Build(hp, "lstm")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := w.Graph(0, net.Blueprint("SID")); err != nil {
		t.Fatalf("Graph failed: %v", err)
	}

	corr := mat.NewDense(2, 2, []float64{1, 0.5, math.NaN(), -1})
	err = w.Write(3, Event{
		Scalars: map[string]Float{"loss": 1.25, "validation_loss": Float(math.NaN())},
		Tensors: map[string]Tensor{"pearson_corr_oos": TensorOf(corr)},
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	events, err := ReadEvents(filepath.Join(dir, FileName("SID")))
	if err != nil {
		t.Fatalf("ReadEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	g := events[0].Graph
	if g == nil || g.TotalLayers != 2 || g.Layers[0].Type != "LSTM" {
		t.Errorf("unexpected graph %+v", g)
	}

	e := events[1]
	if e.Step != 3 || e.WallTime.IsZero() {
		t.Errorf("unexpected header step=%d time=%v", e.Step, e.WallTime)
	}
	if e.Scalars["loss"] != 1.25 || !math.IsNaN(float64(e.Scalars["validation_loss"])) {
		t.Errorf("unexpected scalars %v", e.Scalars)
	}
	tensor := e.Tensors["pearson_corr_oos"]
	if tensor.Rows != 2 || tensor.Cols != 2 || tensor.Data[1] != 0.5 || !math.IsNaN(float64(tensor.Data[2])) {
		t.Errorf("unexpected tensor %+v", tensor)
	}
}

func TestOpenAppends(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		w, err := Open(dir, "SID")
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if err := w.Write(i, Event{Scalars: map[string]Float{"loss": Float(i)}}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}

	events, err := ReadEvents(filepath.Join(dir, FileName("SID")))
	if err != nil {
		t.Fatalf("ReadEvents failed: %v", err)
	}
	if len(events) != 2 || events[1].Step != 1 {
		t.Errorf("expected events from both writers, got %+v", events)
	}
}

func TestFloatJSON(t *testing.T) {
	tests := []float64{0, -2.5, 1e-300, math.Inf(1), math.Inf(-1)}
	for _, v := range tests {
		b, err := Float(v).MarshalJSON()
		if err != nil {
			t.Fatalf("marshal %v: %v", v, err)
		}
		var back Float
		if err := back.UnmarshalJSON(b); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if float64(back) != v {
			t.Errorf("%v came back as %v", v, back)
		}
	}
}
