// Package summary writes training summaries as a JSON-lines event file,
// one file per session under the log directory.
package summary

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/openfluke/recurrent/nn"
)

// FileName is the event file of a session.
func FileName(sessionID string) string {
	return sessionID + ".events.jsonl"
}

// Float is a float64 that survives JSON when it is NaN or infinite.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func (f *Float) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("summary: bad float %q", s)
		}
		*f = Float(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Tensor is a row-major matrix value.
type Tensor struct {
	Rows int     `json:"rows"`
	Cols int     `json:"cols"`
	Data []Float `json:"data"`
}

// TensorOf copies m into a Tensor.
func TensorOf(m mat.Matrix) Tensor {
	r, c := m.Dims()
	t := Tensor{Rows: r, Cols: c, Data: make([]Float, 0, r*c)}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			t.Data = append(t.Data, Float(m.At(i, j)))
		}
	}
	return t
}

// Event is one line of the event file.
type Event struct {
	Step     int                `json:"step"`
	WallTime time.Time          `json:"wall_time"`
	Scalars  map[string]Float   `json:"scalars,omitempty"`
	Tensors  map[string]Tensor  `json:"tensors,omitempty"`
	Graph    *nn.ModelTelemetry `json:"graph,omitempty"`
}

// Writer appends events to a session's event file.
type Writer struct {
	path string
	f    *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

// Open creates dir if needed and opens the session's event file for appending.
func Open(dir, sessionID string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, FileName(sessionID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event file: %w", err)
	}
	buf := bufio.NewWriter(f)
	return &Writer{path: path, f: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

// Path returns the event file location.
func (w *Writer) Path() string { return w.path }

// Write appends e at the given step.
func (w *Writer) Write(step int, e Event) error {
	e.Step = step
	if e.WallTime.IsZero() {
		e.WallTime = time.Now()
	}
	if err := w.enc.Encode(e); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// Graph records the network structure at the given step.
func (w *Writer) Graph(step int, bp nn.ModelTelemetry) error {
	return w.Write(step, Event{Graph: &bp})
}

// Flush pushes buffered events to the file.
func (w *Writer) Flush() error {
	return w.buf.Flush()
}

// Close flushes and closes the event file.
func (w *Writer) Close() error {
	flushErr := w.buf.Flush()
	if err := w.f.Close(); err != nil {
		return err
	}
	return flushErr
}

// ReadEvents loads every event of an event file.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	dec := json.NewDecoder(f)
	for dec.More() {
		var e Event
		if err := dec.Decode(&e); err != nil {
			return events, fmt.Errorf("%s: event %d: %w", path, len(events), err)
		}
		events = append(events, e)
	}
	return events, nil
}
