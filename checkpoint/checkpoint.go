// Package checkpoint persists network parameters and optimizer slots in a
// compact protobuf wire encoding.
//
// A checkpoint file is a sequence of protobuf fields:
//
//	1  format version   varint
//	2  session id       bytes
//	3  epoch            varint
//	4  scope            bytes
//	5  cell kind        bytes
//	6  saved at         varint (unix nanoseconds)
//	7  optimizer step   varint
//	8  tensor           message (1 name, 2 rows, 3 cols, 4 packed fixed64 data)
//
// Values are stored as IEEE-754 bit patterns so a save/load cycle is exact.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FormatVersion is written into every checkpoint.
const FormatVersion = 1

// Extension is the file extension of checkpoint files.
const Extension = ".ckpt"

var (
	// ErrFormat reports a file that is not a readable checkpoint.
	ErrFormat = errors.New("checkpoint: malformed file")

	// ErrMissingTensor reports a checkpoint lacking a tensor the network needs.
	ErrMissingTensor = errors.New("checkpoint: missing tensor")
)

// Tensor is one named row-major matrix.
type Tensor struct {
	Name string
	Rows int
	Cols int
	Data []float64
}

// Checkpoint is the persisted state of one training session at one epoch.
type Checkpoint struct {
	SessionID     string
	Epoch         int
	Scope         string
	Cell          string
	SavedAt       time.Time
	OptimizerStep int
	Tensors       []Tensor
}

// Lookup returns the tensor with the given name.
func (c *Checkpoint) Lookup(name string) (Tensor, bool) {
	for _, t := range c.Tensors {
		if t.Name == name {
			return t, true
		}
	}
	return Tensor{}, false
}

// EpochName is the file name of the checkpoint saved after epoch n.
func EpochName(sessionID string, epoch int) string {
	return fmt.Sprintf("%s_epoch_%d%s", sessionID, epoch, Extension)
}

// LatestName is the file name of the most recent checkpoint of a session.
func LatestName(sessionID string) string {
	return sessionID + "_latest" + Extension
}

// Save writes c to path, creating parent directories. The file is written
// to a temporary name first and renamed into place.
func Save(path string, c *Checkpoint) error {
	data, err := Marshal(c)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}
	return nil
}

// Load reads the checkpoint at path.
func Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	c, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
