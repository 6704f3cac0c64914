// Package model trains recurrent regressors over a stream of batches and
// serves predictions from their checkpoints.
//
// A Model owns one network, its optimizer state and the bookkeeping of the
// training session it belongs to. Train resumes, restores or starts fresh
// depending on what the Model has seen before:
//
//	m, err := model.NewGRU(cfg, model.WithLogger(log))
//	res, err := m.Train(feeder, model.TrainOptions{EpochEnd: 10})
//	for p, err := range m.Predict(feeder, "") {
//		...
//	}
//
// A Model is not safe for concurrent use: a call that overlaps another
// Train, Predict or Rebuild fails with ErrBusy.
package model

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/openfluke/recurrent/nn"
)

var (
	// ErrShape reports a batch whose dimensions do not fit the network.
	ErrShape = errors.New("model: batch shape mismatch")

	// ErrNoSession reports a restore with neither a checkpoint name nor an active session.
	ErrNoSession = errors.New("model: no active session and no checkpoint given")

	// ErrBusy reports a call made while another call holds the model.
	ErrBusy = errors.New("model: another call is in progress")

	// ErrNotBuilt reports a call on a Model without a network.
	ErrNotBuilt = errors.New("model: network has not been built")
)

// Status is the training state of a Model.
type Status int

const (
	StatusUnbuilt Status = iota
	StatusBuilt
	StatusFresh
	StatusResumed
	StatusRestoredFromCheckpoint
	StatusTrained
)

func (s Status) String() string {
	switch s {
	case StatusUnbuilt:
		return "unbuilt"
	case StatusBuilt:
		return "built"
	case StatusFresh:
		return "fresh"
	case StatusResumed:
		return "resumed"
	case StatusRestoredFromCheckpoint:
		return "restored"
	case StatusTrained:
		return "trained"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the log sink. The default discards everything.
func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Model) {
		if log != nil {
			m.log = log
		}
	}
}

// Model is a recurrent regressor together with its training session.
type Model struct {
	mu  sync.Mutex
	cfg Config
	log logrus.FieldLogger

	net   *nn.Network
	opt   *nn.AdamOptimizer
	sched nn.LRScheduler
	rng   *rand.Rand

	sessionID     string
	status        Status
	trained       bool
	trainedEpochs int
	history       history
}

// New builds a model from cfg.
func New(cfg Config, opts ...Option) (*Model, error) {
	m := &Model{log: discardLogger()}
	for _, o := range opts {
		o(m)
	}
	if err := m.build(cfg); err != nil {
		return nil, err
	}
	return m, nil
}

// NewLSTM builds an LSTM model; an empty scope becomes "lstm".
func NewLSTM(cfg Config, opts ...Option) (*Model, error) {
	return New(preset(cfg, nn.CellLSTM, "lstm"), opts...)
}

// NewGRU builds a GRU model; an empty or default scope becomes "gru".
func NewGRU(cfg Config, opts ...Option) (*Model, error) {
	return New(preset(cfg, nn.CellGRU, "gru"), opts...)
}

// NewRNN builds a plain RNN model; an empty or default scope becomes "rnn".
func NewRNN(cfg Config, opts ...Option) (*Model, error) {
	return New(preset(cfg, nn.CellRNN, "rnn"), opts...)
}

func preset(cfg Config, kind nn.CellKind, scope string) Config {
	cfg.Cell = kind
	if cfg.Scope == "" || cfg.Scope == DefaultConfig().Scope {
		cfg.Scope = scope
	}
	return cfg
}

// Rebuild replaces the network with one built from cfg. The session, its
// history and any unsaved parameters are discarded.
func (m *Model) Rebuild(cfg Config) error {
	if !m.mu.TryLock() {
		return ErrBusy
	}
	defer m.mu.Unlock()
	return m.build(cfg)
}

func (m *Model) build(cfg Config) error {
	if cfg.Scope == "" {
		cfg.Scope = strings.ToLower(cfg.Cell.String())
	}
	net, err := nn.Build(cfg.HyperParams, cfg.Scope)
	if err != nil {
		return fmt.Errorf("failed to build network: %w", err)
	}

	m.cfg = cfg
	m.net = net
	m.opt = nn.NewAdamOptimizerDefault()
	m.sched = nn.NewExponentialDecayScheduler(cfg.LearningRate, cfg.DecayRate, cfg.DecaySteps)
	m.rng = rand.New(rand.NewSource(cfg.Seed))
	m.sessionID = ""
	m.status = StatusBuilt
	m.trained = false
	m.trainedEpochs = 0
	m.history.reset()

	m.log.WithFields(logrus.Fields{
		"scope":      cfg.Scope,
		"network":    net.String(),
		"parameters": net.TotalParameters(),
	}).Debug("network built")
	return nil
}

// Config returns the configuration the current network was built from.
func (m *Model) Config() Config { return m.cfg }

// SessionID returns the active session identifier, empty before training.
func (m *Model) SessionID() string { return m.sessionID }

// Status returns the current training state.
func (m *Model) Status() Status { return m.status }

// TrainedEpochs returns the last epoch completed in this process.
func (m *Model) TrainedEpochs() int { return m.trainedEpochs }

// Network returns the live network. It must not be used while a call is in progress.
func (m *Model) Network() *nn.Network { return m.net }

func newSessionID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
