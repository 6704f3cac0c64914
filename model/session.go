package model

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/openfluke/recurrent/checkpoint"
	"github.com/openfluke/recurrent/device"
	"github.com/openfluke/recurrent/summary"
)

// session holds the resources of one Train or Predict call. It is opened
// after the model lock is taken and closed before it is released.
type session struct {
	id     string
	device device.Device
	writer *summary.Writer // nil for inference
	log    logrus.FieldLogger
}

func (m *Model) openSession(withSummary bool) (*session, error) {
	log := m.log.WithField("session", m.sessionID)
	dev, err := device.Select(m.cfg.Device, m.cfg.DeviceNum, log)
	if err != nil {
		return nil, fmt.Errorf("failed to select device: %w", err)
	}
	s := &session{id: m.sessionID, device: dev, log: log}

	if withSummary {
		w, err := summary.Open(m.cfg.LogDir, m.sessionID)
		if err != nil {
			return nil, err
		}
		s.writer = w
	}
	log.WithField("device", dev.String()).Debug("session opened")
	return s, nil
}

func (s *session) close() {
	if s.writer == nil {
		return
	}
	if err := s.writer.Close(); err != nil {
		s.log.WithError(err).Warn("failed to close summary writer")
	}
}

// logParameters writes the session parameter block.
func (m *Model) logParameters(log logrus.FieldLogger) {
	hp := m.cfg.HyperParams
	log.Info("Session start")
	log.Infof("Input features: %d", hp.InputFeatures)
	log.Infof("Output features: %d", hp.OutputFeatures)
	log.Infof("Num of units in each %s cell: %d", hp.Cell, hp.States)
	log.Infof("Num of stacked %s layers: %d", hp.Cell, hp.Layers)
	log.Infof("Num of unrolled time steps: %d", hp.TimeSteps)
	log.Infof("Activation function: %s", hp.Activation)
	log.Infof("Dropout rate during training: %g", 1-hp.KeepProb)
	log.Infof("L1 regularization: %g", hp.L1Reg)
	log.Infof("L2 regularization: %g", hp.L2Reg)
	log.Infof("Start learning rate: %g", hp.LearningRate)
	log.Infof("Learning rate decay steps: %g", hp.DecaySteps)
	log.Infof("Learning rate decay rate: %g", hp.DecayRate)
	log.Infof("Learning rate schedule: %s", m.sched.Name())
	log.Infof("Inner iterations: %d", hp.InnerIterations)
	log.Infof("Forward prediction period: %d", hp.ForwardStep)
}

// checkpointPath resolves an explicit checkpoint name against ModelDir.
func (m *Model) checkpointPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(m.cfg.ModelDir, name)
}

// loadCheckpoint reads a checkpoint and restores it into the live network
// and optimizer.
func (m *Model) loadCheckpoint(name string) error {
	ck, err := checkpoint.Load(m.checkpointPath(name))
	if err != nil {
		return fmt.Errorf("failed to restore %s: %w", name, err)
	}
	if err := ck.Restore(m.net, m.opt); err != nil {
		return fmt.Errorf("failed to restore %s: %w", name, err)
	}
	return nil
}

// saveCheckpoints writes the epoch-tagged and latest checkpoints. Failures
// are logged and do not stop training.
func (m *Model) saveCheckpoints(log logrus.FieldLogger, epoch int) {
	ck := checkpoint.FromNetwork(m.sessionID, epoch, m.net, m.opt)
	for _, name := range []string{checkpoint.EpochName(m.sessionID, epoch), checkpoint.LatestName(m.sessionID)} {
		if err := checkpoint.Save(m.checkpointPath(name), ck); err != nil {
			log.WithError(err).WithField("checkpoint", name).Error("Model checkpoint save unsuccessful")
			return
		}
	}
	log.Debug("Model checkpoint successfully saved")
}
