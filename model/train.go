package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openfluke/recurrent/checkpoint"
	"github.com/openfluke/recurrent/nn"
	"github.com/openfluke/recurrent/summary"
)

// TrainOptions controls one Train call. Zero values select the defaults
// noted on each field.
type TrainOptions struct {
	// PreTrained names a checkpoint under ModelDir to resume from; epochs
	// then continue at EpochPrev+1.
	PreTrained string
	EpochPrev  int

	// Fresh ignores any in-process session and starts over.
	Fresh bool

	// EpochEnd is the last epoch to run (default 21).
	EpochEnd int

	// InnerIterations overrides the configured gradient steps per batch.
	InnerIterations int

	// Step and WriterStep are the starting batch and summary counters (default 1).
	Step       int
	WriterStep int

	// DisplayStep is the number of batches between log lines and summary events (default 50).
	DisplayStep int

	// ReturnWeights adds a parameter snapshot to the Result.
	ReturnWeights bool
}

func (o TrainOptions) withDefaults() TrainOptions {
	if o.EpochEnd <= 0 {
		o.EpochEnd = 21
	}
	if o.Step <= 0 {
		o.Step = 1
	}
	if o.WriterStep <= 0 {
		o.WriterStep = 1
	}
	if o.DisplayStep <= 0 {
		o.DisplayStep = 50
	}
	return o
}

// counters are the monotonic batch and summary steps of a Train call.
type counters struct {
	step       int
	writerStep int
}

// Train runs epochs until EpochEnd and returns the session history.
//
// Unless opts.Fresh is set, a named PreTrained checkpoint is restored first;
// otherwise a model that already trained in this process restores its own
// latest checkpoint and continues after its last epoch. Anything else
// starts a fresh session at epoch 1.
func (m *Model) Train(feed Feeder, opts TrainOptions) (*Result, error) {
	if !m.mu.TryLock() {
		return nil, ErrBusy
	}
	defer m.mu.Unlock()

	if m.net == nil {
		return nil, ErrNotBuilt
	}
	if feed == nil {
		return nil, errors.New("model: nil feeder")
	}
	if opts.InnerIterations < 0 {
		return nil, fmt.Errorf("%w: inner_iteration has to be >= 1, got %d", nn.ErrConfig, opts.InnerIterations)
	}
	opts = opts.withDefaults()

	epoch, err := m.begin(opts)
	if err != nil {
		return nil, err
	}

	sess, err := m.openSession(true)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	switch m.status {
	case StatusResumed:
		sess.log.Info("Restored pre-trained model successfully")
	case StatusRestoredFromCheckpoint:
		sess.log.Info("Restored model parameters from previous active session")
	}
	m.logParameters(sess.log)
	if err := sess.writer.Graph(opts.WriterStep, m.net.Blueprint(m.sessionID)); err != nil {
		sess.log.WithError(err).Warn("failed to write graph summary")
	}

	ctr := &counters{step: opts.Step, writerStep: opts.WriterStep}
	for ; epoch <= opts.EpochEnd; epoch++ {
		if err := m.runEpoch(sess, feed, epoch, opts, ctr); err != nil {
			return nil, err
		}
	}

	m.status = StatusTrained

	res := m.history.result()
	if opts.ReturnWeights {
		snap := m.net.Snapshot()
		res.Weights = &snap
	}
	return res, nil
}

// TrainBatch trains on a single batch.
func (m *Model) TrainBatch(b Batch, opts TrainOptions) (*Result, error) {
	return m.Train(SliceFeeder(b), opts)
}

// begin decides how the session starts and returns the first epoch.
func (m *Model) begin(opts TrainOptions) (int, error) {
	switch {
	case !opts.Fresh && opts.PreTrained != "":
		if err := m.loadCheckpoint(opts.PreTrained); err != nil {
			return 0, err
		}
		if m.sessionID == "" {
			m.sessionID = newSessionID()
		}
		m.status = StatusResumed
		return opts.EpochPrev + 1, nil

	case !opts.Fresh && m.trained:
		if err := m.loadCheckpoint(checkpoint.LatestName(m.sessionID)); err != nil {
			return 0, err
		}
		m.status = StatusRestoredFromCheckpoint
		return m.trainedEpochs + 1, nil
	}

	m.history.reset()
	m.net.Init(m.cfg.Seed)
	m.opt.Reset()
	m.rng.Seed(m.cfg.Seed)
	m.sessionID = newSessionID()
	m.status = StatusFresh
	return 1, nil
}

// epochTotals accumulates one epoch.
type epochTotals struct {
	loss, lossOOS         float64
	actualOOS, predictOOS rowBuffer
}

func (m *Model) runEpoch(sess *session, feed Feeder, epoch int, opts TrainOptions, ctr *counters) error {
	log := sess.log.WithField("epoch", epoch)
	log.Infof("Epoch %d Starts", epoch)
	tic := time.Now()

	hp := m.cfg.HyperParams
	inner := hp.InnerIterations
	if opts.InnerIterations > 0 {
		inner = opts.InnerIterations
	}
	lr := m.sched.Rate(nn.Progress(epoch, opts.EpochEnd))

	var totals epochTotals
	for b := range feed() {
		if !b.finite() {
			log.WithField("batch", b.ID).Debug("skipping batch with non-finite values")
			continue
		}
		if err := validateTraining(b, hp); err != nil {
			return err
		}
		xs, err := nn.TimeMajor(b.X)
		if err != nil {
			return fmt.Errorf("%w: batch %s: %v", ErrShape, b.ID, err)
		}

		for i := 0; i < inner; i++ {
			m.net.TrainStep(xs, b.Y, b.InSample, hp.KeepProb, m.rng, m.opt, lr)
		}
		ev := m.net.Evaluate(xs, b.Y, b.InSample)

		actual := denormalize(b.Y, b.Mean, b.Std)
		pred := denormalize(ev.Pred, b.Mean, b.Std)
		actualIS, actualOOS := nn.SplitRows(actual, b.InSample)
		predIS, predOOS := nn.SplitRows(pred, b.InSample)

		totals.actualOOS.append(actualOOS)
		totals.predictOOS.append(predOOS)
		totals.loss += ev.Loss
		if predOOS != nil {
			totals.lossOOS += ev.LossOOS
		}

		h := &m.history
		h.actualIS.append(actualIS)
		h.actualOOS.append(actualOOS)
		h.predictedIS.append(predIS)
		h.predictedOOS.append(predOOS)
		corrIS, corrOOS := nn.MeanDiagonal(ev.CorrIS), nn.MeanDiagonal(ev.CorrOOS)
		h.corrIS = append(h.corrIS, corrIS)
		h.corrOOS = append(h.corrOOS, corrOOS)

		if ctr.step%opts.DisplayStep == 0 {
			event := summary.Event{
				Scalars: map[string]summary.Float{
					"loss":            summary.Float(ev.Loss),
					"validation_loss": summary.Float(ev.LossOOS),
					"learning_rate":   summary.Float(lr),
				},
				Tensors: map[string]summary.Tensor{
					"pearson_corr_is":  summary.TensorOf(ev.CorrIS),
					"pearson_corr_oos": summary.TensorOf(ev.CorrOOS),
				},
			}
			if err := sess.writer.Write(ctr.writerStep, event); err != nil {
				log.WithError(err).Warn("failed to write summary")
			}
			ctr.writerStep++

			log.WithFields(logrus.Fields{
				"step":  ctr.step,
				"batch": b.ID,
			}).Infof("Iter:%d, LR:%.5f, mbatch_id: %s, loss: %.1f, validation loss: %.1f, "+
				"mbatch in-sample corr:%7.4f, oos corr:%7.4f (%d/%d), %.1fs elapsed.",
				ctr.step, lr, b.ID, ev.Loss, ev.LossOOS, corrIS, corrOOS,
				b.InSample, b.Rows(), time.Since(tic).Seconds())
		}
		ctr.step++
	}

	corrEpoch := nn.ColumnCorrelation(totals.actualOOS.dense(), totals.predictOOS.dense())
	h := &m.history
	h.epochs = append(h.epochs, epoch)
	h.losses = append(h.losses, totals.loss)
	h.lossesOOS = append(h.lossesOOS, totals.lossOOS)
	h.corrOOSPerEpoch = append(h.corrOOSPerEpoch, corrEpoch)

	log.Infof("Epoch %d: total loss: %.1f, validation loss: %.1f, total oos pearson corr: %8.5f",
		epoch, totals.loss, totals.lossOOS, corrEpoch)
	log.Infof("Epoch %d Ends", epoch)
	if err := sess.writer.Flush(); err != nil {
		log.WithError(err).Warn("failed to flush summaries")
	}

	m.saveCheckpoints(log, epoch)
	m.trained = true
	m.trainedEpochs = epoch
	return nil
}
