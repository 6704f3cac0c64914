// Package nn provides a stacked recurrent regressor with hand-written
// backpropagation through time.
//
// A network is a stack of recurrent cells followed by a single dense
// projection:
//   - Cells: LSTM (optional peepholes), GRU or a plain tanh/relu RNN
//   - Every cell emits its output through dropout before feeding the next layer
//   - The terminal hidden state of the last layer is projected to the outputs
//
// The unroll is dynamic: the number of time steps is taken from the input,
// so a network built for one sequence length accepts any other.
//
// Training is split-aware. Rows [0, cutoff) of a batch contribute to the
// loss and its gradients, rows [cutoff, end) are only evaluated:
//
//	network, _ := nn.Build(hp, "lstm")
//	opt := nn.NewAdamOptimizerDefault()
//	sched := nn.NewExponentialDecayScheduler(hp.LearningRate, hp.DecayRate, hp.DecaySteps)
//
//	xs, _ := nn.TimeMajor(x)
//	network.TrainStep(xs, y, cutoff, hp.KeepProb, rng, opt, sched.Rate(progress))
//	eval := network.Evaluate(xs, y, cutoff)
package nn
