package nn

import "fmt"

// ModelTelemetry describes the structure of a built network.
type ModelTelemetry struct {
	ID          string           `json:"id"`
	TotalLayers int              `json:"total_layers"`
	TotalParams int              `json:"total_parameters"`
	Layers      []LayerTelemetry `json:"layers"`
}

// LayerTelemetry contains metadata about one layer
type LayerTelemetry struct {
	Index      int    `json:"index"`
	Scope      string `json:"scope"`
	Type       string `json:"type"`
	Activation string `json:"activation,omitempty"`
	Parameters int    `json:"parameters"`

	InputShape  []int `json:"input_shape,omitempty"`
	OutputShape []int `json:"output_shape,omitempty"`

	// Dropout on the layer's emitted output, 1 when disabled
	KeepProb float64 `json:"keep_prob,omitempty"`
}

// Blueprint extracts the layer structure of n. Shapes use -1 for the batch
// and time dimensions, which are only known at run time.
func (n *Network) Blueprint(modelID string) ModelTelemetry {
	telemetry := ModelTelemetry{
		ID:          modelID,
		TotalLayers: len(n.cells) + 1,
		TotalParams: n.TotalParameters(),
	}

	inputSize := n.hp.InputFeatures
	for i, c := range n.cells {
		params := 0
		for _, p := range c.params() {
			params += p.Size()
		}
		keep := 1.0
		if i < len(n.cells)-1 {
			keep = n.hp.KeepProb
		}
		telemetry.Layers = append(telemetry.Layers, LayerTelemetry{
			Index:       i,
			Scope:       layerScope(n.scope, i),
			Type:        c.kind().String(),
			Activation:  n.hp.Activation.String(),
			Parameters:  params,
			InputShape:  []int{-1, -1, inputSize},
			OutputShape: []int{-1, -1, n.hp.States},
			KeepProb:    keep,
		})
		inputSize = n.hp.States
	}

	telemetry.Layers = append(telemetry.Layers, LayerTelemetry{
		Index:       len(n.cells),
		Scope:       n.scope + "/model/fc1",
		Type:        "Dense",
		Activation:  ActivationLinear.String(),
		Parameters:  n.output.weights.Size() + n.output.bias.Size(),
		InputShape:  []int{-1, n.hp.States},
		OutputShape: []int{-1, n.hp.OutputFeatures},
	})
	return telemetry
}

func layerScope(scope string, layer int) string {
	return fmt.Sprintf("%s/rnn/multi_rnn_cell/cell_%d", scope, layer)
}
