package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/openfluke/recurrent/nn"
)

// Config is the full configuration surface of a Model. The network
// hyperparameters are inlined so a JSON file can set them at the top level.
type Config struct {
	nn.HyperParams

	Scope     string `json:"scope"`
	ModelDir  string `json:"model_dir"`
	LogDir    string `json:"log_dir"`
	Device    string `json:"device"` // "cpu" or "gpu"
	DeviceNum int    `json:"device_num"`
}

// DefaultConfig returns an LSTM configuration with every default filled in
// except InputFeatures, which the caller must set.
func DefaultConfig() Config {
	return Config{
		HyperParams: nn.DefaultHyperParams(),
		Scope:       "lstm",
		ModelDir:    "saved_models",
		LogDir:      "logs",
		Device:      "cpu",
	}
}

// LoadConfig reads a JSON configuration file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as indented JSON.
func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
