// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/SyedDaiam9101/model-evaluator/internal/tensor"
)

const (
	RuntimeTFLite = "tflite"
	RuntimeTFJS   = "tfjs"
	RuntimeONNX   = "onnx"
)

// TensorSpec declares one model input or output.
type TensorSpec struct {
	Name  string `mapstructure:"name"`
	DType string `mapstructure:"dtype"`
	Shape []int  `mapstructure:"shape"`
}

// ModelSpec names a model and its expected input/output contract.
type ModelSpec struct {
	Name    string       `mapstructure:"name"`
	Path    string       `mapstructure:"path"`
	Inputs  []TensorSpec `mapstructure:"inputs"`
	Outputs []TensorSpec `mapstructure:"outputs"`
}

// EvalConfig lists the models under evaluation. One spec means single-model
// evaluation, more than one means multi-model evaluation.
type EvalConfig struct {
	ModelSpecs []ModelSpec `mapstructure:"model_specs"`
}

func (e EvalConfig) MultiModel() bool { return len(e.ModelSpecs) > 1 }

// ModelKey is the name a loaded model is registered under. Single-model
// evaluation uses the empty name regardless of the model spec's name.
func (e EvalConfig) ModelKey(spec ModelSpec) string {
	if e.MultiModel() {
		return spec.Name
	}
	return ""
}

// Config holds all configuration for the evaluator
type Config struct {
	// Worker configuration
	MetricsPort int    `mapstructure:"metrics_port"`
	LogLevel    string `mapstructure:"log_level"`
	LogJSON     bool   `mapstructure:"log_json"`
	Runtime     string `mapstructure:"runtime"`
	Input       string `mapstructure:"input"`
	Output      string `mapstructure:"output"`

	// OpenTelemetry configuration
	OTELEnabled  bool   `mapstructure:"otel_enabled"`
	OTELEndpoint string `mapstructure:"otel_endpoint"`

	TFLite struct {
		NumThreads int `mapstructure:"num_threads"`
	} `mapstructure:"tflite"`

	TFJS struct {
		Binary     string `mapstructure:"binary"`
		ScratchDir string `mapstructure:"scratch_dir"`
	} `mapstructure:"tfjs"`

	ONNX struct {
		SharedLibrary string `mapstructure:"shared_library"`
	} `mapstructure:"onnx"`

	Eval EvalConfig `mapstructure:",squash"`
}

func newViper() *viper.Viper {
	v := viper.New()

	// Set defaults
	v.SetDefault("metrics_port", 9100)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("runtime", RuntimeTFLite)
	v.SetDefault("input", "-")
	v.SetDefault("output", "-")
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("tflite.num_threads", 1)
	v.SetDefault("tfjs.binary", "")
	v.SetDefault("tfjs.scratch_dir", "")
	v.SetDefault("onnx.shared_library", "")

	// Environment variable configuration
	v.SetEnvPrefix("EVALUATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Also read OTEL standard env vars
	if otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); otelEndpoint != "" {
		v.SetDefault("otel_endpoint", otelEndpoint)
		v.SetDefault("otel_enabled", true)
	}
	return v
}

// Load loads configuration from environment variables and an optional
// config.yaml found in the working directory or /etc/model-evaluator/.
// Priority (highest to lowest): env vars > config file > defaults
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/model-evaluator/")
	v.AddConfigPath("$HOME/.model-evaluator")

	// Read config file if present (ignore error if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return unmarshal(v)
}

// LoadWithConfigFile loads configuration from a specific config file
func LoadWithConfigFile(configPath string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	switch c.Runtime {
	case RuntimeTFLite, RuntimeONNX:
	case RuntimeTFJS:
		if c.TFJS.Binary == "" {
			return fmt.Errorf("tfjs.binary is required for the tfjs runtime")
		}
	default:
		return fmt.Errorf("unknown runtime %q", c.Runtime)
	}
	if len(c.Eval.ModelSpecs) == 0 {
		return fmt.Errorf("at least one model spec is required")
	}

	seen := make(map[string]bool, len(c.Eval.ModelSpecs))
	for i, spec := range c.Eval.ModelSpecs {
		if spec.Name == "" && c.Eval.MultiModel() {
			return fmt.Errorf("model spec %d: name is required for multi-model evaluation", i)
		}
		if seen[spec.Name] {
			return fmt.Errorf("model spec %d: duplicate name %q", i, spec.Name)
		}
		seen[spec.Name] = true
		if spec.Path == "" {
			return fmt.Errorf("model spec %q: path is required", spec.Name)
		}
		if c.Runtime == RuntimeONNX && (len(spec.Inputs) == 0 || len(spec.Outputs) == 0) {
			return fmt.Errorf("model spec %q: onnx models need declared inputs and outputs", spec.Name)
		}
		for _, ts := range append(append([]TensorSpec{}, spec.Inputs...), spec.Outputs...) {
			if ts.Name == "" {
				return fmt.Errorf("model spec %q: tensor without name", spec.Name)
			}
			if _, err := tensor.ParseDType(ts.DType); err != nil {
				return fmt.Errorf("model spec %q tensor %q: %w", spec.Name, ts.Name, err)
			}
		}
	}
	return nil
}
