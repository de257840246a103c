// Package config loads the pipeline configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scipress/scipress/internal/refine"
	"github.com/scipress/scipress/internal/types"
)

// Config is the top-level pipeline configuration loaded from YAML.
type Config struct {
	// DBPath is the SQLite database location
	DBPath string `yaml:"db_path"`

	// MaxConcurrentDocuments bounds parallel document processing
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents"`

	// AI configures the model client
	AI AIConfig `yaml:"ai"`

	// Loop configures the refinement loop shared by all stages
	Loop LoopConfig `yaml:"loop"`

	// Retry configures transient-error retry for model calls
	Retry RetryYAMLConfig `yaml:"retry"`

	// Stages maps stage name to its quality configuration
	Stages map[string]StageConfig `yaml:"stages"`
}

// AIConfig configures the model client.
type AIConfig struct {
	// APIKey overrides the ANTHROPIC_API_KEY environment variable
	APIKey string `yaml:"api_key,omitempty"`

	// Model overrides the default model for all stages
	Model string `yaml:"model,omitempty"`

	// MaxConcurrentCalls bounds in-flight API calls (default 3)
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`

	// RequestsPerSecond rate-limits API calls (default 2)
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// LoopConfig configures the refinement loop shared by all stages.
type LoopConfig struct {
	// MaxIterations bounds correction attempts per run
	MaxIterations int `yaml:"max_iterations"`

	// SchemaFloor is the structural pre-check hard floor
	SchemaFloor float64 `yaml:"schema_floor"`

	// Window is the degradation detection window
	Window int `yaml:"window"`
}

// RetryYAMLConfig represents retry settings in the YAML file. Durations are
// strings ("1s", "30s") and converted for internal use.
type RetryYAMLConfig struct {
	MaxRetries     int    `yaml:"max_retries"`
	InitialBackoff string `yaml:"initial_backoff,omitempty"`
	MaxBackoff     string `yaml:"max_backoff,omitempty"`
	Timeout        string `yaml:"timeout,omitempty"`
}

// StageConfig configures one pipeline stage's model and quality gate.
type StageConfig struct {
	// Model overrides the client default for this stage
	Model string `yaml:"model,omitempty"`

	// MaxTokens bounds each response for this stage
	MaxTokens int64 `yaml:"max_tokens,omitempty"`

	// Thresholds configure the stage's quality gate
	Thresholds types.ThresholdConfig `yaml:"thresholds"`
}

// Load reads configuration from a YAML file, layered over defaults. An
// empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Validate checks every stage's gate configuration. Misconfigured weights
// are a startup failure, never discovered mid-run.
func (c *Config) Validate() error {
	if c.MaxConcurrentDocuments < 1 {
		return fmt.Errorf("max_concurrent_documents must be >= 1, got %d", c.MaxConcurrentDocuments)
	}
	if c.Loop.MaxIterations < 0 {
		return fmt.Errorf("loop.max_iterations cannot be negative, got %d", c.Loop.MaxIterations)
	}
	if c.Loop.SchemaFloor < 0 || c.Loop.SchemaFloor > 1 {
		return fmt.Errorf("loop.schema_floor must be in [0,1], got %v", c.Loop.SchemaFloor)
	}
	for name, stage := range c.Stages {
		if err := stage.Thresholds.Validate(); err != nil {
			return fmt.Errorf("stage %q: %w", name, err)
		}
	}
	if _, err := c.RetryConfig(); err != nil {
		return err
	}
	return nil
}

// RetryConfig converts the YAML retry settings to the loop's retry config.
func (c *Config) RetryConfig() (refine.RetryConfig, error) {
	rc := refine.DefaultRetryConfig()
	if c.Retry.MaxRetries > 0 {
		rc.MaxRetries = c.Retry.MaxRetries
	}

	parse := func(field, s string, dst *time.Duration) error {
		if s == "" {
			return nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid retry.%s %q: %w", field, s, err)
		}
		*dst = d
		return nil
	}
	if err := parse("initial_backoff", c.Retry.InitialBackoff, &rc.InitialBackoff); err != nil {
		return rc, err
	}
	if err := parse("max_backoff", c.Retry.MaxBackoff, &rc.MaxBackoff); err != nil {
		return rc, err
	}
	if err := parse("timeout", c.Retry.Timeout, &rc.Timeout); err != nil {
		return rc, err
	}
	return rc, nil
}

// RefineConfig converts the shared loop settings to a per-run config.
func (c *Config) RefineConfig() (refine.Config, error) {
	retry, err := c.RetryConfig()
	if err != nil {
		return refine.Config{}, err
	}
	return refine.Config{
		MaxIterations: c.Loop.MaxIterations,
		SchemaFloor:   c.Loop.SchemaFloor,
		Window:        c.Loop.Window,
		Retry:         retry,
	}, nil
}

// Stage returns a stage's configuration, or an error for unknown stages.
func (c *Config) Stage(name string) (StageConfig, error) {
	stage, ok := c.Stages[name]
	if !ok {
		return StageConfig{}, fmt.Errorf("no configuration for stage %q", name)
	}
	return stage, nil
}

// Default returns the reference pipeline configuration.
func Default() *Config {
	return &Config{
		DBPath:                 ".scipress/scipress.db",
		MaxConcurrentDocuments: 2,
		AI: AIConfig{
			MaxConcurrentCalls: 3,
			RequestsPerSecond:  2,
		},
		Loop: LoopConfig{
			MaxIterations: 3,
			SchemaFloor:   0.3,
			Window:        2,
		},
		Retry: RetryYAMLConfig{
			MaxRetries:     3,
			InitialBackoff: "1s",
			MaxBackoff:     "30s",
			Timeout:        "60s",
		},
		Stages: map[string]StageConfig{
			"extraction": {
				MaxTokens: 8192,
				Thresholds: types.ThresholdConfig{
					Minimums: map[string]float64{
						"completeness": 0.80,
						"accuracy":     0.85,
						"consistency":  0.75,
					},
					Weights: map[string]float64{
						"completeness": 0.35,
						"accuracy":     0.45,
						"consistency":  0.20,
					},
					PrimaryDimension: "accuracy",
				},
			},
			"appraisal": {
				MaxTokens: 4096,
				Thresholds: types.ThresholdConfig{
					Minimums: map[string]float64{
						"rigor":     0.80,
						"accuracy":  0.80,
						"coherence": 0.75,
					},
					Weights: map[string]float64{
						"rigor":     0.40,
						"accuracy":  0.35,
						"coherence": 0.25,
					},
					PrimaryDimension: "rigor",
				},
			},
			"report": {
				MaxTokens: 8192,
				Thresholds: types.ThresholdConfig{
					Minimums: map[string]float64{
						"completeness": 0.75,
						"coherence":    0.80,
						"readability":  0.70,
					},
					Weights: map[string]float64{
						"completeness": 0.40,
						"coherence":    0.35,
						"readability":  0.25,
					},
					PrimaryDimension: "coherence",
				},
			},
		},
	}
}

// SaveDefault writes the default configuration to a file.
func SaveDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
