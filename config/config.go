// Copyright 2025 The Chorus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// keyDelimiter replaces viper's default "." so that host keys such as
// "api.example.com" under [workflow.domains] survive decoding intact.
const keyDelimiter = "::"

// ServerConfig is the HTTP listen address.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// WorkflowIntegration carries the embedded workflow plan document plus the
// nested-worker expansion depth. The legacy analyzer_model/worker_models/
// synthesizer_model fields are still decoded so old files can be migrated.
type WorkflowIntegration struct {
	NestedWorkerDepth int    `mapstructure:"nested_worker_depth"`
	JSON              string `mapstructure:"json"`

	// Legacy format, translated by Migrate.
	AnalyzerModel    string   `mapstructure:"analyzer_model"`
	WorkerModels     []string `mapstructure:"worker_models"`
	SynthesizerModel string   `mapstructure:"synthesizer_model"`
}

// WorkflowConfig holds stage timeouts, per-host overrides, and the optional
// fan-out ceiling (0 = unbounded).
type WorkflowConfig struct {
	Timeouts             TimeoutConfig                    `mapstructure:"timeouts"`
	Domains              map[string]DomainTimeoutOverride `mapstructure:"domains"`
	MaxConcurrentWorkers int                              `mapstructure:"max_concurrent_workers"`
}

// ReflectionConfig enables the iterative self-refinement endpoint.
type ReflectionConfig struct {
	MaxIterations        int     `mapstructure:"max_iterations"`
	ConvergenceThreshold float64 `mapstructure:"convergence_threshold"`
	Model                string  `mapstructure:"model"`
	TimeoutSecs          int64   `mapstructure:"timeout_secs"`
}

// Config is the fully loaded and validated configuration document.
type Config struct {
	Server              ServerConfig        `mapstructure:"server"`
	Models              []ModelConfig       `mapstructure:"model"`
	WorkflowIntegration WorkflowIntegration `mapstructure:"workflow-integration"`
	Workflow            WorkflowConfig      `mapstructure:"workflow"`
	Reflection          *ReflectionConfig   `mapstructure:"reflection"`

	// Plan is the parsed, validated, depth-expanded workflow tree.
	Plan *WorkflowPlan `mapstructure:"-"`
}

// Loaded is what Load hands to the rest of the process: the configuration
// plus the registry and timeout policy derived from it.
type Loaded struct {
	Config   *Config
	Registry *Registry
	Timeouts *TimeoutPolicy
}

// Load reads, migrates, parses, validates, and depth-expands a configuration
// file. It is the single entry point for startup; any error here is fatal.
func Load(path string) (*Loaded, error) {
	if err := MigrateIfNeeded(path); err != nil {
		return nil, err
	}

	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return finish(cfg)
}

// finish validates a decoded Config and builds the derived state.
func finish(cfg *Config) (*Loaded, error) {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("server port %d out of range", cfg.Server.Port)
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("configuration declares no models")
	}

	registry, err := NewRegistry(cfg.Models)
	if err != nil {
		return nil, err
	}

	if cfg.WorkflowIntegration.NestedWorkerDepth == 0 {
		cfg.WorkflowIntegration.NestedWorkerDepth = 1
	}
	if cfg.WorkflowIntegration.NestedWorkerDepth < 1 {
		return nil, fmt.Errorf("nested_worker_depth must be at least 1, got %d", cfg.WorkflowIntegration.NestedWorkerDepth)
	}

	if cfg.WorkflowIntegration.JSON == "" {
		return nil, fmt.Errorf("workflow-integration is missing the json plan document")
	}

	plan, err := ParsePlan(cfg.WorkflowIntegration.JSON)
	if err != nil {
		return nil, err
	}
	if err := ValidatePlan(plan, registry); err != nil {
		return nil, err
	}
	cfg.Plan = ExpandDepth(plan, cfg.WorkflowIntegration.NestedWorkerDepth)

	timeouts, err := NewTimeoutPolicy(cfg.Workflow.Timeouts, cfg.Workflow.Domains)
	if err != nil {
		return nil, err
	}

	if cfg.Reflection != nil {
		if err := validateReflection(cfg.Reflection, registry); err != nil {
			return nil, err
		}
	}

	return &Loaded{Config: cfg, Registry: registry, Timeouts: timeouts}, nil
}

func validateReflection(r *ReflectionConfig, registry *Registry) error {
	if r.Model == "" {
		return fmt.Errorf("reflection is missing a model")
	}
	if !registry.Has(r.Model) {
		return &UndefinedModelError{Names: []string{r.Model}}
	}
	if r.MaxIterations <= 0 {
		r.MaxIterations = 3
	}
	if r.ConvergenceThreshold <= 0 {
		r.ConvergenceThreshold = 0.8
	}
	if r.ConvergenceThreshold > 1.0 {
		return fmt.Errorf("reflection convergence_threshold %.2f out of range (0, 1]", r.ConvergenceThreshold)
	}
	if r.TimeoutSecs <= 0 {
		r.TimeoutSecs = 60
	}
	return nil
}

// LoadAuto resolves the config file location: the explicit path (from the
// --config flag) wins, then the CHORUS_CONFIG environment variable, then the
// per-user file, which is created with defaults when absent.
func LoadAuto(explicitPath string) (*Loaded, error) {
	if explicitPath != "" {
		return Load(explicitPath)
	}

	if envPath := os.Getenv("CHORUS_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return Load(envPath)
		}
		return nil, fmt.Errorf("CHORUS_CONFIG points to non-existent file: %s", envPath)
	}

	path, err := ensureUserConfig()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// UserConfigPath returns ~/.config/chorus/config.toml.
func UserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "chorus", "config.toml"), nil
}

func ensureUserConfig() (string, error) {
	path, err := UserConfigPath()
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create config dir %s: %w", dir, err)
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(DefaultConfigTOML), 0o600); err != nil {
			return "", fmt.Errorf("failed to write default config to %s: %w", path, err)
		}
	}

	return path, nil
}
