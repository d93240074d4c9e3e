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
	"time"
)

// Stage identifies a workflow pipeline stage for timeout resolution.
type Stage string

const (
	StageAnalyzer    Stage = "analyzer"
	StageWorker      Stage = "worker"
	StageSelector    Stage = "selector"
	StageSynthesizer Stage = "synthesizer"
)

// TimeoutConfig holds the global stage deadlines in seconds. The selector
// stage reuses the worker deadline unless selector_timeout_secs is set.
type TimeoutConfig struct {
	AnalyzerTimeoutSecs    int64 `mapstructure:"analyzer_timeout_secs"`
	WorkerTimeoutSecs      int64 `mapstructure:"worker_timeout_secs"`
	SelectorTimeoutSecs    int64 `mapstructure:"selector_timeout_secs"`
	SynthesizerTimeoutSecs int64 `mapstructure:"synthesizer_timeout_secs"`
}

// DomainTimeoutOverride overrides any subset of stage deadlines for one
// endpoint host.
type DomainTimeoutOverride struct {
	AnalyzerTimeoutSecs    *int64 `mapstructure:"analyzer_timeout_secs"`
	WorkerTimeoutSecs      *int64 `mapstructure:"worker_timeout_secs"`
	SelectorTimeoutSecs    *int64 `mapstructure:"selector_timeout_secs"`
	SynthesizerTimeoutSecs *int64 `mapstructure:"synthesizer_timeout_secs"`
}

// TimeoutPolicy resolves effective stage deadlines by layering per-host
// overrides on the global defaults. Immutable after startup.
type TimeoutPolicy struct {
	defaults TimeoutConfig
	domains  map[string]DomainTimeoutOverride
}

// NewTimeoutPolicy validates the configured deadlines and builds the policy.
func NewTimeoutPolicy(defaults TimeoutConfig, domains map[string]DomainTimeoutOverride) (*TimeoutPolicy, error) {
	if defaults.AnalyzerTimeoutSecs <= 0 {
		return nil, fmt.Errorf("analyzer_timeout_secs must be positive, got %d", defaults.AnalyzerTimeoutSecs)
	}
	if defaults.WorkerTimeoutSecs <= 0 {
		return nil, fmt.Errorf("worker_timeout_secs must be positive, got %d", defaults.WorkerTimeoutSecs)
	}
	if defaults.SynthesizerTimeoutSecs <= 0 {
		return nil, fmt.Errorf("synthesizer_timeout_secs must be positive, got %d", defaults.SynthesizerTimeoutSecs)
	}
	if defaults.SelectorTimeoutSecs < 0 {
		return nil, fmt.Errorf("selector_timeout_secs must not be negative, got %d", defaults.SelectorTimeoutSecs)
	}

	policy := &TimeoutPolicy{
		defaults: defaults,
		domains:  make(map[string]DomainTimeoutOverride, len(domains)),
	}
	for host, override := range domains {
		policy.domains[host] = override
	}
	return policy, nil
}

// Resolve returns the effective deadline for a stage against an endpoint
// host. The selector stage inherits the worker resolution unless a selector
// deadline is configured at the matching layer.
func (p *TimeoutPolicy) Resolve(stage Stage, host string) time.Duration {
	return time.Duration(p.resolveSecs(stage, host)) * time.Second
}

func (p *TimeoutPolicy) resolveSecs(stage Stage, host string) int64 {
	override, hasOverride := p.domains[host]

	switch stage {
	case StageAnalyzer:
		if hasOverride && override.AnalyzerTimeoutSecs != nil {
			return *override.AnalyzerTimeoutSecs
		}
		return p.defaults.AnalyzerTimeoutSecs

	case StageWorker:
		if hasOverride && override.WorkerTimeoutSecs != nil {
			return *override.WorkerTimeoutSecs
		}
		return p.defaults.WorkerTimeoutSecs

	case StageSelector:
		if hasOverride && override.SelectorTimeoutSecs != nil {
			return *override.SelectorTimeoutSecs
		}
		if p.defaults.SelectorTimeoutSecs > 0 {
			return p.defaults.SelectorTimeoutSecs
		}
		return p.resolveSecs(StageWorker, host)

	case StageSynthesizer:
		if hasOverride && override.SynthesizerTimeoutSecs != nil {
			return *override.SynthesizerTimeoutSecs
		}
		return p.defaults.SynthesizerTimeoutSecs
	}

	return p.defaults.WorkerTimeoutSecs
}
