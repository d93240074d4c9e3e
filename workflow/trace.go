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

package workflow

// Trace is the structured record of one workflow run. Worker entries appear
// in declaration order regardless of completion order.
type Trace struct {
	WorkflowID       string         `json:"workflow_id"`
	TotalDurationMS  int64          `json:"total_duration_ms"`
	Analyzer         *AnalyzerTrace `json:"analyzer,omitempty"`
	Workers          []WorkerTrace  `json:"workers"`
	WorkerCount      int            `json:"worker_count"`
	WorkerSuccessful int            `json:"worker_successful"`
	WorkerFailures   int            `json:"worker_failures"`
	Selector         *SelectorTrace `json:"selector,omitempty"`
	Synthesizer      *StageTrace    `json:"synthesizer,omitempty"`
}

// AnalyzerTrace records the analyzer stage: the temperature it recommended
// for the workers and whether that value was derived from its reply or fell
// back to the default.
type AnalyzerTrace struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	AutoDerived bool    `json:"auto_derived"`
	DurationMS  int64   `json:"duration_ms"`
	Success     bool    `json:"success"`
	Error       string  `json:"error,omitempty"`
	Output      string  `json:"output,omitempty"`
}

// WorkerTrace records one worker invocation. For sub-workflow workers,
// Workflow carries the nested trace and Temperature is zero.
type WorkerTrace struct {
	Index       int     `json:"index"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature,omitempty"`
	Success     bool    `json:"success"`
	Output      string  `json:"output,omitempty"`
	Error       string  `json:"error,omitempty"`
	DurationMS  int64   `json:"duration_ms"`
	Workflow    *Trace  `json:"workflow,omitempty"`
}

// SelectorTrace records the selector decision. Degraded is set when the
// selector failed or its reply was unparseable and the first successful
// worker was chosen instead.
type SelectorTrace struct {
	Model         string `json:"model"`
	SelectedIndex int    `json:"selected_index"`
	Reasoning     string `json:"reasoning,omitempty"`
	Degraded      bool   `json:"degraded,omitempty"`
	DurationMS    int64  `json:"duration_ms"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

// StageTrace records the synthesizer stage.
type StageTrace struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	DurationMS  int64   `json:"duration_ms"`
	Success     bool    `json:"success"`
	Error       string  `json:"error,omitempty"`
}
