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

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chorus/config"
	"chorus/llm"
)

// fakeCall records one LLM invocation seen by the fake caller.
type fakeCall struct {
	Model       string
	Stage       string
	Content     string
	Temperature *float64
}

// fakeCaller is a deterministic in-memory Caller. respond decides each
// reply; stream, when set, handles streaming calls (otherwise the full
// respond reply is forwarded as one delta).
type fakeCaller struct {
	mu    sync.Mutex
	calls []fakeCall

	respond func(call fakeCall) (string, error)
	stream  func(call fakeCall, sink llm.StreamSink) (string, error)
}

// stageOf classifies a call by its prompt shape.
func stageOf(content string) string {
	switch {
	case strings.HasPrefix(content, "Analyze this task"):
		return "analyzer"
	case strings.HasPrefix(content, "Select the best response"):
		return "selector"
	case strings.HasPrefix(content, "Based on the selected best response"),
		strings.HasPrefix(content, "Synthesize a final comprehensive answer"):
		return "synthesizer"
	default:
		return "worker"
	}
}

func (f *fakeCaller) record(target llm.Target, messages []llm.Message, temperature *float64) fakeCall {
	call := fakeCall{
		Model:       target.Model,
		Content:     messages[len(messages)-1].Content,
		Stage:       stageOf(messages[len(messages)-1].Content),
		Temperature: temperature,
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	return call
}

func (f *fakeCaller) ChatCompletion(ctx context.Context, target llm.Target, messages []llm.Message, temperature *float64) (string, error) {
	call := f.record(target, messages, temperature)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.respond(call)
}

func (f *fakeCaller) ChatCompletionStream(ctx context.Context, target llm.Target, messages []llm.Message, temperature *float64, sink llm.StreamSink) (string, error) {
	call := f.record(target, messages, temperature)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.stream != nil {
		return f.stream(call, sink)
	}
	text, err := f.respond(call)
	if err != nil {
		return "", err
	}
	if err := sink(text); err != nil {
		return "", err
	}
	return text, nil
}

// stageCalls returns recorded calls for one stage, in record order.
func (f *fakeCaller) stageCalls(stage string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, call := range f.calls {
		if call.Stage == stage {
			out = append(out, call)
		}
	}
	return out
}

// newLoaded assembles a validated, expanded configuration for engine tests.
func newLoaded(t *testing.T, models []config.ModelConfig, planJSON string, depth int) *config.Loaded {
	t.Helper()

	registry, err := config.NewRegistry(models)
	require.NoError(t, err)

	plan, err := config.ParsePlan(planJSON)
	require.NoError(t, err)
	require.NoError(t, config.ValidatePlan(plan, registry))

	timeouts, err := config.NewTimeoutPolicy(config.TimeoutConfig{
		AnalyzerTimeoutSecs:    5,
		WorkerTimeoutSecs:      5,
		SynthesizerTimeoutSecs: 5,
	}, nil)
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 11435},
		Models: models,
		Plan:   config.ExpandDepth(plan, depth),
	}

	return &config.Loaded{Config: cfg, Registry: registry, Timeouts: timeouts}
}

func twoModels() []config.ModelConfig {
	return []config.ModelConfig{
		{Name: "A", APIBase: "https://api.example.com/v1", APIKey: "ka"},
		{Name: "B", APIBase: "https://api.example.com/v1", APIKey: "kb"},
	}
}

const basicPlanJSON = `{
	"analyzer": {"ref": "A"},
	"workers": [{"name": "A"}, {"name": "B"}],
	"synthesizer": {"ref": "A"}
}`
