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

package server

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"chorus/config"
	"chorus/llm"
	"chorus/workflow"
)

// stubCaller drives the engine deterministically in handler tests: the
// analyzer recommends 0.5, workers echo per-model canned outputs, and the
// synthesizer returns (or streams) a fixed reply.
type stubCaller struct {
	workerOutputs map[string]string
	workerErr     map[string]error
	synthReply    string
	synthChunks   []string
	synthErr      error
}

func (s *stubCaller) classify(messages []llm.Message) string {
	content := messages[len(messages)-1].Content
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

func (s *stubCaller) ChatCompletion(ctx context.Context, target llm.Target, messages []llm.Message, temperature *float64) (string, error) {
	switch s.classify(messages) {
	case "analyzer":
		return `{"temperature": 0.5}`, nil
	case "synthesizer":
		return s.synthReply, s.synthErr
	default:
		if err, ok := s.workerErr[target.Model]; ok {
			return "", err
		}
		if out, ok := s.workerOutputs[target.Model]; ok {
			return out, nil
		}
		return "out-" + target.Model, nil
	}
}

func (s *stubCaller) ChatCompletionStream(ctx context.Context, target llm.Target, messages []llm.Message, temperature *float64, sink llm.StreamSink) (string, error) {
	if s.synthErr != nil {
		return "", s.synthErr
	}
	chunks := s.synthChunks
	if chunks == nil {
		chunks = []string{s.synthReply}
	}
	var full strings.Builder
	for _, chunk := range chunks {
		if err := sink(chunk); err != nil {
			return "", err
		}
		full.WriteString(chunk)
	}
	return full.String(), nil
}

// newTestServer builds a Server over a two-model registry and the stub
// caller.
func newTestServer(t *testing.T, caller workflow.Caller, reflection bool) *Server {
	t.Helper()

	models := []config.ModelConfig{
		{Name: "A", APIBase: "https://api.example.com/v1", APIKey: "ka"},
		{Name: "B", APIBase: "https://api.example.com/v1", APIKey: "kb"},
	}
	registry, err := config.NewRegistry(models)
	require.NoError(t, err)

	plan, err := config.ParsePlan(`{
		"analyzer": {"ref": "A"},
		"workers": [{"name": "A"}, {"name": "B"}],
		"synthesizer": {"ref": "A"}
	}`)
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
		Plan:   config.ExpandDepth(plan, 1),
	}
	if reflection {
		cfg.Reflection = &config.ReflectionConfig{
			MaxIterations:        1,
			ConvergenceThreshold: 0.8,
			Model:                "A",
			TimeoutSecs:          5,
		}
	}

	loaded := &config.Loaded{Config: cfg, Registry: registry, Timeouts: timeouts}
	engine := workflow.NewEngine(loaded, caller, nil)
	var reflector *workflow.Reflector
	if reflection {
		reflector = workflow.NewReflector(loaded, caller, nil)
	}
	return New(loaded, engine, reflector, nil)
}

// sseFrames splits an SSE body into its data payloads, in order.
func sseFrames(body string) []string {
	var frames []string
	for _, line := range strings.Split(body, "\n") {
		if rest, ok := strings.CutPrefix(line, "data: "); ok {
			frames = append(frames, rest)
		}
	}
	return frames
}
