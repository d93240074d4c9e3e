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
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"chorus/config"
	"chorus/llm"
	"chorus/shared/logger"
)

const (
	// analyzerBaseTemperature is the fixed sampling temperature for the
	// analyzer call.
	analyzerBaseTemperature = 0.3

	// selectorTemperature is the sampling temperature for the selector call.
	selectorTemperature = 0.5
)

// analyzerTemperatures is the rotation used when the analyzer reference opts
// into auto_temperature: consecutive invocations cycle through these values
// instead of always sampling at the fixed base.
var analyzerTemperatures = []float64{analyzerBaseTemperature, 0.2, 0.4}

const analyzerPromptFormat = "Analyze this task and determine:\n" +
	"1. Task complexity (0-10)\n" +
	"2. Recommended temperature (0.0-2.0)\n" +
	"3. Task type classification\n" +
	"4. Key requirements\n\n" +
	"Task: %s\n\n" +
	"Respond in JSON format with fields: complexity, temperature, task_type, requirements"

// Caller is the LLM client contract the engine consumes.
type Caller interface {
	ChatCompletion(ctx context.Context, target llm.Target, messages []llm.Message, temperature *float64) (string, error)
	ChatCompletionStream(ctx context.Context, target llm.Target, messages []llm.Message, temperature *float64, sink llm.StreamSink) (string, error)
}

// Options modify one execution.
type Options struct {
	// IncludeTrace attaches the execution trace to the result.
	IncludeTrace bool

	// Sink, when set, receives the synthesizer's output deltas in arrival
	// order. Workers are always fully materialised before selection.
	Sink llm.StreamSink
}

// Result is the outcome of one workflow run.
type Result struct {
	Response string
	Trace    *Trace
}

// Engine orchestrates workflow execution. All fields are read-only after
// construction; one Engine serves every request concurrently.
type Engine struct {
	cfg      *config.Config
	registry *config.Registry
	timeouts *config.TimeoutPolicy
	client   Caller
	log      *logger.Logger

	analyzerSeq atomic.Uint64
}

// NewEngine builds an engine over loaded configuration.
func NewEngine(loaded *config.Loaded, client Caller, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.New("workflow")
	}
	return &Engine{
		cfg:      loaded.Config,
		registry: loaded.Registry,
		timeouts: loaded.Timeouts,
		client:   client,
		log:      log,
	}
}

// stageRefs carries the effective analyzer/selector/synthesizer references
// for one plan level; nested plans inherit whatever they omit.
type stageRefs struct {
	analyzer    *config.ModelRef
	selector    *config.ModelRef
	synthesizer *config.ModelRef
}

func effectiveRefs(plan *config.WorkflowPlan, parent stageRefs) stageRefs {
	refs := stageRefs{
		analyzer:    plan.Analyzer,
		selector:    plan.Selector,
		synthesizer: plan.Synthesizer,
	}
	if refs.analyzer == nil {
		refs.analyzer = parent.analyzer
	}
	if refs.selector == nil {
		refs.selector = parent.selector
	}
	if refs.synthesizer == nil {
		refs.synthesizer = parent.synthesizer
	}
	return refs
}

// Execute runs the configured workflow tree for one prompt.
func (e *Engine) Execute(ctx context.Context, prompt string, opts Options) (*Result, error) {
	start := time.Now()
	trace := &Trace{WorkflowID: uuid.NewString()}

	text, err := e.runPlan(ctx, e.cfg.Plan, stageRefs{}, prompt, opts.Sink, trace)
	if err != nil {
		return nil, err
	}

	trace.TotalDurationMS = time.Since(start).Milliseconds()
	e.log.InfoWithDuration(trace.WorkflowID, "workflow complete", float64(trace.TotalDurationMS), map[string]interface{}{
		"workers":            trace.WorkerCount,
		"workers_successful": trace.WorkerSuccessful,
	})

	result := &Result{Response: text}
	if opts.IncludeTrace {
		result.Trace = trace
	}
	return result, nil
}

// runPlan executes one plan level: analyze, fan out, select, synthesize.
func (e *Engine) runPlan(ctx context.Context, plan *config.WorkflowPlan, parent stageRefs, prompt string, sink llm.StreamSink, trace *Trace) (string, error) {
	refs := effectiveRefs(plan, parent)

	analyzerTemp := e.analyze(ctx, refs.analyzer, prompt, trace)

	workers := e.runWorkers(ctx, plan, refs, prompt, analyzerTemp, trace)

	successful := 0
	for i := range workers {
		if workers[i].Success {
			successful++
		}
	}
	trace.Workers = workers
	trace.WorkerCount = len(workers)
	trace.WorkerSuccessful = successful
	trace.WorkerFailures = len(workers) - successful

	if successful == 0 {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "", ErrAllWorkersFailed
	}

	selection := e.selectBest(ctx, refs.selector, prompt, workers, trace)

	return e.synthesize(ctx, refs.synthesizer, prompt, selection, workers, analyzerTemp, sink, trace)
}

// analyze derives the recommended worker temperature from the prompt. Any
// failure here falls back to the global default and is recorded, never
// raised.
func (e *Engine) analyze(ctx context.Context, ref *config.ModelRef, prompt string, trace *Trace) float64 {
	start := time.Now()

	model, ok := e.registry.Get(ref.Model)
	if !ok {
		// Unreachable after config validation; degrade anyway.
		trace.Analyzer = &AnalyzerTrace{Model: ref.Model, Temperature: defaultTemperature, Error: "model not registered"}
		return defaultTemperature
	}

	ownTemp := e.analyzerSamplingTemperature(ref)
	callCtx, cancel := context.WithTimeout(ctx, e.timeouts.Resolve(config.StageAnalyzer, model.Host()))
	defer cancel()

	reply, err := e.client.ChatCompletion(callCtx, target(model), []llm.Message{
		{Role: "user", Content: fmt.Sprintf(analyzerPromptFormat, prompt)},
	}, &ownTemp)

	entry := &AnalyzerTrace{
		Model:      ref.Model,
		DurationMS: time.Since(start).Milliseconds(),
	}
	trace.Analyzer = entry

	if err != nil {
		err = stageError(config.StageAnalyzer, err)
		e.log.Warn(trace.WorkflowID, "analyzer failed, using default temperature", map[string]interface{}{
			"model": ref.Model,
			"error": err.Error(),
		})
		entry.Error = err.Error()
		entry.Temperature = defaultTemperature
		return defaultTemperature
	}

	entry.Success = true
	entry.Output = reply

	if temp, parsed := llm.ParseTemperature(reply); parsed {
		entry.Temperature = temp
		entry.AutoDerived = true
		return temp
	}

	entry.Temperature = defaultTemperature
	return defaultTemperature
}

// analyzerSamplingTemperature returns the analyzer's own sampling
// temperature: fixed at the base unless the reference opts into
// auto_temperature, in which case consecutive invocations rotate through a
// small spread.
func (e *Engine) analyzerSamplingTemperature(ref *config.ModelRef) float64 {
	if ref.Temperature != nil {
		return *ref.Temperature
	}
	if !ref.Auto() {
		return analyzerBaseTemperature
	}
	seq := e.analyzerSeq.Add(1) - 1
	return analyzerTemperatures[seq%uint64(len(analyzerTemperatures))]
}

// runWorkers dispatches every worker concurrently and reports results in
// declaration order. Individual failures are captured, not raised, and never
// cancel siblings.
func (e *Engine) runWorkers(ctx context.Context, plan *config.WorkflowPlan, refs stageRefs, prompt string, analyzerTemp float64, trace *Trace) []WorkerTrace {
	results := make([]WorkerTrace, len(plan.Workers))

	g := &errgroup.Group{}
	if limit := e.cfg.Workflow.MaxConcurrentWorkers; limit > 0 {
		g.SetLimit(limit)
	}

	for i := range plan.Workers {
		node := &plan.Workers[i]
		index := i
		g.Go(func() error {
			results[index] = e.runWorker(ctx, node, refs, index, prompt, analyzerTemp)
			return nil
		})
	}

	// Workers never return errors through the group; failures live in their
	// trace entries.
	_ = g.Wait()

	return results
}

func (e *Engine) runWorker(ctx context.Context, node *config.WorkerNode, refs stageRefs, index int, prompt string, analyzerTemp float64) WorkerTrace {
	start := time.Now()

	if node.Sub != nil {
		subTrace := &Trace{WorkflowID: uuid.NewString()}
		text, err := e.runPlan(ctx, node.Sub, refs, prompt, nil, subTrace)
		subTrace.TotalDurationMS = time.Since(start).Milliseconds()

		entry := WorkerTrace{
			Index:      index,
			Model:      node.Sub.Label(),
			DurationMS: time.Since(start).Milliseconds(),
			Workflow:   subTrace,
		}
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Success = true
			entry.Output = text
		}
		return entry
	}

	model, _ := e.registry.Get(node.Ref.Model)
	temp := resolveTemperature(node.Ref, model, analyzerTemp)

	callCtx, cancel := context.WithTimeout(ctx, e.timeouts.Resolve(config.StageWorker, model.Host()))
	defer cancel()

	text, err := e.client.ChatCompletion(callCtx, target(model), []llm.Message{
		{Role: "user", Content: prompt},
	}, &temp)

	entry := WorkerTrace{
		Index:       index,
		Model:       node.Ref.Model,
		Temperature: temp,
		DurationMS:  time.Since(start).Milliseconds(),
	}
	if err != nil {
		err = stageError(config.StageWorker, err)
		e.log.Warn("", "worker failed", map[string]interface{}{
			"worker": index,
			"model":  node.Ref.Model,
			"error":  err.Error(),
		})
		entry.Error = err.Error()
		return entry
	}

	entry.Success = true
	entry.Output = text
	return entry
}

func target(model config.ModelConfig) llm.Target {
	return llm.Target{BaseURL: model.APIBase, APIKey: model.APIKey, Model: model.Name}
}

// candidateTexts returns the successful worker outputs with their original
// declaration indices, in declaration order.
func candidateTexts(workers []WorkerTrace) ([]int, []string) {
	var indices []int
	var texts []string
	for i := range workers {
		if workers[i].Success {
			indices = append(indices, workers[i].Index)
			texts = append(texts, workers[i].Output)
		}
	}
	return indices, texts
}

// formatCandidates enumerates the successful worker outputs, labelled with
// their declaration indices, for selector and synthesizer prompts.
func formatCandidates(workers []WorkerTrace) string {
	var parts []string
	for i := range workers {
		w := &workers[i]
		if !w.Success {
			continue
		}
		parts = append(parts, fmt.Sprintf("Candidate %d (%s): %s", w.Index, w.Model, w.Output))
	}
	return strings.Join(parts, "\n\n---\n\n")
}
