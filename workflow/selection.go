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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chorus/config"
	"chorus/llm"
)

const selectorPromptFormat = "Select the best response to the user's request from the candidates below. " +
	"Judge accuracy, completeness, and clarity.\n\n" +
	"User request:\n%s\n\n" +
	"Candidates:\n%s\n\n" +
	"Respond in JSON format with fields: selected_index (the candidate number), reasoning"

// selection is the selector stage outcome: the chosen worker (by declaration
// index) and the rationale. When no selector is configured, chosenIndex is -1
// and the synthesizer receives all candidates.
type selection struct {
	chosenIndex int
	chosenText  string
	reasoning   string
}

// selectBest invokes the selector over the successful candidates. Selector
// failure or an unparseable reply degrades to the first successful worker;
// the degradation is recorded in the trace.
func (e *Engine) selectBest(ctx context.Context, ref *config.ModelRef, prompt string, workers []WorkerTrace, trace *Trace) *selection {
	indices, texts := candidateTexts(workers)

	if ref == nil {
		return &selection{chosenIndex: -1}
	}

	fallback := &selection{
		chosenIndex: indices[0],
		chosenText:  texts[0],
		reasoning:   "Fallback selection due to selector failure",
	}

	start := time.Now()
	model, ok := e.registry.Get(ref.Model)
	if !ok {
		trace.Selector = &SelectorTrace{Model: ref.Model, SelectedIndex: fallback.chosenIndex, Degraded: true, Error: "model not registered"}
		return fallback
	}

	temp := selectorTemperature
	callCtx, cancel := context.WithTimeout(ctx, e.timeouts.Resolve(config.StageSelector, model.Host()))
	defer cancel()

	reply, err := e.client.ChatCompletion(callCtx, target(model), []llm.Message{
		{Role: "user", Content: fmt.Sprintf(selectorPromptFormat, prompt, formatCandidates(workers))},
	}, &temp)

	entry := &SelectorTrace{
		Model:      ref.Model,
		DurationMS: time.Since(start).Milliseconds(),
	}
	trace.Selector = entry

	if err != nil {
		err = stageError(config.StageSelector, err)
		e.log.Warn(trace.WorkflowID, "selector failed, falling back to first successful worker", map[string]interface{}{
			"model": ref.Model,
			"error": err.Error(),
		})
		entry.Error = err.Error()
		entry.Degraded = true
		entry.SelectedIndex = fallback.chosenIndex
		return fallback
	}

	candidate, reasoning, parsed := parseSelection(reply, indices)
	if !parsed {
		entry.Degraded = true
		entry.Success = true
		entry.SelectedIndex = fallback.chosenIndex
		entry.Reasoning = "selector reply was not parseable"
		return fallback
	}

	pos := 0
	for i, idx := range indices {
		if idx == candidate {
			pos = i
			break
		}
	}

	entry.Success = true
	entry.SelectedIndex = candidate
	entry.Reasoning = reasoning

	return &selection{
		chosenIndex: candidate,
		chosenText:  texts[pos],
		reasoning:   reasoning,
	}
}

// parseSelection recovers the chosen candidate index and rationale from a
// selector reply. A JSON object with selected_index is preferred; otherwise
// lines mentioning an index are scanned for a number. The index must name a
// successful candidate.
func parseSelection(reply string, validIndices []int) (index int, reasoning string, ok bool) {
	valid := func(n int) bool {
		for _, idx := range validIndices {
			if idx == n {
				return true
			}
		}
		return false
	}

	if start, end := strings.Index(reply, "{"), strings.LastIndex(reply, "}"); start >= 0 && end > start {
		var parsed struct {
			SelectedIndex *json.Number `json:"selected_index"`
			Reasoning     string       `json:"reasoning"`
		}
		if err := json.Unmarshal([]byte(reply[start:end+1]), &parsed); err == nil && parsed.SelectedIndex != nil {
			if n, err := parsed.SelectedIndex.Int64(); err == nil && valid(int(n)) {
				return int(n), parsed.Reasoning, true
			}
		}
	}

	for _, line := range strings.Split(reply, "\n") {
		lowered := strings.ToLower(line)
		if !strings.Contains(lowered, "selected") && !strings.Contains(lowered, "index") && !strings.Contains(lowered, "candidate") {
			continue
		}
		if v, parsed := llm.ExtractNumber(line); parsed {
			n := int(v)
			if float64(n) == v && valid(n) {
				return n, strings.TrimSpace(reply), true
			}
		}
	}

	return 0, "", false
}
