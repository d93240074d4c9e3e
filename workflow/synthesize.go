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
	"time"

	"chorus/config"
	"chorus/llm"
)

const synthesizerSelectedPromptFormat = "Based on the selected best response and all candidate outputs, " +
	"synthesize a final comprehensive answer to the user's request.\n\n" +
	"User request:\n%s\n\n" +
	"Selected response:\n%s\n\n" +
	"Selection reasoning:\n%s\n\n" +
	"All candidate outputs:\n%s\n\n" +
	"Provide the final synthesized response."

const synthesizerAllPromptFormat = "Synthesize a final comprehensive answer to the user's request from the " +
	"candidate outputs below.\n\n" +
	"User request:\n%s\n\n" +
	"Candidate outputs:\n%s\n\n" +
	"Provide the final synthesized response."

// synthesize produces the final reply. Failure here is fatal and surfaces as
// the request's error. When the plan carries no synthesizer at any level the
// selected candidate is returned directly.
func (e *Engine) synthesize(ctx context.Context, ref *config.ModelRef, prompt string, sel *selection, workers []WorkerTrace, analyzerTemp float64, sink llm.StreamSink, trace *Trace) (string, error) {
	if ref == nil {
		text := sel.chosenText
		if sel.chosenIndex < 0 {
			_, texts := candidateTexts(workers)
			text = texts[0]
		}
		if sink != nil {
			if err := sink(text); err != nil {
				return "", err
			}
		}
		return text, nil
	}

	start := time.Now()
	model, ok := e.registry.Get(ref.Model)
	if !ok {
		return "", fmt.Errorf("synthesizer model %q not registered", ref.Model)
	}

	var content string
	if sel.chosenIndex >= 0 {
		content = fmt.Sprintf(synthesizerSelectedPromptFormat, prompt, sel.chosenText, sel.reasoning, formatCandidates(workers))
	} else {
		content = fmt.Sprintf(synthesizerAllPromptFormat, prompt, formatCandidates(workers))
	}

	temp := resolveTemperature(ref, model, analyzerTemp)
	callCtx, cancel := context.WithTimeout(ctx, e.timeouts.Resolve(config.StageSynthesizer, model.Host()))
	defer cancel()

	messages := []llm.Message{{Role: "user", Content: content}}

	var text string
	var err error
	if sink != nil {
		text, err = e.client.ChatCompletionStream(callCtx, target(model), messages, &temp, sink)
	} else {
		text, err = e.client.ChatCompletion(callCtx, target(model), messages, &temp)
	}

	entry := &StageTrace{
		Model:       ref.Model,
		Temperature: temp,
		DurationMS:  time.Since(start).Milliseconds(),
	}
	trace.Synthesizer = entry

	if err != nil {
		err = stageError(config.StageSynthesizer, err)
		entry.Error = err.Error()
		e.log.ErrorWithCode(trace.WorkflowID, "synthesizer failed", 0, err, map[string]interface{}{
			"model": ref.Model,
		})
		return "", err
	}

	entry.Success = true
	return text, nil
}
