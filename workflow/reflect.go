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
	"chorus/shared/logger"
)

const reflectionRewritePromptFormat = "Critique the answer below for logic, factual accuracy, and creativity, " +
	"then write an improved version. Keep the core position but deepen its rigor.\n\n" +
	"Question:\n%s\n\n" +
	"Answer:\n%s\n\n" +
	"Respond with the improved answer only."

const reflectionScorePromptFormat = "Score the answer below between 0 and 1 for its combined logic, factual " +
	"accuracy, and creativity. Respond with the number only.\n\n" +
	"Question:\n%s\n\n" +
	"Answer:\n%s"

// ReflectionIteration records one refine-and-score round.
type ReflectionIteration struct {
	Iteration int      `json:"iteration"`
	Output    string   `json:"output"`
	Score     *float64 `json:"score,omitempty"`
}

// ReflectionResult is the outcome of an iterative self-refinement run.
type ReflectionResult struct {
	Question        string                `json:"question"`
	FinalAnswer     string                `json:"final_answer"`
	Iterations      []ReflectionIteration `json:"iterations"`
	TotalIterations int                   `json:"total_iterations"`
	Converged       bool                  `json:"converged"`
	FinalScore      *float64              `json:"final_score,omitempty"`
	DurationMS      int64                 `json:"duration_ms"`
}

// Reflector runs an answer through repeated critique/rewrite/score rounds
// until the self-assessed score crosses the convergence threshold or the
// iteration budget runs out.
type Reflector struct {
	cfg    config.ReflectionConfig
	model  config.ModelConfig
	client Caller
	log    *logger.Logger
}

// NewReflector builds a reflector, or returns nil when reflection is not
// configured.
func NewReflector(loaded *config.Loaded, client Caller, log *logger.Logger) *Reflector {
	if loaded.Config.Reflection == nil {
		return nil
	}
	if log == nil {
		log = logger.New("reflection")
	}
	model, _ := loaded.Registry.Get(loaded.Config.Reflection.Model)
	return &Reflector{
		cfg:    *loaded.Config.Reflection,
		model:  model,
		client: client,
		log:    log,
	}
}

// Run executes the reflection loop. A failed answer or rewrite call aborts
// the run; a failed or unparseable score call leaves that iteration unscored.
func (r *Reflector) Run(ctx context.Context, question string) (*ReflectionResult, error) {
	start := time.Now()

	answer, err := r.call(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("initial answer failed: %w", err)
	}

	result := &ReflectionResult{Question: question}

	for i := 1; i <= r.cfg.MaxIterations; i++ {
		improved, err := r.call(ctx, fmt.Sprintf(reflectionRewritePromptFormat, question, answer))
		if err != nil {
			return nil, fmt.Errorf("reflection iteration %d failed: %w", i, err)
		}
		answer = improved

		iteration := ReflectionIteration{Iteration: i, Output: improved}

		scoreReply, err := r.call(ctx, fmt.Sprintf(reflectionScorePromptFormat, question, improved))
		if err == nil {
			if v, ok := llm.ExtractNumber(scoreReply); ok {
				score := clampScore(v)
				iteration.Score = &score
				result.FinalScore = &score
			}
		}

		result.Iterations = append(result.Iterations, iteration)
		result.TotalIterations = i

		if iteration.Score != nil && *iteration.Score >= r.cfg.ConvergenceThreshold {
			result.Converged = true
			break
		}
	}

	result.FinalAnswer = answer
	result.DurationMS = time.Since(start).Milliseconds()

	r.log.InfoWithDuration("", "reflection complete", float64(result.DurationMS), map[string]interface{}{
		"iterations": result.TotalIterations,
		"converged":  result.Converged,
	})

	return result, nil
}

func (r *Reflector) call(ctx context.Context, content string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.TimeoutSecs)*time.Second)
	defer cancel()

	return r.client.ChatCompletion(callCtx, llm.Target{
		BaseURL: r.model.APIBase,
		APIKey:  r.model.APIKey,
		Model:   r.model.Name,
	}, []llm.Message{{Role: "user", Content: content}}, nil)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
