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

// ExpandDepth applies the nested-worker expansion rule: for depth n >= 2,
// every leaf worker is replaced by a sub-workflow that reuses the enclosing
// plan's analyzer, selector, and synthesizer and runs two copies of the leaf.
// The transform is applied n-1 times, so each original leaf ends up executing
// 2^(n-1) times. Worker order is preserved. The input plan is not modified.
func ExpandDepth(plan *WorkflowPlan, depth int) *WorkflowPlan {
	out := plan.Clone()
	for i := 1; i < depth; i++ {
		out = expandOnce(out)
	}
	return out
}

func expandOnce(p *WorkflowPlan) *WorkflowPlan {
	out := &WorkflowPlan{
		Analyzer:    cloneRef(p.Analyzer),
		Selector:    cloneRef(p.Selector),
		Synthesizer: cloneRef(p.Synthesizer),
		Workers:     make([]WorkerNode, 0, len(p.Workers)),
	}

	for i := range p.Workers {
		w := p.Workers[i]
		if w.Sub != nil {
			out.Workers = append(out.Workers, WorkerNode{Sub: expandOnce(w.Sub)})
			continue
		}

		sub := &WorkflowPlan{
			Analyzer:    cloneRef(p.Analyzer),
			Selector:    cloneRef(p.Selector),
			Synthesizer: cloneRef(p.Synthesizer),
			Workers: []WorkerNode{
				{Ref: cloneRef(w.Ref)},
				{Ref: cloneRef(w.Ref)},
			},
		}
		out.Workers = append(out.Workers, WorkerNode{Sub: sub})
	}

	return out
}
