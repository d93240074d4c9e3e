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
	"encoding/json"
	"fmt"
)

// ModelRef points a workflow stage or leaf worker at a registered model.
// Stage references use the JSON key "ref", leaf workers use "name"; both are
// accepted on input.
type ModelRef struct {
	Model           string
	Temperature     *float64
	AutoTemperature *bool
}

// Auto reports whether the reference opts into analyzer-derived temperature.
func (r *ModelRef) Auto() bool {
	return r != nil && r.AutoTemperature != nil && *r.AutoTemperature
}

func (r *ModelRef) UnmarshalJSON(data []byte) error {
	var raw struct {
		Ref             *string  `json:"ref"`
		Name            *string  `json:"name"`
		Temperature     *float64 `json:"temperature"`
		AutoTemperature *bool    `json:"auto_temperature"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch {
	case raw.Ref != nil:
		r.Model = *raw.Ref
	case raw.Name != nil:
		r.Model = *raw.Name
	default:
		return fmt.Errorf("model reference is missing both \"ref\" and \"name\"")
	}

	r.Temperature = raw.Temperature
	r.AutoTemperature = raw.AutoTemperature
	return nil
}

func (r ModelRef) jsonMap(key string) map[string]interface{} {
	m := map[string]interface{}{key: r.Model}
	if r.Temperature != nil {
		m["temperature"] = *r.Temperature
	}
	if r.AutoTemperature != nil {
		m["auto_temperature"] = *r.AutoTemperature
	}
	return m
}

// WorkerNode is one entry in a plan's worker list: either a leaf model
// reference or a nested workflow plan. Exactly one of Ref and Sub is set.
type WorkerNode struct {
	Ref *ModelRef
	Sub *WorkflowPlan
}

// IsLeaf reports whether the node references a model directly.
func (n *WorkerNode) IsLeaf() bool {
	return n.Ref != nil
}

// Label names the node for traces and logs.
func (n *WorkerNode) Label() string {
	if n.Ref != nil {
		return n.Ref.Model
	}
	if n.Sub != nil {
		return n.Sub.Label()
	}
	return "unknown"
}

func (n *WorkerNode) UnmarshalJSON(data []byte) error {
	var probe struct {
		Workers json.RawMessage `json:"workers"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	if probe.Workers != nil {
		sub := &WorkflowPlan{}
		if err := json.Unmarshal(data, sub); err != nil {
			return err
		}
		n.Sub = sub
		return nil
	}

	ref := &ModelRef{}
	if err := json.Unmarshal(data, ref); err != nil {
		return err
	}
	n.Ref = ref
	return nil
}

func (n WorkerNode) MarshalJSON() ([]byte, error) {
	if n.Sub != nil {
		return json.Marshal(n.Sub)
	}
	if n.Ref != nil {
		return json.Marshal(n.Ref.jsonMap("name"))
	}
	return nil, fmt.Errorf("worker node has neither a model reference nor a sub-workflow")
}

// WorkflowPlan is the recursive workflow description: an analyzer, an ordered
// worker list, an optional selector, and a synthesizer, which a root plan may
// omit. Nested plans may omit analyzer, selector, or synthesizer and inherit
// the enclosing plan's reference.
type WorkflowPlan struct {
	Analyzer    *ModelRef    `json:"analyzer"`
	Workers     []WorkerNode `json:"workers"`
	Selector    *ModelRef    `json:"selector,omitempty"`
	Synthesizer *ModelRef    `json:"synthesizer,omitempty"`
}

func (p WorkflowPlan) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{}
	if p.Analyzer != nil {
		m["analyzer"] = p.Analyzer.jsonMap("ref")
	}
	m["workers"] = p.Workers
	if p.Selector != nil {
		m["selector"] = p.Selector.jsonMap("ref")
	}
	if p.Synthesizer != nil {
		m["synthesizer"] = p.Synthesizer.jsonMap("ref")
	}
	return json.Marshal(m)
}

// ParsePlan parses the workflow JSON document embedded in the configuration.
func ParsePlan(jsonDoc string) (*WorkflowPlan, error) {
	plan := &WorkflowPlan{}
	if err := json.Unmarshal([]byte(jsonDoc), plan); err != nil {
		return nil, fmt.Errorf("invalid workflow JSON: %w", err)
	}
	if plan.Analyzer == nil {
		return nil, fmt.Errorf("invalid workflow JSON: missing analyzer")
	}
	if len(plan.Workers) == 0 {
		return nil, fmt.Errorf("invalid workflow JSON: workflow has no workers")
	}
	return plan, nil
}

// Label names the plan for traces, keyed by its synthesizer (or analyzer when
// the synthesizer is inherited).
func (p *WorkflowPlan) Label() string {
	if p.Synthesizer != nil {
		return "workflow:" + p.Synthesizer.Model
	}
	if p.Analyzer != nil {
		return "workflow:" + p.Analyzer.Model
	}
	return "workflow"
}

// WorkerLabels returns one label per worker in declaration order.
func (p *WorkflowPlan) WorkerLabels() []string {
	labels := make([]string, 0, len(p.Workers))
	for i := range p.Workers {
		labels = append(labels, p.Workers[i].Label())
	}
	return labels
}

// LeafCount counts leaf worker invocations in the tree.
func (p *WorkflowPlan) LeafCount() int {
	count := 0
	for i := range p.Workers {
		if p.Workers[i].IsLeaf() {
			count++
		} else if p.Workers[i].Sub != nil {
			count += p.Workers[i].Sub.LeafCount()
		}
	}
	return count
}

// LeafModels returns the model names of every leaf in left-to-right order.
func (p *WorkflowPlan) LeafModels() []string {
	var models []string
	for i := range p.Workers {
		if p.Workers[i].IsLeaf() {
			models = append(models, p.Workers[i].Ref.Model)
		} else if p.Workers[i].Sub != nil {
			models = append(models, p.Workers[i].Sub.LeafModels()...)
		}
	}
	return models
}

// ToJSON serializes the plan back to the embedded-document form.
func (p *WorkflowPlan) ToJSON() (string, error) {
	out, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize workflow plan: %w", err)
	}
	return string(out), nil
}

func cloneRef(r *ModelRef) *ModelRef {
	if r == nil {
		return nil
	}
	out := &ModelRef{Model: r.Model}
	if r.Temperature != nil {
		t := *r.Temperature
		out.Temperature = &t
	}
	if r.AutoTemperature != nil {
		a := *r.AutoTemperature
		out.AutoTemperature = &a
	}
	return out
}

// Clone deep-copies the plan.
func (p *WorkflowPlan) Clone() *WorkflowPlan {
	if p == nil {
		return nil
	}
	out := &WorkflowPlan{
		Analyzer:    cloneRef(p.Analyzer),
		Selector:    cloneRef(p.Selector),
		Synthesizer: cloneRef(p.Synthesizer),
	}
	out.Workers = make([]WorkerNode, len(p.Workers))
	for i := range p.Workers {
		if p.Workers[i].Ref != nil {
			out.Workers[i].Ref = cloneRef(p.Workers[i].Ref)
		}
		if p.Workers[i].Sub != nil {
			out.Workers[i].Sub = p.Workers[i].Sub.Clone()
		}
	}
	return out
}
