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
	"sort"
	"strings"
)

// UndefinedModelError reports workflow references that do not resolve in the
// model registry. Names is sorted and de-duplicated.
type UndefinedModelError struct {
	Names []string
}

func (e *UndefinedModelError) Error() string {
	return fmt.Sprintf("Workflow configuration references undefined model(s): %s", strings.Join(e.Names, ", "))
}

// ValidatePlan checks model closure and temperature ranges for the whole
// tree. All undefined names are collected before failing so the error names
// every offender at once.
func ValidatePlan(plan *WorkflowPlan, registry *Registry) error {
	undefined := make(map[string]struct{})

	if err := validatePlanNode(plan, registry, undefined); err != nil {
		return err
	}

	if len(undefined) > 0 {
		names := make([]string, 0, len(undefined))
		for name := range undefined {
			names = append(names, name)
		}
		sort.Strings(names)
		return &UndefinedModelError{Names: names}
	}

	return nil
}

func validatePlanNode(plan *WorkflowPlan, registry *Registry, undefined map[string]struct{}) error {
	refs := []*ModelRef{plan.Analyzer, plan.Selector, plan.Synthesizer}
	for _, ref := range refs {
		if err := validateRef(ref, registry, undefined); err != nil {
			return err
		}
	}

	for i := range plan.Workers {
		w := &plan.Workers[i]
		if w.Ref != nil {
			if err := validateRef(w.Ref, registry, undefined); err != nil {
				return err
			}
		}
		if w.Sub != nil {
			if err := validatePlanNode(w.Sub, registry, undefined); err != nil {
				return err
			}
		}
	}

	return nil
}

func validateRef(ref *ModelRef, registry *Registry, undefined map[string]struct{}) error {
	if ref == nil {
		return nil
	}
	if !registry.Has(ref.Model) {
		undefined[ref.Model] = struct{}{}
	}
	if ref.Temperature != nil && (*ref.Temperature < 0.0 || *ref.Temperature > 2.0) {
		return fmt.Errorf("workflow temperature %.2f for model %q out of range [0.0, 2.0]", *ref.Temperature, ref.Model)
	}
	return nil
}
