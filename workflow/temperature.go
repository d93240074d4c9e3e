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
	"chorus/config"
)

// defaultTemperature is used when no other source resolves.
const defaultTemperature = 1.4

// resolveTemperature applies the per-node fallback chain: an explicit
// temperature on the reference wins, then auto_temperature (on the reference
// or the registered model) defers to the analyzer's recommendation, then the
// model's registered default, then the global default.
func resolveTemperature(ref *config.ModelRef, model config.ModelConfig, analyzerTemp float64) float64 {
	if ref != nil && ref.Temperature != nil {
		return *ref.Temperature
	}
	if (ref != nil && ref.Auto()) || model.AutoTemperature {
		return analyzerTemp
	}
	if model.Temperature != nil {
		return *model.Temperature
	}
	return defaultTemperature
}
