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

// Package workflow executes a validated workflow plan for one prompt.
//
// A run is four stages: the analyzer derives a recommended generation
// temperature from the prompt, the workers fan out concurrently (leaves call
// a model once, sub-workflows recurse), the optional selector picks the best
// candidate, and the synthesizer produces the final reply, optionally
// streaming it token by token. Analyzer, worker, and selector failures
// degrade gracefully and are recorded in the execution trace; synthesizer
// failures and total worker failure abort the run.
package workflow
