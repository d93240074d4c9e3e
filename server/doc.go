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

// Package server exposes the workflow engine over the Ollama and OpenAI wire
// protocols.
//
// Six protocol endpoints decode their request shapes into a canonical prompt,
// hand it to the engine, and encode the result as JSON or Server-Sent Events.
// Streaming responses forward the synthesizer's deltas in arrival order and
// terminate with the protocol family's done marker. Errors cross the wire as
// {"error": {"message", "code"}} with 4xx for client mistakes and 5xx for
// upstream failures.
package server
