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

// Package llm issues chat-completion calls against OpenAI-compatible
// provider endpoints.
//
// One pooled HTTP client is kept per endpoint host and reused across calls;
// the workflow engine never constructs transports per invocation. Responses
// are decoded tolerantly: providers disagree on where completion text lives
// (message content, reasoning fields, plain text choices, output_text) and
// some report errors inside 200 bodies, so extraction and error detection
// both walk the payload rather than assuming one shape.
package llm
