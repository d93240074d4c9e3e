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

package llm

import (
	"fmt"
)

// excerptLimit caps how much of an upstream error body is carried in errors
// and logs.
const excerptLimit = 512

// APIError is a non-2xx response from an upstream provider.
type APIError struct {
	StatusCode int
	Excerpt    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("LLM API request failed with status %d: %s", e.StatusCode, e.Excerpt)
}

// TransportError is a network-level failure reaching the provider.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("LLM transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProviderError is an error the provider reported inside a 2xx body.
type ProviderError struct {
	Endpoint string
	Model    string
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("LLM provider %s (model %s) returned error: %s", e.Endpoint, e.Model, e.Message)
}

func excerpt(body []byte) string {
	if len(body) > excerptLimit {
		return string(body[:excerptLimit])
	}
	return string(body)
}
