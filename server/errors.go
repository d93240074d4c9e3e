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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"chorus/llm"
	"chorus/workflow"
)

// InvalidRequestError is a malformed or incomplete client request.
type InvalidRequestError struct {
	Message string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("Invalid request: %s", e.Message)
}

// ModelNotFoundError names a requested model missing from the registry.
type ModelNotFoundError struct {
	Model string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("Model not found: %s", e.Model)
}

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// classify maps an error to its HTTP status and wire code.
func classify(err error) (int, string) {
	var invalid *InvalidRequestError
	var notFound *ModelNotFoundError
	var stageTimeout *workflow.StageTimeoutError
	var apiErr *llm.APIError
	var transportErr *llm.TransportError
	var providerErr *llm.ProviderError

	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, "invalid_request"
	case errors.As(err, &notFound):
		return http.StatusBadRequest, "model_not_found"
	case errors.As(err, &stageTimeout):
		return http.StatusGatewayTimeout, "timeout_error"
	case errors.Is(err, workflow.ErrAllWorkersFailed):
		return http.StatusInternalServerError, "workflow_execution_error"
	case errors.As(err, &apiErr), errors.As(err, &transportErr), errors.As(err, &providerErr):
		return http.StatusBadGateway, "llm_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError encodes an error response. Client disconnects produce no output.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}

	status, code := classify(err)
	s.log.ErrorWithCode(requestID(r), "request failed", status, err, map[string]interface{}{
		"path": r.URL.Path,
		"code": code,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Message: err.Error(), Code: code}})
}
