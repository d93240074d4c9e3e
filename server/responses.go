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
	"net/http"

	"github.com/google/uuid"

	"chorus/workflow"
)

// handleResponses serves the OpenAI Responses endpoint.
func (s *Server) handleResponses(w http.ResponseWriter, r *http.Request) {
	var req responsesRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	prompt, ok := req.promptText()
	if !ok {
		s.writeError(w, r, &InvalidRequestError{Message: "missing required field: input, messages, prompt, or instructions"})
		return
	}

	if req.Stream {
		promStreamingRequests.Inc()
		s.streamResponses(w, r, prompt, req.Model)
		return
	}

	result, err := s.engine.Execute(r.Context(), prompt, workflow.Options{IncludeTrace: req.IncludeWorkflow})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	payload := responsesObject("resp-"+uuid.NewString(), req.Model, "completed", result.Response)
	if result.Trace != nil {
		payload["workflow"] = result.Trace
	}
	writeJSON(w, http.StatusOK, payload)
}

// streamResponses emits the Responses event sequence: response.created, one
// output_text delta per synthesizer chunk, response.completed, then [DONE].
func (s *Server) streamResponses(w http.ResponseWriter, r *http.Request, prompt, model string) {
	stream, err := newSSEStream(w)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id := "resp-" + uuid.NewString()

	if err := stream.sendJSON(map[string]interface{}{
		"type":     "response.created",
		"response": responsesObject(id, model, "in_progress", ""),
	}); err != nil {
		return
	}

	result, err := s.engine.Execute(r.Context(), prompt, workflow.Options{
		Sink: func(delta string) error {
			return stream.sendJSON(map[string]interface{}{
				"type":  "response.output_text.delta",
				"delta": delta,
			})
		},
	})
	if err != nil {
		stream.sendError(err)
		return
	}

	_ = stream.sendJSON(map[string]interface{}{
		"type":     "response.completed",
		"response": responsesObject(id, model, "completed", result.Response),
	})
	_ = stream.sendRaw(doneMarker)
}

func responsesObject(id, model, status, text string) map[string]interface{} {
	payload := map[string]interface{}{
		"id":         id,
		"object":     "response",
		"created_at": nowRFC3339(),
		"status":     status,
		"output":     []map[string]interface{}{},
	}
	if model != "" {
		payload["model"] = model
	}
	if text != "" {
		payload["output"] = []map[string]interface{}{
			{"type": "text", "text": text},
		}
	}
	return payload
}
