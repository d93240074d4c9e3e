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
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"chorus/workflow"
)

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Ollama-family response shapes.

type generateResponse struct {
	Model     string          `json:"model"`
	CreatedAt string          `json:"created_at"`
	Response  string          `json:"response"`
	Done      bool            `json:"done"`
	Workflow  *workflow.Trace `json:"workflow,omitempty"`
}

type assistantMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model     string           `json:"model"`
	CreatedAt string           `json:"created_at"`
	Message   assistantMessage `json:"message"`
	Done      bool             `json:"done"`
	Workflow  *workflow.Trace  `json:"workflow,omitempty"`
}

// handleGenerate serves the Ollama-compatible completion endpoint.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if req.Model == "" {
		s.writeError(w, r, &InvalidRequestError{Message: "missing required field: model"})
		return
	}
	if !s.registry.Has(req.Model) {
		s.writeError(w, r, &ModelNotFoundError{Model: req.Model})
		return
	}

	prompt, ok := req.promptText()
	if !ok {
		s.writeError(w, r, &InvalidRequestError{Message: "missing required field: prompt"})
		return
	}

	if req.Stream || boolQuery(r, "stream") {
		promStreamingRequests.Inc()
		s.streamOllama(w, r, prompt, req.Model, false)
		return
	}

	result, err := s.engine.Execute(r.Context(), prompt, workflow.Options{
		IncludeTrace: req.IncludeWorkflow || boolQuery(r, "include_workflow"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{
		Model:     req.Model,
		CreatedAt: nowRFC3339(),
		Response:  result.Response,
		Done:      true,
		Workflow:  result.Trace,
	})
}

// handleChat serves the Ollama-compatible chat endpoint.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if req.Model == "" {
		s.writeError(w, r, &InvalidRequestError{Message: "missing required field: model"})
		return
	}
	if !s.registry.Has(req.Model) {
		s.writeError(w, r, &ModelNotFoundError{Model: req.Model})
		return
	}

	prompt, ok := req.promptText()
	if !ok {
		s.writeError(w, r, &InvalidRequestError{Message: "missing required field: messages"})
		return
	}

	if req.Stream || boolQuery(r, "stream") {
		promStreamingRequests.Inc()
		s.streamOllama(w, r, prompt, req.Model, true)
		return
	}

	result, err := s.engine.Execute(r.Context(), prompt, workflow.Options{
		IncludeTrace: req.IncludeWorkflow || boolQuery(r, "include_workflow"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Model:     req.Model,
		CreatedAt: nowRFC3339(),
		Message:   assistantMessage{Role: "assistant", Content: result.Response},
		Done:      true,
		Workflow:  result.Trace,
	})
}

// streamOllama emits per-delta frames in the Ollama shape and terminates with
// a done:true frame.
func (s *Server) streamOllama(w http.ResponseWriter, r *http.Request, prompt, model string, chat bool) {
	stream, err := newSSEStream(w)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	frame := func(delta string, done bool) interface{} {
		if chat {
			return chatResponse{
				Model:     model,
				CreatedAt: nowRFC3339(),
				Message:   assistantMessage{Role: "assistant", Content: delta},
				Done:      done,
			}
		}
		return generateResponse{
			Model:     model,
			CreatedAt: nowRFC3339(),
			Response:  delta,
			Done:      done,
		}
	}

	_, err = s.engine.Execute(r.Context(), prompt, workflow.Options{
		Sink: func(delta string) error {
			return stream.sendJSON(frame(delta, false))
		},
	})
	if err != nil {
		stream.sendError(err)
		return
	}

	_ = stream.sendJSON(frame("", true))
}

// handleCompletions serves the OpenAI completion endpoint.
func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	prompt, ok := req.promptText()
	if !ok {
		s.writeError(w, r, &InvalidRequestError{Message: "missing required field: prompt"})
		return
	}

	if req.Stream {
		promStreamingRequests.Inc()
		s.streamCompletions(w, r, prompt, req.Model)
		return
	}

	result, err := s.engine.Execute(r.Context(), prompt, workflow.Options{IncludeTrace: req.IncludeWorkflow})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	payload := map[string]interface{}{
		"id":      "cmpl-" + uuid.NewString(),
		"object":  "text_completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []map[string]interface{}{
			{
				"text":          result.Response,
				"index":         0,
				"logprobs":      nil,
				"finish_reason": "stop",
			},
		},
		"usage": emptyUsage(),
	}
	if result.Trace != nil {
		payload["workflow"] = result.Trace
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) streamCompletions(w http.ResponseWriter, r *http.Request, prompt, model string) {
	stream, err := newSSEStream(w)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id := "cmpl-" + uuid.NewString()
	created := time.Now().Unix()

	_, err = s.engine.Execute(r.Context(), prompt, workflow.Options{
		Sink: func(delta string) error {
			return stream.sendJSON(map[string]interface{}{
				"id":      id,
				"object":  "text_completion",
				"created": created,
				"model":   model,
				"choices": []map[string]interface{}{
					{"text": delta, "index": 0, "finish_reason": nil},
				},
			})
		},
	})
	if err != nil {
		stream.sendError(err)
		return
	}

	_ = stream.sendRaw(doneMarker)
}

// handleChatCompletions serves the OpenAI chat completion endpoint.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	prompt, ok := req.promptText()
	if !ok {
		s.writeError(w, r, &InvalidRequestError{Message: "missing required field: messages"})
		return
	}

	if req.Stream {
		promStreamingRequests.Inc()
		s.streamChatCompletions(w, r, prompt, req.Model)
		return
	}

	result, err := s.engine.Execute(r.Context(), prompt, workflow.Options{IncludeTrace: req.IncludeWorkflow})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	payload := map[string]interface{}{
		"id":      "chatcmpl-" + uuid.NewString(),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"message":       assistantMessage{Role: "assistant", Content: result.Response},
				"finish_reason": "stop",
			},
		},
		"usage": emptyUsage(),
	}
	if result.Trace != nil {
		payload["workflow"] = result.Trace
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) streamChatCompletions(w http.ResponseWriter, r *http.Request, prompt, model string) {
	stream, err := newSSEStream(w)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()

	_, err = s.engine.Execute(r.Context(), prompt, workflow.Options{
		Sink: func(delta string) error {
			return stream.sendJSON(map[string]interface{}{
				"id":      id,
				"object":  "chat.completion.chunk",
				"created": created,
				"model":   model,
				"choices": []map[string]interface{}{
					{"index": 0, "delta": map[string]string{"content": delta}, "finish_reason": nil},
				},
			})
		},
	})
	if err != nil {
		stream.sendError(err)
		return
	}

	_ = stream.sendRaw(doneMarker)
}

// handleModels enumerates the model registry in the OpenAI list shape.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	created := time.Now().Unix()
	models := make([]map[string]interface{}, 0, s.registry.Count())
	for _, name := range s.registry.Names() {
		models = append(models, map[string]interface{}{
			"id":       name,
			"object":   "model",
			"created":  created,
			"owned_by": "chorus",
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   models,
	})
}

// handleTags enumerates models in the Ollama tags shape.
func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	models := make([]map[string]interface{}, 0, s.registry.Count())
	for _, name := range s.registry.Names() {
		models = append(models, map[string]interface{}{
			"name":        name,
			"model":       name,
			"modified_at": nowRFC3339(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": models})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": Version})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"models": s.registry.Count(),
	})
}

// handleReflect serves the iterative self-refinement endpoint.
func (s *Server) handleReflect(w http.ResponseWriter, r *http.Request) {
	if s.reflector == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{
			Message: "reflection is not configured",
			Code:    "reflection_not_configured",
		}})
		return
	}

	var req struct {
		Prompt   string `json:"prompt"`
		Question string `json:"question"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	question := req.Prompt
	if question == "" {
		question = req.Question
	}
	if question == "" {
		s.writeError(w, r, &InvalidRequestError{Message: "missing required field: prompt"})
		return
	}

	result, err := s.reflector.Run(r.Context(), question)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func emptyUsage() map[string]int {
	return map[string]int{
		"prompt_tokens":     0,
		"completion_tokens": 0,
		"total_tokens":      0,
	}
}
