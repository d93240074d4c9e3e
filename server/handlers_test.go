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
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorus/llm"
)

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// =============================================================================
// Ollama endpoints
// =============================================================================

func TestHandleGenerate(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "TA|TB"}, false)

	rec := doRequest(t, srv, http.MethodPost, "/api/generate", `{"model": "A", "prompt": "hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, "A", body["model"])
	assert.Equal(t, "TA|TB", body["response"])
	assert.Equal(t, true, body["done"])
	assert.NotEmpty(t, body["created_at"])
	_, hasWorkflow := body["workflow"]
	assert.False(t, hasWorkflow)
}

func TestHandleGenerate_IncludeWorkflow(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "final"}, false)

	rec := doRequest(t, srv, http.MethodPost, "/api/generate", `{"model": "A", "prompt": "hi", "include_workflow": true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	wf, ok := body["workflow"].(map[string]interface{})
	require.True(t, ok, "workflow trace missing")
	workers, ok := wf["workers"].([]interface{})
	require.True(t, ok)
	assert.Len(t, workers, 2)
	assert.NotEmpty(t, wf["workflow_id"])
}

func TestHandleGenerate_UnknownModel(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "x"}, false)

	rec := doRequest(t, srv, http.MethodPost, "/api/generate", `{"model": "ghost", "prompt": "hi"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeJSON(t, rec)
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "model_not_found", errObj["code"])
	assert.Contains(t, errObj["message"], "ghost")
}

func TestHandleGenerate_MissingPrompt(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "x"}, false)

	rec := doRequest(t, srv, http.MethodPost, "/api/generate", `{"model": "A"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeJSON(t, rec)["error"].(map[string]interface{})["code"])
}

func TestHandleGenerate_Streaming(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthChunks: []string{"he", "ll", "o"}}, false)

	rec := doRequest(t, srv, http.MethodPost, "/api/generate", `{"model": "A", "prompt": "hi", "stream": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")

	frames := sseFrames(rec.Body.String())
	require.Len(t, frames, 4)

	var collected strings.Builder
	for i, frame := range frames {
		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(frame), &payload))
		if i < 3 {
			assert.Equal(t, false, payload["done"])
			collected.WriteString(payload["response"].(string))
		} else {
			assert.Equal(t, true, payload["done"])
			assert.Equal(t, "", payload["response"])
		}
	}
	assert.Equal(t, "hello", collected.String())
}

func TestHandleChat(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "reply"}, false)

	rec := doRequest(t, srv, http.MethodPost, "/api/chat", `{
		"model": "A",
		"messages": [{"role": "system", "content": "be brief"}, {"role": "user", "content": "hi"}]
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	message := body["message"].(map[string]interface{})
	assert.Equal(t, "assistant", message["role"])
	assert.Equal(t, "reply", message["content"])
	assert.Equal(t, true, body["done"])
}

func TestHandleChat_EmptyMessages(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "x"}, false)

	rec := doRequest(t, srv, http.MethodPost, "/api/chat", `{"model": "A", "messages": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// OpenAI endpoints
// =============================================================================

func TestHandleCompletions(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "done deal"}, false)

	rec := doRequest(t, srv, http.MethodPost, "/v1/completions", `{"model": "A", "prompt": "hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, "text_completion", body["object"])
	assert.True(t, strings.HasPrefix(body["id"].(string), "cmpl-"))

	choices := body["choices"].([]interface{})
	require.Len(t, choices, 1)
	choice := choices[0].(map[string]interface{})
	assert.Equal(t, "done deal", choice["text"])
	assert.Equal(t, "stop", choice["finish_reason"])
}

func TestHandleCompletions_ArrayPrompt(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "ok"}, false)

	rec := doRequest(t, srv, http.MethodPost, "/v1/completions", `{"model": "A", "prompt": ["part one", "part two"]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleChatCompletions(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "chat reply"}, false)

	rec := doRequest(t, srv, http.MethodPost, "/v1/chat/completions", `{
		"model": "A",
		"messages": [{"role": "user", "content": "hi"}]
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, "chat.completion", body["object"])
	choice := body["choices"].([]interface{})[0].(map[string]interface{})
	message := choice["message"].(map[string]interface{})
	assert.Equal(t, "chat reply", message["content"])
	assert.Equal(t, "stop", choice["finish_reason"])
}

// TestHandleChatCompletions_Streaming covers the S5 contract: one frame per
// synthesizer chunk, in order, then [DONE].
func TestHandleChatCompletions_Streaming(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthChunks: []string{"he", "ll", "o"}}, false)

	rec := doRequest(t, srv, http.MethodPost, "/v1/chat/completions", `{
		"model": "A",
		"messages": [{"role": "user", "content": "hi"}],
		"stream": true
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	frames := sseFrames(rec.Body.String())
	require.Len(t, frames, 4)
	assert.Equal(t, "[DONE]", frames[3])

	var deltas []string
	for _, frame := range frames[:3] {
		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(frame), &payload))
		assert.Equal(t, "chat.completion.chunk", payload["object"])
		choice := payload["choices"].([]interface{})[0].(map[string]interface{})
		delta := choice["delta"].(map[string]interface{})
		deltas = append(deltas, delta["content"].(string))
	}
	assert.Equal(t, []string{"he", "ll", "o"}, deltas)
}

func TestStreaming_ConcatEqualsNonStreaming(t *testing.T) {
	// The same stub serves both modes; streamed deltas concatenate to the
	// non-streaming response body.
	stub := &stubCaller{synthReply: "hello", synthChunks: []string{"he", "ll", "o"}}
	srv := newTestServer(t, stub, false)

	plain := doRequest(t, srv, http.MethodPost, "/api/generate", `{"model": "A", "prompt": "hi"}`)
	require.Equal(t, http.StatusOK, plain.Code)
	nonStreaming := decodeJSON(t, plain)["response"].(string)

	streamed := doRequest(t, srv, http.MethodPost, "/api/generate", `{"model": "A", "prompt": "hi", "stream": true}`)
	var collected strings.Builder
	for _, frame := range sseFrames(streamed.Body.String()) {
		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(frame), &payload))
		if payload["done"] == false {
			collected.WriteString(payload["response"].(string))
		}
	}

	assert.Equal(t, nonStreaming, collected.String())
}

// =============================================================================
// Error mapping
// =============================================================================

func TestErrorMapping_SynthesizerUpstreamFailure(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthErr: &llm.APIError{StatusCode: 500, Excerpt: "boom"}}, false)

	rec := doRequest(t, srv, http.MethodPost, "/api/generate", `{"model": "A", "prompt": "hi"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "llm_error", decodeJSON(t, rec)["error"].(map[string]interface{})["code"])
}

func TestErrorMapping_AllWorkersFailed(t *testing.T) {
	srv := newTestServer(t, &stubCaller{
		workerErr: map[string]error{
			"A": &llm.APIError{StatusCode: 500, Excerpt: "a down"},
			"B": &llm.APIError{StatusCode: 500, Excerpt: "b down"},
		},
	}, false)

	rec := doRequest(t, srv, http.MethodPost, "/api/generate", `{"model": "A", "prompt": "hi"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "workflow_execution_error", decodeJSON(t, rec)["error"].(map[string]interface{})["code"])
}

func TestErrorMapping_MalformedBody(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "x"}, false)

	rec := doRequest(t, srv, http.MethodPost, "/api/generate", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeJSON(t, rec)["error"].(map[string]interface{})["code"])
}

func TestStreaming_ErrorAfterHeadersSentBecomesErrorFrame(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthErr: &llm.APIError{StatusCode: 500, Excerpt: "late failure"}}, false)

	rec := doRequest(t, srv, http.MethodPost, "/api/generate", `{"model": "A", "prompt": "hi", "stream": true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	frames := sseFrames(rec.Body.String())
	require.NotEmpty(t, frames)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(frames[len(frames)-1]), &payload))
	errObj := payload["error"].(map[string]interface{})
	assert.Equal(t, "llm_error", errObj["code"])
}

// =============================================================================
// Discovery and service endpoints
// =============================================================================

func TestHandleModels(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "x"}, false)

	rec := doRequest(t, srv, http.MethodGet, "/v1/models", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, "list", body["object"])
	data := body["data"].([]interface{})
	require.Len(t, data, 2)
	ids := []string{
		data[0].(map[string]interface{})["id"].(string),
		data[1].(map[string]interface{})["id"].(string),
	}
	assert.Equal(t, []string{"A", "B"}, ids)
}

func TestHandleTagsAndVersionAndHealth(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "x"}, false)

	rec := doRequest(t, srv, http.MethodGet, "/api/tags", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON(t, rec)["models"].([]interface{}), 2)

	rec = doRequest(t, srv, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Version, decodeJSON(t, rec)["version"])

	rec = doRequest(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeJSON(t, rec)["status"])
}

// =============================================================================
// Reflection endpoint
// =============================================================================

func TestHandleReflect_NotConfigured(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "x"}, false)

	rec := doRequest(t, srv, http.MethodPost, "/api/reflect", `{"prompt": "q"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "reflection_not_configured", decodeJSON(t, rec)["error"].(map[string]interface{})["code"])
}

func TestHandleReflect(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "irrelevant"}, true)

	rec := doRequest(t, srv, http.MethodPost, "/api/reflect", `{"prompt": "why?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.NotEmpty(t, body["final_answer"])
	assert.EqualValues(t, 1, body["total_iterations"])
}
