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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleResponses_StringInput(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "answer"}, false)

	rec := doRequest(t, srv, http.MethodPost, "/v1/responses", `{"input": "what is up"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, "response", body["object"])
	assert.Equal(t, "completed", body["status"])

	output := body["output"].([]interface{})
	require.Len(t, output, 1)
	part := output[0].(map[string]interface{})
	assert.Equal(t, "text", part["type"])
	assert.Equal(t, "answer", part["text"])
}

func TestHandleResponses_InputParts(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "ok"}, false)

	rec := doRequest(t, srv, http.MethodPost, "/v1/responses", `{
		"instructions": "be terse",
		"input": [{"type": "text", "text": "first"}, {"type": "text", "text": " second"}]
	}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleResponses_MessagesFallback(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "ok"}, false)

	rec := doRequest(t, srv, http.MethodPost, "/v1/responses", `{
		"messages": [{"role": "user", "content": "from messages"}]
	}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleResponses_PromptFallback(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "ok"}, false)

	rec := doRequest(t, srv, http.MethodPost, "/v1/responses", `{"prompt": "from prompt"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleResponses_InstructionsOnly(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "ok"}, false)

	rec := doRequest(t, srv, http.MethodPost, "/v1/responses", `{"instructions": "just do it"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleResponses_MissingAllInputs(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "ok"}, false)

	rec := doRequest(t, srv, http.MethodPost, "/v1/responses", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	errObj := decodeJSON(t, rec)["error"].(map[string]interface{})
	assert.Equal(t, "invalid_request", errObj["code"])
	assert.Contains(t, errObj["message"], "input, messages, prompt, or instructions")
}

func TestHandleResponses_IncludeWorkflow(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthReply: "ok"}, false)

	rec := doRequest(t, srv, http.MethodPost, "/v1/responses", `{"input": "q", "include_workflow": true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	_, hasWorkflow := decodeJSON(t, rec)["workflow"]
	assert.True(t, hasWorkflow)
}

// TestHandleResponses_Streaming checks the event sequence:
// response.created, output_text deltas, response.completed, [DONE].
func TestHandleResponses_Streaming(t *testing.T) {
	srv := newTestServer(t, &stubCaller{synthChunks: []string{"ab", "cd"}}, false)

	rec := doRequest(t, srv, http.MethodPost, "/v1/responses", `{"input": "q", "stream": true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	frames := sseFrames(rec.Body.String())
	require.Len(t, frames, 5)
	assert.Equal(t, "[DONE]", frames[4])

	types := make([]string, 0, 4)
	var deltas []string
	for _, frame := range frames[:4] {
		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(frame), &payload))
		eventType := payload["type"].(string)
		types = append(types, eventType)
		if eventType == "response.output_text.delta" {
			deltas = append(deltas, payload["delta"].(string))
		}
	}

	assert.Equal(t, []string{
		"response.created",
		"response.output_text.delta",
		"response.output_text.delta",
		"response.completed",
	}, types)
	assert.Equal(t, []string{"ab", "cd"}, deltas)

	// The completed event carries the full text.
	var completed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(frames[3]), &completed))
	response := completed["response"].(map[string]interface{})
	output := response["output"].([]interface{})
	part := output[0].(map[string]interface{})
	assert.Equal(t, "abcd", part["text"])
}
