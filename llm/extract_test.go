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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseJSON(t *testing.T, doc string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(doc), &v))
	return v
}

// =============================================================================
// Completion text extraction
// =============================================================================

func TestExtractCompletionText(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
		ok   bool
	}{
		{
			"message content",
			`{"choices": [{"message": {"content": "hello"}}]}`,
			"hello", true,
		},
		{
			"reasoning content fallback",
			`{"choices": [{"message": {"content": "", "reasoning_content": "thought"}}]}`,
			"thought", true,
		},
		{
			"reasoning fallback",
			`{"choices": [{"message": {"reasoning": "deep"}}]}`,
			"deep", true,
		},
		{
			"plain text choice",
			`{"choices": [{"text": "  classic  "}]}`,
			"classic", true,
		},
		{
			"output_text",
			`{"output_text": "responses api"}`,
			"responses api", true,
		},
		{
			"content parts array",
			`{"choices": [{"message": {"content": [{"type": "text", "text": "a"}, {"type": "text", "text": "b"}]}}]}`,
			"ab", true,
		},
		{
			"empty choices",
			`{"choices": []}`,
			"", false,
		},
		{
			"missing content",
			`{"choices": [{"message": {}}]}`,
			"", false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractCompletionText(parseJSON(t, tt.doc))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractStreamDelta(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
		ok   bool
	}{
		{"delta content", `{"choices": [{"delta": {"content": "tok"}}]}`, "tok", true},
		{"delta reasoning", `{"choices": [{"delta": {"reasoning_content": "r"}}]}`, "r", true},
		{"delta analysis", `{"choices": [{"delta": {"analysis": "a"}}]}`, "a", true},
		{"text choice", `{"choices": [{"text": "t"}]}`, "t", true},
		{"empty delta", `{"choices": [{"delta": {}}]}`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractStreamDelta(parseJSON(t, tt.doc))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// Provider error detection inside 2xx bodies
// =============================================================================

func TestDetectProviderError_StatusBased(t *testing.T) {
	msg, found := detectProviderError(parseJSON(t, `{"status": "434", "msg": "Invalid apiKey"}`))
	require.True(t, found)
	assert.Contains(t, msg, "434")
	assert.Contains(t, msg, "Invalid apiKey")
}

func TestDetectProviderError_ErrorObjectCode(t *testing.T) {
	msg, found := detectProviderError(parseJSON(t, `{
		"error": {"code": "invalid_api_key", "message": "No API key provided"}
	}`))
	require.True(t, found)
	assert.Contains(t, msg, "invalid_api_key")
	assert.Contains(t, msg, "No API key provided")
}

func TestDetectProviderError_SuccessFlagFalse(t *testing.T) {
	msg, found := detectProviderError(parseJSON(t, `{"success": false, "message": "Request failed"}`))
	require.True(t, found)
	assert.Contains(t, msg, "Request failed")
}

func TestDetectProviderError_IgnoresSuccessfulStatus(t *testing.T) {
	_, found := detectProviderError(parseJSON(t, `{"status": 0, "msg": "ok"}`))
	assert.False(t, found)

	_, found = detectProviderError(parseJSON(t, `{"status": 200, "msg": "ok"}`))
	assert.False(t, found)
}

func TestDetectProviderError_ErrorString(t *testing.T) {
	msg, found := detectProviderError(parseJSON(t, `{"error": "boom"}`))
	require.True(t, found)
	assert.Equal(t, "boom", msg)
}

func TestDetectProviderError_MessageMarkers(t *testing.T) {
	msg, found := detectProviderError(parseJSON(t, `{"message": "request was denied"}`))
	require.True(t, found)
	assert.Contains(t, msg, "denied")

	_, found = detectProviderError(parseJSON(t, `{"message": "all good"}`))
	assert.False(t, found)
}
