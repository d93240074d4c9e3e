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
	"strings"
)

// chatMessage is one turn in an incoming messages array.
type chatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// text flattens a message content value: a plain string or an array of
// {type:"text", text} parts.
func (m *chatMessage) text() string {
	return flattenContent(m.Content)
}

func flattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		var out strings.Builder
		for _, part := range parts {
			if part.Text != "" {
				out.WriteString(part.Text)
			}
		}
		return out.String()
	}

	return ""
}

// generateRequest covers /api/generate and /v1/completions. The prompt may be
// a string or an array of strings.
type generateRequest struct {
	Model           string          `json:"model"`
	Prompt          json.RawMessage `json:"prompt"`
	Stream          bool            `json:"stream"`
	IncludeWorkflow bool            `json:"include_workflow"`
}

func (g *generateRequest) promptText() (string, bool) {
	if len(g.Prompt) == 0 {
		return "", false
	}

	var s string
	if err := json.Unmarshal(g.Prompt, &s); err == nil {
		return s, true
	}

	var many []string
	if err := json.Unmarshal(g.Prompt, &many); err == nil && len(many) > 0 {
		return strings.Join(many, "\n"), true
	}

	return "", false
}

// chatRequest covers /api/chat and /v1/chat/completions.
type chatRequest struct {
	Model           string        `json:"model"`
	Messages        []chatMessage `json:"messages"`
	Stream          bool          `json:"stream"`
	IncludeWorkflow bool          `json:"include_workflow"`
}

// promptText extracts the canonical prompt: the content of the last message.
func (c *chatRequest) promptText() (string, bool) {
	if len(c.Messages) == 0 {
		return "", false
	}
	text := c.Messages[len(c.Messages)-1].text()
	return text, text != ""
}

// responsesRequest covers /v1/responses. Recognised inputs in priority
// order: instructions+input, messages, prompt.
type responsesRequest struct {
	Model           string          `json:"model"`
	Instructions    string          `json:"instructions"`
	Input           json.RawMessage `json:"input"`
	Messages        []chatMessage   `json:"messages"`
	Prompt          json.RawMessage `json:"prompt"`
	Stream          bool            `json:"stream"`
	IncludeWorkflow bool            `json:"include_workflow"`
}

// promptText resolves the prompt for a Responses request.
func (r *responsesRequest) promptText() (string, bool) {
	var pieces []string
	if r.Instructions != "" {
		pieces = append(pieces, r.Instructions)
	}

	if input := flattenInput(r.Input); input != "" {
		pieces = append(pieces, input)
		return strings.Join(pieces, "\n\n"), true
	}

	if len(r.Messages) > 0 {
		if text := r.Messages[len(r.Messages)-1].text(); text != "" {
			pieces = append(pieces, text)
			return strings.Join(pieces, "\n\n"), true
		}
	}

	var prompt string
	if len(r.Prompt) > 0 {
		if err := json.Unmarshal(r.Prompt, &prompt); err == nil && prompt != "" {
			pieces = append(pieces, prompt)
			return strings.Join(pieces, "\n\n"), true
		}
	}

	if r.Instructions != "" {
		return r.Instructions, true
	}
	return "", false
}

// flattenInput handles the Responses "input" field: a string, an array of
// {type:"text", text} parts, or an array of message objects whose content is
// either shape.
func flattenInput(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}

	var out strings.Builder
	for _, part := range parts {
		var typed struct {
			Type    string          `json:"type"`
			Text    string          `json:"text"`
			Content json.RawMessage `json:"content"`
		}
		if err := json.Unmarshal(part, &typed); err != nil {
			continue
		}
		switch {
		case typed.Text != "":
			out.WriteString(typed.Text)
		case len(typed.Content) > 0:
			out.WriteString(flattenContent(typed.Content))
		}
	}
	return out.String()
}

// decodeBody decodes a JSON request body; malformed JSON becomes an
// InvalidRequestError. Unknown fields are ignored.
func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &InvalidRequestError{Message: "malformed JSON body: " + err.Error()}
	}
	return nil
}

// boolQuery reports a query-string boolean, used as a fallback so Ollama
// clients that pass stream/include_workflow as query parameters still work.
func boolQuery(r *http.Request, key string) bool {
	v := r.URL.Query().Get(key)
	return v == "true" || v == "1"
}
