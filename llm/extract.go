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
	"strconv"
	"strings"
)

// extractCompletionText pulls the completion text out of a full (non-delta)
// response payload. Checked in order: choices[0].message.content, then the
// reasoning fields some providers substitute for content, then
// choices[0].text, then a top-level output_text.
func extractCompletionText(payload interface{}) (string, bool) {
	choice := firstChoice(payload)

	if choice != nil {
		if message, ok := choice["message"].(map[string]interface{}); ok {
			for _, key := range []string{"content", "reasoning_content", "reasoning"} {
				if text, ok := normalizeContentValue(message[key]); ok {
					return text, true
				}
			}
		}

		if text, ok := choice["text"].(string); ok {
			if trimmed := strings.TrimSpace(text); trimmed != "" {
				return trimmed, true
			}
		}
	}

	if obj, ok := payload.(map[string]interface{}); ok {
		if text, ok := normalizeContentValue(obj["output_text"]); ok {
			return text, true
		}
	}

	return "", false
}

// extractStreamDelta pulls the incremental text out of one streamed chunk.
func extractStreamDelta(payload interface{}) (string, bool) {
	choice := firstChoice(payload)
	if choice == nil {
		return "", false
	}

	if delta, ok := choice["delta"].(map[string]interface{}); ok {
		for _, key := range []string{"content", "reasoning_content", "analysis", "reasoning"} {
			if text, ok := normalizeContentValue(delta[key]); ok {
				return text, true
			}
		}
	}

	if text, ok := choice["text"].(string); ok {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			return trimmed, true
		}
	}

	return "", false
}

// streamFinishReason reports a non-empty finish_reason on a streamed chunk.
func streamFinishReason(payload interface{}) (string, bool) {
	choice := firstChoice(payload)
	if choice == nil {
		return "", false
	}
	reason, ok := choice["finish_reason"].(string)
	if !ok || reason == "" || reason == "null" {
		return "", false
	}
	return reason, true
}

func firstChoice(payload interface{}) map[string]interface{} {
	obj, ok := payload.(map[string]interface{})
	if !ok {
		return nil
	}
	choices, ok := obj["choices"].([]interface{})
	if !ok || len(choices) == 0 {
		return nil
	}
	choice, ok := choices[0].(map[string]interface{})
	if !ok {
		return nil
	}
	return choice
}

// normalizeContentValue flattens the content shapes providers use: plain
// strings, numbers, arrays of parts, and part objects keyed by text/content/
// value/message/parts/messages.
func normalizeContentValue(value interface{}) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	case []interface{}:
		var out strings.Builder
		for _, item := range v {
			if piece, ok := normalizeContentValue(item); ok {
				out.WriteString(piece)
			}
		}
		if out.Len() == 0 {
			return "", false
		}
		return out.String(), true
	case map[string]interface{}:
		for _, key := range []string{"text", "content", "value", "message", "parts", "messages"} {
			if inner, present := v[key]; present {
				if text, ok := normalizeContentValue(inner); ok {
					return text, true
				}
			}
		}
		return "", false
	default:
		return "", false
	}
}

// detectProviderError recognises errors reported inside 2xx bodies: an error
// object or string, a non-success status or code field, or an explicit
// success=false flag.
func detectProviderError(payload interface{}) (string, bool) {
	obj, ok := payload.(map[string]interface{})
	if !ok {
		return "", false
	}

	if errVal, present := obj["error"]; present && errVal != nil {
		if errObj, ok := errVal.(map[string]interface{}); ok {
			message := firstMessageField(errObj, []string{"message", "msg", "error_message", "error_msg", "detail"})
			code := firstMessageField(errObj, []string{"code", "status", "type"})
			switch {
			case message != "" && code != "":
				return fmt.Sprintf("%s: %s", code, message), true
			case message != "":
				return message, true
			default:
				return fmt.Sprintf("%v", errVal), true
			}
		}
		if text, ok := valueToString(errVal); ok {
			if trimmed := strings.TrimSpace(text); trimmed != "" {
				return trimmed, true
			}
		}
	}

	if statusVal, present := obj["status"]; present {
		if statusStr, bad := interpretStatusLikeError(statusVal); bad {
			message := firstMessageField(obj, []string{"msg", "message", "error_message", "error_msg", "cause", "detail"})
			if message != "" {
				return fmt.Sprintf("status %s: %s", statusStr, message), true
			}
			return fmt.Sprintf("status %s", statusStr), true
		}
	}

	if codeVal, present := obj["code"]; present {
		if codeStr, bad := interpretStatusLikeError(codeVal); bad {
			message := firstMessageField(obj, []string{"message", "msg", "error_message", "error_msg", "cause", "detail"})
			if message != "" {
				return fmt.Sprintf("code %s: %s", codeStr, message), true
			}
			return fmt.Sprintf("code %s", codeStr), true
		}
	}

	if success, ok := obj["success"].(bool); ok && !success {
		if message := firstMessageField(obj, []string{"message", "msg", "error_message", "error_msg", "error"}); message != "" {
			return message, true
		}
		return "success flag was false", true
	}

	if message := firstMessageField(obj, []string{"message", "msg"}); message != "" {
		lowered := strings.ToLower(message)
		for _, marker := range []string{"error", "invalid", "fail", "denied", "unauthorized"} {
			if strings.Contains(lowered, marker) {
				return message, true
			}
		}
	}

	return "", false
}

// interpretStatusLikeError decides whether a status/code value signals
// failure. Zero, 200, and success-flavoured strings do not.
func interpretStatusLikeError(value interface{}) (string, bool) {
	switch v := value.(type) {
	case float64:
		if v != 0 && v != 200 {
			if v == float64(int64(v)) {
				return strconv.FormatInt(int64(v), 10), true
			}
			return strconv.FormatFloat(v, 'f', -1, 64), true
		}
		return "", false
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return "", false
		}
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			if n != 0 && n != 200 {
				return strconv.FormatInt(n, 10), true
			}
			return "", false
		}
		lowered := strings.ToLower(trimmed)
		switch lowered {
		case "ok", "success", "succeeded", "true", "0", "200":
			return "", false
		}
		for _, marker := range []string{"error", "fail", "invalid", "denied", "unauthorized"} {
			if strings.Contains(lowered, marker) {
				return trimmed, true
			}
		}
		return "", false
	case bool:
		if !v {
			return "false", true
		}
		return "", false
	default:
		return "", false
	}
}

func firstMessageField(obj map[string]interface{}, keys []string) string {
	for _, key := range keys {
		if inner, present := obj[key]; present {
			if text, ok := valueToString(inner); ok {
				if trimmed := strings.TrimSpace(text); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return ""
}

func valueToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	case []interface{}:
		var parts []string
		for _, item := range v {
			if text, ok := valueToString(item); ok {
				if trimmed := strings.TrimSpace(text); trimmed != "" {
					parts = append(parts, trimmed)
				}
			}
		}
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, " "), true
	case map[string]interface{}:
		for _, key := range []string{"message", "msg", "error_message", "error_msg", "detail", "description"} {
			if inner, present := v[key]; present {
				if text, ok := valueToString(inner); ok {
					if trimmed := strings.TrimSpace(text); trimmed != "" {
						return trimmed, true
					}
				}
			}
		}
		return fmt.Sprintf("%v", v), true
	default:
		return "", false
	}
}
