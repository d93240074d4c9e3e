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
	"regexp"
)

// promptLogLimit caps how many runes of message content survive into verbose
// logs.
const promptLogLimit = 200

var bearerPattern = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]+`)

// RedactPayload prepares a request payload for verbose logging: credentials
// are masked and message content is truncated. The input is returned
// unchanged only when it is not a JSON object, with bearer tokens still
// masked.
func RedactPayload(payload string) string {
	masked := bearerPattern.ReplaceAllString(payload, "Bearer [redacted]")

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(masked), &obj); err != nil {
		return masked
	}

	for _, key := range []string{"api_key", "apikey", "authorization"} {
		if _, present := obj[key]; present {
			obj[key] = "[redacted]"
		}
	}

	if messages, ok := obj["messages"].([]interface{}); ok {
		for _, item := range messages {
			msg, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if content, ok := msg["content"].(string); ok {
				msg["content"] = TruncatePrompt(content)
			}
		}
	}

	out, err := json.Marshal(obj)
	if err != nil {
		return masked
	}
	return string(out)
}

// TruncatePrompt shortens prompt content for log output.
func TruncatePrompt(content string) string {
	runes := []rune(content)
	if len(runes) <= promptLogLimit {
		return content
	}
	return string(runes[:promptLogLimit]) + "…[truncated]"
}
