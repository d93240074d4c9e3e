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
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// streamDoneMarker terminates an OpenAI-style SSE stream.
const streamDoneMarker = "[DONE]"

// consumeEventStream reads a text/event-stream body, forwarding each text
// delta to sink in arrival order, and returns the concatenated text. The
// stream ends on [DONE], a non-empty finish_reason, or EOF. Payloads that are
// not JSON are forwarded verbatim; some providers stream raw text.
func consumeEventStream(body io.Reader, sink StreamSink) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var final strings.Builder
	var dataLines []string

	flushEvent := func() (done bool, err error) {
		if len(dataLines) == 0 {
			return false, nil
		}
		payload := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]

		trimmed := strings.TrimSpace(payload)
		if trimmed == "" {
			return false, nil
		}
		if trimmed == streamDoneMarker {
			return true, nil
		}

		var value interface{}
		if err := json.Unmarshal([]byte(trimmed), &value); err != nil {
			if sinkErr := sink(trimmed); sinkErr != nil {
				return false, sinkErr
			}
			final.WriteString(trimmed)
			return false, nil
		}

		text, ok := extractStreamDelta(value)
		if !ok {
			text, ok = extractCompletionText(value)
		}
		if ok {
			if sinkErr := sink(text); sinkErr != nil {
				return false, sinkErr
			}
			final.WriteString(text)
		}

		if _, finished := streamFinishReason(value); finished {
			return true, nil
		}
		return false, nil
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		if line == "" {
			done, err := flushEvent()
			if err != nil {
				return "", err
			}
			if done {
				return final.String(), nil
			}
			continue
		}

		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			dataLines = append(dataLines, strings.TrimPrefix(rest, " "))
		}
	}

	if err := scanner.Err(); err != nil {
		return "", &TransportError{Err: err}
	}

	if _, err := flushEvent(); err != nil {
		return "", err
	}

	return final.String(), nil
}
