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
	"strconv"
	"strings"
)

// ParseTemperature extracts a recommended generation temperature from an
// analyzer reply. JSON documents are searched for a "temperature" field at
// any depth (numbers and numeric strings both count); otherwise lines
// mentioning "temperature" are scanned for a numeric fragment. The result is
// clamped to [0.0, 2.0]. ok is false when nothing parseable was found.
func ParseTemperature(reply string) (value float64, ok bool) {
	if v, found := temperatureFromJSON(reply); found {
		return ClampTemperature(v), true
	}

	for _, line := range strings.Split(reply, "\n") {
		if !strings.Contains(strings.ToLower(line), "temperature") {
			continue
		}

		if _, after, found := strings.Cut(line, ":"); found {
			if v, parsed := ExtractNumber(after); parsed {
				return ClampTemperature(v), true
			}
		}

		if v, parsed := ExtractNumber(line); parsed {
			return ClampTemperature(v), true
		}
	}

	return 0, false
}

// ClampTemperature bounds a temperature to the valid [0.0, 2.0] range.
func ClampTemperature(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 2.0 {
		return 2.0
	}
	return v
}

func temperatureFromJSON(reply string) (float64, bool) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return 0, false
	}

	var value interface{}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &value); err != nil {
		return 0, false
	}
	return temperatureFromValue(value)
}

func temperatureFromValue(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case map[string]interface{}:
		if temp, present := v["temperature"]; present {
			switch t := temp.(type) {
			case float64:
				return t, true
			case string:
				return ExtractNumber(t)
			}
			return 0, false
		}
		for _, inner := range v {
			if t, ok := temperatureFromValue(inner); ok {
				return t, true
			}
		}
		return 0, false
	case []interface{}:
		for _, item := range v {
			if t, ok := temperatureFromValue(item); ok {
				return t, true
			}
		}
		return 0, false
	default:
		return 0, false
	}
}

// ExtractNumber parses the first numeric fragment in a string: the whole
// trimmed string if it is a number, otherwise the first maximal run of
// digits, dots, and minus signs.
func ExtractNumber(input string) (float64, bool) {
	trimmed := strings.Trim(strings.TrimSpace(input), `"'`)
	if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return v, true
	}

	isNumeric := func(r rune) bool {
		return (r >= '0' && r <= '9') || r == '.' || r == '-'
	}
	for _, segment := range strings.FieldsFunc(trimmed, func(r rune) bool { return !isNumeric(r) }) {
		if v, err := strconv.ParseFloat(segment, 64); err == nil {
			return v, true
		}
	}

	return 0, false
}
