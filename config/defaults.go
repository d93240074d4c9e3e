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

package config

// DefaultConfigTOML is written to ~/.config/chorus/config.toml on first run.
const DefaultConfigTOML = `# Chorus default configuration
[server]
host = "127.0.0.1"
port = 11435

[[model]]
api_base = "https://api.openai.com/v1"
api_key = "your-api-key-here"
name = "gpt-4o"

[[model]]
api_base = "https://api.openai.com/v1"
api_key = "your-api-key-here"
name = "gpt-4o-mini"
auto_temperature = true

[workflow-integration]
nested_worker_depth = 1
json = """{
  "analyzer": {
    "ref": "gpt-4o",
    "auto_temperature": true
  },
  "workers": [
    {
      "name": "gpt-4o-mini",
      "temperature": 0.4
    },
    {
      "name": "gpt-4o",
      "temperature": 0.4
    }
  ],
  "selector": {
    "ref": "gpt-4o"
  },
  "synthesizer": {
    "ref": "gpt-4o"
  }
}"""

[workflow]
max_concurrent_workers = 0

[workflow.timeouts]
analyzer_timeout_secs = 30
worker_timeout_secs = 60
synthesizer_timeout_secs = 60

[workflow.domains]
`
