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

import (
	"fmt"
	"net/url"
	"sort"
)

// ModelConfig describes one registered model endpoint.
type ModelConfig struct {
	Name            string   `mapstructure:"name"`
	APIBase         string   `mapstructure:"api_base"`
	APIKey          string   `mapstructure:"api_key"`
	Temperature     *float64 `mapstructure:"temperature"`
	AutoTemperature bool     `mapstructure:"auto_temperature"`
}

// Host returns the host component of the model's endpoint URL, used to key
// timeout overrides and the HTTP client pool. Empty when the URL is
// unparseable.
func (m *ModelConfig) Host() string {
	return HostForURL(m.APIBase)
}

// HostForURL extracts the host component of an endpoint URL.
func HostForURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Registry is the immutable model-name to endpoint map built at startup.
type Registry struct {
	models map[string]ModelConfig
	names  []string
}

// NewRegistry builds a registry from the configured model list. Duplicate
// names and out-of-range default temperatures are rejected.
func NewRegistry(models []ModelConfig) (*Registry, error) {
	r := &Registry{models: make(map[string]ModelConfig, len(models))}

	for _, m := range models {
		if m.Name == "" {
			return nil, fmt.Errorf("model entry is missing a name")
		}
		if m.APIBase == "" {
			return nil, fmt.Errorf("model %q is missing api_base", m.Name)
		}
		if _, exists := r.models[m.Name]; exists {
			return nil, fmt.Errorf("duplicate model name: %s", m.Name)
		}
		if m.Temperature != nil && (*m.Temperature < 0.0 || *m.Temperature > 2.0) {
			return nil, fmt.Errorf("model %q default temperature %.2f out of range [0.0, 2.0]", m.Name, *m.Temperature)
		}
		r.models[m.Name] = m
		r.names = append(r.names, m.Name)
	}

	sort.Strings(r.names)
	return r, nil
}

// Get looks up a model by name.
func (r *Registry) Get(name string) (ModelConfig, bool) {
	m, ok := r.models[name]
	return m, ok
}

// Has reports whether the name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.models[name]
	return ok
}

// Names returns all registered model names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Count returns the number of registered models.
func (r *Registry) Count() int {
	return len(r.models)
}

// Hosts returns the distinct endpoint hosts across all models, sorted. The
// LLM client pre-builds one pooled HTTP client per host from this list.
func (r *Registry) Hosts() []string {
	seen := make(map[string]struct{})
	var hosts []string
	for _, name := range r.names {
		m := r.models[name]
		host := m.Host()
		if host == "" {
			continue
		}
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts
}
