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

// Package config loads and validates the Chorus TOML configuration.
//
// A configuration document declares the server listen address, the model
// registry ([[model]] tables), the workflow plan (a JSON document embedded in
// [workflow-integration].json), stage timeouts, and optional per-host timeout
// overrides. Loading is strict: every model referenced by the workflow plan
// must resolve in the registry, every temperature must lie in [0.0, 2.0], and
// nested_worker_depth must be at least 1.
//
// The parsed plan is depth-expanded once, eagerly, at load time. The
// resulting Config, Registry, and TimeoutPolicy are immutable and shared by
// all requests for the process lifetime.
package config
