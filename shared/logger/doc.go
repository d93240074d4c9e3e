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

// Package logger provides structured JSON logging for Chorus services.
//
// Every entry carries the emitting component, the request ID when one is in
// flight, and arbitrary key/value fields. Entries are marshalled to
// single-line JSON and emitted through the standard library log package, so
// they go to stderr with log's date/time prefix unless its output and flags
// have been changed.
package logger
