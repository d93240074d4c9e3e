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

package workflow

import (
	"context"
	"errors"
	"fmt"

	"chorus/config"
)

// ErrAllWorkersFailed is returned when every worker in a stage failed.
var ErrAllWorkersFailed = errors.New("no successful worker outputs to select from")

// StageTimeoutError reports that a stage's deadline elapsed. It is fatal only
// for the synthesizer stage; other stages degrade.
type StageTimeoutError struct {
	Stage config.Stage
}

func (e *StageTimeoutError) Error() string {
	return fmt.Sprintf("%s phase timed out", e.Stage)
}

// stageError normalizes a call failure for one stage, converting a context
// deadline into a StageTimeoutError.
func stageError(stage config.Stage, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &StageTimeoutError{Stage: stage}
	}
	return err
}
