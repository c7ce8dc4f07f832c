// Copyright 2025 seclens <opensource@seclens.io>. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seclens/capscrub/internal/domain"
	"github.com/seclens/capscrub/internal/errors"
)

// StageEvent is the progress notification a pipeline run emits. It carries
// enough to follow a run from a log line or a JSON stream without holding a
// reference to the run itself.
type StageEvent struct {
	ID      string           `json:"id"`
	Run     string           `json:"run_id"`
	Kind    domain.EventType `json:"kind"`
	Stage   string           `json:"stage,omitempty"`
	Capture string           `json:"capture,omitempty"`
	Err     string           `json:"error,omitempty"`
	At      time.Time        `json:"at"`
}

// NewStageEvent creates an event for one run. Stage is empty for run-level
// kinds.
func NewStageEvent(run string, kind domain.EventType, stage string) *StageEvent {
	return &StageEvent{
		ID:    uuid.NewString(),
		Run:   run,
		Kind:  kind,
		Stage: stage,
		At:    time.Now(),
	}
}

// WithCapture attaches the capture path the run operates on.
func (e *StageEvent) WithCapture(path string) *StageEvent {
	e.Capture = path
	return e
}

// WithError attaches a failure to the event.
func (e *StageEvent) WithError(err error) *StageEvent {
	if err != nil {
		e.Err = err.Error()
	}
	return e
}

// String returns a human-readable representation of the event.
func (e *StageEvent) String() string {
	if e.Stage == "" {
		if e.Err != "" {
			return fmt.Sprintf("run %s %s: %s", e.Run, e.Kind, e.Err)
		}
		return fmt.Sprintf("run %s %s", e.Run, e.Kind)
	}
	if e.Err != "" {
		return fmt.Sprintf("run %s stage %s %s: %s", e.Run, e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("run %s stage %s %s", e.Run, e.Stage, e.Kind)
}

// Type returns the category of this event.
func (e *StageEvent) Type() domain.EventType {
	return e.Kind
}

// UUID returns a unique identifier for this event.
func (e *StageEvent) UUID() string {
	return e.ID
}

// RunID returns the pipeline run this event belongs to.
func (e *StageEvent) RunID() string {
	return e.Run
}

// Validate checks if the event data is valid.
func (e *StageEvent) Validate() error {
	if e.Run == "" {
		return errors.New(errors.ErrCodeEventDispatch, "event has no run identifier")
	}
	switch e.Kind {
	case domain.EventTypeStageStarted, domain.EventTypeStageFinished, domain.EventTypeStageFailed:
		if e.Stage == "" {
			return errors.New(errors.ErrCodeEventDispatch, "stage event has no stage name")
		}
	}
	return nil
}
