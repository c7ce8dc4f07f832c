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

package http

import (
	"sync"
	"time"

	"github.com/seclens/capscrub/internal/domain"
	"github.com/seclens/capscrub/internal/events"
	"github.com/seclens/capscrub/internal/pipeline"
)

// Run states as the status API reports them.
const (
	StateIdle     = "idle"
	StateRunning  = "running"
	StateFinished = "finished"
	StateFailed   = "failed"
)

// Activity is the live view of the current (or most recent) run.
type Activity struct {
	State     string    `json:"state"`
	RunID     string    `json:"run_id,omitempty"`
	Capture   string    `json:"capture,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Tracker follows progress events and keeps the state the status API
// serves. It registers with the run's event dispatcher like any other
// handler.
type Tracker struct {
	mu      sync.RWMutex
	current Activity
	report  *pipeline.Report
}

// NewTracker creates a Tracker in the idle state.
func NewTracker() *Tracker {
	return &Tracker{current: Activity{State: StateIdle}}
}

// Name returns the handler's identifier.
func (t *Tracker) Name() string {
	return "status-api"
}

// Handle processes one event.
func (t *Tracker) Handle(event domain.Event) error {
	se, ok := event.(*events.StageEvent)
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.current.RunID = se.Run
	t.current.UpdatedAt = se.At
	if se.Capture != "" {
		t.current.Capture = se.Capture
	}

	switch se.Kind {
	case domain.EventTypeRunStarted:
		t.current.State = StateRunning
		t.current.Stage = ""
		t.current.LastError = ""
	case domain.EventTypeStageStarted, domain.EventTypeStageFinished:
		t.current.State = StateRunning
		t.current.Stage = se.Stage
	case domain.EventTypeStageFailed:
		t.current.State = StateFailed
		t.current.Stage = se.Stage
		t.current.LastError = se.Err
	case domain.EventTypeRunFinished:
		if se.Err != "" {
			t.current.State = StateFailed
			t.current.LastError = se.Err
		} else {
			t.current.State = StateFinished
		}
	}
	return nil
}

// SetReport stores the finished run's report for GET /report.
func (t *Tracker) SetReport(rep *pipeline.Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report = rep
}

// Snapshot returns the current activity view.
func (t *Tracker) Snapshot() Activity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// LastReport returns the most recent run report, or nil before any run
// finished.
func (t *Tracker) LastReport() *pipeline.Report {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.report
}
