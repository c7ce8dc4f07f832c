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

package domain

// EventType defines the category of an event.
type EventType uint8

const (
	// EventTypeRunStarted marks the beginning of a pipeline run.
	EventTypeRunStarted EventType = iota

	// EventTypeStageStarted marks the beginning of one stage.
	EventTypeStageStarted

	// EventTypeStageFinished marks a stage that completed.
	EventTypeStageFinished

	// EventTypeStageFailed marks a stage that errored out.
	EventTypeStageFailed

	// EventTypeRunFinished marks the end of a pipeline run, good or bad.
	EventTypeRunFinished
)

// String returns the event type's wire name.
func (t EventType) String() string {
	switch t {
	case EventTypeRunStarted:
		return "run_started"
	case EventTypeStageStarted:
		return "stage_started"
	case EventTypeStageFinished:
		return "stage_finished"
	case EventTypeStageFailed:
		return "stage_failed"
	case EventTypeRunFinished:
		return "run_finished"
	default:
		return "unknown"
	}
}

// MarshalText makes event types serialize by name in JSON documents.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Event is a progress notification flowing out of a pipeline run.
type Event interface {
	// String returns a human-readable representation of the event.
	String() string

	// Type returns the category of this event.
	Type() EventType

	// UUID returns a unique identifier for this event.
	UUID() string

	// RunID returns the pipeline run this event belongs to.
	RunID() string

	// Validate checks if the event data is valid.
	Validate() error
}

// EventHandler processes events as a run progresses.
type EventHandler interface {
	// Handle processes one event.
	Handle(event Event) error

	// Name returns the handler's identifier.
	Name() string
}

// EventDispatcher manages event distribution to registered handlers.
type EventDispatcher interface {
	// Register adds an event handler to the dispatcher.
	Register(handler EventHandler) error

	// Unregister removes an event handler from the dispatcher.
	Unregister(handlerName string) error

	// Dispatch sends an event to all registered handlers.
	Dispatch(event Event) error

	// Close stops the dispatcher and releases resources.
	Close() error
}
