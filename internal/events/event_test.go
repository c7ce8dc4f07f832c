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
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/seclens/capscrub/internal/domain"
	"github.com/seclens/capscrub/internal/output/encoders"
)

func TestStageEventValidate(t *testing.T) {
	ev := NewStageEvent("run-1", domain.EventTypeStageStarted, "mask")
	if err := ev.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	if err := NewStageEvent("", domain.EventTypeRunStarted, "").Validate(); err == nil {
		t.Error("Validate() should reject missing run identifier")
	}

	if err := NewStageEvent("run-1", domain.EventTypeStageFailed, "").Validate(); err == nil {
		t.Error("Validate() should reject stage event without stage name")
	}

	// Run-level events carry no stage name.
	if err := NewStageEvent("run-1", domain.EventTypeRunFinished, "").Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestStageEventString(t *testing.T) {
	ev := NewStageEvent("run-1", domain.EventTypeStageFailed, "mask").
		WithError(errors.New("tshark exited 2"))

	s := ev.String()
	for _, want := range []string{"run-1", "mask", "stage_failed", "tshark exited 2"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func TestStageEventUUIDsUnique(t *testing.T) {
	a := NewStageEvent("run-1", domain.EventTypeRunStarted, "")
	b := NewStageEvent("run-1", domain.EventTypeRunStarted, "")
	if a.UUID() == b.UUID() {
		t.Error("events share a UUID")
	}
}

// bufferWriter is an in-memory OutputWriter for handler tests.
type bufferWriter struct {
	buf    bytes.Buffer
	closed bool
}

func (w *bufferWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *bufferWriter) Close() error                { w.closed = true; return nil }
func (w *bufferWriter) Name() string                { return "buffer" }
func (w *bufferWriter) Flush() error                { return nil }

func TestWriterHandlerEncodesJSONLines(t *testing.T) {
	sink := &bufferWriter{}
	h := NewWriterHandler(encoders.NewJsonEncoder(false), sink)

	ev := NewStageEvent("run-7", domain.EventTypeStageFinished, "dedup").
		WithCapture("/tmp/in.pcap")
	if err := h.Handle(ev); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	line := sink.buf.String()
	if !strings.HasSuffix(line, "\n") {
		t.Fatalf("expected newline-terminated output, got %q", line)
	}

	var decoded StageEvent
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded.Run != "run-7" || decoded.Stage != "dedup" {
		t.Errorf("decoded event = %+v", decoded)
	}
	if decoded.Capture != "/tmp/in.pcap" {
		t.Errorf("capture path not carried: %+v", decoded)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !sink.closed {
		t.Error("Close() should close the sink")
	}
}

func TestEventTypeNamesInJSON(t *testing.T) {
	data, err := json.Marshal(NewStageEvent("run-1", domain.EventTypeStageStarted, "anonymize"))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"kind":"stage_started"`) {
		t.Errorf("kind not serialized by name: %s", data)
	}
}
