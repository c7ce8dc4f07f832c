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
	"github.com/seclens/capscrub/internal/domain"
	"github.com/seclens/capscrub/internal/errors"
	"github.com/seclens/capscrub/internal/logger"
	"github.com/seclens/capscrub/internal/output/encoders"
	"github.com/seclens/capscrub/internal/output/writers"
)

// LogHandler turns progress events into structured log lines.
type LogHandler struct {
	log *logger.Logger
}

// NewLogHandler creates a handler writing through the given logger.
func NewLogHandler(log *logger.Logger) *LogHandler {
	return &LogHandler{log: log.WithComponent("progress")}
}

// Name returns the handler's identifier.
func (h *LogHandler) Name() string {
	return "progress-log"
}

// Handle processes one event.
func (h *LogHandler) Handle(event domain.Event) error {
	ev := h.log.Info()
	if event.Type() == domain.EventTypeStageFailed {
		ev = h.log.Error()
	}
	ev.Str("run_id", event.RunID()).
		Str("kind", event.Type().String()).
		Msg(event.String())
	return nil
}

// WriterHandler streams encoded events into an output sink. The pipeline
// registers one per configured progress destination.
type WriterHandler struct {
	encoder encoders.Encoder
	writer  writers.OutputWriter
}

// NewWriterHandler creates a handler encoding events into writer.
func NewWriterHandler(encoder encoders.Encoder, writer writers.OutputWriter) *WriterHandler {
	return &WriterHandler{
		encoder: encoder,
		writer:  writer,
	}
}

// Name returns the handler's identifier, unique per destination.
func (h *WriterHandler) Name() string {
	return "progress-" + h.writer.Name()
}

// Handle processes one event.
func (h *WriterHandler) Handle(event domain.Event) error {
	data, err := h.encoder.Encode(event)
	if err != nil {
		return errors.NewEventDispatchError(err)
	}
	if _, err := h.writer.Write(data); err != nil {
		return errors.NewEventDispatchError(err)
	}
	return nil
}

// Close flushes and closes the underlying sink. The dispatcher calls it
// when the run shuts down.
func (h *WriterHandler) Close() error {
	return h.writer.Close()
}
