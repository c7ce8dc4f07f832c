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

package cmd

import (
	"fmt"

	"github.com/seclens/capscrub/internal/events"
	"github.com/seclens/capscrub/internal/logger"
	"github.com/seclens/capscrub/internal/output/encoders"
	"github.com/seclens/capscrub/internal/output/writers"
)

// newEventDispatcher assembles the progress event fan-out for a run:
// always a structured-log handler, plus a JSON line stream to progressOut
// when set (stdout, file path, tcp:// or ws:// address).
func newEventDispatcher(log *logger.Logger, progressOut string) (*events.Dispatcher, error) {
	dispatcher := events.NewDispatcher(log)

	if err := dispatcher.Register(events.NewLogHandler(log)); err != nil {
		return nil, fmt.Errorf("failed to register log handler: %w", err)
	}

	if progressOut != "" {
		w, err := writers.NewWriterFactory().CreateWriter(progressOut, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open progress destination: %w", err)
		}
		handler := events.NewWriterHandler(encoders.NewJsonEncoder(false), w)
		if err := dispatcher.Register(handler); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("failed to register progress handler: %w", err)
		}
	}

	return dispatcher, nil
}
