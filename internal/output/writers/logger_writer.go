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

package writers

import (
	"strings"

	"github.com/seclens/capscrub/internal/logger"
)

// LoggerWriter routes writes into the structured logger. The HTTP status
// server uses it so gin's own output lands in the shared log stream.
type LoggerWriter struct {
	logger *logger.Logger
}

// NewLoggerWriter creates a new logger-backed writer.
func NewLoggerWriter(logger *logger.Logger) *LoggerWriter {
	return &LoggerWriter{
		logger: logger,
	}
}

// Write logs data as one info line.
func (w *LoggerWriter) Write(p []byte) (n int, err error) {
	w.logger.Info().Msg(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// Close is a no-op for the logger sink.
func (w *LoggerWriter) Close() error {
	return nil
}

// Name returns the writer name.
func (w *LoggerWriter) Name() string {
	return "logger"
}

// Flush is a no-op for the logger sink (unbuffered).
func (w *LoggerWriter) Flush() error {
	return nil
}
