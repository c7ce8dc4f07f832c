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

package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zerolog.Logger to provide a consistent logging interface.
type Logger struct {
	*zerolog.Logger
}

// FileConfig controls the optional rotated JSON log file sink.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New creates a new Logger instance writing human-readable output to out.
func New(out io.Writer, debug bool) *Logger {
	if out == nil {
		out = os.Stdout
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}

	zlog := zerolog.New(consoleWriter).
		Level(levelFor(debug)).
		With().
		Timestamp().
		Logger()

	return &Logger{&zlog}
}

// NewWithFile creates a Logger that writes human-readable output to out and
// structured JSON lines to a size-rotated file.
func NewWithFile(out io.Writer, debug bool, fc FileConfig) *Logger {
	if out == nil {
		out = os.Stdout
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}

	rotator := &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.MaxSizeMB,
		MaxBackups: fc.MaxBackups,
		MaxAge:     fc.MaxAgeDays,
		Compress:   fc.Compress,
	}

	zlog := zerolog.New(zerolog.MultiLevelWriter(consoleWriter, rotator)).
		Level(levelFor(debug)).
		With().
		Timestamp().
		Logger()

	return &Logger{&zlog}
}

func levelFor(debug bool) zerolog.Level {
	if debug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// WithComponent creates a child logger with a component field.
func (l *Logger) WithComponent(component string) *Logger {
	child := l.Logger.With().Str("component", component).Logger()
	return &Logger{&child}
}

// WithCapture creates a child logger with a capture file field.
func (l *Logger) WithCapture(path string) *Logger {
	child := l.Logger.With().Str("capture", path).Logger()
	return &Logger{&child}
}

// WithStream creates a child logger with a stream field.
func (l *Logger) WithStream(stream uint64) *Logger {
	child := l.Logger.With().Uint64("stream", stream).Logger()
	return &Logger{&child}
}

// WithRun creates a child logger with a run identifier field.
func (l *Logger) WithRun(runID string) *Logger {
	child := l.Logger.With().Str("run_id", runID).Logger()
	return &Logger{&child}
}
