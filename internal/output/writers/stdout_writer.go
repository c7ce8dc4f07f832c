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
	"os"
)

// StdoutWriter writes output to standard output.
type StdoutWriter struct{}

// NewStdoutWriter creates a new stdout writer.
func NewStdoutWriter() *StdoutWriter {
	return &StdoutWriter{}
}

// Write writes data to stdout.
func (w *StdoutWriter) Write(p []byte) (n int, err error) {
	return os.Stdout.Write(p)
}

// Close is a no-op; stdout stays open for the process.
func (w *StdoutWriter) Close() error {
	return nil
}

// Name returns the writer name.
func (w *StdoutWriter) Name() string {
	return "stdout"
}

// Flush is a no-op for stdout (unbuffered).
func (w *StdoutWriter) Flush() error {
	return nil
}
