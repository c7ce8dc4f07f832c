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

package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode defines standardized error codes for capscrub.
type ErrorCode int

const (
	// ErrCodeUnknown represents an unknown error.
	ErrCodeUnknown ErrorCode = iota

	// Configuration errors (1xx)
	ErrCodeConfig           ErrorCode = 101
	ErrCodeConfigValidation ErrorCode = 102
	ErrCodeConfigProfile    ErrorCode = 103

	// Dissection tool errors (2xx)
	ErrCodeDissectorMissing ErrorCode = 201
	ErrCodeDissectorVersion ErrorCode = 202
	ErrCodeDissectorTimeout ErrorCode = 203
	ErrCodeDissectorExec    ErrorCode = 204
	ErrCodeDissectorOutput  ErrorCode = 205

	// Marker errors (3xx)
	ErrCodeMarkerFrame     ErrorCode = 301
	ErrCodeMarkerStream    ErrorCode = 302
	ErrCodeMarkerEscalated ErrorCode = 303

	// Masker errors (4xx)
	ErrCodeMaskerPacket  ErrorCode = 401
	ErrCodeMaskerCapture ErrorCode = 402

	// Protocol binding errors (5xx)
	ErrCodeBindingSuspend ErrorCode = 501
	ErrCodeBindingRestore ErrorCode = 502

	// Annotation errors (6xx)
	ErrCodeAnnotate ErrorCode = 601

	// Pipeline errors (7xx)
	ErrCodePipelineStage ErrorCode = 701
	ErrCodeEventDispatch ErrorCode = 702
)

// Error represents a structured error in capscrub.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds contextual information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// Code extracts the ErrorCode from err. It returns ErrCodeUnknown when err
// is nil or carries no *Error in its chain.
func Code(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeUnknown
}

// NewConfigError creates a configuration error.
func NewConfigError(message string, cause error) *Error {
	return Wrap(ErrCodeConfig, message, cause)
}

// NewConfigValidationError creates a configuration validation error.
func NewConfigValidationError(field, reason string) *Error {
	return New(ErrCodeConfigValidation, fmt.Sprintf("invalid configuration: %s %s", field, reason))
}

// NewDissectorMissingError creates an error for an absent dissection tool.
func NewDissectorMissingError(tool string, cause error) *Error {
	return Wrap(ErrCodeDissectorMissing, fmt.Sprintf("dissection tool '%s' not found", tool), cause)
}

// NewDissectorVersionError creates an error for a dissection tool below the
// minimum supported version.
func NewDissectorVersionError(tool, found, minimum string) *Error {
	return New(ErrCodeDissectorVersion,
		fmt.Sprintf("dissection tool '%s' version %s is below minimum %s", tool, found, minimum))
}

// NewDissectorTimeoutError creates an error for a dissector invocation that
// exceeded its deadline.
func NewDissectorTimeoutError(op string, cause error) *Error {
	return Wrap(ErrCodeDissectorTimeout, fmt.Sprintf("dissector %s timed out", op), cause)
}

// NewDissectorExecError creates an error for a failed dissector invocation.
func NewDissectorExecError(op string, cause error) *Error {
	return Wrap(ErrCodeDissectorExec, fmt.Sprintf("dissector %s failed", op), cause)
}

// NewDissectorOutputError creates an error for dissector output that could
// not be parsed.
func NewDissectorOutputError(detail string) *Error {
	return New(ErrCodeDissectorOutput, fmt.Sprintf("unparsable dissector output: %s", detail))
}

// NewMarkerFrameError creates a recoverable per-frame marker error.
func NewMarkerFrameError(frame uint64, cause error) *Error {
	return Wrap(ErrCodeMarkerFrame, fmt.Sprintf("frame %d could not be classified", frame), cause)
}

// NewMarkerEscalatedError creates the fatal form of pervasive per-frame
// marker failures.
func NewMarkerEscalatedError(failed, scanned int) *Error {
	return New(ErrCodeMarkerEscalated,
		fmt.Sprintf("marker failed on %d of %d frames, output no longer trustworthy", failed, scanned))
}

// NewMaskerPacketError creates a recoverable per-packet masker error.
func NewMaskerPacketError(frame uint64, cause error) *Error {
	return Wrap(ErrCodeMaskerPacket, fmt.Sprintf("packet %d passed through unmasked", frame), cause)
}

// NewMaskerCaptureError creates a capture-level masker error.
func NewMaskerCaptureError(path string, cause error) *Error {
	return Wrap(ErrCodeMaskerCapture, fmt.Sprintf("capture '%s' could not be processed", path), cause)
}

// NewBindingRestoreError creates a binding restore error.
func NewBindingRestoreError(cause error) *Error {
	return Wrap(ErrCodeBindingRestore, "protocol binding table not restored", cause)
}

// NewAnnotateError creates a frame annotation error.
func NewAnnotateError(cause error) *Error {
	return Wrap(ErrCodeAnnotate, "frame annotation failed", cause)
}

// NewStageError creates a pipeline stage error.
func NewStageError(stage string, cause error) *Error {
	return Wrap(ErrCodePipelineStage, fmt.Sprintf("stage '%s' failed", stage), cause)
}

// NewEventDispatchError creates an event dispatch error.
func NewEventDispatchError(cause error) *Error {
	return Wrap(ErrCodeEventDispatch, "failed to dispatch event", cause)
}
