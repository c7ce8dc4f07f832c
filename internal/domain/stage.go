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

import "context"

// Stage is one step of a capture processing pipeline. A stage reads the
// capture at inPath and writes its transformed version to outPath. It must
// not modify inPath.
type Stage interface {
	// Name returns the stage's identifier as it appears in reports.
	Name() string

	// Run executes the stage against one capture file.
	Run(ctx context.Context, inPath, outPath string) (StageReport, error)
}

// StageReport carries one stage's outcome into the run report. Stats holds
// the stage's own counters and serializes into the report as-is.
type StageReport struct {
	Stage   string `json:"stage"`
	Millis  int64  `json:"millis"`
	Stats   any    `json:"stats,omitempty"`
	Failure string `json:"failure,omitempty"`
}
