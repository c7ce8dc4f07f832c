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

// Package annotate stamps per-frame comments onto rewritten captures via
// editcap. Annotation is strictly best effort: any failure downgrades to
// a log line and the capture stays as the masker left it.
package annotate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/seclens/capscrub/internal/errors"
	"github.com/seclens/capscrub/internal/logger"
)

// DefaultComment is stamped when the profile does not set one.
const DefaultComment = "payload removed by capscrub"

// batchSize bounds the argument list of one editcap invocation.
const batchSize = 512

// Annotator drives editcap.
type Annotator struct {
	editcapPath string
	timeout     time.Duration
	log         *logger.Logger
}

// New creates an Annotator.
func New(editcapPath string, timeout time.Duration, log *logger.Logger) *Annotator {
	return &Annotator{
		editcapPath: editcapPath,
		timeout:     timeout,
		log:         log.WithComponent("annotate"),
	}
}

// Annotate adds comment to the given frames of capturePath, rewriting
// the file in place through a sibling temp file. Returns whether every
// frame was annotated.
func (a *Annotator) Annotate(ctx context.Context, capturePath string, frames []uint64, comment string) bool {
	if len(frames) == 0 {
		return true
	}
	if comment == "" {
		comment = DefaultComment
	}

	for start := 0; start < len(frames); start += batchSize {
		end := start + batchSize
		if end > len(frames) {
			end = len(frames)
		}
		if !a.runBatch(ctx, capturePath, frames[start:end], comment) {
			return false
		}
	}
	a.log.Info().Int("frames", len(frames)).Str("capture", capturePath).Msg("frames annotated")
	return true
}

func (a *Annotator) runBatch(ctx context.Context, capturePath string, frames []uint64, comment string) bool {
	tmp := capturePath + ".annotating"

	args := make([]string, 0, len(frames)*2+2)
	for _, f := range frames {
		args = append(args, "-a", fmt.Sprintf("%d:%s", f, comment))
	}
	args = append(args, capturePath, tmp)

	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, a.editcapPath, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(tmp)
		werr := errors.NewAnnotateError(err).WithContext("stderr", stderr.String())
		a.log.Warn().Err(werr).Str("capture", capturePath).Msg("editcap failed, capture left unannotated")
		return false
	}
	if err := os.Rename(tmp, capturePath); err != nil {
		os.Remove(tmp)
		a.log.Warn().Err(errors.NewAnnotateError(err)).Str("capture", capturePath).
			Msg("annotated capture could not replace the original")
		return false
	}
	return true
}
