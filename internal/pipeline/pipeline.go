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

// Package pipeline chains the sanitization stages over one capture file.
// Stages run in a fixed order (dedup, anonymize, mask), each reading its
// predecessor's output and writing a sibling temp file; the survivor is
// renamed to the final destination. The input capture is never modified.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/seclens/capscrub/internal/config"
	"github.com/seclens/capscrub/internal/domain"
	"github.com/seclens/capscrub/internal/errors"
	"github.com/seclens/capscrub/internal/events"
	"github.com/seclens/capscrub/internal/factory"
	"github.com/seclens/capscrub/internal/logger"
)

// Report is the machine-readable record of one run.
type Report struct {
	RunID      string               `json:"run_id"`
	Capture    string               `json:"capture"`
	Output     string               `json:"output,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Outcome    string               `json:"outcome"`
	Stages     []domain.StageReport `json:"stages"`
	Error      string               `json:"error,omitempty"`
}

const (
	// OutcomeOK marks a run whose every stage completed.
	OutcomeOK = "ok"
	// OutcomeFailed marks a run aborted by a stage error. No output file
	// exists for a failed run.
	OutcomeFailed = "failed"
)

// Pipeline executes a profile against capture files.
type Pipeline struct {
	profile    *config.Profile
	dispatcher domain.EventDispatcher
	log        *logger.Logger
}

// New creates a Pipeline. The dispatcher may be nil when nothing consumes
// progress events.
func New(profile *config.Profile, dispatcher domain.EventDispatcher, log *logger.Logger) *Pipeline {
	return &Pipeline{
		profile:    profile,
		dispatcher: dispatcher,
		log:        log.WithComponent("pipeline"),
	}
}

// Run processes one capture. The returned report is non-nil even when the
// run fails, so callers can persist what happened.
func (p *Pipeline) Run(ctx context.Context, capturePath string) (*Report, error) {
	runID := uuid.NewString()
	log := p.log.WithRun(runID).WithCapture(capturePath)

	report := &Report{
		RunID:     runID,
		Capture:   capturePath,
		StartedAt: time.Now(),
		Outcome:   OutcomeFailed,
	}

	outPath := p.profile.Output.Path(capturePath)
	if outPath == capturePath {
		err := errors.New(errors.ErrCodeConfig, "output path equals the input capture").
			WithContext("capture", capturePath)
		report.FinishedAt = time.Now()
		report.Error = err.Error()
		return report, err
	}

	stages, err := p.buildStages(log)
	if err == nil && len(stages) == 0 {
		err = errors.New(errors.ErrCodeConfig, "profile enables no stages")
	}
	if err != nil {
		report.FinishedAt = time.Now()
		report.Error = err.Error()
		return report, err
	}

	p.emit(log, events.NewStageEvent(runID, domain.EventTypeRunStarted, "").WithCapture(capturePath))

	cur := capturePath
	for _, st := range stages {
		next := fmt.Sprintf("%s.%s.tmp", outPath, st.Name())

		p.emit(log, events.NewStageEvent(runID, domain.EventTypeStageStarted, st.Name()).WithCapture(cur))
		began := time.Now()
		rep, err := st.Run(ctx, cur, next)
		rep.Millis = time.Since(began).Milliseconds()

		if cur != capturePath {
			// The predecessor's intermediate is consumed.
			_ = os.Remove(cur)
		}

		if err != nil {
			if errors.Code(err) == errors.ErrCodeUnknown {
				err = errors.NewStageError(st.Name(), err)
			}
			rep.Failure = err.Error()
			report.Stages = append(report.Stages, rep)
			report.FinishedAt = time.Now()
			report.Error = err.Error()
			_ = os.Remove(next)
			p.emit(log, events.NewStageEvent(runID, domain.EventTypeStageFailed, st.Name()).WithError(err))
			p.emit(log, events.NewStageEvent(runID, domain.EventTypeRunFinished, "").WithError(err))
			log.Error().Err(err).Str("stage", st.Name()).Msg("run aborted")
			return report, err
		}

		report.Stages = append(report.Stages, rep)
		p.emit(log, events.NewStageEvent(runID, domain.EventTypeStageFinished, st.Name()))
		cur = next
	}

	if err := os.Rename(cur, outPath); err != nil {
		err = errors.NewStageError("finalize", err)
		_ = os.Remove(cur)
		report.FinishedAt = time.Now()
		report.Error = err.Error()
		p.emit(log, events.NewStageEvent(runID, domain.EventTypeRunFinished, "").WithError(err))
		return report, err
	}

	report.Output = outPath
	report.Outcome = OutcomeOK
	report.FinishedAt = time.Now()
	p.emit(log, events.NewStageEvent(runID, domain.EventTypeRunFinished, "").WithCapture(outPath))
	log.Info().
		Str("output", outPath).
		Int("stages", len(report.Stages)).
		Msg("run finished")
	return report, nil
}

// buildStages assembles the enabled stages in pipeline order. The factory
// registry supplies the constructors; this list supplies the order.
func (p *Pipeline) buildStages(log *logger.Logger) ([]domain.Stage, error) {
	ordered := []struct {
		typ     factory.StageType
		enabled bool
	}{
		{factory.StageTypeDedup, p.profile.Dedup != nil},
		{factory.StageTypeAnonymize, p.profile.Anonymize != nil},
		{factory.StageTypeMask, p.profile.Mask != nil},
	}

	var stages []domain.Stage
	for _, entry := range ordered {
		if !entry.enabled {
			continue
		}
		stage, err := factory.CreateStage(entry.typ, p.profile, log)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

// emit sends a progress event. Delivery problems never affect the run.
func (p *Pipeline) emit(log *logger.Logger, ev *events.StageEvent) {
	if p.dispatcher == nil {
		return
	}
	if err := p.dispatcher.Dispatch(ev); err != nil {
		log.Debug().Err(err).Msg("progress event dropped")
	}
}
