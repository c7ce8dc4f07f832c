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

package pipeline

import (
	"context"

	"github.com/seclens/capscrub/internal/annotate"
	"github.com/seclens/capscrub/internal/anonymize"
	"github.com/seclens/capscrub/internal/config"
	"github.com/seclens/capscrub/internal/dedup"
	"github.com/seclens/capscrub/internal/dissect"
	"github.com/seclens/capscrub/internal/domain"
	"github.com/seclens/capscrub/internal/factory"
	"github.com/seclens/capscrub/internal/logger"
	"github.com/seclens/capscrub/internal/marker"
	"github.com/seclens/capscrub/internal/masker"
)

// The registry holds the constructors; buildStages fixes the order.
func init() {
	register := func(typ factory.StageType, ctor factory.StageConstructor) {
		if err := factory.RegisterStage(typ, ctor); err != nil {
			panic(err)
		}
	}
	register(factory.StageTypeDedup, func(p *config.Profile, log *logger.Logger) (domain.Stage, error) {
		return &dedupStage{cfg: p.Dedup, log: log}, nil
	})
	register(factory.StageTypeAnonymize, func(p *config.Profile, log *logger.Logger) (domain.Stage, error) {
		return &anonymizeStage{cfg: p.Anonymize, log: log}, nil
	})
	register(factory.StageTypeMask, func(p *config.Profile, log *logger.Logger) (domain.Stage, error) {
		return &maskStage{cfg: p.Mask, log: log}, nil
	})
}

// dedupStage drops repeated frames before any other stage sees them.
type dedupStage struct {
	cfg *config.DedupConfig
	log *logger.Logger
}

func (s *dedupStage) Name() string { return "dedup" }

func (s *dedupStage) Run(ctx context.Context, inPath, outPath string) (domain.StageReport, error) {
	stats, err := dedup.New(s.cfg.Window, s.log).Process(ctx, inPath, outPath)
	return domain.StageReport{Stage: s.Name(), Stats: stats}, err
}

// anonymizeStage rewrites addresses before masking so the rule scan and the
// report never see real endpoints either.
type anonymizeStage struct {
	cfg *config.AnonymizeConfig
	log *logger.Logger
}

func (s *anonymizeStage) Name() string { return "anonymize" }

func (s *anonymizeStage) Run(ctx context.Context, inPath, outPath string) (domain.StageReport, error) {
	stats, err := anonymize.New(s.cfg, s.log).Process(ctx, inPath, outPath)
	return domain.StageReport{Stage: s.Name(), Stats: stats}, err
}

// MaskStats aggregates the scan and apply halves of the mask stage.
type MaskStats struct {
	Scan      *marker.Stats `json:"scan"`
	Rules     int           `json:"rules"`
	Apply     *masker.Stats `json:"apply"`
	Annotated bool          `json:"annotated,omitempty"`
}

// maskStage runs the full payload masking sequence: dissector scan, rule
// derivation, in-place byte rewrite, then best-effort annotation of the
// masked frames.
type maskStage struct {
	cfg *config.MaskConfig
	log *logger.Logger
}

func (s *maskStage) Name() string { return "mask" }

func (s *maskStage) Run(ctx context.Context, inPath, outPath string) (domain.StageReport, error) {
	rep := domain.StageReport{Stage: s.Name()}

	runner := dissect.NewRunner(s.cfg.TsharkPath, s.cfg.Timeout(), s.cfg.DecodePorts, s.log)
	if err := runner.CheckTool(ctx); err != nil {
		return rep, err
	}

	rs, scanStats, err := marker.New(runner, s.cfg, s.log).Analyze(ctx, inPath)
	if err != nil {
		rep.Stats = &MaskStats{Scan: scanStats}
		return rep, err
	}

	stats := &MaskStats{Scan: scanStats, Rules: rs.Len()}
	rep.Stats = stats

	applyStats, err := masker.New(rs, s.log).Apply(ctx, inPath, outPath)
	if err != nil {
		return rep, err
	}
	stats.Apply = applyStats

	if s.cfg.Annotate && len(applyStats.FramesMasked) > 0 {
		ann := annotate.New(s.cfg.EditcapPath, s.cfg.Timeout(), s.log)
		stats.Annotated = ann.Annotate(ctx, outPath, applyStats.FramesMasked, s.cfg.Comment)
	}

	return rep, nil
}
