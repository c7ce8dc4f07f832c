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
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/seclens/capscrub/cli/http"
	"github.com/seclens/capscrub/internal/config"
	"github.com/seclens/capscrub/internal/logger"
	"github.com/seclens/capscrub/internal/output/writers"
	"github.com/seclens/capscrub/internal/pipeline"
)

var runFlags = struct {
	profilePath string
	listen      string
	progressOut string
	report      string
}{}

// runCmd drives the full profile pipeline over captures.
var runCmd = &cobra.Command{
	Use:   "run <capture>...",
	Short: "run a profile-driven sanitization pipeline over captures",
	Long: `run loads a pipeline profile (JSON, YAML or TOML) and executes its
stages over every named capture: duplicate removal, address
anonymization and payload masking, in that order, for whichever stages
the profile enables. Progress can stream to a collector and a status
API can expose the live run state.
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommandFunc,
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.profilePath, "profile", "P", "", "pipeline profile file (required)")
	runCmd.Flags().StringVar(&runFlags.listen, "listen", "", "serve the status API on this address (overrides the profile)")
	runCmd.Flags().StringVar(&runFlags.progressOut, "progress-out", "", "stream progress events as JSON lines: file path, tcp:// or ws:// address")
	runCmd.Flags().StringVar(&runFlags.report, "report", "", "write per-capture run reports to this destination as JSON lines")
	_ = runCmd.MarkFlagRequired("profile")
	rootCmd.AddCommand(runCmd)
}

// runCommandFunc executes the "run" command.
func runCommandFunc(command *cobra.Command, args []string) error {
	log := newLogger()
	ctx, cancel := signalContext()
	defer cancel()

	profile, err := config.LoadProfile(runFlags.profilePath)
	if err != nil {
		return err
	}
	if profile.Mask != nil {
		applyGlobalOverrides(profile.Mask)
	}

	disp, err := newEventDispatcher(log, runFlags.progressOut)
	if err != nil {
		return err
	}
	defer func() { _ = disp.Close() }()

	listen := runFlags.listen
	if listen == "" {
		listen = profile.Listen
	}

	var onReport func(*pipeline.Report)
	if listen != "" {
		srv := http.NewServer(listen, GitVersion, log)
		if err := disp.Register(srv.Tracker()); err != nil {
			return err
		}
		go func() {
			if serveErr := srv.Run(); serveErr != nil {
				log.Error().Err(serveErr).Str("listen", listen).Msg("status server stopped")
			}
		}()
		onReport = srv.SetReport
		log.Info().Str("listen", listen).Msg("status server started")
	}

	pl := pipeline.New(profile, disp, log)
	err = runCaptures(ctx, pl, args, runFlags.report, onReport, log)

	if listen != "" && ctx.Err() == nil {
		log.Info().Str("listen", listen).Msg("batch finished, status server serving until interrupted")
		<-ctx.Done()
	}
	return err
}

// runCaptures executes the pipeline per capture, streaming one JSON report
// line per run to reportOut when set. A capture failure is recorded and
// the batch continues; the first failure decides the exit status.
func runCaptures(ctx context.Context, pl *pipeline.Pipeline, captures []string, reportOut string, onReport func(*pipeline.Report), log *logger.Logger) error {
	var reportW writers.OutputWriter
	if reportOut != "" {
		var err error
		reportW, err = writers.NewWriterFactory().CreateWriter(reportOut, &writers.FileConfig{Truncate: true})
		if err != nil {
			return err
		}
		defer func() { _ = reportW.Close() }()
	}

	var firstErr error
	done := 0
	for _, capturePath := range captures {
		if ctx.Err() != nil {
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			break
		}

		rep, err := pl.Run(ctx, capturePath)
		if rep != nil {
			if onReport != nil {
				onReport(rep)
			}
			if reportW != nil {
				if line, merr := json.Marshal(rep); merr == nil {
					if _, werr := reportW.Write(append(line, '\n')); werr != nil {
						log.Warn().Err(werr).Msg("report line not written")
					}
				}
			}
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		done++
	}

	log.Info().
		Int("captures", len(captures)).
		Int("succeeded", done).
		Msg("batch finished")
	return firstErr
}
