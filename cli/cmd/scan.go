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
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/seclens/capscrub/internal/dissect"
	"github.com/seclens/capscrub/internal/marker"
	"github.com/seclens/capscrub/internal/output/writers"
)

var scanFlags = struct {
	output        string
	maskTypes     []string
	preserveTypes []string
	decodePorts   []uint
}{}

// scanCmd derives masking rules from a capture without modifying it.
var scanCmd = &cobra.Command{
	Use:   "scan <capture>",
	Short: "derive masking rules from a capture, leaving the capture untouched",
	Long: `scan runs the dissector over the capture, classifies every TLS record,
and emits the resulting rule set as JSON. Nothing is rewritten; the dump
is the diagnostic view of what a mask run would do, and feeds apply.
`,
	Args: cobra.ExactArgs(1),
	RunE: scanCommandFunc,
}

func init() {
	scanCmd.Flags().StringVarP(&scanFlags.output, "output", "o", "", "rule set destination: stdout, file path, tcp:// or ws:// address")
	addPolicyFlags(scanCmd.Flags(), &scanFlags.maskTypes, &scanFlags.preserveTypes, &scanFlags.decodePorts)
	rootCmd.AddCommand(scanCmd)
}

// scanCommandFunc executes the "scan" command.
func scanCommandFunc(command *cobra.Command, args []string) error {
	log := newLogger()
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := buildMaskConfig(scanFlags.maskTypes, scanFlags.preserveTypes, scanFlags.decodePorts, false, "")
	if err != nil {
		return err
	}

	runner := dissect.NewRunner(cfg.TsharkPath, cfg.Timeout(), cfg.DecodePorts, log)
	if err := runner.CheckTool(ctx); err != nil {
		return err
	}

	rs, stats, err := marker.New(runner, cfg, log).Analyze(ctx, args[0])
	if err != nil {
		return err
	}

	doc, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return err
	}
	doc = append(doc, '\n')

	w, err := writers.NewWriterFactory().CreateWriter(scanFlags.output, &writers.FileConfig{Truncate: true})
	if err != nil {
		return err
	}
	if _, err := w.Write(doc); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	log.Info().
		Int("rules", rs.Len()).
		Int("frames", stats.FramesScanned).
		Int("records", stats.RecordsObserved).
		Str("destination", w.Name()).
		Msg("rule set written")
	return nil
}
