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
	"github.com/spf13/cobra"

	"github.com/seclens/capscrub/internal/builder"
	"github.com/seclens/capscrub/internal/pipeline"
)

var maskFlags = struct {
	outputDir     string
	suffix        string
	maskTypes     []string
	preserveTypes []string
	decodePorts   []uint
	annotate      bool
	comment       string
	report        string
}{}

// maskCmd scans and masks captures in one step.
var maskCmd = &cobra.Command{
	Use:   "mask <capture>...",
	Short: "scan and mask captures in one step",
	Long: `mask runs the full sequence per capture: dissector scan, rule
derivation, payload zeroing with checksum repair, and optional frame
annotation. The input file is never modified; the sanitized copy lands
next to it (or in --output-dir) with the configured suffix.
`,
	Args: cobra.MinimumNArgs(1),
	RunE: maskCommandFunc,
}

func init() {
	maskCmd.Flags().StringVar(&maskFlags.outputDir, "output-dir", "", "directory for sanitized captures (default: next to each input)")
	maskCmd.Flags().StringVar(&maskFlags.suffix, "suffix", "-scrubbed", "suffix spliced into output file names")
	addPolicyFlags(maskCmd.Flags(), &maskFlags.maskTypes, &maskFlags.preserveTypes, &maskFlags.decodePorts)
	maskCmd.Flags().BoolVar(&maskFlags.annotate, "annotate", false, "annotate masked frames with an editcap comment")
	maskCmd.Flags().StringVar(&maskFlags.comment, "comment", "", "frame annotation text")
	maskCmd.Flags().StringVar(&maskFlags.report, "report", "", "write per-capture run reports to this destination as JSON lines")
	rootCmd.AddCommand(maskCmd)
}

// maskCommandFunc executes the "mask" command.
func maskCommandFunc(command *cobra.Command, args []string) error {
	log := newLogger()
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := buildMaskConfig(maskFlags.maskTypes, maskFlags.preserveTypes, maskFlags.decodePorts, maskFlags.annotate, maskFlags.comment)
	if err != nil {
		return err
	}

	profile, err := builder.NewProfileBuilder().
		WithOutputDir(maskFlags.outputDir).
		WithOutputSuffix(maskFlags.suffix).
		WithMask(cfg).
		Build()
	if err != nil {
		return err
	}

	disp, err := newEventDispatcher(log, "")
	if err != nil {
		return err
	}
	defer func() { _ = disp.Close() }()

	pl := pipeline.New(profile, disp, log)
	return runCaptures(ctx, pl, args, maskFlags.report, nil, log)
}
