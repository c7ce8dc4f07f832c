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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seclens/capscrub/internal/annotate"
	"github.com/seclens/capscrub/internal/config"
	"github.com/seclens/capscrub/internal/masker"
	"github.com/seclens/capscrub/internal/rules"
)

var applyFlags = struct {
	rulesPath string
	output    string
	annotate  bool
	comment   string
}{}

// applyCmd masks a capture using a previously derived rule set.
var applyCmd = &cobra.Command{
	Use:   "apply <capture>",
	Short: "mask a capture using a rule set produced by scan",
	Long: `apply replays a scan's rule set against a capture: the selected payload
bytes are zeroed, checksums repaired, and everything else copied through
bit for bit. Splitting scan from apply lets the rule set be reviewed, or
the same rules be replayed onto a fresh copy of the capture.
`,
	Args: cobra.ExactArgs(1),
	RunE: applyCommandFunc,
}

func init() {
	applyCmd.Flags().StringVarP(&applyFlags.rulesPath, "rules", "r", "", "rule set JSON file from scan (required)")
	applyCmd.Flags().StringVarP(&applyFlags.output, "output", "o", "", "masked capture path (default: input name plus -scrubbed)")
	applyCmd.Flags().BoolVar(&applyFlags.annotate, "annotate", false, "annotate masked frames with an editcap comment")
	applyCmd.Flags().StringVar(&applyFlags.comment, "comment", "", "frame annotation text")
	_ = applyCmd.MarkFlagRequired("rules")
	rootCmd.AddCommand(applyCmd)
}

// applyCommandFunc executes the "apply" command.
func applyCommandFunc(command *cobra.Command, args []string) error {
	log := newLogger()
	ctx, cancel := signalContext()
	defer cancel()

	data, err := os.ReadFile(applyFlags.rulesPath)
	if err != nil {
		return err
	}
	var rs rules.RuleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return fmt.Errorf("rule set did not parse: %w", err)
	}

	capturePath := args[0]
	outPath := applyFlags.output
	if outPath == "" {
		outPath = config.OutputConfig{Suffix: "-scrubbed"}.Path(capturePath)
	}
	if outPath == capturePath {
		return fmt.Errorf("output path equals the input capture")
	}

	stats, err := masker.New(&rs, log).Apply(ctx, capturePath, outPath)
	if err != nil {
		return err
	}

	annotated := false
	if applyFlags.annotate && len(stats.FramesMasked) > 0 {
		cfg := config.NewMaskConfig()
		applyGlobalOverrides(cfg)
		ann := annotate.New(cfg.EditcapPath, cfg.Timeout(), log)
		annotated = ann.Annotate(ctx, outPath, stats.FramesMasked, applyFlags.comment)
	}

	log.Info().
		Str("output", outPath).
		Uint64("packets", stats.PacketsTotal).
		Uint64("masked", stats.PacketsMasked).
		Uint64("bytes", stats.BytesMasked).
		Bool("annotated", annotated).
		Msg("capture masked")
	return nil
}
