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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/seclens/capscrub/internal/config"
	"github.com/seclens/capscrub/internal/logger"
	"github.com/seclens/capscrub/internal/rules"
)

// GlobalFlags are flags that defined globally
// and are inherited to all sub-commands.
type GlobalFlags struct {
	Debug   bool
	LogFile string // structured JSON log sink
	Tshark  string // tshark binary override
	Editcap string // editcap binary override
	Timeout int    // external tool timeout, seconds
}

var globalFlags GlobalFlags

// Log rotation for --log-file.
const (
	logMaxSizeMB  = 50
	logMaxBackups = 3
	logMaxAgeDays = 30
)

// newLogger builds the process logger from the global flags. Console
// output goes to stderr so stdout stays clean for emitted documents.
func newLogger() *logger.Logger {
	if globalFlags.LogFile != "" {
		return logger.NewWithFile(os.Stderr, globalFlags.Debug, logger.FileConfig{
			Path:       globalFlags.LogFile,
			MaxSizeMB:  logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAgeDays: logMaxAgeDays,
			Compress:   true,
		})
	}
	return logger.New(os.Stderr, globalFlags.Debug)
}

// signalContext returns a context canceled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	stopper := make(chan os.Signal, 1)
	signal.Notify(stopper, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stopper
		cancel()
	}()
	return ctx, cancel
}

// addPolicyFlags registers the masking policy flags shared by the scan
// and mask commands.
func addPolicyFlags(fs *pflag.FlagSet, maskTypes, preserveTypes *[]string, decodePorts *[]uint) {
	fs.StringSliceVar(maskTypes, "mask", nil, "content types to mask, replacing the default application_data")
	fs.StringSliceVar(preserveTypes, "preserve", nil, "content types to force-preserve")
	fs.UintSliceVar(decodePorts, "decode-port", nil, "extra TCP ports to dissect as TLS")
}

// applyGlobalOverrides folds the global tool flags into a mask section.
func applyGlobalOverrides(cfg *config.MaskConfig) {
	if globalFlags.Tshark != "" {
		cfg.TsharkPath = globalFlags.Tshark
	}
	if globalFlags.Editcap != "" {
		cfg.EditcapPath = globalFlags.Editcap
	}
	if globalFlags.Timeout > 0 {
		cfg.TimeoutSeconds = globalFlags.Timeout
	}
}

// buildMaskConfig assembles a mask section from command flags: the masked
// type list replaces the default policy, force-preserved types override
// either, and decode ports widen the dissection.
func buildMaskConfig(maskTypes, preserveTypes []string, decodePorts []uint, annotate bool, comment string) (*config.MaskConfig, error) {
	cfg := config.NewMaskConfig()
	applyGlobalOverrides(cfg)

	if len(maskTypes) > 0 {
		p, err := config.PolicyFromMaskNames(maskTypes)
		if err != nil {
			return nil, err
		}
		cfg.Policy = p
	}
	for _, name := range preserveTypes {
		ct, err := rules.ParseContentType(name)
		if err != nil {
			return nil, err
		}
		cfg.Policy.Set(ct, config.DispositionPreserve)
	}

	for _, port := range decodePorts {
		if port == 0 || port > 65535 {
			return nil, fmt.Errorf("decode port %d out of range", port)
		}
		cfg.DecodePorts = append(cfg.DecodePorts, uint16(port))
	}

	cfg.Annotate = annotate
	cfg.Comment = comment

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
