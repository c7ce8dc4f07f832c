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
	"os"

	"github.com/spf13/cobra"
)

const (
	cliName        = "capscrub"
	cliDescription = "strip sensitive TLS payloads out of packet captures."
)

var (
	// GitVersion is stamped by the build via -ldflags.
	GitVersion = "v0.0.0_unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:        cliName,
	Short:      cliDescription,
	SuggestFor: []string{"capscrub"},
	Version:    GitVersion,

	Long: `capscrub removes recorded TLS payload bytes from capture files while
keeping what troubleshooting needs: frame numbering, sizes, timestamps,
TCP/IP headers, handshake metadata and record boundaries all survive.
Payload bytes of masked record types are zeroed and checksums repaired,
so the sanitized file still loads cleanly in analysis tools.
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.EnablePrefixMatching = true
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Debug, "debug", "d", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFile, "log-file", "", "also write structured JSON logs to this size-rotated file")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Tshark, "tshark", "", "tshark binary (default $CAPSCRUB_TSHARK, else PATH lookup)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Editcap, "editcap", "", "editcap binary (default $CAPSCRUB_EDITCAP, else PATH lookup)")
	rootCmd.PersistentFlags().IntVar(&globalFlags.Timeout, "timeout", 0, "external tool timeout in seconds (default 300)")
}
