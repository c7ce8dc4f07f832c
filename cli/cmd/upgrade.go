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
	"errors"
	"fmt"
	"regexp"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/seclens/capscrub/pkg/upgrade"
)

const urlReleases = "https://api.github.com/repos/seclens"
const apiReleases string = "/capscrub/releases/latest"

var (
	ErrOsArchNotFound       = errors.New("new tag found, but no os/arch match")
	ErrAheadOfLatestVersion = errors.New("local version is ahead of latest version")
)

// upgradeCmd checks GitHub for a newer release.
var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "check whether a newer release is available",
	RunE:  upgradeCommandFunc,
}

func init() {
	rootCmd.AddCommand(upgradeCmd)
}

// upgradeCommandFunc executes the "upgrade" command.
func upgradeCommandFunc(command *cobra.Command, args []string) error {
	log := newLogger()
	ctx, cancel := signalContext()
	defer cancel()

	tag, downloadURL, err := upgradeCheck(ctx)
	if err != nil {
		if errors.Is(err, ErrAheadOfLatestVersion) {
			log.Info().Str("version", GitVersion).Msg("no newer release")
			return nil
		}
		return err
	}

	log.Info().Str("tag", tag).Str("download", downloadURL).Msg("newer release available")
	return nil
}

func upgradeCheck(ctx context.Context) (string, string, error) {
	useragent := fmt.Sprintf("capscrub Cli (%s %s)", runtime.GOOS, runtime.GOARCH)

	rex := regexp.MustCompile(`v?(\d+\.\d+\.\d+)`)
	verMatch := rex.FindStringSubmatch(GitVersion)
	if len(verMatch) < 2 {
		return "", "", fmt.Errorf("unstamped build version %q, cannot compare releases", GitVersion)
	}

	githubResp, err := upgrade.GetLatestVersion(useragent, fmt.Sprintf("%s%s", urlReleases, apiReleases), ctx)
	if err != nil {
		return "", "", fmt.Errorf("error getting latest version: %w", err)
	}

	comp, err := upgrade.CheckVersion(verMatch[1], githubResp.TagName)
	if err != nil {
		return "", "", fmt.Errorf("error checking version: %w", err)
	}

	if comp >= 0 {
		return "", "", ErrAheadOfLatestVersion
	}

	// "name": "capscrub-v0.3.1-linux-amd64.tar.gz"
	targetAsset := fmt.Sprintf("capscrub-%s-%s-%s.tar.gz", githubResp.TagName, runtime.GOOS, runtime.GOARCH)
	for _, asset := range githubResp.Assets {
		if asset.Name == targetAsset {
			return githubResp.TagName, asset.BrowserDownloadURL, nil
		}
	}
	return "", "", ErrOsArchNotFound
}
