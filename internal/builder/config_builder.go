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

package builder

import (
	"github.com/seclens/capscrub/internal/config"
)

// ProfileBuilder provides a fluent interface for assembling pipeline profiles.
type ProfileBuilder struct {
	profile *config.Profile
}

// NewProfileBuilder creates a ProfileBuilder seeded with the default
// profile: mask stage only, "-scrubbed" output suffix.
func NewProfileBuilder() *ProfileBuilder {
	return &ProfileBuilder{
		profile: config.NewProfile(),
	}
}

// WithOutputDir routes sanitized captures into dir instead of next to
// their inputs.
func (b *ProfileBuilder) WithOutputDir(dir string) *ProfileBuilder {
	b.profile.Output.Dir = dir
	return b
}

// WithOutputSuffix sets the name suffix spliced in before the extension.
func (b *ProfileBuilder) WithOutputSuffix(suffix string) *ProfileBuilder {
	b.profile.Output.Suffix = suffix
	return b
}

// WithDedup enables the duplicate-frame stage with the given window.
// A window of 0 selects the default.
func (b *ProfileBuilder) WithDedup(window int) *ProfileBuilder {
	if window == 0 {
		window = config.DefaultDedupWindow
	}
	b.profile.Dedup = &config.DedupConfig{Window: window}
	return b
}

// WithAnonymize enables the address anonymization stage.
func (b *ProfileBuilder) WithAnonymize(secret string, preservePrefix bool) *ProfileBuilder {
	b.profile.Anonymize = &config.AnonymizeConfig{
		Secret:         secret,
		PreservePrefix: preservePrefix,
	}
	return b
}

// WithMask replaces the mask section. Passing nil disables the stage.
func (b *ProfileBuilder) WithMask(cfg *config.MaskConfig) *ProfileBuilder {
	b.profile.Mask = cfg
	return b
}

// WithListen sets the status API listen address.
func (b *ProfileBuilder) WithListen(addr string) *ProfileBuilder {
	b.profile.Listen = addr
	return b
}

// Build validates and returns the built profile.
func (b *ProfileBuilder) Build() (*config.Profile, error) {
	if err := b.profile.Validate(); err != nil {
		return nil, err
	}
	return b.profile, nil
}

// MustBuild builds the profile and panics on error.
// Use this only when you are certain the profile is valid.
func (b *ProfileBuilder) MustBuild() *config.Profile {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}
