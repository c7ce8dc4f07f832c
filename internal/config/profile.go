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

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/seclens/capscrub/internal/errors"
)

// DefaultDedupWindow is the comparison window for duplicate frames.
const DefaultDedupWindow = 5

// DedupConfig configures the duplicate-frame stage.
type DedupConfig struct {
	Window int `json:"window" yaml:"window" toml:"window"`
}

// Validate checks if the configuration is valid.
func (c *DedupConfig) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("dedup window must be positive, got %d", c.Window)
	}
	return nil
}

// AnonymizeConfig configures the address anonymization stage.
type AnonymizeConfig struct {
	// Secret keys the address mapping. The same secret maps the same
	// addresses across runs.
	Secret string `json:"secret" yaml:"secret" toml:"secret"`
	// PreservePrefix keeps IPv4 /24 and IPv6 /48 boundaries so hosts of
	// one subnet stay in one rewritten subnet.
	PreservePrefix bool `json:"preserve_prefix" yaml:"preserve_prefix" toml:"preserve_prefix"`
}

// Validate checks if the configuration is valid.
func (c *AnonymizeConfig) Validate() error {
	if c.Secret == "" {
		return fmt.Errorf("anonymize secret must not be empty")
	}
	return nil
}

// OutputConfig controls where sanitized captures land.
type OutputConfig struct {
	Dir    string `json:"dir" yaml:"dir" toml:"dir"`
	Suffix string `json:"suffix" yaml:"suffix" toml:"suffix"`
}

// Path resolves the destination for one capture: the capture's base name
// with the suffix spliced in before the extension, in Dir when set and
// next to the input otherwise.
func (o OutputConfig) Path(capturePath string) string {
	dir := o.Dir
	if dir == "" {
		dir = filepath.Dir(capturePath)
	}
	base := filepath.Base(capturePath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext) + o.Suffix + ext
	return filepath.Join(dir, name)
}

// Profile is a complete pipeline configuration: which stages run, their
// options, and output naming. Stages left nil are skipped.
type Profile struct {
	Output    OutputConfig     `json:"output" yaml:"output" toml:"output"`
	Dedup     *DedupConfig     `json:"dedup,omitempty" yaml:"dedup" toml:"dedup"`
	Anonymize *AnonymizeConfig `json:"anonymize,omitempty" yaml:"anonymize" toml:"anonymize"`
	Mask      *MaskConfig      `json:"mask,omitempty" yaml:"mask" toml:"mask"`
	Listen    string           `json:"listen,omitempty" yaml:"listen" toml:"listen"`
}

// NewProfile creates a Profile running only the default mask stage.
func NewProfile() *Profile {
	return &Profile{
		Output: OutputConfig{Suffix: "-scrubbed"},
		Mask:   NewMaskConfig(),
	}
}

// Validate checks if the configuration is valid.
func (p *Profile) Validate() error {
	if p.Dedup == nil && p.Anonymize == nil && p.Mask == nil {
		return fmt.Errorf("profile enables no stages")
	}
	if p.Output.Suffix == "" && p.Output.Dir == "" {
		return fmt.Errorf("output must set a dir or a suffix, refusing to overwrite inputs")
	}
	if p.Dedup != nil {
		if err := p.Dedup.Validate(); err != nil {
			return err
		}
	}
	if p.Anonymize != nil {
		if err := p.Anonymize.Validate(); err != nil {
			return err
		}
	}
	if p.Mask != nil {
		if err := p.Mask.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// LoadProfile reads a profile file, choosing the decoder by extension.
// Supported: .json, .yaml, .yml, .toml.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfigError("profile not readable", err)
	}

	// Unknown keys are rejected in every format: a typo in a policy arm
	// must fail the run, not silently widen or narrow masking.
	p := NewProfile()
	p.Mask = nil
	switch {
	case strings.HasSuffix(path, ".json"):
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(p)
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(p)
	case strings.HasSuffix(path, ".toml"):
		var md toml.MetaData
		md, err = toml.Decode(string(data), p)
		if err == nil {
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				err = fmt.Errorf("unknown key %q", undecoded[0].String())
			}
		}
	default:
		return nil, errors.New(errors.ErrCodeConfigProfile,
			fmt.Sprintf("unsupported profile format %q", path))
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigProfile, "profile did not parse", err)
	}

	if p.Mask != nil {
		applyMaskDefaults(p.Mask)
	}
	if p.Dedup != nil && p.Dedup.Window == 0 {
		p.Dedup.Window = DefaultDedupWindow
	}
	if err = p.Validate(); err != nil {
		return nil, errors.NewConfigError("invalid profile", err)
	}
	return p, nil
}

// applyMaskDefaults fills zero fields of a file-loaded mask section so a
// minimal profile behaves like NewMaskConfig.
func applyMaskDefaults(c *MaskConfig) {
	if c.TsharkPath == "" {
		c.TsharkPath = envOr(EnvTsharkPath, "tshark")
	}
	if c.EditcapPath == "" {
		c.EditcapPath = envOr(EnvEditcapPath, "editcap")
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = DefaultToolTimeoutSeconds
	}
	if c.EscalationRatio == 0 {
		c.EscalationRatio = DefaultEscalationRatio
	}
	if c.EscalationMinFrames == 0 {
		c.EscalationMinFrames = DefaultEscalationMinFrames
	}
}
