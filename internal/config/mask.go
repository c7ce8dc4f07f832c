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
	"fmt"
	"os"
	"time"
)

// Environment variables honored as defaults.
const (
	EnvTsharkPath  = "CAPSCRUB_TSHARK"
	EnvEditcapPath = "CAPSCRUB_EDITCAP"
)

// Scan failure escalation defaults. When more than EscalationRatio of at
// least EscalationMinFrames scanned frames fail to classify, the scan as
// a whole fails instead of skipping frame by frame.
const (
	DefaultEscalationRatio     = 0.5
	DefaultEscalationMinFrames = 20
)

// DefaultToolTimeoutSeconds bounds each dissector invocation.
const DefaultToolTimeoutSeconds = 300

// MaskConfig configures one scan-and-mask pass over a capture.
type MaskConfig struct {
	TsharkPath          string   `json:"tshark_path" yaml:"tshark_path" toml:"tshark_path"`
	EditcapPath         string   `json:"editcap_path" yaml:"editcap_path" toml:"editcap_path"`
	TimeoutSeconds      int      `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
	DecodePorts         []uint16 `json:"decode_ports,omitempty" yaml:"decode_ports" toml:"decode_ports"`
	Policy              Policy   `json:"policy" yaml:"policy" toml:"policy"`
	Annotate            bool     `json:"annotate" yaml:"annotate" toml:"annotate"`
	Comment             string   `json:"comment,omitempty" yaml:"comment" toml:"comment"`
	EscalationRatio     float64  `json:"escalation_ratio" yaml:"escalation_ratio" toml:"escalation_ratio"`
	EscalationMinFrames int      `json:"escalation_min_frames" yaml:"escalation_min_frames" toml:"escalation_min_frames"`
}

// NewMaskConfig creates a MaskConfig with default values. Tool paths fall
// back to the environment, then to bare command names resolved via PATH.
func NewMaskConfig() *MaskConfig {
	return &MaskConfig{
		TsharkPath:          envOr(EnvTsharkPath, "tshark"),
		EditcapPath:         envOr(EnvEditcapPath, "editcap"),
		TimeoutSeconds:      DefaultToolTimeoutSeconds,
		Policy:              DefaultPolicy(),
		EscalationRatio:     DefaultEscalationRatio,
		EscalationMinFrames: DefaultEscalationMinFrames,
	}
}

// Validate checks if the configuration is valid.
func (c *MaskConfig) Validate() error {
	if c.TsharkPath == "" {
		return fmt.Errorf("tshark_path must not be empty")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	}
	if c.EscalationRatio <= 0 || c.EscalationRatio > 1 {
		return fmt.Errorf("escalation_ratio must be in (0, 1], got %v", c.EscalationRatio)
	}
	if c.EscalationMinFrames < 1 {
		return fmt.Errorf("escalation_min_frames must be positive, got %d", c.EscalationMinFrames)
	}
	for _, p := range c.DecodePorts {
		if p == 0 {
			return fmt.Errorf("decode_ports must not contain port 0")
		}
	}
	if c.Annotate && c.EditcapPath == "" {
		return fmt.Errorf("editcap_path must not be empty when annotation is enabled")
	}
	return nil
}

// Timeout returns the per-invocation dissector deadline.
func (c *MaskConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
