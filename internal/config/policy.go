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
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/seclens/capscrub/internal/rules"
)

// Disposition is what a scan does with records of one content type.
type Disposition uint8

const (
	DispositionPreserve Disposition = iota
	DispositionMask
)

func (d Disposition) String() string {
	if d == DispositionMask {
		return "mask"
	}
	return "preserve"
}

// MarshalJSON encodes the disposition by name.
func (d Disposition) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts only the two disposition names.
func (d *Disposition) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "mask":
		*d = DispositionMask
	case "preserve":
		*d = DispositionPreserve
	default:
		return fmt.Errorf("unknown disposition %q", s)
	}
	return nil
}

// UnmarshalText lets TOML and YAML decoders parse disposition names.
func (d *Disposition) UnmarshalText(text []byte) error {
	switch string(text) {
	case "mask":
		*d = DispositionMask
	case "preserve":
		*d = DispositionPreserve
	default:
		return fmt.Errorf("unknown disposition %q", text)
	}
	return nil
}

// MarshalText is the inverse of UnmarshalText.
func (d Disposition) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalYAML parses disposition names from YAML profiles.
func (d *Disposition) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// Policy maps every TLS content type to a disposition. The set of arms is
// closed: one field per assigned content type plus an explicit arm for
// values outside the assigned range.
type Policy struct {
	ChangeCipherSpec Disposition `json:"change_cipher_spec" yaml:"change_cipher_spec" toml:"change_cipher_spec"`
	Alert            Disposition `json:"alert" yaml:"alert" toml:"alert"`
	Handshake        Disposition `json:"handshake" yaml:"handshake" toml:"handshake"`
	ApplicationData  Disposition `json:"application_data" yaml:"application_data" toml:"application_data"`
	Heartbeat        Disposition `json:"heartbeat" yaml:"heartbeat" toml:"heartbeat"`
	Default          Disposition `json:"default" yaml:"default" toml:"default"`
}

// DefaultPolicy masks application data and preserves everything else.
func DefaultPolicy() Policy {
	return Policy{ApplicationData: DispositionMask}
}

// DispositionFor returns the arm for one content type.
func (p Policy) DispositionFor(ct rules.ContentType) Disposition {
	switch ct {
	case rules.ContentTypeChangeCipherSpec:
		return p.ChangeCipherSpec
	case rules.ContentTypeAlert:
		return p.Alert
	case rules.ContentTypeHandshake:
		return p.Handshake
	case rules.ContentTypeApplicationData:
		return p.ApplicationData
	case rules.ContentTypeHeartbeat:
		return p.Heartbeat
	default:
		return p.Default
	}
}

// PolicyFromMaskNames builds a policy masking exactly the named content
// types. Unknown names are rejected.
func PolicyFromMaskNames(names []string) (Policy, error) {
	var p Policy
	for _, name := range names {
		ct, err := rules.ParseContentType(name)
		if err != nil {
			return Policy{}, err
		}
		switch ct {
		case rules.ContentTypeChangeCipherSpec:
			p.ChangeCipherSpec = DispositionMask
		case rules.ContentTypeAlert:
			p.Alert = DispositionMask
		case rules.ContentTypeHandshake:
			p.Handshake = DispositionMask
		case rules.ContentTypeApplicationData:
			p.ApplicationData = DispositionMask
		case rules.ContentTypeHeartbeat:
			p.Heartbeat = DispositionMask
		}
	}
	return p, nil
}

// Set replaces the arm for one content type.
func (p *Policy) Set(ct rules.ContentType, d Disposition) {
	switch ct {
	case rules.ContentTypeChangeCipherSpec:
		p.ChangeCipherSpec = d
	case rules.ContentTypeAlert:
		p.Alert = d
	case rules.ContentTypeHandshake:
		p.Handshake = d
	case rules.ContentTypeApplicationData:
		p.ApplicationData = d
	case rules.ContentTypeHeartbeat:
		p.Heartbeat = d
	default:
		p.Default = d
	}
}

// MaskedTypes lists the content types the policy masks, for reports.
func (p Policy) MaskedTypes() []string {
	var out []string
	for _, ct := range []rules.ContentType{
		rules.ContentTypeChangeCipherSpec,
		rules.ContentTypeAlert,
		rules.ContentTypeHandshake,
		rules.ContentTypeApplicationData,
		rules.ContentTypeHeartbeat,
	} {
		if p.DispositionFor(ct) == DispositionMask {
			out = append(out, ct.String())
		}
	}
	return out
}
