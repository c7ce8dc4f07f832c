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

// Package rules defines the byte-range masking rule model shared by the
// marker (which emits rules) and the masker (which applies them). Rule
// intervals are half-open and addressed in a 64-bit extended sequence
// space so that TCP sequence wraparound never folds distant payload
// ranges onto each other.
package rules

import (
	"encoding/json"
	"fmt"
)

// ContentType is a TLS record content type as carried in the first byte
// of a record header.
type ContentType uint8

const (
	ContentTypeChangeCipherSpec ContentType = 20
	ContentTypeAlert            ContentType = 21
	ContentTypeHandshake        ContentType = 22
	ContentTypeApplicationData  ContentType = 23
	ContentTypeHeartbeat        ContentType = 24
)

// Known reports whether c is one of the assigned TLS content types.
func (c ContentType) Known() bool {
	return c >= ContentTypeChangeCipherSpec && c <= ContentTypeHeartbeat
}

func (c ContentType) String() string {
	switch c {
	case ContentTypeChangeCipherSpec:
		return "change_cipher_spec"
	case ContentTypeAlert:
		return "alert"
	case ContentTypeHandshake:
		return "handshake"
	case ContentTypeApplicationData:
		return "application_data"
	case ContentTypeHeartbeat:
		return "heartbeat"
	default:
		return fmt.Sprintf("content_type_%d", uint8(c))
	}
}

// ParseContentType maps a content type name to its value. It accepts only
// the five assigned names; anything else is rejected so that a typo in a
// policy file cannot silently widen or narrow masking.
func ParseContentType(name string) (ContentType, error) {
	switch name {
	case "change_cipher_spec":
		return ContentTypeChangeCipherSpec, nil
	case "alert":
		return ContentTypeAlert, nil
	case "handshake":
		return ContentTypeHandshake, nil
	case "application_data":
		return ContentTypeApplicationData, nil
	case "heartbeat":
		return ContentTypeHeartbeat, nil
	default:
		return 0, fmt.Errorf("unknown TLS content type %q", name)
	}
}

// Direction distinguishes the two byte streams of one TCP conversation.
// The initiator of the conversation is the client.
type Direction uint8

const (
	DirClientToServer Direction = 0
	DirServerToClient Direction = 1
)

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	return d ^ 1
}

func (d Direction) String() string {
	if d == DirClientToServer {
		return "c2s"
	}
	return "s2c"
}

// MarshalJSON encodes the direction as its short name.
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts the short name or the numeric form.
func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "c2s":
			*d = DirClientToServer
			return nil
		case "s2c":
			*d = DirServerToClient
			return nil
		default:
			return fmt.Errorf("unknown direction %q", s)
		}
	}
	var n uint8
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if n > 1 {
		return fmt.Errorf("unknown direction %d", n)
	}
	*d = Direction(n)
	return nil
}

// RuleType separates masking rules from preserve assertions. Preserve
// assertions participate in normalization and then drop out of the built
// set; bytes without a masking rule are left untouched.
type RuleType string

const (
	RuleMask     RuleType = "mask"
	RulePreserve RuleType = "preserve"
)

// Masking strategies carried in rule metadata.
const (
	// StrategyMaskAll zero-fills the whole interval.
	StrategyMaskAll = "mask_all"
	// StrategyKeepHeader keeps the first HeaderSize bytes of the interval
	// and zero-fills the rest.
	StrategyKeepHeader = "keep_header"
)

// Metadata carries the preservation strategy of a masking rule.
type Metadata struct {
	PreserveStrategy string `json:"preserve_strategy,omitempty"`
	HeaderSize       uint32 `json:"header_size,omitempty"`
}

// Rule is one half-open byte interval [SeqStart, SeqEnd) of one direction
// of one stream, in extended sequence space. Rules are immutable once a
// RuleSet is built.
type Rule struct {
	Type      RuleType  `json:"type"`
	StreamID  uint64    `json:"stream_id"`
	Direction Direction `json:"direction"`
	SeqStart  uint64    `json:"seq_start"`
	SeqEnd    uint64    `json:"seq_end"`
	Metadata  Metadata  `json:"metadata,omitempty"`
}

// NewMaskRule creates a masking rule keeping the first headerSize bytes of
// the interval intact.
func NewMaskRule(stream uint64, dir Direction, start, end uint64, headerSize uint32) (Rule, error) {
	if end <= start {
		return Rule{}, fmt.Errorf("empty rule interval [%d, %d)", start, end)
	}
	if uint64(headerSize) > end-start {
		return Rule{}, fmt.Errorf("header size %d exceeds interval length %d", headerSize, end-start)
	}
	strategy := StrategyMaskAll
	if headerSize > 0 {
		strategy = StrategyKeepHeader
	}
	return Rule{
		Type:      RuleMask,
		StreamID:  stream,
		Direction: dir,
		SeqStart:  start,
		SeqEnd:    end,
		Metadata:  Metadata{PreserveStrategy: strategy, HeaderSize: headerSize},
	}, nil
}

// NewPreserveRule creates a preserve assertion for the interval.
func NewPreserveRule(stream uint64, dir Direction, start, end uint64) (Rule, error) {
	if end <= start {
		return Rule{}, fmt.Errorf("empty rule interval [%d, %d)", start, end)
	}
	return Rule{
		Type:      RulePreserve,
		StreamID:  stream,
		Direction: dir,
		SeqStart:  start,
		SeqEnd:    end,
	}, nil
}

// Len returns the interval length in bytes.
func (r Rule) Len() uint64 {
	return r.SeqEnd - r.SeqStart
}

// Contains reports whether the extended offset lies inside the interval.
func (r Rule) Contains(off uint64) bool {
	return off >= r.SeqStart && off < r.SeqEnd
}

// Overlaps reports whether the two intervals share at least one byte.
func (r Rule) Overlaps(o Rule) bool {
	return r.SeqStart < o.SeqEnd && o.SeqStart < r.SeqEnd
}

// HeaderEnd returns the extended offset of the first maskable byte, the
// end of the preserved header prefix.
func (r Rule) HeaderEnd() uint64 {
	he := r.SeqStart + uint64(r.Metadata.HeaderSize)
	if he > r.SeqEnd {
		he = r.SeqEnd
	}
	return he
}

func (r Rule) String() string {
	return fmt.Sprintf("%s stream=%d %s [%d,%d) header=%d",
		r.Type, r.StreamID, r.Direction, r.SeqStart, r.SeqEnd, r.Metadata.HeaderSize)
}
