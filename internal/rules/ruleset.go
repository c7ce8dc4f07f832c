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

package rules

import (
	"encoding/json"
	"fmt"
	"sort"
)

// GroupKey addresses the rules of one direction of one stream.
type GroupKey struct {
	StreamID  uint64
	Direction Direction
}

// StreamInfo records the endpoints of a numbered stream. Client is the
// conversation initiator.
type StreamInfo struct {
	ID     uint64 `json:"id"`
	Client string `json:"client"`
	Server string `json:"server"`
}

// RuleSet is the built, immutable output of a marker scan: per
// (stream, direction) groups of masking rules, offset-sorted and
// non-overlapping by construction. Consumers resolve streams either by
// number or by endpoint pair.
type RuleSet struct {
	streams    map[uint64]StreamInfo
	byEndpoint map[string]uint64
	groups     map[GroupKey][]Rule
	total      int
}

// Builder accumulates streams and raw rule candidates and normalizes them
// into a RuleSet. Raw candidates may duplicate, overlap, and mix mask
// rules with preserve assertions; Build resolves all of that.
type Builder struct {
	streams map[uint64]StreamInfo
	pending map[GroupKey][]Rule
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		streams: make(map[uint64]StreamInfo),
		pending: make(map[GroupKey][]Rule),
	}
}

// AddStream records the endpoints of a stream. Later registrations of the
// same ID win, which lets a supplement pass refine earlier endpoint data.
func (b *Builder) AddStream(info StreamInfo) {
	b.streams[info.ID] = info
}

// Add appends a rule candidate.
func (b *Builder) Add(r Rule) error {
	if r.SeqEnd <= r.SeqStart {
		return fmt.Errorf("empty rule interval [%d, %d)", r.SeqStart, r.SeqEnd)
	}
	if r.Type != RuleMask && r.Type != RulePreserve {
		return fmt.Errorf("unknown rule type %q", r.Type)
	}
	key := GroupKey{StreamID: r.StreamID, Direction: r.Direction}
	b.pending[key] = append(b.pending[key], r)
	return nil
}

// Build normalizes every group and returns the immutable set. Preserve
// assertions are honored by subtraction and do not appear in the result.
func (b *Builder) Build() *RuleSet {
	s := &RuleSet{
		streams:    make(map[uint64]StreamInfo, len(b.streams)),
		byEndpoint: make(map[string]uint64, len(b.streams)),
		groups:     make(map[GroupKey][]Rule, len(b.pending)),
	}
	for id, info := range b.streams {
		s.streams[id] = info
		s.byEndpoint[endpointKey(info.Client, info.Server)] = id
	}
	for key, raw := range b.pending {
		norm := normalize(raw)
		if len(norm) > 0 {
			s.groups[key] = norm
			s.total += len(norm)
		}
	}
	return s
}

func endpointKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// normalize resolves one group: mask rules are deduplicated, overlaps
// resolved in favor of the earlier (and at equal start, longer) rule with
// later rules trimmed forward, headerless adjacent rules coalesced, and
// finally every preserve assertion is cut out of every mask rule it
// touches. The result is offset-sorted and non-overlapping.
func normalize(in []Rule) []Rule {
	var masks, preserves []Rule
	for _, r := range in {
		if r.Type == RuleMask {
			masks = append(masks, r)
		} else {
			preserves = append(preserves, r)
		}
	}

	masks = resolveMasks(masks)
	if len(preserves) > 0 && len(masks) > 0 {
		masks = subtractPreserves(masks, mergePreserves(preserves))
	}
	sort.Slice(masks, func(i, j int) bool { return masks[i].SeqStart < masks[j].SeqStart })
	return masks
}

func resolveMasks(masks []Rule) []Rule {
	if len(masks) == 0 {
		return nil
	}
	sort.SliceStable(masks, func(i, j int) bool {
		a, b := masks[i], masks[j]
		if a.SeqStart != b.SeqStart {
			return a.SeqStart < b.SeqStart
		}
		if a.SeqEnd != b.SeqEnd {
			return a.SeqEnd > b.SeqEnd
		}
		return a.Metadata.HeaderSize > b.Metadata.HeaderSize
	})

	out := make([]Rule, 0, len(masks))
	for _, r := range masks {
		if len(out) == 0 {
			out = append(out, r)
			continue
		}
		prev := &out[len(out)-1]
		if r.SeqStart < prev.SeqEnd {
			if r.SeqEnd <= prev.SeqEnd {
				// Duplicate or fully covered; the earlier rule owns
				// these bytes.
				continue
			}
			r = trimForward(r, prev.SeqEnd)
			if noop(r) {
				continue
			}
		}
		if r.SeqStart == prev.SeqEnd && r.Metadata.HeaderSize == 0 {
			// A headerless continuation extends the previous interval.
			// Rules anchoring their own header stay separate.
			prev.SeqEnd = r.SeqEnd
			continue
		}
		out = append(out, r)
	}
	return out
}

// trimForward moves the rule start to newStart, keeping only whatever
// part of the preserved header prefix still lies inside the fragment.
func trimForward(r Rule, newStart uint64) Rule {
	h := fragmentHeader(r.SeqStart, r.Metadata.HeaderSize, newStart, r.SeqEnd)
	r.SeqStart = newStart
	r.Metadata.HeaderSize = h
	if h == 0 && r.Metadata.PreserveStrategy == StrategyKeepHeader {
		r.Metadata.PreserveStrategy = StrategyMaskAll
	}
	return r
}

// fragmentHeader computes the preserved prefix length of a fragment
// [fragStart, fragEnd) cut from a rule that started at origStart with the
// given header length.
func fragmentHeader(origStart uint64, header uint32, fragStart, fragEnd uint64) uint32 {
	hEnd := origStart + uint64(header)
	if hEnd <= fragStart {
		return 0
	}
	if hEnd > fragEnd {
		hEnd = fragEnd
	}
	return uint32(hEnd - fragStart)
}

// noop reports whether the rule would mask nothing.
func noop(r Rule) bool {
	return r.Len() <= uint64(r.Metadata.HeaderSize)
}

func mergePreserves(ps []Rule) []Rule {
	sort.Slice(ps, func(i, j int) bool { return ps[i].SeqStart < ps[j].SeqStart })
	out := make([]Rule, 0, len(ps))
	for _, p := range ps {
		if n := len(out); n > 0 && p.SeqStart <= out[n-1].SeqEnd {
			if p.SeqEnd > out[n-1].SeqEnd {
				out[n-1].SeqEnd = p.SeqEnd
			}
			continue
		}
		out = append(out, p)
	}
	return out
}

func subtractPreserves(masks, preserves []Rule) []Rule {
	out := make([]Rule, 0, len(masks))
	for _, m := range masks {
		frags := []Rule{m}
		for _, p := range preserves {
			next := frags[:0:0]
			for _, f := range frags {
				next = append(next, subtract(f, p)...)
			}
			frags = next
			if len(frags) == 0 {
				break
			}
		}
		out = append(out, frags...)
	}
	return out
}

// subtract removes the preserve interval from the mask rule, yielding
// zero, one, or two fragments. Fragment header prefixes shrink, never
// grow, and a fragment that is all header is dropped.
func subtract(m, p Rule) []Rule {
	if !m.Overlaps(p) {
		return []Rule{m}
	}
	var out []Rule
	if m.SeqStart < p.SeqStart {
		left := m
		left.SeqEnd = p.SeqStart
		left.Metadata.HeaderSize = fragmentHeader(m.SeqStart, m.Metadata.HeaderSize, m.SeqStart, p.SeqStart)
		if !noop(left) {
			out = append(out, left)
		}
	}
	if p.SeqEnd < m.SeqEnd {
		right := m
		right.SeqStart = p.SeqEnd
		right.Metadata.HeaderSize = fragmentHeader(m.SeqStart, m.Metadata.HeaderSize, p.SeqEnd, m.SeqEnd)
		if right.Metadata.HeaderSize == 0 && right.Metadata.PreserveStrategy == StrategyKeepHeader {
			right.Metadata.PreserveStrategy = StrategyMaskAll
		}
		if !noop(right) {
			out = append(out, right)
		}
	}
	return out
}

// Rules returns the normalized rules of one group. The returned slice is
// shared; callers must not modify it.
func (s *RuleSet) Rules(stream uint64, dir Direction) []Rule {
	return s.groups[GroupKey{StreamID: stream, Direction: dir}]
}

// Match returns the rules overlapping the half-open extended offset range
// [lo, hi) of one group, in offset order.
func (s *RuleSet) Match(stream uint64, dir Direction, lo, hi uint64) []Rule {
	rr := s.groups[GroupKey{StreamID: stream, Direction: dir}]
	i := sort.Search(len(rr), func(i int) bool { return rr[i].SeqEnd > lo })
	var out []Rule
	for ; i < len(rr) && rr[i].SeqStart < hi; i++ {
		out = append(out, rr[i])
	}
	return out
}

// FindStream resolves a packet flow to its stream number and direction by
// endpoint pair.
func (s *RuleSet) FindStream(k FlowKey) (uint64, Direction, bool) {
	id, ok := s.byEndpoint[endpointKey(k.Src(), k.Dst())]
	if !ok {
		return 0, DirClientToServer, false
	}
	if k.Src() == s.streams[id].Client {
		return id, DirClientToServer, true
	}
	return id, DirServerToClient, true
}

// Stream returns the endpoint record of a stream number.
func (s *RuleSet) Stream(id uint64) (StreamInfo, bool) {
	info, ok := s.streams[id]
	return info, ok
}

// Streams returns all stream records ordered by ID.
func (s *RuleSet) Streams() []StreamInfo {
	out := make([]StreamInfo, 0, len(s.streams))
	for _, info := range s.streams {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GroupKeys returns the non-empty groups ordered by stream then
// direction.
func (s *RuleSet) GroupKeys() []GroupKey {
	out := make([]GroupKey, 0, len(s.groups))
	for k := range s.groups {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StreamID != out[j].StreamID {
			return out[i].StreamID < out[j].StreamID
		}
		return out[i].Direction < out[j].Direction
	})
	return out
}

// Len returns the total rule count.
func (s *RuleSet) Len() int {
	return s.total
}

// Empty reports whether no group holds any rule.
func (s *RuleSet) Empty() bool {
	return s.total == 0
}

type rulesetJSON struct {
	Streams []StreamInfo `json:"streams"`
	Rules   []Rule       `json:"rules"`
}

// MarshalJSON renders the set in the diagnostic interchange form: stream
// endpoint records plus the flat rule list.
func (s *RuleSet) MarshalJSON() ([]byte, error) {
	doc := rulesetJSON{Streams: s.Streams()}
	for _, k := range s.GroupKeys() {
		doc.Rules = append(doc.Rules, s.groups[k]...)
	}
	return json.Marshal(doc)
}

// UnmarshalJSON rebuilds the set through the Builder, re-normalizing, so
// a hand-edited dump can never smuggle in overlapping rules.
func (s *RuleSet) UnmarshalJSON(data []byte) error {
	var doc rulesetJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	b := NewBuilder()
	for _, st := range doc.Streams {
		b.AddStream(st)
	}
	for _, r := range doc.Rules {
		if err := b.Add(r); err != nil {
			return err
		}
	}
	*s = *b.Build()
	return nil
}
