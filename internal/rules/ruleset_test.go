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
	"reflect"
	"testing"
)

func mustMask(t *testing.T, start, end uint64, header uint32) Rule {
	t.Helper()
	r, err := NewMaskRule(0, DirClientToServer, start, end, header)
	if err != nil {
		t.Fatalf("mask rule [%d,%d) h%d: %v", start, end, header, err)
	}
	return r
}

func mustPreserve(t *testing.T, start, end uint64) Rule {
	t.Helper()
	r, err := NewPreserveRule(0, DirClientToServer, start, end)
	if err != nil {
		t.Fatalf("preserve rule [%d,%d): %v", start, end, err)
	}
	return r
}

func buildGroup(t *testing.T, rr ...Rule) []Rule {
	t.Helper()
	b := NewBuilder()
	for _, r := range rr {
		if err := b.Add(r); err != nil {
			t.Fatalf("add rule %s: %v", r, err)
		}
	}
	return b.Build().Rules(0, DirClientToServer)
}

type span struct {
	start, end uint64
	header     uint32
}

func checkSpans(t *testing.T, got []Rule, want []span) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d rules, got %d: %v", len(want), len(got), got)
	}
	for i, w := range want {
		g := got[i]
		if g.SeqStart != w.start || g.SeqEnd != w.end || g.Metadata.HeaderSize != w.header {
			t.Errorf("rule %d: expected [%d,%d) h%d, got [%d,%d) h%d",
				i, w.start, w.end, w.header, g.SeqStart, g.SeqEnd, g.Metadata.HeaderSize)
		}
	}
}

func TestBuildDeduplicates(t *testing.T) {
	got := buildGroup(t,
		mustMask(t, 100, 200, 5),
		mustMask(t, 100, 200, 5),
	)
	checkSpans(t, got, []span{{100, 200, 5}})
}

func TestBuildSameStartKeepsLongest(t *testing.T) {
	got := buildGroup(t,
		mustMask(t, 100, 160, 5),
		mustMask(t, 100, 200, 5),
	)
	checkSpans(t, got, []span{{100, 200, 5}})
}

func TestBuildTrimsLaterOverlap(t *testing.T) {
	// The trimmed fragment keeps the tail of its own header prefix.
	got := buildGroup(t,
		mustMask(t, 100, 200, 5),
		mustMask(t, 198, 260, 5),
	)
	checkSpans(t, got, []span{{100, 200, 5}, {200, 260, 3}})
}

func TestBuildMergesHeaderlessContinuation(t *testing.T) {
	// A fragment whose header was consumed entirely by the earlier rule
	// coalesces into it.
	got := buildGroup(t,
		mustMask(t, 100, 200, 5),
		mustMask(t, 150, 260, 5),
	)
	checkSpans(t, got, []span{{100, 260, 5}})
}

func TestBuildAdjacentHeaderedStaySeparate(t *testing.T) {
	got := buildGroup(t,
		mustMask(t, 100, 200, 5),
		mustMask(t, 200, 300, 5),
	)
	checkSpans(t, got, []span{{100, 200, 5}, {200, 300, 5}})
}

func TestBuildAdjacentHeaderlessMerge(t *testing.T) {
	got := buildGroup(t,
		mustMask(t, 100, 200, 0),
		mustMask(t, 200, 300, 0),
	)
	checkSpans(t, got, []span{{100, 300, 0}})
}

func TestPreserveWinsOverMask(t *testing.T) {
	got := buildGroup(t,
		mustMask(t, 120, 140, 0),
		mustPreserve(t, 100, 150),
	)
	if len(got) != 0 {
		t.Fatalf("expected no surviving rules, got %v", got)
	}
}

func TestPreserveSplitsMask(t *testing.T) {
	got := buildGroup(t,
		mustMask(t, 100, 300, 5),
		mustPreserve(t, 150, 200),
	)
	checkSpans(t, got, []span{{100, 150, 5}, {200, 300, 0}})
	if got[1].Metadata.PreserveStrategy != StrategyMaskAll {
		t.Errorf("expected right fragment strategy %q, got %q",
			StrategyMaskAll, got[1].Metadata.PreserveStrategy)
	}
}

func TestPreserveClipsHeaderPrefix(t *testing.T) {
	got := buildGroup(t,
		mustMask(t, 100, 200, 5),
		mustPreserve(t, 100, 103),
	)
	checkSpans(t, got, []span{{103, 200, 2}})
	if got[0].Metadata.PreserveStrategy != StrategyKeepHeader {
		t.Errorf("expected strategy %q, got %q", StrategyKeepHeader, got[0].Metadata.PreserveStrategy)
	}
}

func TestBuildDropsAllHeaderRules(t *testing.T) {
	got := buildGroup(t, mustMask(t, 100, 105, 5))
	if len(got) != 0 {
		t.Fatalf("expected all-header rule to vanish, got %v", got)
	}
}

func TestPreserveOnlyGroupIsEmpty(t *testing.T) {
	b := NewBuilder()
	if err := b.Add(mustPreserve(t, 0, 1000)); err != nil {
		t.Fatalf("add preserve: %v", err)
	}
	s := b.Build()
	if !s.Empty() {
		t.Errorf("expected empty set, got %d rules", s.Len())
	}
}

func TestMatch(t *testing.T) {
	b := NewBuilder()
	for _, r := range []Rule{
		mustMask(t, 0, 100, 0),
		mustMask(t, 200, 300, 5),
		mustMask(t, 400, 500, 5),
	} {
		if err := b.Add(r); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	s := b.Build()

	tests := []struct {
		name   string
		lo, hi uint64
		want   []span
	}{
		{"spans first two", 50, 250, []span{{0, 100, 0}, {200, 300, 5}}},
		{"gap between rules", 300, 400, nil},
		{"single byte inside", 450, 451, []span{{400, 500, 5}}},
		{"before everything", 0, 0, nil},
		{"tail overlap", 499, 600, []span{{400, 500, 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Match(0, DirClientToServer, tt.lo, tt.hi)
			checkSpans(t, got, tt.want)
		})
	}
}

func TestFindStream(t *testing.T) {
	b := NewBuilder()
	b.AddStream(StreamInfo{ID: 3, Client: "10.0.0.1:40000", Server: "10.0.0.2:443"})
	s := b.Build()

	k := FlowKey{SrcIP: "10.0.0.1", SrcPort: 40000, DstIP: "10.0.0.2", DstPort: 443}
	id, dir, ok := s.FindStream(k)
	if !ok || id != 3 || dir != DirClientToServer {
		t.Fatalf("expected stream 3 c2s, got %d %s ok=%v", id, dir, ok)
	}
	id, dir, ok = s.FindStream(k.Reverse())
	if !ok || id != 3 || dir != DirServerToClient {
		t.Fatalf("expected stream 3 s2c, got %d %s ok=%v", id, dir, ok)
	}
	if _, _, ok = s.FindStream(FlowKey{SrcIP: "8.8.8.8", SrcPort: 53, DstIP: "10.0.0.1", DstPort: 999}); ok {
		t.Error("expected unknown endpoints to miss")
	}
}

func TestRuleSetJSONRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.AddStream(StreamInfo{ID: 0, Client: "10.0.0.1:40000", Server: "10.0.0.2:443"})
	b.AddStream(StreamInfo{ID: 1, Client: "10.0.0.3:40001", Server: "10.0.0.2:443"})
	rr := []Rule{
		mustMask(t, 100, 420, 5),
		mustMask(t, 420, 740, 5),
	}
	for i := range rr {
		rr[i].StreamID = 1
		rr[i].Direction = DirServerToClient
		if err := b.Add(rr[i]); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	orig := b.Build()

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back RuleSet
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !reflect.DeepEqual(orig.Streams(), back.Streams()) {
		t.Errorf("streams differ: %v vs %v", orig.Streams(), back.Streams())
	}
	if !reflect.DeepEqual(orig.GroupKeys(), back.GroupKeys()) {
		t.Fatalf("group keys differ: %v vs %v", orig.GroupKeys(), back.GroupKeys())
	}
	for _, k := range orig.GroupKeys() {
		if !reflect.DeepEqual(orig.Rules(k.StreamID, k.Direction), back.Rules(k.StreamID, k.Direction)) {
			t.Errorf("group %v rules differ", k)
		}
	}
}

func TestBuilderRejectsBadRules(t *testing.T) {
	b := NewBuilder()
	if err := b.Add(Rule{Type: RuleMask, SeqStart: 10, SeqEnd: 10}); err == nil {
		t.Error("expected empty interval to be rejected")
	}
	if err := b.Add(Rule{Type: RuleType("shred"), SeqStart: 0, SeqEnd: 10}); err == nil {
		t.Error("expected unknown rule type to be rejected")
	}
}
