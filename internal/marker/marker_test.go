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

package marker

import (
	"context"
	"io"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/seclens/capscrub/internal/config"
	"github.com/seclens/capscrub/internal/dissect"
	"github.com/seclens/capscrub/internal/errors"
	"github.com/seclens/capscrub/internal/logger"
	"github.com/seclens/capscrub/internal/rules"
)

type fakeSource struct {
	frames      []dissect.FrameRecord
	skipped     int
	err         error
	probe       func()
	streams     map[uint64][]dissect.StreamFrame
	streamErr   error
	streamCalls []uint64
}

func (f *fakeSource) Frames(ctx context.Context, path string) ([]dissect.FrameRecord, int, error) {
	if f.probe != nil {
		f.probe()
	}
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.frames, f.skipped, nil
}

func (f *fakeSource) StreamFrames(ctx context.Context, path string, stream uint64) ([]dissect.StreamFrame, error) {
	f.streamCalls = append(f.streamCalls, stream)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return f.streams[stream], nil
}

var clientFlow = rules.FlowKey{SrcIP: "10.0.0.1", SrcPort: 40000, DstIP: "10.0.0.2", DstPort: 443}

func appRec(length uint32) dissect.RecordHeader {
	return dissect.RecordHeader{Type: rules.ContentTypeApplicationData, Version: 0x0303, Length: length}
}

func hsRec(length uint32) dissect.RecordHeader {
	return dissect.RecordHeader{Type: rules.ContentTypeHandshake, Version: 0x0301, Length: length}
}

func testMarker(src Source, policy config.Policy) *Marker {
	cfg := config.NewMaskConfig()
	cfg.Policy = policy
	return New(src, cfg, logger.New(io.Discard, false))
}

func checkRule(t *testing.T, r rules.Rule, start, end uint64, header uint32) {
	t.Helper()
	if r.Type != rules.RuleMask {
		t.Errorf("expected mask rule, got %s", r.Type)
	}
	if r.SeqStart != start || r.SeqEnd != end {
		t.Errorf("expected span [%d,%d), got [%d,%d)", start, end, r.SeqStart, r.SeqEnd)
	}
	if r.Metadata.HeaderSize != header {
		t.Errorf("expected header size %d, got %d", header, r.Metadata.HeaderSize)
	}
}

func TestAnalyzeSingleStream(t *testing.T) {
	src := &fakeSource{frames: []dissect.FrameRecord{
		{Number: 1, StreamID: 0, Flow: clientFlow, RawSeq: 1000, PayloadLen: 325,
			Records: []dissect.RecordHeader{appRec(320)}},
		{Number: 2, StreamID: 0, Flow: clientFlow, RawSeq: 1325, PayloadLen: 105,
			Records: []dissect.RecordHeader{appRec(100)}},
	}}
	m := testMarker(src, config.DefaultPolicy())

	rs, stats, err := m.Analyze(context.Background(), "in.pcap")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := rs.Rules(0, rules.DirClientToServer)
	if len(got) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(got))
	}
	checkRule(t, got[0], 1000, 1325, 5)
	checkRule(t, got[1], 1325, 1430, 5)

	if stats.FramesScanned != 2 || stats.RecordsObserved != 2 || stats.RulesEmitted != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.StreamsSupplemented != 0 || stats.FramesSkipped != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	id, dir, ok := rs.FindStream(clientFlow)
	if !ok || id != 0 || dir != rules.DirClientToServer {
		t.Errorf("expected stream 0 c2s, got %d %s %v", id, dir, ok)
	}
	if len(src.streamCalls) != 0 {
		t.Errorf("expected no supplement calls, got %v", src.streamCalls)
	}
}

func TestAnalyzeHandshakeStaysPreserved(t *testing.T) {
	src := &fakeSource{frames: []dissect.FrameRecord{
		{Number: 1, StreamID: 0, Flow: clientFlow, RawSeq: 1000, PayloadLen: 205,
			Records: []dissect.RecordHeader{hsRec(200)}},
		{Number: 2, StreamID: 0, Flow: clientFlow, RawSeq: 1205, PayloadLen: 105,
			Records: []dissect.RecordHeader{appRec(100)}},
	}}
	m := testMarker(src, config.DefaultPolicy())

	rs, _, err := m.Analyze(context.Background(), "in.pcap")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := rs.Rules(0, rules.DirClientToServer)
	if len(got) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(got))
	}
	checkRule(t, got[0], 1205, 1310, 5)

	if hits := rs.Match(0, rules.DirClientToServer, 1000, 1205); len(hits) != 0 {
		t.Errorf("expected no rule over handshake bytes, got %v", hits)
	}
}

func TestAnalyzeDirections(t *testing.T) {
	src := &fakeSource{frames: []dissect.FrameRecord{
		{Number: 1, StreamID: 0, Flow: clientFlow, RawSeq: 5000, PayloadLen: 105,
			Records: []dissect.RecordHeader{appRec(100)}},
		{Number: 2, StreamID: 0, Flow: clientFlow.Reverse(), RawSeq: 9000, PayloadLen: 105,
			Records: []dissect.RecordHeader{appRec(100)}},
	}}
	m := testMarker(src, config.DefaultPolicy())

	rs, _, err := m.Analyze(context.Background(), "in.pcap")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c2s := rs.Rules(0, rules.DirClientToServer)
	s2c := rs.Rules(0, rules.DirServerToClient)
	if len(c2s) != 1 || len(s2c) != 1 {
		t.Fatalf("expected one rule per direction, got %d and %d", len(c2s), len(s2c))
	}
	checkRule(t, c2s[0], 5000, 5105, 5)
	checkRule(t, s2c[0], 9000, 9105, 5)
}

func TestAnalyzeCoalescedRecords(t *testing.T) {
	src := &fakeSource{frames: []dissect.FrameRecord{
		{Number: 1, StreamID: 0, Flow: clientFlow, RawSeq: 1, PayloadLen: 200,
			Records: []dissect.RecordHeader{hsRec(90), appRec(100)}},
	}}
	m := testMarker(src, config.DefaultPolicy())

	rs, stats, err := m.Analyze(context.Background(), "in.pcap")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := rs.Rules(0, rules.DirClientToServer)
	if len(got) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(got))
	}
	checkRule(t, got[0], 96, 201, 5)
	if stats.RecordsObserved != 2 {
		t.Errorf("expected 2 records observed, got %d", stats.RecordsObserved)
	}
}

func TestAnalyzeRecordSpansFrames(t *testing.T) {
	src := &fakeSource{frames: []dissect.FrameRecord{
		{Number: 1, StreamID: 0, Flow: clientFlow, RawSeq: 100, PayloadLen: 400,
			Records: []dissect.RecordHeader{appRec(1000)}},
		{Number: 2, StreamID: 0, Flow: clientFlow, RawSeq: 500, PayloadLen: 605},
		{Number: 3, StreamID: 0, Flow: clientFlow, RawSeq: 1105, PayloadLen: 55,
			Records: []dissect.RecordHeader{appRec(50)}},
	}}
	m := testMarker(src, config.DefaultPolicy())

	rs, stats, err := m.Analyze(context.Background(), "in.pcap")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := rs.Rules(0, rules.DirClientToServer)
	if len(got) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(got))
	}
	checkRule(t, got[0], 100, 1105, 5)
	checkRule(t, got[1], 1105, 1160, 5)
	if stats.StreamsSupplemented != 0 || stats.FramesSkipped != 0 {
		t.Errorf("continuation frame should not trigger fallback: %+v", stats)
	}
}

func TestAnalyzeSplitHeaderSupplemented(t *testing.T) {
	p1 := append([]byte{0x17, 0x03, 0x03, 0x00, 0x64}, make([]byte, 100)...)
	p1 = append(p1, 0x17, 0x03)
	p2 := append([]byte{0x03, 0x00, 0x0a}, make([]byte, 10)...)

	src := &fakeSource{
		frames: []dissect.FrameRecord{
			{Number: 1, StreamID: 0, Flow: clientFlow, RawSeq: 1000, PayloadLen: 107,
				Records: []dissect.RecordHeader{appRec(100)}},
			{Number: 2, StreamID: 0, Flow: clientFlow, RawSeq: 1107, PayloadLen: 13},
		},
		streams: map[uint64][]dissect.StreamFrame{
			0: {
				{Number: 1, Flow: clientFlow, RawSeq: 1000, Payload: p1},
				{Number: 2, Flow: clientFlow, RawSeq: 1107, Payload: p2},
			},
		},
	}
	m := testMarker(src, config.DefaultPolicy())

	rs, stats, err := m.Analyze(context.Background(), "in.pcap")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.StreamsSupplemented != 1 {
		t.Fatalf("expected 1 supplemented stream, got %d", stats.StreamsSupplemented)
	}
	if len(src.streamCalls) != 1 || src.streamCalls[0] != 0 {
		t.Fatalf("expected one supplement call for stream 0, got %v", src.streamCalls)
	}
	got := rs.Rules(0, rules.DirClientToServer)
	if len(got) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(got))
	}
	checkRule(t, got[0], 1000, 1105, 5)
	checkRule(t, got[1], 1105, 1120, 5)
}

func TestAnalyzeGapLeavesTailUntouched(t *testing.T) {
	p1 := append([]byte{0x17, 0x03, 0x03, 0x00, 0x78}, make([]byte, 95)...)
	p2 := make([]byte, 100)

	src := &fakeSource{
		frames: []dissect.FrameRecord{
			{Number: 1, StreamID: 0, Flow: clientFlow, RawSeq: 1000, PayloadLen: 100,
				Records: []dissect.RecordHeader{appRec(120)}},
			{Number: 2, StreamID: 0, Flow: clientFlow, RawSeq: 1150, PayloadLen: 100,
				Records: []dissect.RecordHeader{appRec(95)}},
		},
		streams: map[uint64][]dissect.StreamFrame{
			0: {
				{Number: 1, Flow: clientFlow, RawSeq: 1000, Payload: p1},
				{Number: 2, Flow: clientFlow, RawSeq: 1150, Payload: p2},
			},
		},
	}
	m := testMarker(src, config.DefaultPolicy())

	rs, stats, err := m.Analyze(context.Background(), "in.pcap")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := rs.Rules(0, rules.DirClientToServer)
	if len(got) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(got))
	}
	checkRule(t, got[0], 1000, 1125, 5)
	if stats.UnresolvedRanges != 1 {
		t.Errorf("expected 1 unresolved range, got %d", stats.UnresolvedRanges)
	}
}

func TestAnalyzeSeqWraparound(t *testing.T) {
	src := &fakeSource{frames: []dissect.FrameRecord{
		{Number: 1, StreamID: 0, Flow: clientFlow, RawSeq: 0xFFFFFF00, PayloadLen: 300,
			Records: []dissect.RecordHeader{appRec(295)}},
		{Number: 2, StreamID: 0, Flow: clientFlow, RawSeq: 44, PayloadLen: 105,
			Records: []dissect.RecordHeader{appRec(100)}},
	}}
	m := testMarker(src, config.DefaultPolicy())

	rs, stats, err := m.Analyze(context.Background(), "in.pcap")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := rs.Rules(0, rules.DirClientToServer)
	if len(got) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(got))
	}
	checkRule(t, got[0], 0xFFFFFF00, 0xFFFFFF00+300, 5)
	checkRule(t, got[1], 1<<32+44, 1<<32+149, 5)
	if stats.StreamsSupplemented != 0 {
		t.Errorf("wraparound must not look like a gap: %+v", stats)
	}
}

func TestAnalyzeEscalates(t *testing.T) {
	var frames []dissect.FrameRecord
	seq := uint32(1000)
	for i := 0; i < 8; i++ {
		frames = append(frames, dissect.FrameRecord{
			Number: uint64(i + 1), StreamID: 0, Flow: clientFlow, RawSeq: seq, PayloadLen: 105,
			Records: []dissect.RecordHeader{appRec(100)},
		})
		seq += 105
	}
	src := &fakeSource{frames: frames, skipped: 22}
	m := testMarker(src, config.DefaultPolicy())

	rs, stats, err := m.Analyze(context.Background(), "in.pcap")
	if err == nil {
		t.Fatal("expected escalation error, got nil")
	}
	if errors.Code(err) != errors.ErrCodeMarkerEscalated {
		t.Errorf("expected code %d, got %d", errors.ErrCodeMarkerEscalated, errors.Code(err))
	}
	if rs != nil {
		t.Error("expected no rule set on escalation")
	}
	if stats.FramesScanned != 30 || stats.FramesSkipped != 22 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestAnalyzeFewFailuresTolerated(t *testing.T) {
	src := &fakeSource{
		frames: []dissect.FrameRecord{
			{Number: 1, StreamID: 0, Flow: clientFlow, RawSeq: 1000, PayloadLen: 105,
				Records: []dissect.RecordHeader{appRec(100)}},
			{Number: 2, StreamID: 0, Flow: clientFlow, RawSeq: 1105, PayloadLen: 105,
				Records: []dissect.RecordHeader{appRec(100)}},
		},
		skipped: 10,
	}
	m := testMarker(src, config.DefaultPolicy())

	rs, _, err := m.Analyze(context.Background(), "in.pcap")
	if err != nil {
		t.Fatalf("expected small captures to escape escalation, got %v", err)
	}
	if rs.Len() != 2 {
		t.Errorf("expected 2 rules, got %d", rs.Len())
	}
}

func TestAnalyzeSourceErrorPropagates(t *testing.T) {
	src := &fakeSource{err: errors.NewDissectorMissingError("tshark", nil)}
	m := testMarker(src, config.DefaultPolicy())

	_, _, err := m.Analyze(context.Background(), "in.pcap")
	if errors.Code(err) != errors.ErrCodeDissectorMissing {
		t.Errorf("expected code %d, got %d", errors.ErrCodeDissectorMissing, errors.Code(err))
	}
}

func TestAnalyzeHoldsBindingWindow(t *testing.T) {
	before := layers.TCPPort(443).LayerType()

	var during gopacket.LayerType
	src := &fakeSource{probe: func() {
		during = layers.TCPPort(443).LayerType()
	}}
	m := testMarker(src, config.DefaultPolicy())

	if _, _, err := m.Analyze(context.Background(), "in.pcap"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if during != gopacket.LayerTypePayload {
		t.Errorf("expected port 443 to decode as payload during the scan, got %s", during)
	}
	if after := layers.TCPPort(443).LayerType(); after != before {
		t.Errorf("expected port 443 binding %s after the scan, got %s", before, after)
	}
}

func TestAnalyzeMaskHandshakePolicy(t *testing.T) {
	src := &fakeSource{frames: []dissect.FrameRecord{
		{Number: 1, StreamID: 0, Flow: clientFlow, RawSeq: 1000, PayloadLen: 205,
			Records: []dissect.RecordHeader{hsRec(200)}},
		{Number: 2, StreamID: 0, Flow: clientFlow, RawSeq: 1205, PayloadLen: 105,
			Records: []dissect.RecordHeader{appRec(100)}},
	}}
	m := testMarker(src, config.Policy{Handshake: config.DispositionMask})

	rs, _, err := m.Analyze(context.Background(), "in.pcap")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := rs.Rules(0, rules.DirClientToServer)
	if len(got) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(got))
	}
	checkRule(t, got[0], 1000, 1205, 5)
}

func TestAnalyzeAmbiguousTypesSupplemented(t *testing.T) {
	raw := []byte{0x14, 0x03, 0x03, 0x00, 0x01, 0x01}
	raw = append(raw, 0x17, 0x03, 0x03, 0x00, 0x0a)
	raw = append(raw, make([]byte, 10)...)

	src := &fakeSource{
		frames: []dissect.FrameRecord{
			{Number: 1, StreamID: 0, Flow: clientFlow, RawSeq: 2000, PayloadLen: 21,
				Records:        []dissect.RecordHeader{{Length: 1}, {Length: 10}},
				TypesAmbiguous: true},
		},
		streams: map[uint64][]dissect.StreamFrame{
			0: {{Number: 1, Flow: clientFlow, RawSeq: 2000, Payload: raw}},
		},
	}
	m := testMarker(src, config.DefaultPolicy())

	rs, stats, err := m.Analyze(context.Background(), "in.pcap")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.StreamsSupplemented != 1 {
		t.Fatalf("expected 1 supplemented stream, got %d", stats.StreamsSupplemented)
	}
	got := rs.Rules(0, rules.DirClientToServer)
	if len(got) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(got))
	}
	checkRule(t, got[0], 2006, 2021, 5)
}

func TestAnalyzeSupplementErrorPropagates(t *testing.T) {
	src := &fakeSource{
		frames: []dissect.FrameRecord{
			{Number: 1, StreamID: 0, Flow: clientFlow, RawSeq: 1000, PayloadLen: 21,
				Records:        []dissect.RecordHeader{{Length: 1}, {Length: 10}},
				TypesAmbiguous: true},
		},
		streamErr: errors.NewDissectorTimeoutError("stream read", context.DeadlineExceeded),
	}
	m := testMarker(src, config.DefaultPolicy())

	_, _, err := m.Analyze(context.Background(), "in.pcap")
	if errors.Code(err) != errors.ErrCodeDissectorTimeout {
		t.Errorf("expected code %d, got %d", errors.ErrCodeDissectorTimeout, errors.Code(err))
	}
}

func TestBuildRegionsMergesAndSplits(t *testing.T) {
	regions := buildRegions([]segment{
		{off: 100, data: []byte{1, 2, 3}},
		{off: 103, data: []byte{4, 5}},
		{off: 101, data: []byte{9, 9, 9}}, // retransmission, first copy wins
		{off: 200, data: []byte{7}},
	})
	if len(regions) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(regions))
	}
	if regions[0].start != 100 || len(regions[0].data) != 5 {
		t.Errorf("expected region [100,105), got start %d len %d", regions[0].start, len(regions[0].data))
	}
	for i, want := range []byte{1, 2, 3, 4, 5} {
		if regions[0].data[i] != want {
			t.Errorf("expected byte %d at index %d, got %d", want, i, regions[0].data[i])
		}
	}
	if regions[1].start != 200 || len(regions[1].data) != 1 {
		t.Errorf("expected region [200,201), got start %d len %d", regions[1].start, len(regions[1].data))
	}
}

func TestValidateHeader(t *testing.T) {
	tests := []struct {
		name string
		rh   dissect.RecordHeader
		ok   bool
	}{
		{"app data", appRec(100), true},
		{"sslv3", dissect.RecordHeader{Type: rules.ContentTypeHandshake, Version: 0x0300, Length: 80}, true},
		{"bad type", dissect.RecordHeader{Type: 99, Version: 0x0303, Length: 80}, false},
		{"bad version", dissect.RecordHeader{Type: rules.ContentTypeApplicationData, Version: 0x0105, Length: 80}, false},
		{"oversized", dissect.RecordHeader{Type: rules.ContentTypeApplicationData, Version: 0x0303, Length: 20000}, false},
	}
	for _, tt := range tests {
		err := validateHeader(tt.rh)
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("%s: expected error, got nil", tt.name)
		}
	}
}
