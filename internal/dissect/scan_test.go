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

package dissect

import (
	"bytes"
	"strings"
	"testing"

	"github.com/seclens/capscrub/internal/rules"
)

func coarseLine(cols ...string) string {
	return strings.Join(cols, "\t")
}

func TestParseCoarseLineSingleRecord(t *testing.T) {
	line := coarseLine(
		"17", "3",
		"10.0.0.1", "", "10.0.0.2", "",
		"40312", "443", "1000", "325",
		"23", "", "0x0303", "320",
	)
	fr, err := parseCoarseLine(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if fr.Number != 17 || fr.StreamID != 3 {
		t.Errorf("expected frame 17 stream 3, got %d %d", fr.Number, fr.StreamID)
	}
	want := rules.FlowKey{SrcIP: "10.0.0.1", SrcPort: 40312, DstIP: "10.0.0.2", DstPort: 443}
	if fr.Flow != want {
		t.Errorf("expected flow %s, got %s", want, fr.Flow)
	}
	if fr.RawSeq != 1000 || fr.PayloadLen != 325 {
		t.Errorf("expected seq 1000 len 325, got %d %d", fr.RawSeq, fr.PayloadLen)
	}
	if len(fr.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(fr.Records))
	}
	rec := fr.Records[0]
	if rec.Type != rules.ContentTypeApplicationData || rec.Version != 0x0303 || rec.Length != 320 {
		t.Errorf("unexpected record %+v", rec)
	}
	if fr.TypesAmbiguous {
		t.Error("expected unambiguous types")
	}
}

func TestParseCoarseLineCoalescedRecords(t *testing.T) {
	line := coarseLine(
		"4", "0",
		"", "2001:db8::1", "", "2001:db8::2",
		"50000", "443", "1", "200",
		"22,22", "", "0x0303,0x0303", "90,100",
	)
	fr, err := parseCoarseLine(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if fr.Flow.SrcIP != "2001:db8::1" {
		t.Errorf("expected IPv6 source, got %s", fr.Flow.SrcIP)
	}
	if len(fr.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(fr.Records))
	}
	if fr.Records[0].Length != 90 || fr.Records[1].Length != 100 {
		t.Errorf("unexpected record lengths %d %d", fr.Records[0].Length, fr.Records[1].Length)
	}
	if fr.Records[0].Type != rules.ContentTypeHandshake {
		t.Errorf("expected handshake, got %s", fr.Records[0].Type)
	}
}

func TestParseCoarseLineMixedTypesAmbiguous(t *testing.T) {
	// Plaintext change_cipher_spec and an encrypted record in one frame:
	// spans stay usable, types do not.
	line := coarseLine(
		"9", "1",
		"10.0.0.1", "", "10.0.0.2", "",
		"40312", "443", "500", "57",
		"20", "23", "0x0303,0x0303", "1,41",
	)
	fr, err := parseCoarseLine(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !fr.TypesAmbiguous {
		t.Error("expected ambiguous types")
	}
	if len(fr.Records) != 2 {
		t.Fatalf("expected 2 record spans, got %d", len(fr.Records))
	}
	if fr.Records[0].Length != 1 || fr.Records[1].Length != 41 {
		t.Errorf("unexpected spans %d %d", fr.Records[0].Length, fr.Records[1].Length)
	}
}

func TestParseCoarseLineNoRecords(t *testing.T) {
	line := coarseLine(
		"2", "0",
		"10.0.0.1", "", "10.0.0.2", "",
		"40312", "443", "1", "512",
		"", "", "", "",
	)
	fr, err := parseCoarseLine(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(fr.Records) != 0 {
		t.Errorf("expected no records, got %d", len(fr.Records))
	}
}

func TestParseCoarseLineRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"too few columns", "1\t2\t3"},
		{"garbage frame number", coarseLine("x", "0", "10.0.0.1", "", "10.0.0.2", "", "1", "2", "3", "4", "", "", "", "")},
		{"no addresses", coarseLine("1", "0", "", "", "", "", "1", "2", "3", "4", "", "", "", "")},
		{"version count mismatch", coarseLine("1", "0", "10.0.0.1", "", "10.0.0.2", "", "1", "2", "3", "4", "22", "", "0x0303", "10,20")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseCoarseLine(tt.line); err == nil {
				t.Error("expected parse to fail")
			}
		})
	}
}

func TestParseStreamLine(t *testing.T) {
	line := strings.Join([]string{
		"12",
		"10.0.0.2", "", "10.0.0.1", "",
		"443", "40312", "9000",
		"17:03:03:00:02:aa:bb",
	}, "\t")
	sf, err := parseStreamLine(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sf.Number != 12 || sf.RawSeq != 9000 {
		t.Errorf("expected frame 12 seq 9000, got %d %d", sf.Number, sf.RawSeq)
	}
	want := []byte{0x17, 0x03, 0x03, 0x00, 0x02, 0xAA, 0xBB}
	if !bytes.Equal(sf.Payload, want) {
		t.Errorf("expected payload % x, got % x", want, sf.Payload)
	}
}

func TestParseStreamLinePlainHex(t *testing.T) {
	line := strings.Join([]string{
		"3",
		"10.0.0.1", "", "10.0.0.2", "",
		"40312", "443", "77",
		"170303",
	}, "\t")
	sf, err := parseStreamLine(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !bytes.Equal(sf.Payload, []byte{0x17, 0x03, 0x03}) {
		t.Errorf("unexpected payload % x", sf.Payload)
	}
}

func TestFieldArgs(t *testing.T) {
	args := fieldArgs("/tmp/in.pcap", "tcp.len > 0", coarseFields)
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"-r /tmp/in.pcap",
		"-T fields",
		"separator=/t",
		"occurrence=a",
		"tls.desegment_ssl_records:false",
		"-e tcp.seq_raw",
		"-e tls.record.length",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected args to contain %q, got %q", want, joined)
		}
	}
}
