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
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/seclens/capscrub/internal/errors"
	"github.com/seclens/capscrub/internal/rules"
)

// RecordHeader is one dissector-reported TLS record header.
type RecordHeader struct {
	Type    rules.ContentType
	Version uint16
	Length  uint32
}

// FrameRecord is the coarse-pass summary of one captured frame with TCP
// payload. Records lists the TLS record headers the dissector recognized
// inside the frame, in stream order. TypesAmbiguous marks frames whose
// record spans are known but whose content types could not be ordered;
// those streams need the raw supplement pass.
type FrameRecord struct {
	Number         uint64
	StreamID       uint64
	Flow           rules.FlowKey
	RawSeq         uint32
	PayloadLen     uint32
	Records        []RecordHeader
	TypesAmbiguous bool
}

// StreamFrame is the supplement-pass view of one frame of one stream:
// raw sequence position plus the payload bytes themselves.
type StreamFrame struct {
	Number  uint64
	Flow    rules.FlowKey
	RawSeq  uint32
	Payload []byte
}

// Field sets must line up with the parsers below. TLS record
// desegmentation stays off in both passes so record headers are reported
// against the raw byte stream of the frame that carries them.
var (
	coarseFields = []string{
		"frame.number", "tcp.stream",
		"ip.src", "ipv6.src", "ip.dst", "ipv6.dst",
		"tcp.srcport", "tcp.dstport", "tcp.seq_raw", "tcp.len",
		"tls.record.content_type", "tls.record.opaque_type",
		"tls.record.version", "tls.record.length",
	}
	streamFields = []string{
		"frame.number",
		"ip.src", "ipv6.src", "ip.dst", "ipv6.dst",
		"tcp.srcport", "tcp.dstport", "tcp.seq_raw", "tcp.payload",
	}
)

func fieldArgs(capturePath, filter string, fields []string) []string {
	args := []string{
		"-r", capturePath,
		"-T", "fields",
		"-E", "separator=/t",
		"-E", "occurrence=a",
		"-o", "tls.desegment_ssl_records:false",
		"-Y", filter,
	}
	for _, f := range fields {
		args = append(args, "-e", f)
	}
	return args
}

// Frames runs the coarse pass over the whole capture: every TCP frame
// carrying payload, with whatever TLS records the dissector saw in it.
// The skipped count reports output lines that did not parse; when they
// outnumber the good ones the tool output as a whole is distrusted.
func (r *Runner) Frames(ctx context.Context, capturePath string) ([]FrameRecord, int, error) {
	if err := r.CheckTool(ctx); err != nil {
		return nil, 0, err
	}
	args := append(r.decodeAsArgs(), fieldArgs(capturePath, "tcp.len > 0", coarseFields)...)
	out, err := r.run(ctx, "field scan", args)
	if err != nil {
		return nil, 0, err
	}

	var frames []FrameRecord
	var skipped, total int
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		total++
		fr, perr := parseCoarseLine(line)
		if perr != nil {
			skipped++
			r.log.Warn().Err(perr).Str("line", truncate(line, 120)).Msg("unparsable dissector line")
			continue
		}
		frames = append(frames, fr)
	}
	if total > 0 && skipped*2 > total {
		return nil, skipped, errors.NewDissectorOutputError(
			fmt.Sprintf("%d of %d field lines unparsable", skipped, total))
	}
	return frames, skipped, nil
}

// StreamFrames runs the supplement pass for one stream, returning its
// payload-carrying frames with raw bytes.
func (r *Runner) StreamFrames(ctx context.Context, capturePath string, stream uint64) ([]StreamFrame, error) {
	if err := r.CheckTool(ctx); err != nil {
		return nil, err
	}
	filter := fmt.Sprintf("tcp.stream == %d && tcp.len > 0", stream)
	args := append(r.decodeAsArgs(), fieldArgs(capturePath, filter, streamFields)...)
	out, err := r.run(ctx, "stream scan", args)
	if err != nil {
		return nil, err
	}

	var frames []StreamFrame
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		sf, perr := parseStreamLine(line)
		if perr != nil {
			r.log.Warn().Err(perr).Uint64("stream", stream).Msg("unparsable stream line")
			continue
		}
		frames = append(frames, sf)
	}
	return frames, nil
}

func parseCoarseLine(line string) (FrameRecord, error) {
	cols := strings.Split(line, "\t")
	if len(cols) != len(coarseFields) {
		return FrameRecord{}, fmt.Errorf("expected %d columns, got %d", len(coarseFields), len(cols))
	}

	frame, err := strconv.ParseUint(cols[0], 10, 64)
	if err != nil {
		return FrameRecord{}, fmt.Errorf("frame number: %w", err)
	}
	stream, err := strconv.ParseUint(lastValue(cols[1]), 10, 64)
	if err != nil {
		return FrameRecord{}, fmt.Errorf("frame %d stream: %w", frame, err)
	}
	flow, err := parseFlow(cols[2], cols[3], cols[4], cols[5], cols[6], cols[7])
	if err != nil {
		return FrameRecord{}, fmt.Errorf("frame %d: %w", frame, err)
	}
	rawSeq, err := parseUint32(lastValue(cols[8]))
	if err != nil {
		return FrameRecord{}, fmt.Errorf("frame %d seq: %w", frame, err)
	}
	plen, err := parseUint32(lastValue(cols[9]))
	if err != nil {
		return FrameRecord{}, fmt.Errorf("frame %d len: %w", frame, err)
	}

	fr := FrameRecord{
		Number:     frame,
		StreamID:   stream,
		Flow:       flow,
		RawSeq:     rawSeq,
		PayloadLen: plen,
	}

	versions := splitList(cols[12])
	lengths := splitList(cols[13])
	if len(versions) != len(lengths) {
		return FrameRecord{}, fmt.Errorf("frame %d: %d record versions for %d lengths",
			frame, len(versions), len(lengths))
	}
	if len(lengths) == 0 {
		return fr, nil
	}

	// Plaintext records report tls.record.content_type, encrypted ones
	// tls.record.opaque_type. Within one field the order is the stream
	// order, but a frame mixing both kinds loses the interleaving, so
	// its types cannot be trusted and the stream gets the raw pass.
	content := splitList(cols[10])
	opaque := splitList(cols[11])
	var types []string
	switch {
	case len(content) == len(lengths) && len(opaque) == 0:
		types = content
	case len(opaque) == len(lengths) && len(content) == 0:
		types = opaque
	default:
		fr.TypesAmbiguous = true
	}

	fr.Records = make([]RecordHeader, len(lengths))
	for i := range lengths {
		ver, verr := parseHexWord(versions[i])
		if verr != nil {
			return FrameRecord{}, fmt.Errorf("frame %d record %d version: %w", frame, i, verr)
		}
		rlen, lerr := parseUint32(lengths[i])
		if lerr != nil {
			return FrameRecord{}, fmt.Errorf("frame %d record %d length: %w", frame, i, lerr)
		}
		fr.Records[i] = RecordHeader{Version: ver, Length: rlen}
		if types != nil {
			ct, terr := parseUint32(types[i])
			if terr != nil {
				return FrameRecord{}, fmt.Errorf("frame %d record %d type: %w", frame, i, terr)
			}
			fr.Records[i].Type = rules.ContentType(ct)
		}
	}
	return fr, nil
}

func parseStreamLine(line string) (StreamFrame, error) {
	cols := strings.Split(line, "\t")
	if len(cols) != len(streamFields) {
		return StreamFrame{}, fmt.Errorf("expected %d columns, got %d", len(streamFields), len(cols))
	}

	frame, err := strconv.ParseUint(cols[0], 10, 64)
	if err != nil {
		return StreamFrame{}, fmt.Errorf("frame number: %w", err)
	}
	flow, err := parseFlow(cols[1], cols[2], cols[3], cols[4], cols[5], cols[6])
	if err != nil {
		return StreamFrame{}, fmt.Errorf("frame %d: %w", frame, err)
	}
	rawSeq, err := parseUint32(lastValue(cols[7]))
	if err != nil {
		return StreamFrame{}, fmt.Errorf("frame %d seq: %w", frame, err)
	}
	payload, err := parseHexPayload(lastValue(cols[8]))
	if err != nil {
		return StreamFrame{}, fmt.Errorf("frame %d payload: %w", frame, err)
	}

	return StreamFrame{Number: frame, Flow: flow, RawSeq: rawSeq, Payload: payload}, nil
}

func parseFlow(srcV4, srcV6, dstV4, dstV6, srcPort, dstPort string) (rules.FlowKey, error) {
	src := pickAddr(srcV4, srcV6)
	dst := pickAddr(dstV4, dstV6)
	if src == "" || dst == "" {
		return rules.FlowKey{}, fmt.Errorf("no network addresses")
	}
	sp, err := parseUint16(lastValue(srcPort))
	if err != nil {
		return rules.FlowKey{}, fmt.Errorf("src port: %w", err)
	}
	dp, err := parseUint16(lastValue(dstPort))
	if err != nil {
		return rules.FlowKey{}, fmt.Errorf("dst port: %w", err)
	}
	return rules.FlowKey{SrcIP: src, SrcPort: sp, DstIP: dst, DstPort: dp}, nil
}

// pickAddr prefers the IPv6 address when both families appear (tunneled
// traffic reports the outer and inner header). Nested cases that pick
// the wrong layer still resolve stream identity through the first-seen
// fallback on the consumer side.
func pickAddr(v4, v6 string) string {
	if v6 != "" {
		return lastValue(v6)
	}
	return lastValue(v4)
}

func lastValue(field string) string {
	if field == "" {
		return ""
	}
	vals := strings.Split(field, ",")
	return vals[len(vals)-1]
}

func splitList(field string) []string {
	if field == "" {
		return nil
	}
	return strings.Split(field, ",")
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

func parseUint16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	return uint16(v), err
}

// parseHexWord parses "0x0303" style values.
func parseHexWord(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 16)
	return uint16(v), err
}

// parseHexPayload decodes tcp.payload output, with or without colon
// separators.
func parseHexPayload(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, ":", "")
	if s == "" {
		return nil, fmt.Errorf("empty payload field")
	}
	return hex.DecodeString(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
