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

// Package masker rewrites captures in place of their payload bytes. It
// streams packets from input to output one by one, zeroes the byte
// ranges the rule set selects, and fixes the transport checksums the
// rewrite invalidated. Frame count, order, timestamps and sizes come
// through untouched.
package masker

import (
	"context"
	stderrors "errors"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/seclens/capscrub/internal/capture"
	"github.com/seclens/capscrub/internal/checksum"
	"github.com/seclens/capscrub/internal/errors"
	"github.com/seclens/capscrub/internal/logger"
	"github.com/seclens/capscrub/internal/rules"
)

// Stats summarizes one masking run.
type Stats struct {
	PacketsTotal   uint64   `json:"packets_total"`
	PacketsPayload uint64   `json:"packets_payload"`
	PacketsMasked  uint64   `json:"packets_masked"`
	BytesMasked    uint64   `json:"bytes_masked"`
	PacketsSkipped uint64   `json:"packets_skipped"`
	FramesMasked   []uint64 `json:"frames_masked,omitempty"`
}

// Masker applies a normalized rule set to captures.
type Masker struct {
	rs  *rules.RuleSet
	log *logger.Logger
}

// New creates a Masker for one rule set.
func New(rs *rules.RuleSet, log *logger.Logger) *Masker {
	return &Masker{rs: rs, log: log.WithComponent("masker")}
}

// Apply reads inPath, masks it, and writes outPath in the same format.
// Packet level trouble is logged and the packet passes through
// unmodified; capture level trouble aborts the run and removes the
// partial output.
func (mk *Masker) Apply(ctx context.Context, inPath, outPath string) (*Stats, error) {
	r, err := capture.OpenReader(inPath)
	if err != nil {
		return nil, errors.NewMaskerCaptureError(inPath, err)
	}
	defer r.Close()

	w, err := capture.NewWriterLike(outPath, r)
	if err != nil {
		return nil, errors.NewMaskerCaptureError(outPath, err)
	}

	stats := &Stats{}
	if err := mk.process(ctx, r, w, stats); err != nil {
		w.Close()
		os.Remove(outPath)
		return nil, err
	}
	if err := w.Close(); err != nil {
		os.Remove(outPath)
		return nil, errors.NewMaskerCaptureError(outPath, err)
	}

	mk.log.Info().
		Uint64("packets", stats.PacketsTotal).
		Uint64("masked", stats.PacketsMasked).
		Uint64("bytes", stats.BytesMasked).
		Str("output", outPath).
		Msg("capture masked")
	return stats, nil
}

func (mk *Masker) process(ctx context.Context, r *capture.Reader, w *capture.Writer, stats *Stats) error {
	table := rules.NewStreamTable()
	trackers := make(map[rules.GroupKey]*rules.SeqTracker)
	linkType := r.LinkType()

	var frame uint64
	for {
		if err := ctx.Err(); err != nil {
			return errors.NewMaskerCaptureError("run canceled", err)
		}
		data, ci, err := r.ReadPacketData()
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.NewMaskerCaptureError("read failed", err)
		}
		frame++
		stats.PacketsTotal++

		mk.maskPacket(data, ci, frame, linkType, table, trackers, stats)

		if err := w.WritePacket(ci, data); err != nil {
			return errors.NewMaskerCaptureError("write failed", err)
		}
	}
}

// maskPacket zeroes the selected payload bytes of one packet in place.
// It never fails the run: packets it cannot handle pass through as-is.
func (mk *Masker) maskPacket(data []byte, ci gopacket.CaptureInfo, frame uint64, linkType layers.LinkType,
	table *rules.StreamTable, trackers map[rules.GroupKey]*rules.SeqTracker, stats *Stats) {

	pkt := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{NoCopy: true})

	tcpLayer := pkt.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		if errLayer := pkt.ErrorLayer(); errLayer != nil {
			stats.PacketsSkipped++
			werr := errors.NewMaskerPacketError(frame, errLayer.Error())
			mk.log.Warn().Err(werr).Msg("undecodable packet passed through")
		}
		return
	}
	tcp := tcpLayer.(*layers.TCP)

	key, ok := flowOf(pkt, tcp)
	if !ok {
		stats.PacketsSkipped++
		mk.log.Warn().Uint64("frame", frame).Msg("tcp packet without network layer passed through")
		return
	}

	// The conversation table sees every TCP packet so its numbering
	// stays aligned with the dissector's, endpoints or not.
	tableID, tableDir := table.Lookup(key)
	id, dir, found := mk.rs.FindStream(key)
	if !found {
		id, dir = tableID, tableDir
	}

	payload := tcp.LayerPayload()
	if len(payload) == 0 {
		return
	}
	stats.PacketsPayload++

	gk := rules.GroupKey{StreamID: id, Direction: dir}
	tr := trackers[gk]
	if tr == nil {
		tr = &rules.SeqTracker{}
		trackers[gk] = tr
	}
	lo := tr.Extend(tcp.Seq)
	hi := lo + uint64(len(payload))

	hits := mk.rs.Match(id, dir, lo, hi)
	if len(hits) == 0 {
		return
	}

	var masked uint64
	for _, rule := range hits {
		from := rule.HeaderEnd()
		if from < lo {
			from = lo
		}
		to := rule.SeqEnd
		if to > hi {
			to = hi
		}
		for off := from; off < to; off++ {
			payload[off-lo] = 0
			masked++
		}
	}
	if masked == 0 {
		// Overlap fell entirely inside preserved record headers.
		return
	}
	stats.PacketsMasked++
	stats.BytesMasked += masked
	stats.FramesMasked = append(stats.FramesMasked, frame)

	mk.fixChecksum(data, ci, pkt, tcp, len(payload), frame)
}

// fixChecksum recomputes the TCP checksum after the payload rewrite.
// Truncated frames keep their stored checksum: the missing bytes make
// any recomputation wrong anyway.
func (mk *Masker) fixChecksum(data []byte, ci gopacket.CaptureInfo, pkt gopacket.Packet, tcp *layers.TCP, payloadLen int, frame uint64) {
	if ci.CaptureLength < ci.Length {
		return
	}
	off := tcpOffset(pkt)
	if off < 0 {
		return
	}
	segLen := len(tcp.Contents) + payloadLen
	if off+segLen > len(data) {
		werr := errors.NewMaskerPacketError(frame, stderrors.New("segment extends past captured bytes"))
		mk.log.Warn().Err(werr).Msg("checksum left unrepaired")
		return
	}
	seg := data[off : off+segLen]

	var cs uint16
	switch nl := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		cs = checksum.TCP(nl.SrcIP, nl.DstIP, seg)
	case *layers.IPv6:
		cs = checksum.TCP(nl.SrcIP, nl.DstIP, seg)
	default:
		return
	}
	seg[16] = byte(cs >> 8)
	seg[17] = byte(cs)
}

// tcpOffset walks the decoded layers and sums their header lengths, so
// any stack of VLAN tags or IPv6 extension headers lands on the right
// byte offset.
func tcpOffset(pkt gopacket.Packet) int {
	off := 0
	for _, l := range pkt.Layers() {
		if l.LayerType() == layers.LayerTypeTCP {
			return off
		}
		off += len(l.LayerContents())
	}
	return -1
}

func flowOf(pkt gopacket.Packet, tcp *layers.TCP) (rules.FlowKey, bool) {
	switch nl := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		return rules.FlowKey{
			SrcIP: nl.SrcIP.String(), SrcPort: uint16(tcp.SrcPort),
			DstIP: nl.DstIP.String(), DstPort: uint16(tcp.DstPort),
		}, true
	case *layers.IPv6:
		return rules.FlowKey{
			SrcIP: nl.SrcIP.String(), SrcPort: uint16(tcp.SrcPort),
			DstIP: nl.DstIP.String(), DstPort: uint16(tcp.DstPort),
		}, true
	}
	return rules.FlowKey{}, false
}
