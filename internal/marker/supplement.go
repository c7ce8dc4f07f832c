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
	"encoding/binary"
	"sort"

	"github.com/seclens/capscrub/internal/dissect"
	"github.com/seclens/capscrub/internal/rules"
)

// segment is one frame's payload placed in extended offset space.
type segment struct {
	off  uint64
	data []byte
}

// region is a maximal run of contiguous captured bytes.
type region struct {
	start uint64
	data  []byte
}

func (r region) end() uint64 { return r.start + uint64(len(r.data)) }

// supplementStream re-reads one stream's payload bytes and walks the
// record headers directly. The walk carries record boundaries across
// frame edges, so headers the dissector lost to segmentation resolve
// here. It replaces whatever the coarse pass produced for the stream.
func (m *Marker) supplementStream(ctx context.Context, capturePath string, id uint64,
	info rules.StreamInfo, cands map[rules.GroupKey][]rules.Rule, stats *Stats) error {

	frames, err := m.src.StreamFrames(ctx, capturePath, id)
	if err != nil {
		return err
	}

	segs := make(map[rules.Direction][]segment)
	trackers := make(map[rules.Direction]*rules.SeqTracker)
	for i := range frames {
		sf := &frames[i]
		var dir rules.Direction
		switch sf.Flow.Src() {
		case info.Client:
			dir = rules.DirClientToServer
		case info.Server:
			dir = rules.DirServerToClient
		default:
			m.log.Warn().Uint64("frame", sf.Number).Uint64("stream", id).
				Msg("supplement frame endpoints do not match its stream")
			continue
		}
		if len(sf.Payload) == 0 {
			continue
		}
		tr := trackers[dir]
		if tr == nil {
			tr = &rules.SeqTracker{}
			trackers[dir] = tr
		}
		segs[dir] = append(segs[dir], segment{off: tr.Extend(sf.RawSeq), data: sf.Payload})
	}

	for _, dir := range []rules.Direction{rules.DirClientToServer, rules.DirServerToClient} {
		ss := segs[dir]
		if len(ss) == 0 {
			continue
		}
		key := rules.GroupKey{StreamID: id, Direction: dir}
		m.walkRawStream(key, buildRegions(ss), cands, stats)
	}
	return nil
}

// buildRegions merges possibly overlapping segments into maximal
// contiguous regions. Where retransmitted bytes overlap, the first
// captured copy wins.
func buildRegions(segs []segment) []region {
	sorted := make([]segment, len(segs))
	copy(sorted, segs)
	// Stable sort keeps the first captured copy in front among equal offsets.
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].off < sorted[j].off })

	var out []region
	for _, s := range sorted {
		if len(s.data) == 0 {
			continue
		}
		if len(out) > 0 {
			cur := &out[len(out)-1]
			if s.off <= cur.end() {
				segEnd := s.off + uint64(len(s.data))
				if segEnd > cur.end() {
					cur.data = append(cur.data, s.data[cur.end()-s.off:]...)
				}
				continue
			}
		}
		d := make([]byte, len(s.data))
		copy(d, s.data)
		out = append(out, region{start: s.off, data: d})
	}
	return out
}

// walkRawStream walks record headers across the captured regions of one
// direction, jumping record boundaries over capture gaps when the
// declared lengths line up. The first boundary that cannot be proven
// ends the walk; everything past it stays untouched.
func (m *Marker) walkRawStream(key rules.GroupKey, regions []region,
	cands map[rules.GroupKey][]rules.Rule, stats *Stats) {

	if len(regions) == 0 {
		return
	}
	pos := regions[0].start
	ri := 0
	for {
		for ri < len(regions) && regions[ri].end() <= pos {
			ri++
		}
		if ri == len(regions) {
			// Walked cleanly off the captured bytes.
			return
		}
		reg := regions[ri]
		if pos < reg.start {
			stats.UnresolvedRanges++
			m.log.Warn().
				Uint64("stream", key.StreamID).
				Str("direction", key.Direction.String()).
				Uint64("offset", pos).
				Msg("record boundary lost in capture gap; remainder left untouched")
			return
		}
		rel := pos - reg.start
		if uint64(len(reg.data))-rel < recordHeaderLen {
			stats.UnresolvedRanges++
			m.log.Warn().
				Uint64("stream", key.StreamID).
				Str("direction", key.Direction.String()).
				Uint64("offset", pos).
				Msg("record header split at capture boundary; remainder left untouched")
			return
		}
		hdr := reg.data[rel : rel+recordHeaderLen]
		rh := dissect.RecordHeader{
			Type:    rules.ContentType(hdr[0]),
			Version: binary.BigEndian.Uint16(hdr[1:3]),
			Length:  uint32(binary.BigEndian.Uint16(hdr[3:5])),
		}
		if err := validateHeader(rh); err != nil {
			stats.UnresolvedRanges++
			m.log.Warn().Err(err).
				Uint64("stream", key.StreamID).
				Str("direction", key.Direction.String()).
				Uint64("offset", pos).
				Msg("raw walk desynchronized; remainder left untouched")
			return
		}
		m.emit(cands, key, pos, rh)
		stats.RecordsObserved++
		pos += recordHeaderLen + uint64(rh.Length)
	}
}
