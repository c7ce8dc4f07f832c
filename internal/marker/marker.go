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

// Package marker turns dissector observations into byte-range masking
// rules. The coarse pass pairs dissector-reported record headers with a
// per-stream boundary cursor; streams the coarse pass cannot fully
// account for are re-read byte-exact in a raw supplement pass. Bytes that
// survive both passes unresolved get no rule at all, which the masker
// treats as preserve.
package marker

import (
	"context"
	"fmt"
	"sort"

	"github.com/seclens/capscrub/internal/binding"
	"github.com/seclens/capscrub/internal/config"
	"github.com/seclens/capscrub/internal/dissect"
	"github.com/seclens/capscrub/internal/errors"
	"github.com/seclens/capscrub/internal/logger"
	"github.com/seclens/capscrub/internal/rules"
)

const (
	// recordHeaderLen is the TLS record header: type, version, length.
	recordHeaderLen = 5
	// maxRecordLen caps the declared record body (2^14 plus expansion).
	maxRecordLen = 16384 + 2048
)

// RecordSource supplies the coarse pass: every payload-carrying TCP frame
// with the record headers the dissector recognized in it.
type RecordSource interface {
	Frames(ctx context.Context, capturePath string) ([]dissect.FrameRecord, int, error)
}

// StreamSource supplies the supplement pass: the payload bytes of one
// stream, frame by frame.
type StreamSource interface {
	StreamFrames(ctx context.Context, capturePath string, stream uint64) ([]dissect.StreamFrame, error)
}

// Source is everything a full scan needs.
type Source interface {
	RecordSource
	StreamSource
}

// Stats summarizes one scan.
type Stats struct {
	FramesScanned       int `json:"frames_scanned"`
	FramesSkipped       int `json:"frames_skipped"`
	RecordsObserved     int `json:"records_observed"`
	RulesEmitted        int `json:"rules_emitted"`
	StreamsSupplemented int `json:"streams_supplemented"`
	UnresolvedRanges    int `json:"unresolved_ranges"`
}

// Marker synthesizes masking rules from dissector output.
type Marker struct {
	src             Source
	policy          config.Policy
	escalationRatio float64
	escalationMin   int
	log             *logger.Logger
}

// New creates a Marker.
func New(src Source, cfg *config.MaskConfig, log *logger.Logger) *Marker {
	return &Marker{
		src:             src,
		policy:          cfg.Policy,
		escalationRatio: cfg.EscalationRatio,
		escalationMin:   cfg.EscalationMinFrames,
		log:             log.WithComponent("marker"),
	}
}

// groupState is the cursor of one (stream, direction): where the next
// record header is expected, in extended offset space.
type groupState struct {
	tracker    rules.SeqTracker
	next       uint64
	started    bool
	sawRecords bool
	supplement bool
}

// Analyze scans a capture and returns the normalized rule set. The scan
// holds the process-wide binding window from start to finish, so port
// dissectors stay parked while raw bytes are read and concurrent scans
// take their turn.
func (m *Marker) Analyze(ctx context.Context, capturePath string) (*rules.RuleSet, *Stats, error) {
	stats := &Stats{}
	var rs *rules.RuleSet
	err := binding.WithSuspended(func() error {
		var serr error
		rs, serr = m.scan(ctx, capturePath, stats)
		return serr
	})
	if err != nil {
		return nil, stats, err
	}
	return rs, stats, nil
}

func (m *Marker) scan(ctx context.Context, capturePath string, stats *Stats) (*rules.RuleSet, error) {
	frames, skipped, err := m.src.Frames(ctx, capturePath)
	if err != nil {
		return nil, err
	}
	stats.FramesScanned = len(frames) + skipped
	stats.FramesSkipped = skipped

	streams := make(map[uint64]rules.StreamInfo)
	groups := make(map[rules.GroupKey]*groupState)
	cands := make(map[rules.GroupKey][]rules.Rule)

	for i := range frames {
		fr := &frames[i]
		info, ok := streams[fr.StreamID]
		if !ok {
			info = rules.StreamInfo{ID: fr.StreamID, Client: fr.Flow.Src(), Server: fr.Flow.Dst()}
			streams[fr.StreamID] = info
		}

		var dir rules.Direction
		switch fr.Flow.Src() {
		case info.Client:
			dir = rules.DirClientToServer
		case info.Server:
			dir = rules.DirServerToClient
		default:
			stats.FramesSkipped++
			m.log.Warn().Uint64("frame", fr.Number).Uint64("stream", fr.StreamID).
				Msg("frame endpoints do not match its stream")
			continue
		}

		key := rules.GroupKey{StreamID: fr.StreamID, Direction: dir}
		g := groups[key]
		if g == nil {
			g = &groupState{}
			groups[key] = g
		}
		m.observeFrame(g, fr, key, cands, stats)
	}

	if stats.FramesScanned >= m.escalationMin &&
		float64(stats.FramesSkipped) > m.escalationRatio*float64(stats.FramesScanned) {
		return nil, errors.NewMarkerEscalatedError(stats.FramesSkipped, stats.FramesScanned)
	}

	// Streams the cursor walk could not fully account for are re-read
	// byte-exact; their coarse candidates are discarded wholesale.
	var supplement []uint64
	seen := make(map[uint64]bool)
	for key, g := range groups {
		if g.supplement && !seen[key.StreamID] {
			seen[key.StreamID] = true
			supplement = append(supplement, key.StreamID)
		}
	}
	sort.Slice(supplement, func(i, j int) bool { return supplement[i] < supplement[j] })

	for _, id := range supplement {
		delete(cands, rules.GroupKey{StreamID: id, Direction: rules.DirClientToServer})
		delete(cands, rules.GroupKey{StreamID: id, Direction: rules.DirServerToClient})
		stats.StreamsSupplemented++
		if err := m.supplementStream(ctx, capturePath, id, streams[id], cands, stats); err != nil {
			return nil, err
		}
	}

	b := rules.NewBuilder()
	for _, info := range streams {
		b.AddStream(info)
	}
	for _, rr := range cands {
		for _, r := range rr {
			if aerr := b.Add(r); aerr != nil {
				m.log.Warn().Err(aerr).Msg("dropping malformed rule candidate")
			}
		}
	}
	rs := b.Build()
	stats.RulesEmitted = rs.Len()

	m.log.Info().
		Int("frames", stats.FramesScanned).
		Int("records", stats.RecordsObserved).
		Int("rules", stats.RulesEmitted).
		Int("supplemented", stats.StreamsSupplemented).
		Msg("scan finished")
	return rs, nil
}

// observeFrame advances one group's cursor across one frame and emits
// rule candidates for the records anchored there.
func (m *Marker) observeFrame(g *groupState, fr *dissect.FrameRecord, key rules.GroupKey,
	cands map[rules.GroupKey][]rules.Rule, stats *Stats) {

	ext := g.tracker.Extend(fr.RawSeq)
	frameEnd := ext + uint64(fr.PayloadLen)
	if !g.started {
		g.started = true
		g.next = ext
	}
	if g.supplement {
		// Cursor no longer trusted; the raw pass redoes this stream.
		g.next = frameEnd
		return
	}

	switch {
	case frameEnd <= g.next:
		// Retransmission, or continuation inside the current record.
		return
	case ext > g.next:
		m.flagSupplement(g, key, fr.Number, "gap in captured stream bytes")
		g.next = frameEnd
		return
	}

	if fr.TypesAmbiguous {
		// Spans are trustworthy, types are not.
		m.flagSupplement(g, key, fr.Number, "record kinds mixed within one frame")
		pos := g.next
		for _, rh := range fr.Records {
			pos += recordHeaderLen + uint64(rh.Length)
			stats.RecordsObserved++
		}
		g.next = pos
		return
	}

	if len(fr.Records) == 0 {
		switch {
		case frameEnd > g.next && frameEnd-g.next < recordHeaderLen:
			m.flagSupplement(g, key, fr.Number, "record header split at frame edge")
		case g.sawRecords:
			m.flagSupplement(g, key, fr.Number, "expected record boundary, dissector reported none")
		default:
			// No records anywhere in this direction yet: opaque payload.
		}
		g.next = frameEnd
		return
	}

	g.sawRecords = true
	pos := g.next
	for i := range fr.Records {
		rh := fr.Records[i]
		if err := validateHeader(rh); err != nil {
			stats.FramesSkipped++
			m.log.Warn().Err(err).Uint64("frame", fr.Number).Msg("frame failed classification")
			m.flagSupplement(g, key, fr.Number, "implausible record header")
			g.next = frameEnd
			return
		}
		m.emit(cands, key, pos, rh)
		stats.RecordsObserved++
		pos += recordHeaderLen + uint64(rh.Length)
	}
	g.next = pos

	if g.next < frameEnd {
		if frameEnd-g.next < recordHeaderLen {
			m.flagSupplement(g, key, fr.Number, "record header split at frame edge")
		} else {
			stats.FramesSkipped++
			m.flagSupplement(g, key, fr.Number, "unclassified bytes after last record")
		}
		g.next = frameEnd
	}
}

func (m *Marker) flagSupplement(g *groupState, key rules.GroupKey, frame uint64, reason string) {
	if !g.supplement {
		g.supplement = true
		m.log.Debug().
			Uint64("stream", key.StreamID).
			Str("direction", key.Direction.String()).
			Uint64("frame", frame).
			Str("reason", reason).
			Msg("stream scheduled for raw supplement pass")
	}
}

// emit synthesizes the candidate for one record: a masking rule keeping
// the record header, or an explicit preserve assertion that later wins
// over any overlapping mask.
func (m *Marker) emit(cands map[rules.GroupKey][]rules.Rule, key rules.GroupKey, start uint64, rh dissect.RecordHeader) {
	end := start + recordHeaderLen + uint64(rh.Length)
	var r rules.Rule
	var err error
	if m.policy.DispositionFor(rh.Type) == config.DispositionMask {
		r, err = rules.NewMaskRule(key.StreamID, key.Direction, start, end, recordHeaderLen)
	} else {
		r, err = rules.NewPreserveRule(key.StreamID, key.Direction, start, end)
	}
	if err != nil {
		m.log.Warn().Err(err).Msg("record produced no candidate")
		return
	}
	cands[key] = append(cands[key], r)
}

func validateHeader(rh dissect.RecordHeader) error {
	if !rh.Type.Known() {
		return fmt.Errorf("implausible content type %d", uint8(rh.Type))
	}
	if rh.Version < 0x0300 || rh.Version > 0x0304 {
		return fmt.Errorf("implausible record version %#04x", rh.Version)
	}
	if rh.Length > maxRecordLen {
		return fmt.Errorf("record length %d exceeds protocol maximum", rh.Length)
	}
	return nil
}
