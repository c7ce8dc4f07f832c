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

// seqHalf splits the 32-bit sequence space. A backward jump larger than
// this is a wrap, not a retransmission; a forward jump larger than this
// from a post-wrap position is a pre-wrap straggler.
const seqHalf = 1 << 31

// SeqTracker extends raw 32-bit TCP sequence numbers into a monotonic
// 64-bit offset space, one epoch per wrap of the wire counter. Both rule
// producers and rule consumers extend with the same logic, so an interval
// emitted for a post-wrap byte range addresses exactly the bytes the
// masker sees there. One tracker per (stream, direction).
type SeqTracker struct {
	epoch   uint64
	lastRaw uint32
	seen    bool
}

// Extend maps the raw wire sequence number to its extended 64-bit offset
// and advances the tracker. Retransmissions resolve into their original
// epoch; a straggler from before a wrap does not rewind the epoch
// counter.
func (t *SeqTracker) Extend(raw uint32) uint64 {
	if !t.seen {
		t.seen = true
		t.lastRaw = raw
		return uint64(raw)
	}

	epoch := t.epoch
	switch {
	case raw < t.lastRaw && t.lastRaw-raw > seqHalf:
		// The counter wrapped past zero.
		epoch++
		t.epoch = epoch
		t.lastRaw = raw
	case raw > t.lastRaw && raw-t.lastRaw > seqHalf && t.epoch > 0:
		// Late arrival from the previous epoch.
		epoch--
	default:
		if raw > t.lastRaw {
			t.lastRaw = raw
		}
	}
	return epoch<<32 | uint64(raw)
}

// Epoch returns the current wrap count.
func (t *SeqTracker) Epoch() uint64 {
	return t.epoch
}
