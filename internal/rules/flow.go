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

import "fmt"

// FlowKey identifies one direction of a TCP conversation by its endpoint
// addresses. IPs are held in string form exactly as the dissector and the
// packet decoder render them, so both producers index the same way.
type FlowKey struct {
	SrcIP   string
	SrcPort uint16
	DstIP   string
	DstPort uint16
}

// Reverse returns the key of the opposite direction.
func (k FlowKey) Reverse() FlowKey {
	return FlowKey{SrcIP: k.DstIP, SrcPort: k.DstPort, DstIP: k.SrcIP, DstPort: k.SrcPort}
}

func (k FlowKey) String() string {
	return fmt.Sprintf("%s:%d->%s:%d", k.SrcIP, k.SrcPort, k.DstIP, k.DstPort)
}

// Src returns the source endpoint in "ip:port" form.
func (k FlowKey) Src() string {
	return fmt.Sprintf("%s:%d", k.SrcIP, k.SrcPort)
}

// Dst returns the destination endpoint in "ip:port" form.
func (k FlowKey) Dst() string {
	return fmt.Sprintf("%s:%d", k.DstIP, k.DstPort)
}

// convKey is direction-independent: both orientations of a conversation
// map to the same string.
func (k FlowKey) convKey() string {
	a, b := k.Src(), k.Dst()
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

type streamEntry struct {
	id        uint64
	initiator FlowKey
}

// StreamTable assigns conversation numbers in first-seen order, the same
// numbering external dissectors give TCP streams, and remembers which
// endpoint spoke first. The first-seen source is the client.
type StreamTable struct {
	conversations map[string]streamEntry
	next          uint64
}

// NewStreamTable creates an empty table.
func NewStreamTable() *StreamTable {
	return &StreamTable{conversations: make(map[string]streamEntry)}
}

// Lookup resolves the stream number and direction for a packet flowing
// k.Src -> k.Dst, registering the conversation on first sight.
func (t *StreamTable) Lookup(k FlowKey) (uint64, Direction) {
	ck := k.convKey()
	e, ok := t.conversations[ck]
	if !ok {
		e = streamEntry{id: t.next, initiator: k}
		t.conversations[ck] = e
		t.next++
	}
	if k == e.initiator {
		return e.id, DirClientToServer
	}
	return e.id, DirServerToClient
}

// Find resolves without registering.
func (t *StreamTable) Find(k FlowKey) (uint64, Direction, bool) {
	e, ok := t.conversations[k.convKey()]
	if !ok {
		return 0, DirClientToServer, false
	}
	if k == e.initiator {
		return e.id, DirClientToServer, true
	}
	return e.id, DirServerToClient, true
}

// Len returns the number of conversations seen.
func (t *StreamTable) Len() int {
	return len(t.conversations)
}
