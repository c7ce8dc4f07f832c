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

// Package binding suspends and restores the packet decoding library's
// process-global port-to-protocol tables. While suspended, every TCP and
// UDP port decodes to raw payload, so a scan observes exact payload bytes
// instead of dissected upper layers. The tables are process-wide mutable
// state, therefore only one suspend window may exist at a time and the
// package serializes them.
package binding

import (
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/seclens/capscrub/internal/errors"
)

// windowMu is held from Suspend until Restore. Concurrent scans queue
// here rather than observing each other's half-modified tables.
var windowMu sync.Mutex

// State is the snapshot taken by Suspend. It restores exactly once.
type State struct {
	tcp      map[layers.TCPPort]gopacket.LayerType
	udp      map[layers.UDPPort]gopacket.LayerType
	restored bool
}

// Suspend snapshots every port bound to a higher-layer protocol and
// rebinds it to raw payload. The returned State must be restored by the
// same caller; until then every other Suspend blocks.
func Suspend() *State {
	windowMu.Lock()

	st := &State{
		tcp: make(map[layers.TCPPort]gopacket.LayerType),
		udp: make(map[layers.UDPPort]gopacket.LayerType),
	}
	for p := 0; p <= 0xFFFF; p++ {
		if lt := layers.TCPPort(p).LayerType(); lt != gopacket.LayerTypePayload {
			st.tcp[layers.TCPPort(p)] = lt
			layers.RegisterTCPPortLayerType(layers.TCPPort(p), gopacket.LayerTypePayload)
		}
		if lt := layers.UDPPort(p).LayerType(); lt != gopacket.LayerTypePayload {
			st.udp[layers.UDPPort(p)] = lt
			layers.RegisterUDPPortLayerType(layers.UDPPort(p), gopacket.LayerTypePayload)
		}
	}
	return st
}

// Restore writes the snapshot back and ends the suspend window. A State
// restores exactly once; further calls fail without touching the tables.
func (s *State) Restore() error {
	if s == nil {
		return errors.New(errors.ErrCodeBindingRestore, "nil binding state")
	}
	if s.restored {
		return errors.New(errors.ErrCodeBindingRestore, "binding state already restored")
	}
	for p, lt := range s.tcp {
		layers.RegisterTCPPortLayerType(p, lt)
	}
	for p, lt := range s.udp {
		layers.RegisterUDPPortLayerType(p, lt)
	}
	s.restored = true
	windowMu.Unlock()
	return nil
}

// Suspended reports how many port bindings the snapshot holds.
func (s *State) Suspended() int {
	return len(s.tcp) + len(s.udp)
}

// WithSuspended runs fn inside a suspend window. The tables are restored
// on every exit path, including panics, and a restore failure surfaces
// even when fn succeeded. When both fail, fn's error wins and the restore
// failure is attached as context.
func WithSuspended(fn func() error) (err error) {
	st := Suspend()
	defer func() {
		if rerr := st.Restore(); rerr != nil {
			if err == nil {
				err = errors.NewBindingRestoreError(rerr)
			} else if ce, ok := err.(*errors.Error); ok {
				ce.WithContext("binding_restore", rerr.Error())
			}
		}
	}()
	return fn()
}
