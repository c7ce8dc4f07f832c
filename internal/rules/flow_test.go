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

import "testing"

func TestStreamTableNumbering(t *testing.T) {
	tbl := NewStreamTable()

	a := FlowKey{SrcIP: "10.0.0.1", SrcPort: 40000, DstIP: "10.0.0.2", DstPort: 443}
	b := FlowKey{SrcIP: "10.0.0.3", SrcPort: 40001, DstIP: "10.0.0.2", DstPort: 443}

	id, dir := tbl.Lookup(a)
	if id != 0 || dir != DirClientToServer {
		t.Fatalf("expected stream 0 c2s, got %d %s", id, dir)
	}
	id, dir = tbl.Lookup(b)
	if id != 1 || dir != DirClientToServer {
		t.Fatalf("expected stream 1 c2s, got %d %s", id, dir)
	}

	// The reverse flow of the first conversation keeps its number.
	id, dir = tbl.Lookup(a.Reverse())
	if id != 0 || dir != DirServerToClient {
		t.Fatalf("expected stream 0 s2c, got %d %s", id, dir)
	}
	if tbl.Len() != 2 {
		t.Errorf("expected 2 conversations, got %d", tbl.Len())
	}
}

func TestStreamTableFind(t *testing.T) {
	tbl := NewStreamTable()
	k := FlowKey{SrcIP: "192.168.1.5", SrcPort: 55123, DstIP: "93.184.216.34", DstPort: 443}

	if _, _, ok := tbl.Find(k); ok {
		t.Fatal("expected unknown flow before registration")
	}
	tbl.Lookup(k)
	id, dir, ok := tbl.Find(k.Reverse())
	if !ok {
		t.Fatal("expected reverse flow to resolve")
	}
	if id != 0 || dir != DirServerToClient {
		t.Errorf("expected stream 0 s2c, got %d %s", id, dir)
	}
	// Find must not register.
	if tbl.Len() != 1 {
		t.Errorf("expected 1 conversation, got %d", tbl.Len())
	}
}

func TestFlowKeyStrings(t *testing.T) {
	k := FlowKey{SrcIP: "10.1.1.1", SrcPort: 1234, DstIP: "10.1.1.2", DstPort: 443}
	if k.Src() != "10.1.1.1:1234" {
		t.Errorf("expected '10.1.1.1:1234', got '%s'", k.Src())
	}
	if k.Dst() != "10.1.1.2:443" {
		t.Errorf("expected '10.1.1.2:443', got '%s'", k.Dst())
	}
	if k.Reverse().Reverse() != k {
		t.Error("expected double reverse to return the original key")
	}
}
