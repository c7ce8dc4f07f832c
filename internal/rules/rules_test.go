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

import (
	"encoding/json"
	"testing"
)

func TestContentTypeNames(t *testing.T) {
	tests := []struct {
		ct    ContentType
		name  string
		known bool
	}{
		{ContentTypeChangeCipherSpec, "change_cipher_spec", true},
		{ContentTypeAlert, "alert", true},
		{ContentTypeHandshake, "handshake", true},
		{ContentTypeApplicationData, "application_data", true},
		{ContentTypeHeartbeat, "heartbeat", true},
		{ContentType(99), "content_type_99", false},
	}
	for _, tt := range tests {
		if got := tt.ct.String(); got != tt.name {
			t.Errorf("expected name '%s', got '%s'", tt.name, got)
		}
		if got := tt.ct.Known(); got != tt.known {
			t.Errorf("%s: expected known=%v, got %v", tt.name, tt.known, got)
		}
	}
}

func TestParseContentType(t *testing.T) {
	ct, err := ParseContentType("application_data")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ct != ContentTypeApplicationData {
		t.Errorf("expected %d, got %d", ContentTypeApplicationData, ct)
	}
	if _, err = ParseContentType("aplication_data"); err == nil {
		t.Error("expected a misspelled name to be rejected")
	}
}

func TestNewMaskRuleValidation(t *testing.T) {
	if _, err := NewMaskRule(0, DirClientToServer, 100, 100, 0); err == nil {
		t.Error("expected empty interval to be rejected")
	}
	if _, err := NewMaskRule(0, DirClientToServer, 100, 104, 5); err == nil {
		t.Error("expected oversized header to be rejected")
	}
	r, err := NewMaskRule(0, DirClientToServer, 100, 420, 5)
	if err != nil {
		t.Fatalf("mask rule: %v", err)
	}
	if r.Metadata.PreserveStrategy != StrategyKeepHeader {
		t.Errorf("expected strategy %q, got %q", StrategyKeepHeader, r.Metadata.PreserveStrategy)
	}
	if r.HeaderEnd() != 105 {
		t.Errorf("expected header end 105, got %d", r.HeaderEnd())
	}
	if r.Len() != 320 {
		t.Errorf("expected length 320, got %d", r.Len())
	}
}

func TestDirectionJSON(t *testing.T) {
	data, err := json.Marshal(DirServerToClient)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"s2c"` {
		t.Errorf(`expected "s2c", got %s`, data)
	}

	var d Direction
	if err = json.Unmarshal([]byte(`"c2s"`), &d); err != nil {
		t.Fatalf("unmarshal name: %v", err)
	}
	if d != DirClientToServer {
		t.Errorf("expected c2s, got %s", d)
	}
	if err = json.Unmarshal([]byte(`1`), &d); err != nil {
		t.Fatalf("unmarshal numeric: %v", err)
	}
	if d != DirServerToClient {
		t.Errorf("expected s2c, got %s", d)
	}
	if err = json.Unmarshal([]byte(`"upstream"`), &d); err == nil {
		t.Error("expected unknown direction name to be rejected")
	}
}
