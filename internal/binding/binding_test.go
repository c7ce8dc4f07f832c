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

package binding

import (
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/seclens/capscrub/internal/errors"
)

func TestSuspendRestoreRoundTrip(t *testing.T) {
	before := layers.TCPPort(443).LayerType()
	if before == gopacket.LayerTypePayload {
		t.Fatal("expected port 443 to carry a higher-layer binding by default")
	}

	st := Suspend()
	if st.Suspended() == 0 {
		t.Error("expected at least one suspended binding")
	}
	if lt := layers.TCPPort(443).LayerType(); lt != gopacket.LayerTypePayload {
		t.Errorf("expected port 443 to decode as payload while suspended, got %s", lt)
	}

	if err := st.Restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if lt := layers.TCPPort(443).LayerType(); lt != before {
		t.Errorf("expected port 443 binding %s after restore, got %s", before, lt)
	}
}

func TestRestoreOnlyOnce(t *testing.T) {
	st := Suspend()
	if err := st.Restore(); err != nil {
		t.Fatalf("first restore: %v", err)
	}
	err := st.Restore()
	if err == nil {
		t.Fatal("expected second restore to fail")
	}
	if errors.Code(err) != errors.ErrCodeBindingRestore {
		t.Errorf("expected code %d, got %d", errors.ErrCodeBindingRestore, errors.Code(err))
	}
}

func TestWithSuspended(t *testing.T) {
	before := layers.TCPPort(443).LayerType()

	var inside gopacket.LayerType
	err := WithSuspended(func() error {
		inside = layers.TCPPort(443).LayerType()
		return nil
	})
	if err != nil {
		t.Fatalf("with suspended: %v", err)
	}
	if inside != gopacket.LayerTypePayload {
		t.Errorf("expected payload inside the window, got %s", inside)
	}
	if after := layers.TCPPort(443).LayerType(); after != before {
		t.Errorf("expected binding %s after the window, got %s", before, after)
	}
}

func TestWithSuspendedPropagatesError(t *testing.T) {
	scanErr := errors.New(errors.ErrCodeMarkerEscalated, "scan gave up")
	err := WithSuspended(func() error { return scanErr })
	if err != scanErr {
		t.Errorf("expected the scan error back, got %v", err)
	}
	// The window must still be released; a second one must not block.
	done := make(chan struct{})
	go func() {
		st := Suspend()
		_ = st.Restore()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("suspend window was not released after an error")
	}
}

func TestWindowsSerialize(t *testing.T) {
	st := Suspend()

	entered := make(chan struct{})
	go func() {
		inner := Suspend()
		close(entered)
		_ = inner.Restore()
	}()

	select {
	case <-entered:
		t.Fatal("second window opened while the first was held")
	case <-time.After(50 * time.Millisecond):
	}

	if err := st.Restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("second window never opened after release")
	}
}
