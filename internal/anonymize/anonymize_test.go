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

package anonymize

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/seclens/capscrub/internal/capture"
	"github.com/seclens/capscrub/internal/checksum"
	"github.com/seclens/capscrub/internal/config"
	"github.com/seclens/capscrub/internal/logger"
)

func TestMapperDeterministic(t *testing.T) {
	a := NewMapper("secret-a", false)
	b := NewMapper("secret-a", false)
	c := NewMapper("secret-b", false)

	ip := net.ParseIP("192.0.2.55").To4()
	first := a.Map(ip)
	if !first.Equal(a.Map(ip)) {
		t.Error("same mapper must be stable")
	}
	if !first.Equal(b.Map(ip)) {
		t.Error("same secret must map identically across instances")
	}
	if first.Equal(c.Map(ip)) {
		t.Error("different secrets should not collide on the same address")
	}
	if a.Count() != 1 {
		t.Errorf("expected 1 mapped address, got %d", a.Count())
	}
}

func TestMapperPrefixes(t *testing.T) {
	flat := NewMapper("s", false)
	got := flat.Map(net.ParseIP("192.0.2.55").To4())
	if got[0] != 10 {
		t.Errorf("expected mapped v4 inside 10.0.0.0/8, got %v", got)
	}
	got6 := flat.Map(net.ParseIP("2001:db8::5"))
	if got6[0] != 0xfd {
		t.Errorf("expected mapped v6 inside fd00::/8, got %v", got6)
	}

	keep := NewMapper("s", true)
	h1 := keep.Map(net.ParseIP("192.0.2.55").To4())
	h2 := keep.Map(net.ParseIP("192.0.2.99").To4())
	if !bytes.Equal(h1[:3], []byte{192, 0, 2}) || !bytes.Equal(h2[:3], []byte{192, 0, 2}) {
		t.Errorf("expected /24 preserved, got %v and %v", h1, h2)
	}
	k6 := keep.Map(net.ParseIP("2001:db8:1111::5"))
	if !bytes.Equal(k6[:6], net.ParseIP("2001:db8:1111::5")[:6]) {
		t.Errorf("expected /48 preserved, got %v", k6)
	}
}

func TestMapperSpecialAddressesUntouched(t *testing.T) {
	m := NewMapper("s", false)
	for _, raw := range []string{"0.0.0.0", "127.0.0.1", "224.0.0.251", "255.255.255.255", "::1", "ff02::fb"} {
		ip := net.ParseIP(raw)
		if got := m.Map(ip); !got.Equal(ip) {
			t.Errorf("expected %s untouched, got %s", raw, got)
		}
	}
	if m.Count() != 0 {
		t.Errorf("special addresses must not enter the cache, got %d", m.Count())
	}
}

func buildTCP(t *testing.T, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.ParseIP("192.0.2.10").To4(), DstIP: net.ParseIP("198.51.100.20").To4(),
	}
	tcp := &layers.TCP{SrcPort: 50000, DstPort: 443, Seq: 10, ACK: true, PSH: true, Window: 1024}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out
}

func writeOne(t *testing.T, path string, pkt []byte) {
	t.Helper()
	w, err := capture.NewWriter(path, capture.FormatPcap, layers.LinkTypeEthernet, capture.DefaultSnapLen)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ci := gopacket.CaptureInfo{Timestamp: time.Unix(1700000000, 0), CaptureLength: len(pkt), Length: len(pkt)}
	if err := w.WritePacket(ci, pkt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func readOne(t *testing.T, path string) []byte {
	t.Helper()
	r, err := capture.OpenReader(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()
	data, _, err := r.ReadPacketData()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return data
}

func newAnonymizer(secret string) *Anonymizer {
	return New(&config.AnonymizeConfig{Secret: secret}, logger.New(io.Discard, false))
}

func TestProcessRewritesAddressesAndChecksums(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pcap")
	out := filepath.Join(dir, "out.pcap")

	payload := bytes.Repeat([]byte{0x5a}, 30)
	pkt := buildTCP(t, payload)
	writeOne(t, in, pkt)

	stats, err := newAnonymizer("k").Process(context.Background(), in, out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := readOne(t, out)

	src := net.IP(got[26:30])
	dst := net.IP(got[30:34])
	if src.Equal(net.ParseIP("192.0.2.10")) || dst.Equal(net.ParseIP("198.51.100.20")) {
		t.Error("addresses should be substituted")
	}
	if src[0] != 10 || dst[0] != 10 {
		t.Errorf("expected mapped addresses inside 10.0.0.0/8, got %s and %s", src, dst)
	}
	if !bytes.Equal(got[54:], payload) {
		t.Error("payload must pass through untouched")
	}

	hdrCS := binary.BigEndian.Uint16(got[24:26])
	if want := checksum.IPv4Header(got[14:34]); hdrCS != want {
		t.Errorf("expected ip checksum %#04x, got %#04x", want, hdrCS)
	}
	seg := got[34:]
	if want := checksum.TCP(src, dst, seg); binary.BigEndian.Uint16(seg[16:18]) != want {
		t.Errorf("expected tcp checksum %#04x, got %#04x", want, binary.BigEndian.Uint16(seg[16:18]))
	}

	if stats.PacketsRewritten != 1 || stats.AddressesMapped != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestProcessDeterministicAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pcap")
	out1 := filepath.Join(dir, "out1.pcap")
	out2 := filepath.Join(dir, "out2.pcap")

	writeOne(t, in, buildTCP(t, []byte("same bytes")))

	if _, err := newAnonymizer("shared").Process(context.Background(), in, out1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := newAnonymizer("shared").Process(context.Background(), in, out2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b1, err := os.ReadFile(out1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b2, err := os.ReadFile(out2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(b1, b2) {
		t.Error("same secret must produce identical captures")
	}
}

func TestProcessUDPZeroChecksumStaysZero(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pcap")
	out := filepath.Join(dir, "out.pcap")

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.ParseIP("192.0.2.10").To4(), DstIP: net.ParseIP("198.51.100.20").To4(),
	}
	udp := &layers.UDP{SrcPort: 1900, DstPort: 1900}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload([]byte("notify"))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pkt := make([]byte, len(buf.Bytes()))
	copy(pkt, buf.Bytes())
	pkt[40] = 0 // udp checksum bytes
	pkt[41] = 0
	writeOne(t, in, pkt)

	if _, err := newAnonymizer("k").Process(context.Background(), in, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := readOne(t, out)
	if got[40] != 0 || got[41] != 0 {
		t.Errorf("uncomputed udp checksum must stay zero, got %#02x%02x", got[40], got[41])
	}
	if net.IP(got[26:30]).Equal(net.ParseIP("192.0.2.10")) {
		t.Error("addresses should still be substituted")
	}
}

func TestProcessRewritesARP(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pcap")
	out := filepath.Join(dir, "out.pcap")

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
		HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPRequest,
		SourceHwAddress: []byte{2, 0, 0, 0, 0, 1}, SourceProtAddress: []byte{192, 0, 2, 10},
		DstHwAddress: []byte{0, 0, 0, 0, 0, 0}, DstProtAddress: []byte{192, 0, 2, 1},
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, arp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pkt := make([]byte, len(buf.Bytes()))
	copy(pkt, buf.Bytes())
	writeOne(t, in, pkt)

	if _, err := newAnonymizer("k").Process(context.Background(), in, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := readOne(t, out)

	// eth 14 + arp fixed fields 8, then sha 6, spa 4, tha 6, tpa 4
	spa := net.IP(got[28:32])
	tpa := net.IP(got[38:42])
	if spa.Equal(net.IP{192, 0, 2, 10}) || tpa.Equal(net.IP{192, 0, 2, 1}) {
		t.Error("arp protocol addresses should be substituted")
	}
	if !bytes.Equal(got[22:28], []byte{2, 0, 0, 0, 0, 1}) {
		t.Error("arp hardware addresses must pass through")
	}
}
