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

// Package checksum computes internet checksums for rewritten packets.
package checksum

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket/layers"
)

// Add folds the bytes of b into acc as big endian 16-bit words. An odd
// trailing byte is padded with zero. Chaining calls is only sound when
// every chunk before the last has even length.
func Add(acc uint32, b []byte) uint32 {
	n := len(b) &^ 1
	for i := 0; i < n; i += 2 {
		acc += uint32(binary.BigEndian.Uint16(b[i : i+2]))
	}
	if len(b)&1 != 0 {
		acc += uint32(b[len(b)-1]) << 8
	}
	return acc
}

// Fold collapses the carries and returns the ones complement result.
func Fold(acc uint32) uint16 {
	for acc>>16 != 0 {
		acc = acc&0xffff + acc>>16
	}
	return ^uint16(acc)
}

// PseudoHeader sums the TCP/UDP pseudo header. Works for both address
// families; the caller passes addresses in wire length.
func PseudoHeader(src, dst net.IP, protocol layers.IPProtocol, length uint32) uint32 {
	if v4 := src.To4(); v4 != nil {
		src = v4
	}
	if v4 := dst.To4(); v4 != nil {
		dst = v4
	}
	acc := Add(0, src)
	acc = Add(acc, dst)
	acc += uint32(protocol)
	acc += length & 0xffff
	acc += length >> 16
	return acc
}

// Transport computes the transport checksum over segment, treating the
// two checksum bytes at csumOff as zero. csumOff must be even.
func Transport(src, dst net.IP, protocol layers.IPProtocol, segment []byte, csumOff int) uint16 {
	acc := PseudoHeader(src, dst, protocol, uint32(len(segment)))
	acc = Add(acc, segment[:csumOff])
	acc = Add(acc, segment[csumOff+2:])
	return Fold(acc)
}

// TCP computes the checksum of a TCP segment (header plus payload).
func TCP(src, dst net.IP, segment []byte) uint16 {
	return Transport(src, dst, layers.IPProtocolTCP, segment, 16)
}

// UDP computes the checksum of a UDP datagram. A computed zero is sent
// as 0xffff; zero on the wire means the checksum was not computed.
func UDP(src, dst net.IP, segment []byte) uint16 {
	cs := Transport(src, dst, layers.IPProtocolUDP, segment, 6)
	if cs == 0 {
		cs = 0xffff
	}
	return cs
}

// IPv4Header computes the header checksum, treating the stored checksum
// bytes as zero.
func IPv4Header(hdr []byte) uint16 {
	acc := Add(0, hdr[:10])
	acc = Add(acc, hdr[12:])
	return Fold(acc)
}

// Update folds a byte replacement into an existing checksum without
// touching the rest of the covered data (RFC 1624). from and to must
// have the same even length and start on an even offset of the covered
// region. A checksum that was already wrong stays wrong by the same
// amount, which keeps broken captures recognizably broken.
func Update(old uint16, from, to []byte) uint16 {
	acc := uint32(^old)
	for i := 0; i < len(from); i += 2 {
		acc += uint32(^binary.BigEndian.Uint16(from[i : i+2]))
	}
	for i := 0; i < len(to); i += 2 {
		acc += uint32(binary.BigEndian.Uint16(to[i : i+2]))
	}
	return Fold(acc)
}
