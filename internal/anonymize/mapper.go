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
	"crypto/sha256"
	"io"
	"net"

	"golang.org/x/crypto/hkdf"
)

// Mapper deterministically replaces addresses. The same secret yields
// the same substitution across runs and machines, so captures taken at
// different points stay correlatable after anonymization. Mapped IPv4
// addresses land in 10.0.0.0/8, IPv6 in fd00::/8, unless the original
// prefix is preserved.
type Mapper struct {
	prk      []byte
	preserve bool
	cache    map[string]net.IP
}

// NewMapper creates a Mapper keyed by secret. With preservePrefix set,
// IPv4 keeps its /24 and IPv6 its /48.
func NewMapper(secret string, preservePrefix bool) *Mapper {
	return &Mapper{
		prk:      hkdf.Extract(sha256.New, []byte(secret), []byte("capscrub address map")),
		preserve: preservePrefix,
		cache:    make(map[string]net.IP),
	}
}

// Map substitutes one address. Unspecified, loopback, multicast and
// broadcast addresses pass through: they name conventions, not hosts.
func (m *Mapper) Map(ip net.IP) net.IP {
	if ip.IsUnspecified() || ip.IsLoopback() || ip.IsMulticast() || ip.Equal(net.IPv4bcast) {
		return ip
	}
	if v4 := ip.To4(); v4 != nil {
		return m.mapped(v4, 3, net.IP{10, 0, 0, 0}, 1)
	}
	if len(ip) == net.IPv6len {
		return m.mapped(ip, 6, net.IP{0xfd, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, 1)
	}
	return ip
}

// Count reports how many distinct addresses have been substituted.
func (m *Mapper) Count() int {
	return len(m.cache)
}

// mapped keeps keepLen prefix bytes when preserving, otherwise plants
// the fixed prefix of fixedLen bytes, and fills the rest from the
// per-address HKDF stream.
func (m *Mapper) mapped(ip net.IP, keepLen int, fixed net.IP, fixedLen int) net.IP {
	if got, ok := m.cache[string(ip)]; ok {
		return got
	}

	out := make(net.IP, len(ip))
	var filled int
	if m.preserve {
		filled = keepLen
		copy(out, ip[:keepLen])
	} else {
		filled = fixedLen
		copy(out, fixed[:fixedLen])
	}

	r := hkdf.Expand(sha256.New, m.prk, append([]byte("addr:"), ip...))
	if _, err := io.ReadFull(r, out[filled:]); err != nil {
		// The expand stream cannot run dry for these lengths.
		panic(err)
	}

	m.cache[string(append([]byte(nil), ip...))] = out
	return out
}
