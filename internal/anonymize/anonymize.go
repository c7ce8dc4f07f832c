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

// Package anonymize rewrites network addresses in captures. Transport
// checksums are patched incrementally from the address delta, which
// works even for frames the snap length cut short and keeps
// already-broken checksums recognizably broken.
package anonymize

import (
	"context"
	stderrors "errors"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/seclens/capscrub/internal/capture"
	"github.com/seclens/capscrub/internal/checksum"
	"github.com/seclens/capscrub/internal/config"
	"github.com/seclens/capscrub/internal/errors"
	"github.com/seclens/capscrub/internal/logger"
)

// Stats summarizes one anonymization run.
type Stats struct {
	PacketsTotal     uint64 `json:"packets_total"`
	PacketsRewritten uint64 `json:"packets_rewritten"`
	PacketsSkipped   uint64 `json:"packets_skipped"`
	AddressesMapped  int    `json:"addresses_mapped"`
}

// Anonymizer rewrites captures with substituted addresses.
type Anonymizer struct {
	mapper *Mapper
	log    *logger.Logger
}

// New creates an Anonymizer from its stage config.
func New(cfg *config.AnonymizeConfig, log *logger.Logger) *Anonymizer {
	return &Anonymizer{
		mapper: NewMapper(cfg.Secret, cfg.PreservePrefix),
		log:    log.WithComponent("anonymize"),
	}
}

// Process copies inPath to outPath with addresses substituted. Packets
// it cannot decode pass through unchanged.
func (a *Anonymizer) Process(ctx context.Context, inPath, outPath string) (*Stats, error) {
	r, err := capture.OpenReader(inPath)
	if err != nil {
		return nil, errors.NewStageError("anonymize", err)
	}
	defer r.Close()

	w, err := capture.NewWriterLike(outPath, r)
	if err != nil {
		return nil, errors.NewStageError("anonymize", err)
	}

	stats := &Stats{}
	linkType := r.LinkType()
	for {
		if cerr := ctx.Err(); cerr != nil {
			w.Close()
			os.Remove(outPath)
			return nil, errors.NewStageError("anonymize", cerr)
		}
		data, ci, rerr := r.ReadPacketData()
		if stderrors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			w.Close()
			os.Remove(outPath)
			return nil, errors.NewStageError("anonymize", rerr)
		}
		stats.PacketsTotal++

		a.rewrite(data, linkType, stats)

		if werr := w.WritePacket(ci, data); werr != nil {
			w.Close()
			os.Remove(outPath)
			return nil, errors.NewStageError("anonymize", werr)
		}
	}

	if err := w.Close(); err != nil {
		os.Remove(outPath)
		return nil, errors.NewStageError("anonymize", err)
	}
	stats.AddressesMapped = a.mapper.Count()
	a.log.Info().
		Uint64("packets", stats.PacketsTotal).
		Uint64("rewritten", stats.PacketsRewritten).
		Int("addresses", stats.AddressesMapped).
		Msg("addresses anonymized")
	return stats, nil
}

// rewrite substitutes the addresses of one packet in place. Only the
// outermost network header is rewritten; tunneled inner headers are out
// of reach of the rule engine as well and void the whole approach, so
// they are left for the operator to notice in the report.
func (a *Anonymizer) rewrite(data []byte, linkType layers.LinkType, stats *Stats) {
	pkt := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{NoCopy: true})

	off := 0
	ipOff, transOff, arpOff := -1, -1, -1
	var ipType, transType gopacket.LayerType
	for _, l := range pkt.Layers() {
		switch l.LayerType() {
		case layers.LayerTypeIPv4, layers.LayerTypeIPv6:
			if ipOff < 0 {
				ipOff = off
				ipType = l.LayerType()
			}
		case layers.LayerTypeTCP, layers.LayerTypeUDP:
			if transOff < 0 && ipOff >= 0 {
				transOff = off
				transType = l.LayerType()
			}
		case layers.LayerTypeARP:
			arpOff = off
		}
		off += len(l.LayerContents())
	}

	switch {
	case ipType == layers.LayerTypeIPv4 && ipOff >= 0:
		a.rewriteIPv4(data, pkt, ipOff, transOff, transType, stats)
	case ipType == layers.LayerTypeIPv6 && ipOff >= 0:
		a.rewriteIPv6(data, pkt, ipOff, transOff, transType, stats)
	case arpOff >= 0:
		a.rewriteARP(data, pkt, arpOff, stats)
	default:
		if pkt.ErrorLayer() != nil {
			stats.PacketsSkipped++
		}
	}
}

func (a *Anonymizer) rewriteIPv4(data []byte, pkt gopacket.Packet, ipOff, transOff int, transType gopacket.LayerType, stats *Stats) {
	v4, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok || ipOff+20 > len(data) {
		stats.PacketsSkipped++
		return
	}
	oldSrc := append([]byte(nil), v4.SrcIP.To4()...)
	oldDst := append([]byte(nil), v4.DstIP.To4()...)
	newSrc := a.mapper.Map(oldSrc)
	newDst := a.mapper.Map(oldDst)
	if newSrc.Equal(oldSrc) && newDst.Equal(oldDst) {
		return
	}
	copy(data[ipOff+12:ipOff+16], newSrc)
	copy(data[ipOff+16:ipOff+20], newDst)

	ihl := int(v4.IHL) * 4
	if ihl >= 20 && ipOff+ihl <= len(data) {
		cs := checksum.IPv4Header(data[ipOff : ipOff+ihl])
		data[ipOff+10] = byte(cs >> 8)
		data[ipOff+11] = byte(cs)
	}
	a.patchTransport(data, transOff, transType, append(oldSrc, oldDst...), append(append([]byte(nil), newSrc...), newDst...))
	stats.PacketsRewritten++
}

func (a *Anonymizer) rewriteIPv6(data []byte, pkt gopacket.Packet, ipOff, transOff int, transType gopacket.LayerType, stats *Stats) {
	v6, ok := pkt.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
	if !ok || ipOff+40 > len(data) {
		stats.PacketsSkipped++
		return
	}
	oldSrc := append([]byte(nil), v6.SrcIP...)
	oldDst := append([]byte(nil), v6.DstIP...)
	newSrc := a.mapper.Map(oldSrc)
	newDst := a.mapper.Map(oldDst)
	if newSrc.Equal(oldSrc) && newDst.Equal(oldDst) {
		return
	}
	copy(data[ipOff+8:ipOff+24], newSrc)
	copy(data[ipOff+24:ipOff+40], newDst)

	a.patchTransport(data, transOff, transType, append(oldSrc, oldDst...), append(append([]byte(nil), newSrc...), newDst...))
	stats.PacketsRewritten++
}

// patchTransport folds the pseudo header address delta into the stored
// transport checksum.
func (a *Anonymizer) patchTransport(data []byte, transOff int, transType gopacket.LayerType, oldAddrs, newAddrs []byte) {
	if transOff < 0 {
		return
	}
	var csOff int
	switch transType {
	case layers.LayerTypeTCP:
		csOff = transOff + 16
	case layers.LayerTypeUDP:
		csOff = transOff + 6
	default:
		return
	}
	if csOff+2 > len(data) {
		return
	}
	old := uint16(data[csOff])<<8 | uint16(data[csOff+1])
	if transType == layers.LayerTypeUDP && old == 0 {
		// Checksum was never computed; zero stays zero.
		return
	}
	cs := checksum.Update(old, oldAddrs, newAddrs)
	data[csOff] = byte(cs >> 8)
	data[csOff+1] = byte(cs)
}

// rewriteARP substitutes the protocol addresses gratuitous and probe
// ARP frames would otherwise leak.
func (a *Anonymizer) rewriteARP(data []byte, pkt gopacket.Packet, arpOff int, stats *Stats) {
	arp, ok := pkt.Layer(layers.LayerTypeARP).(*layers.ARP)
	if !ok || arp.Protocol != layers.EthernetTypeIPv4 || arp.ProtAddressSize != 4 {
		return
	}
	hlen := int(arp.HwAddressSize)
	spaOff := arpOff + 8 + hlen
	tpaOff := spaOff + 4 + hlen
	if tpaOff+4 > len(data) {
		stats.PacketsSkipped++
		return
	}
	newSpa := a.mapper.Map(append([]byte(nil), arp.SourceProtAddress...))
	newTpa := a.mapper.Map(append([]byte(nil), arp.DstProtAddress...))
	copy(data[spaOff:spaOff+4], newSpa)
	copy(data[tpaOff:tpaOff+4], newTpa)
	stats.PacketsRewritten++
}
