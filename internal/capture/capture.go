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

// Package capture reads and writes packet capture files. The container
// format is sniffed from the file magic, and output is written in the
// same format and timestamp resolution as the input so a sanitized copy
// differs from the original only where payload bytes were rewritten.
package capture

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// DefaultSnapLen is used when the input container does not carry one.
const DefaultSnapLen uint32 = math.MaxUint16

// Format is the capture container format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatPcap           // classic pcap, microsecond timestamps
	FormatPcapNanos      // classic pcap, nanosecond timestamps
	FormatPcapNg
)

func (f Format) String() string {
	switch f {
	case FormatPcap:
		return "pcap"
	case FormatPcapNanos:
		return "pcap-nanos"
	case FormatPcapNg:
		return "pcapng"
	default:
		return "unknown"
	}
}

const (
	magicMicros = 0xa1b2c3d4
	magicNanos  = 0xa1b23c4d
	magicNg     = 0x0a0d0d0a
)

// Sniff determines the container format from the file magic.
func Sniff(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer func() { _ = f.Close() }()

	var buf [4]byte
	if _, err = io.ReadFull(f, buf[:]); err != nil {
		return FormatUnknown, fmt.Errorf("capture too short for a file header: %w", err)
	}
	return formatForMagic(buf), nil
}

func formatForMagic(buf [4]byte) Format {
	be := binary.BigEndian.Uint32(buf[:])
	le := binary.LittleEndian.Uint32(buf[:])
	switch {
	case be == magicNg:
		return FormatPcapNg
	case be == magicMicros || le == magicMicros:
		return FormatPcap
	case be == magicNanos || le == magicNanos:
		return FormatPcapNanos
	default:
		return FormatUnknown
	}
}

// Reader reads packets from a capture file in on-disk order.
type Reader struct {
	f      *os.File
	format Format
	pr     *pcapgo.Reader
	ngr    *pcapgo.NgReader
}

// OpenReader opens a capture file of any supported format.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var buf [4]byte
	if _, err = io.ReadFull(f, buf[:]); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("capture too short for a file header: %w", err)
	}
	if _, err = f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, err
	}

	r := &Reader{f: f, format: formatForMagic(buf)}
	switch r.format {
	case FormatPcap, FormatPcapNanos:
		r.pr, err = pcapgo.NewReader(f)
	case FormatPcapNg:
		// A capture whose interfaces disagree on link type fails loudly
		// instead of silently dropping frames.
		r.ngr, err = pcapgo.NewNgReader(f, pcapgo.NgReaderOptions{
			ErrorOnMismatchingLinkType: true,
			SkipUnknownVersion:         true,
		})
	default:
		err = fmt.Errorf("unrecognized capture magic %x", buf)
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

// Format returns the sniffed container format.
func (r *Reader) Format() Format {
	return r.format
}

// LinkType returns the link type of the capture.
func (r *Reader) LinkType() layers.LinkType {
	if r.pr != nil {
		return r.pr.LinkType()
	}
	return r.ngr.LinkType()
}

// Snaplen returns the capture's snapshot length, or DefaultSnapLen when
// the container does not record one.
func (r *Reader) Snaplen() uint32 {
	if r.pr != nil {
		if s := r.pr.Snaplen(); s > 0 {
			return s
		}
	}
	return DefaultSnapLen
}

// ReadPacketData returns the next packet. io.EOF marks the end of the
// capture.
func (r *Reader) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	if r.pr != nil {
		return r.pr.ReadPacketData()
	}
	return r.ngr.ReadPacketData()
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}

// Writer writes packets to a capture file, preserving submission order.
type Writer struct {
	f   *os.File
	bw  *bufio.Writer
	pw  *pcapgo.Writer
	ngw *pcapgo.NgWriter
}

// NewWriter creates a capture file in the given format.
func NewWriter(path string, format Format, linkType layers.LinkType, snaplen uint32) (*Writer, error) {
	if snaplen == 0 {
		snaplen = DefaultSnapLen
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := &Writer{f: f}
	switch format {
	case FormatPcap, FormatPcapNanos:
		w.bw = bufio.NewWriter(f)
		if format == FormatPcapNanos {
			w.pw = pcapgo.NewWriterNanos(w.bw)
		} else {
			w.pw = pcapgo.NewWriter(w.bw)
		}
		err = w.pw.WriteFileHeader(snaplen, linkType)
	case FormatPcapNg:
		iface := pcapgo.NgInterface{
			Name:       "capscrub",
			LinkType:   linkType,
			SnapLength: snaplen,
		}
		opts := pcapgo.NgWriterOptions{
			SectionInfo: pcapgo.NgSectionInfo{
				Application: "capscrub",
			},
		}
		w.ngw, err = pcapgo.NewNgWriterInterface(f, iface, opts)
	default:
		err = fmt.Errorf("cannot write capture format %s", format)
	}
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	return w, nil
}

// NewWriterLike creates a writer matching the container format, link type
// and snapshot length of an open reader.
func NewWriterLike(path string, r *Reader) (*Writer, error) {
	return NewWriter(path, r.Format(), r.LinkType(), r.Snaplen())
}

// WritePacket appends one packet.
func (w *Writer) WritePacket(ci gopacket.CaptureInfo, data []byte) error {
	if w.pw != nil {
		return w.pw.WritePacket(ci, data)
	}
	// Output consolidates to a single interface section.
	ci.InterfaceIndex = 0
	return w.ngw.WritePacket(ci, data)
}

// Close flushes buffered data and closes the file.
func (w *Writer) Close() error {
	var ferr error
	if w.bw != nil {
		ferr = w.bw.Flush()
	}
	if w.ngw != nil {
		ferr = w.ngw.Flush()
	}
	cerr := w.f.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}
