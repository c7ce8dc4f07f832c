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

// check_dsb walks a pcapng file block by block and reports any
// Decryption Secrets Block. A sanitized capture that still embeds TLS
// key material hands the masked payloads right back, so the tool exits
// non-zero when a DSB survives. Classic pcap files have no block
// structure and cannot carry secrets; they pass trivially.
//
// Usage: check_dsb <capture file>
package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
)

// pcapng block types, https://datatracker.ietf.org/doc/html/draft-ietf-opsawg-pcapng
const (
	BlockTypeSectionHeader        = 0x0A0D0D0A
	BlockTypeInterfaceDescription = 0x00000001
	BlockTypePacket               = 0x00000002
	BlockTypeSimplePacket         = 0x00000003
	BlockTypeNameResolution       = 0x00000004
	BlockTypeInterfaceStatistics  = 0x00000005
	BlockTypeEnhancedPacket       = 0x00000006
	BlockTypeDecryptionSecrets    = 0x0000000A
	BlockTypeCustomCanCopy        = 0x00000BAD
	BlockTypeCustomNoCopy         = 0x40000BAD
)

// Classic pcap magics, both byte orders plus nanosecond variants.
var pcapMagics = []uint32{0xA1B2C3D4, 0xD4C3B2A1, 0xA1B23C4D, 0x4D3CB2A1}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <capture file>\n", os.Args[0])
		os.Exit(1)
	}

	filename := os.Args[1]
	file, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening file: %v\n", err)
		os.Exit(1)
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)

	var first uint32
	if err := binary.Read(file, binary.LittleEndian, &first); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file header: %v\n", err)
		os.Exit(1)
	}
	for _, magic := range pcapMagics {
		if first == magic {
			fmt.Printf("%s: classic pcap, no block structure, cannot embed decryption secrets\n", filename)
			return
		}
	}
	if first != BlockTypeSectionHeader {
		fmt.Fprintf(os.Stderr, "%s: neither pcap nor pcapng (leading bytes 0x%08X)\n", filename, first)
		os.Exit(1)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		fmt.Fprintf(os.Stderr, "Error seeking: %v\n", err)
		os.Exit(1)
	}

	tally := make(map[string]int)
	dsbCount := 0
	secretBytes := 0

	for {
		var blockType uint32
		var blockLength uint32

		err := binary.Read(file, binary.LittleEndian, &blockType)
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading block type: %v\n", err)
			break
		}

		err = binary.Read(file, binary.LittleEndian, &blockLength)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading block length: %v\n", err)
			break
		}
		if blockLength < 12 || blockLength%4 != 0 {
			fmt.Fprintf(os.Stderr, "Corrupt block length %d, stopping\n", blockLength)
			break
		}

		tally[getBlockName(blockType)]++

		if blockType == BlockTypeDecryptionSecrets {
			dsbCount++
			// Secrets type (4) + secrets length (4) follow the block header.
			var secretsType, secretsLength uint32
			if binary.Read(file, binary.LittleEndian, &secretsType) == nil &&
				binary.Read(file, binary.LittleEndian, &secretsLength) == nil {
				secretBytes += int(secretsLength)
				fmt.Printf("  DSB #%d: secrets type 0x%08X, %d bytes\n", dsbCount, secretsType, secretsLength)
			}
			remaining := int64(blockLength) - 16
			if remaining > 0 {
				if _, err := file.Seek(remaining, io.SeekCurrent); err != nil {
					fmt.Fprintf(os.Stderr, "Error seeking: %v\n", err)
					break
				}
			}
			continue
		}

		// blockLength covers the 8 header bytes already read.
		remaining := int64(blockLength) - 8
		if remaining > 0 {
			if _, err := file.Seek(remaining, io.SeekCurrent); err != nil {
				fmt.Fprintf(os.Stderr, "Error seeking: %v\n", err)
				break
			}
		}
	}

	names := make([]string, 0, len(tally))
	for name := range tally {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Printf("%s:\n", filename)
	for _, name := range names {
		fmt.Printf("  %6d  %s\n", tally[name], name)
	}

	if dsbCount > 0 {
		fmt.Printf("FAIL: %d decryption secrets block(s), %d bytes of key material still embedded\n", dsbCount, secretBytes)
		os.Exit(1)
	}
	fmt.Println("OK: no decryption secrets blocks")
}

func getBlockName(blockType uint32) string {
	switch blockType {
	case BlockTypeSectionHeader:
		return "Section Header Block"
	case BlockTypeInterfaceDescription:
		return "Interface Description Block"
	case BlockTypePacket:
		return "Packet Block (deprecated)"
	case BlockTypeSimplePacket:
		return "Simple Packet Block"
	case BlockTypeNameResolution:
		return "Name Resolution Block"
	case BlockTypeInterfaceStatistics:
		return "Interface Statistics Block"
	case BlockTypeEnhancedPacket:
		return "Enhanced Packet Block"
	case BlockTypeDecryptionSecrets:
		return "Decryption Secrets Block (DSB)"
	case BlockTypeCustomCanCopy:
		return "Custom Block (can copy)"
	case BlockTypeCustomNoCopy:
		return "Custom Block (no copy)"
	default:
		return "Unknown"
	}
}
