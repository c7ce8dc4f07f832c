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

// Package dedup drops exact duplicate frames from captures. Mirrored
// SPAN sessions and double-attached taps record the same frame more
// than once within a handful of neighbors; a small sliding window over
// frame digests is enough to shed them without touching ordering.
package dedup

import (
	"context"
	"crypto/sha256"
	stderrors "errors"
	"io"
	"os"

	"github.com/seclens/capscrub/internal/capture"
	"github.com/seclens/capscrub/internal/errors"
	"github.com/seclens/capscrub/internal/logger"
)

// Stats summarizes one dedup run.
type Stats struct {
	PacketsTotal   uint64 `json:"packets_total"`
	PacketsDropped uint64 `json:"packets_dropped"`
}

// Deduper drops duplicates within a fixed-size window of recent frames.
type Deduper struct {
	window int
	log    *logger.Logger
}

// New creates a Deduper comparing each frame against the previous
// window frames.
func New(window int, log *logger.Logger) *Deduper {
	return &Deduper{window: window, log: log.WithComponent("dedup")}
}

// Process copies inPath to outPath, dropping duplicate frames. The
// digest covers frame bytes only, so re-timestamped mirror copies still
// count as duplicates.
func (d *Deduper) Process(ctx context.Context, inPath, outPath string) (*Stats, error) {
	r, err := capture.OpenReader(inPath)
	if err != nil {
		return nil, errors.NewStageError("dedup", err)
	}
	defer r.Close()

	w, err := capture.NewWriterLike(outPath, r)
	if err != nil {
		return nil, errors.NewStageError("dedup", err)
	}

	stats := &Stats{}
	recent := make([][sha256.Size]byte, d.window)
	var filled, next int

	for {
		if cerr := ctx.Err(); cerr != nil {
			w.Close()
			os.Remove(outPath)
			return nil, errors.NewStageError("dedup", cerr)
		}
		data, ci, rerr := r.ReadPacketData()
		if stderrors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			w.Close()
			os.Remove(outPath)
			return nil, errors.NewStageError("dedup", rerr)
		}
		stats.PacketsTotal++

		digest := sha256.Sum256(data)
		dup := false
		for i := 0; i < filled; i++ {
			if recent[i] == digest {
				dup = true
				break
			}
		}
		if dup {
			stats.PacketsDropped++
			continue
		}

		if d.window > 0 {
			recent[next] = digest
			next = (next + 1) % d.window
			if filled < d.window {
				filled++
			}
		}
		if werr := w.WritePacket(ci, data); werr != nil {
			w.Close()
			os.Remove(outPath)
			return nil, errors.NewStageError("dedup", werr)
		}
	}

	if err := w.Close(); err != nil {
		os.Remove(outPath)
		return nil, errors.NewStageError("dedup", err)
	}
	d.log.Info().
		Uint64("packets", stats.PacketsTotal).
		Uint64("dropped", stats.PacketsDropped).
		Msg("duplicates removed")
	return stats, nil
}
