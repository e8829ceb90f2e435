// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/warpfusion/warpfusion/internal/batch"
)

// streamNameKey is the Arrow schema metadata key carrying the stream a
// batch belongs to (spec §6.1: "a helper yields (stream_name, batch)").
const streamNameKey = "warpfusion.stream_name"

// Decoder turns one opaque frame payload into the (stream, batch) pair
// the router operates on (spec §6.1: "The core requires only the pair;
// the framing and IPC decoding are provided by an external library").
type Decoder interface {
	Decode(payload []byte) (stream string, rb *batch.RecordBatch, err error)
}

// ArrowIPCDecoder decodes a single-record Arrow IPC stream message,
// reading the producing stream's name from the schema's own metadata.
type ArrowIPCDecoder struct {
	alloc memory.Allocator
}

func NewArrowIPCDecoder() *ArrowIPCDecoder {
	return &ArrowIPCDecoder{alloc: memory.NewGoAllocator()}
}

func (d *ArrowIPCDecoder) Decode(payload []byte) (string, *batch.RecordBatch, error) {
	reader, err := ipc.NewReader(bytes.NewReader(payload), ipc.WithAllocator(d.alloc))
	if err != nil {
		return "", nil, fmt.Errorf("ingest: open ipc reader: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		if err := reader.Err(); err != nil {
			return "", nil, fmt.Errorf("ingest: read ipc record: %w", err)
		}
		return "", nil, fmt.Errorf("ingest: ipc message carried no record")
	}

	rec := reader.Record()
	md := rec.Schema().Metadata()
	idx := md.FindKey(streamNameKey)
	if idx < 0 || md.Values()[idx] == "" {
		return "", nil, fmt.Errorf("ingest: ipc schema missing %q metadata key", streamNameKey)
	}
	stream := md.Values()[idx]

	rec.Retain() // reader releases its own reference when Release()/Next() advance
	return stream, batch.Wrap(rec), nil
}
