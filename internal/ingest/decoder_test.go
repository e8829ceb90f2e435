// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"bytes"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

func encodeIPCFrame(t *testing.T, streamName string) []byte {
	t.Helper()
	md := arrow.NewMetadata([]string{streamNameKey}, []string{streamName})
	schema := arrow.NewSchema([]arrow.Field{{Name: "sip", Type: arrow.BinaryTypes.String}}, &md)

	pool := memory.NewGoAllocator()
	b := array.NewRecordBuilder(pool, schema)
	defer b.Release()
	b.Field(0).(*array.StringBuilder).Append("1.2.3.4")
	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(pool))
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestArrowIPCDecoderRoundTrip(t *testing.T) {
	payload := encodeIPCFrame(t, "auth_syslog")
	d := NewArrowIPCDecoder()

	stream, rb, err := d.Decode(payload)
	require.NoError(t, err)
	defer rb.Release()

	require.Equal(t, "auth_syslog", stream)
	require.Equal(t, int64(1), rb.NumRows())

	ev, err := rb.Row(0)
	require.NoError(t, err)
	require.Equal(t, "1.2.3.4", ev.Field("sip").String())
}

func TestArrowIPCDecoderMissingStreamMetadataFails(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{{Name: "sip", Type: arrow.BinaryTypes.String}}, nil)
	pool := memory.NewGoAllocator()
	b := array.NewRecordBuilder(pool, schema)
	defer b.Release()
	b.Field(0).(*array.StringBuilder).Append("1.2.3.4")
	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(pool))
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())

	d := NewArrowIPCDecoder()
	_, _, err := d.Decode(buf.Bytes())
	require.Error(t, err)
}

func TestArrowIPCDecoderMalformedPayloadFails(t *testing.T) {
	d := NewArrowIPCDecoder()
	_, _, err := d.Decode([]byte("not an ipc stream"))
	require.Error(t, err)
}
