// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSpanID  = "0102030405060708"
	testTraceID = "0102030405060708090a0b0c0d0e0f10"
)

func TestDecodeHeaderOffsets(t *testing.T) {
	b := make([]byte, HeaderSize)
	binary.NativeEndian.PutUint32(b, 2)
	copy(b[4:16], "reserved....")
	copy(b[16:], testSpanID)
	copy(b[32:], testTraceID)

	h, err := DecodeHeader(b)
	require.NoError(t, err)
	assert.Equal(t, Header{Count: 2, SpanID: testSpanID, TraceID: testTraceID}, h)

	_, err = DecodeHeader(b[:63])
	assert.ErrorIs(t, err, errHeaderSize)
}

func TestHeaderMarshal(t *testing.T) {
	h := Header{Count: 3, SpanID: testSpanID, TraceID: testTraceID}
	b, err := h.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 12), b[4:16], "reserved bytes")

	got, err := DecodeHeader(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)

	_, err = Header{SpanID: "01", TraceID: testTraceID}.MarshalBinary()
	assert.ErrorIs(t, err, errIDWrongLength)
}

func TestDecodeDescriptors(t *testing.T) {
	want := []Descriptor{
		{Name: "read", StartSystem: 1000, StartSteady: 10, EndSteady: 60},
		{Name: "epoll_pwait2", StartSystem: 2000, StartSteady: 70, EndSteady: 90},
	}
	var b []byte
	for _, d := range want {
		db, err := d.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, db, DescriptorSize)
		b = append(b, db...)
	}
	assert.Equal(t, []byte("read"), b[:4])
	assert.Equal(t, uint64(1000), binary.NativeEndian.Uint64(b[16:24]))

	got, err := DecodeDescriptors(b, 2)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = DecodeDescriptors(b[:DescriptorSize+1], 2)
	assert.ErrorIs(t, err, errPayloadSize)

	_, err = DecodeDescriptors(nil, MaxSyscalls+1)
	assert.ErrorIs(t, err, errOverCapacity)
}

func TestDescriptorNameUnterminated(t *testing.T) {
	b := make([]byte, DescriptorSize)
	copy(b, strings.Repeat("x", 16))

	got, err := DecodeDescriptors(b, 1)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 16), got[0].Name)

	_, err = Descriptor{Name: strings.Repeat("x", 16)}.MarshalBinary()
	assert.ErrorIs(t, err, errNameTooLong)
}

func TestDescriptorTimes(t *testing.T) {
	d := Descriptor{StartSystem: 1_000_000, StartSteady: 500, EndSteady: 1500}
	assert.Equal(t, time.Unix(0, 1_000_000), d.Start())
	assert.Equal(t, time.Unix(0, 1_001_000), d.End())
}

func TestRecordMarshal(t *testing.T) {
	rec := Record{
		Header:   Header{Count: 99, SpanID: testSpanID, TraceID: testTraceID},
		Syscalls: []Descriptor{{Name: "write"}},
	}
	b, err := rec.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, HeaderSize+DescriptorSize)

	h, err := DecodeHeader(b[:HeaderSize])
	require.NoError(t, err)
	assert.Equal(t, uint32(1), h.Count, "count follows the descriptors")
}

func TestChannelPath(t *testing.T) {
	assert.Equal(t,
		"/sys/kernel/debug/latency/spans/default/channels/rchan-4242-0",
		ChannelPath(ChannelDir, 4242),
	)
}
