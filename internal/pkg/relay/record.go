// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/latency-tracker/msprofile/internal/pkg/kernel"
)

const (
	// HeaderSize is the size of an encoded [Header].
	HeaderSize = 64
	// DescriptorSize is the size of an encoded [Descriptor].
	DescriptorSize = 40
	// MaxSyscalls is the largest descriptor count accepted in one record.
	MaxSyscalls = 256

	nameSize    = 16
	spanIDOff   = 16
	traceIDOff  = 32
	spanIDLen   = 16
	traceIDLen  = 32
)

var (
	errHeaderSize    = errors.New("invalid relay header size")
	errPayloadSize   = errors.New("invalid relay payload size")
	errOverCapacity  = errors.New("relay record exceeds syscall capacity")
	errNameTooLong   = errors.New("syscall name too long")
	errIDWrongLength = errors.New("hex identifier has wrong length")
)

// Header precedes every batch of syscall descriptors on the relay channel.
type Header struct {
	// Count is the number of descriptors following the header.
	Count uint32
	// SpanID is the hex id of the application span that was active.
	SpanID string
	// TraceID is the hex id of the trace of that span.
	TraceID string
}

// DecodeHeader decodes a [HeaderSize] byte header. The identifiers are
// returned as written by the module and are not validated here.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderSize {
		return Header{}, fmt.Errorf("%w: %d", errHeaderSize, len(b))
	}
	return Header{
		Count:   binary.NativeEndian.Uint32(b[0:4]),
		SpanID:  string(b[spanIDOff : spanIDOff+spanIDLen]),
		TraceID: string(b[traceIDOff : traceIDOff+traceIDLen]),
	}, nil
}

// MarshalBinary encodes h in the module layout. The reserved bytes are zero.
func (h Header) MarshalBinary() ([]byte, error) {
	if len(h.SpanID) != spanIDLen || len(h.TraceID) != traceIDLen {
		return nil, errIDWrongLength
	}
	b := make([]byte, HeaderSize)
	binary.NativeEndian.PutUint32(b[0:4], h.Count)
	copy(b[spanIDOff:], h.SpanID)
	copy(b[traceIDOff:], h.TraceID)
	return b, nil
}

// Descriptor describes one syscall observed by the module.
type Descriptor struct {
	// Name is the syscall name, at most 15 bytes.
	Name string
	// StartSystem is the syscall entry on the system clock, in ns since the
	// Unix epoch.
	StartSystem uint64
	// StartSteady is the syscall entry on the monotonic clock, in ns.
	StartSteady uint64
	// EndSteady is the syscall exit on the monotonic clock, in ns.
	EndSteady uint64
}

// rawDescriptor mirrors the module's struct layout.
type rawDescriptor struct {
	Name        [nameSize]byte
	StartSystem uint64
	StartSteady uint64
	EndSteady   uint64
}

// Start returns the syscall entry time.
func (d Descriptor) Start() time.Time {
	return kernel.SteadyToSystem(d.StartSystem, d.StartSteady, d.StartSteady)
}

// End returns the syscall exit time, the steady exit expressed on the
// system clock.
func (d Descriptor) End() time.Time {
	return kernel.SteadyToSystem(d.StartSystem, d.StartSteady, d.EndSteady)
}

// DecodeDescriptors decodes exactly n descriptors from b.
func DecodeDescriptors(b []byte, n uint32) ([]Descriptor, error) {
	if n > MaxSyscalls {
		return nil, fmt.Errorf("%w: %d", errOverCapacity, n)
	}
	if len(b) != int(n)*DescriptorSize {
		return nil, fmt.Errorf("%w: got %d, want %d", errPayloadSize, len(b), int(n)*DescriptorSize)
	}

	raw := make([]rawDescriptor, n)
	if err := binary.Read(bytes.NewReader(b), binary.NativeEndian, raw); err != nil {
		return nil, err
	}

	out := make([]Descriptor, n)
	for i, r := range raw {
		name := r.Name[:]
		if j := bytes.IndexByte(name, 0); j >= 0 {
			name = name[:j]
		}
		out[i] = Descriptor{
			Name:        string(name),
			StartSystem: r.StartSystem,
			StartSteady: r.StartSteady,
			EndSteady:   r.EndSteady,
		}
	}
	return out, nil
}

// MarshalBinary encodes d in the module layout.
func (d Descriptor) MarshalBinary() ([]byte, error) {
	if len(d.Name) >= nameSize {
		return nil, fmt.Errorf("%w: %s", errNameTooLong, strconv.Quote(d.Name))
	}
	r := rawDescriptor{
		StartSystem: d.StartSystem,
		StartSteady: d.StartSteady,
		EndSteady:   d.EndSteady,
	}
	copy(r.Name[:], d.Name)

	var buf bytes.Buffer
	buf.Grow(DescriptorSize)
	if err := binary.Write(&buf, binary.NativeEndian, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Record is a header and the descriptors that followed it.
type Record struct {
	Header   Header
	Syscalls []Descriptor
}

// MarshalBinary encodes r as the module writes it to the relay channel.
func (r Record) MarshalBinary() ([]byte, error) {
	h := r.Header
	h.Count = uint32(len(r.Syscalls)) // nolint: gosec  // Bounded by callers.
	b, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}
	for _, d := range r.Syscalls {
		db, err := d.MarshalBinary()
		if err != nil {
			return nil, err
		}
		b = append(b, db...)
	}
	return b, nil
}
