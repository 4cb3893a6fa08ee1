// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package module implements the registration channel of the latency tracker
// kernel module.
package module

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ControlPath is the control file exposed by the latency tracker module.
const ControlPath = "/proc/latency-tracker-spans/mod_ctl"

// ServiceNameMaxSize is the size of the service name field, including the
// terminating NUL byte.
const ServiceNameMaxSize = 28

// MessageSize is the size of an encoded [Message].
const MessageSize = 4 + ServiceNameMaxSize

// ioctlRequest is _IO(0xF6, 0x91).
const ioctlRequest = 0xF6<<8 | 0x91

// Command is a registration command understood by the module.
type Command int32

const (
	// CommandRegister starts monitoring the calling process.
	CommandRegister Command = 0
	// CommandUnregister stops monitoring the calling process or thread.
	CommandUnregister Command = 1
)

func (c Command) String() string {
	switch c {
	case CommandRegister:
		return "REGISTER"
	case CommandUnregister:
		return "UNREGISTER"
	default:
		return fmt.Sprintf("Command(%d)", int32(c))
	}
}

// Message is the argument of the control ioctl.
type Message struct {
	Cmd         Command
	ServiceName string
}

var errMessageSize = errors.New("invalid registration message size")

// MarshalBinary encodes m in the layout read by the module. Service names
// longer than ServiceNameMaxSize-1 bytes are truncated.
func (m Message) MarshalBinary() ([]byte, error) {
	buf := make([]byte, MessageSize)
	binary.NativeEndian.PutUint32(buf[0:4], uint32(m.Cmd)) // nolint: gosec  // Bit pattern preserved.
	copy(buf[4:4+ServiceNameMaxSize-1], m.ServiceName)
	return buf, nil
}

// UnmarshalBinary decodes data as written by [Message.MarshalBinary].
func (m *Message) UnmarshalBinary(data []byte) error {
	if len(data) != MessageSize {
		return fmt.Errorf("%w: %d", errMessageSize, len(data))
	}
	m.Cmd = Command(binary.NativeEndian.Uint32(data[0:4])) // nolint: gosec  // Bit pattern preserved.
	name := data[4:]
	for i, b := range name {
		if b == 0 {
			name = name[:i]
			break
		}
	}
	m.ServiceName = string(name)
	return nil
}
