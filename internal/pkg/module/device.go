// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package module

import (
	"errors"
	"fmt"
	"syscall"
)

// Device is an open handle on the module control file.
type Device interface {
	// Control sends msg to the module.
	Control(msg Message) error
	// Close releases the handle.
	Close() error
}

// Opener opens a [Device].
type Opener func() (Device, error)

// ErrUnavailable is returned when the control file cannot be opened, meaning
// the module is not loaded or is not accessible.
var ErrUnavailable = errors.New("latency tracker module unavailable")

// ControlError is returned when the module rejects a command.
type ControlError struct {
	Cmd   Command
	Errno syscall.Errno
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("module rejected %s: %s", e.Cmd, e.Errno.Error())
}

// Unwrap returns the underlying errno.
func (e *ControlError) Unwrap() error { return e.Errno }
