// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package module

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type fileDevice struct {
	fd int
}

// OpenPath returns an [Opener] for the control file at path.
func OpenPath(path string) Opener {
	return func() (Device, error) {
		fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", path)
		}
		return &fileDevice{fd: fd}, nil
	}
}

func (d *fileDevice) Control(msg Message) error {
	buf, err := msg.MarshalBinary()
	if err != nil {
		return err
	}
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		uintptr(d.fd),
		uintptr(ioctlRequest),
		uintptr(unsafe.Pointer(&buf[0])),
	)
	if errno != 0 {
		return &ControlError{Cmd: msg.Cmd, Errno: errno}
	}
	return nil
}

func (d *fileDevice) Close() error {
	if err := unix.Close(d.fd); err != nil {
		return errors.Wrapf(err, "close control file %d", d.fd)
	}
	return nil
}
