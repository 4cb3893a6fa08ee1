// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package kernel

import (
	"strings"

	"github.com/hashicorp/go-version"
	"golang.org/x/sys/unix"
)

// Injectable for tests.
var unameFn = unix.Uname

func kernelVersion() *version.Version {
	var uts unix.Utsname
	if err := unameFn(&uts); err != nil {
		return nil
	}
	return parseRelease(unix.ByteSliceToString(uts.Release[:]))
}

// parseRelease returns the major.minor part of a kernel release string such
// as "6.5.0-9-generic", or nil if it does not start with one.
func parseRelease(release string) *version.Version {
	end := strings.IndexFunc(release, func(r rune) bool {
		return r != '.' && (r < '0' || r > '9')
	})
	if end >= 0 {
		release = release[:end]
	}
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil
	}
	v, err := version.NewVersion(parts[0] + "." + parts[1])
	if err != nil {
		return nil
	}
	return v
}
