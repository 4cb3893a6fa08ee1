// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package module

import "github.com/pkg/errors"

// OpenPath returns an [Opener] that always fails: the module only exists on
// Linux.
func OpenPath(path string) Opener {
	return func() (Device, error) {
		return nil, errors.Errorf("open %s: unsupported platform", path)
	}
}
