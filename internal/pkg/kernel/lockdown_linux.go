// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package kernel

import (
	"errors"
	"io/fs"
	"os"
	"strings"
)

// Injectable for tests.
var lockdownPath = "/sys/kernel/security/lockdown"

func getLockdownMode() LockdownMode {
	raw, err := os.ReadFile(lockdownPath)
	if errors.Is(err, fs.ErrNotExist) {
		// No securityfs entry, lockdown is not compiled in.
		return LockdownModeNone
	}
	if err != nil {
		return LockdownModeIntegrity
	}

	line, _, _ := strings.Cut(string(raw), "\n")
	if line == "" {
		return LockdownModeIntegrity
	}
	return parseLockdown(line)
}
