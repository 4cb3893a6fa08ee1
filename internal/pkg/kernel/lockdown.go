// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package kernel

import "strings"

// LockdownMode is the lockdown state of the Linux kernel.
type LockdownMode uint8

const (
	// LockdownModeNone is the "none" Linux Kernel security lockdown mode.
	LockdownModeNone LockdownMode = iota + 1
	// LockdownModeIntegrity is the "integrity" Linux Kernel security lockdown mode.
	LockdownModeIntegrity
	// LockdownModeConfidentiality is the "confidentiality" Linux Kernel security lockdown mode.
	LockdownModeConfidentiality
	// LockdownModeOther is the "unknown" Linux Kernel security lockdown mode.
	LockdownModeOther
)

func (m LockdownMode) String() string {
	switch m {
	case LockdownModeNone:
		return "none"
	case LockdownModeIntegrity:
		return "integrity"
	case LockdownModeConfidentiality:
		return "confidentiality"
	default:
		return "other"
	}
}

// GetLockdownMode returns the current Linux Kernel security lockdown mode.
func GetLockdownMode() LockdownMode { return getLockdownMode() }

// parseLockdown returns the mode selected (bracketed) in the first line of
// the securityfs lockdown file.
func parseLockdown(line string) LockdownMode {
	switch {
	case strings.Contains(line, "[none]"):
		return LockdownModeNone
	case strings.Contains(line, "[integrity]"):
		return LockdownModeIntegrity
	case strings.Contains(line, "[confidentiality]"):
		return LockdownModeConfidentiality
	default:
		return LockdownModeOther
	}
}
