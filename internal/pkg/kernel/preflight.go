// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"github.com/hashicorp/go-version"
)

// The latency tracker module relies on relay channels backed by debugfs and on
// tracepoints that are stable from this kernel on.
var minSupportedVersion = version.Must(version.NewVersion("4.4"))

// Report describes the host kernel as it matters to the latency tracker
// module.
type Report struct {
	// Version is the running kernel version, nil if unknown.
	Version *version.Version
	// Lockdown is the kernel security lockdown mode.
	Lockdown LockdownMode
}

// Inspect returns a [Report] for the running kernel.
func Inspect() Report {
	return Report{
		Version:  Version(),
		Lockdown: GetLockdownMode(),
	}
}

// Supported reports whether the kernel is recent enough for the module. An
// unknown version is assumed supported.
func (r Report) Supported() bool {
	if r.Version == nil {
		return true
	}
	return r.Version.GreaterThanOrEqual(minSupportedVersion)
}

// DebugFSRestricted reports whether the lockdown mode blocks debugfs, in which
// case the relay channel cannot be opened.
func (r Report) DebugFSRestricted() bool {
	return r.Lockdown != LockdownModeNone
}
