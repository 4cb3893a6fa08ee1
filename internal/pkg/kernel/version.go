// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package kernel

import "github.com/hashicorp/go-version"

// Version returns the current version of the kernel. If unable to determine
// the version, nil is returned.
func Version() *version.Version { return kernelVersion() }
