// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package msprofile

// Version is the current release version of msprofile in use.
func Version() string {
	return "v0.3.0"
}
