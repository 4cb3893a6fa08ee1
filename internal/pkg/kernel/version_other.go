// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package kernel

import "github.com/hashicorp/go-version"

func kernelVersion() *version.Version { return nil }
