// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package kernel

import (
	"testing"

	"github.com/hashicorp/go-version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestParseRelease(t *testing.T) {
	tests := map[string]string{
		"6.5.0-9-generic":      "6.5",
		"6.1.0-12-cloud-amd64": "6.1",
		"4.4.302+":             "4.4",
		"5.15":                 "5.15",
		"6.18.44-fc-v139":      "6.18",
	}
	for release, want := range tests {
		t.Run(release, func(t *testing.T) {
			got := parseRelease(release)
			require.NotNil(t, got)
			assert.True(t, version.Must(version.NewVersion(want)).Equal(got), "got %s", got)
		})
	}

	assert.Nil(t, parseRelease(""))
	assert.Nil(t, parseRelease("6-generic"))
	assert.Nil(t, parseRelease("rolling"))
}

func TestVersion(t *testing.T) {
	orig := unameFn
	t.Cleanup(func() { unameFn = orig })

	unameFn = func(buf *unix.Utsname) error {
		copy(buf.Release[:], "6.5.0-9-generic")
		return nil
	}
	got := Version()
	require.NotNil(t, got)
	assert.True(t, version.Must(version.NewVersion("6.5")).Equal(got))

	unameFn = func(*unix.Utsname) error { return unix.EPERM }
	assert.Nil(t, Version())
}
