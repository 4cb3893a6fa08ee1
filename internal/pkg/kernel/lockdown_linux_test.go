// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package kernel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func setContent(t *testing.T, path, text string) {
	err := os.WriteFile(path, []byte(text), 0o600)
	assert.NoError(t, err)
}

func TestGetLockdownMode(t *testing.T) {
	orig := lockdownPath
	t.Cleanup(func() { lockdownPath = orig })

	lockdownPath = filepath.Join(t.TempDir(), "missing")
	assert.Equal(t, LockdownModeNone, getLockdownMode())

	path := filepath.Join(t.TempDir(), "lockdown")
	lockdownPath = path

	tests := []struct {
		content string
		want    LockdownMode
	}{
		{"none [integrity] confidentiality\n", LockdownModeIntegrity},
		{"[none] integrity confidentiality\n", LockdownModeNone},
		{"none integrity [confidentiality]\n", LockdownModeConfidentiality},
		{"whatever\n", LockdownModeOther},
		{"", LockdownModeIntegrity},
	}
	for _, tt := range tests {
		setContent(t, path, tt.content)
		assert.Equal(t, tt.want, getLockdownMode(), "content %q", tt.content)
	}

	if os.Geteuid() != 0 {
		setContent(t, path, "[none] integrity confidentiality\n")
		assert.NoError(t, os.Chmod(path, 0o000))
		assert.Equal(t, LockdownModeIntegrity, getLockdownMode())
	}
}

func TestLockdownModeString(t *testing.T) {
	assert.Equal(t, "none", LockdownModeNone.String())
	assert.Equal(t, "integrity", LockdownModeIntegrity.String())
	assert.Equal(t, "confidentiality", LockdownModeConfidentiality.String())
	assert.Equal(t, "other", LockdownModeOther.String())
}
