package snapshot

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nodepower/internal/common"
	"nodepower/internal/msr/msrtest"
	"nodepower/internal/platform/platformtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withPlatform(t *testing.T, node *msrtest.Node, stdin string) *bytes.Buffer {
	Cmd.SetContext(common.WithAppContext(context.Background(), common.AppContext{
		Selector: platformtest.Options(platformtest.HaswellSignature, node),
	}))
	var out bytes.Buffer
	Cmd.SetOut(&out)
	Cmd.SetIn(strings.NewReader(stdin))
	flagRestoreYes = false
	t.Cleanup(func() {
		Cmd.SetContext(context.Background())
		Cmd.SetOut(nil)
		Cmd.SetIn(nil)
	})
	return &out
}

func writeFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "snapshot.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestSaveToFile(t *testing.T) {
	node := platformtest.NewNode()
	node.SetCPU(4, 0x610, 0x00DD8000005E8000)
	withPlatform(t, node, "")
	path := filepath.Join(t.TempDir(), "before.txt")
	require.NoError(t, runSaveCmd(SaveCmd, []string{path}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	// package 1 PKG_POWER_LIMIT, offset 0x610
	assert.Contains(t, lines, "1:1:1552:62346707347603456")
	assert.Contains(t, lines, "1:0:1552:0")
	// IA32_PERF_CTL on every CPU
	for _, cpu := range []string{"0", "7"} {
		assert.Contains(t, lines, "3:"+cpu+":409:0")
	}
}

func TestSaveToStdout(t *testing.T) {
	out := withPlatform(t, platformtest.NewNode(), "")
	require.NoError(t, runSaveCmd(SaveCmd, nil))
	assert.Contains(t, out.String(), "1:0:1560:0\n")
}

func TestRestoreWithYes(t *testing.T) {
	node := platformtest.NewNode()
	node.SetCPU(4, 0x610, 0xFF00000000000000)
	withPlatform(t, node, "")
	flagRestoreYes = true
	path := writeFile(t, "1:1:1552:62346707347603456\n3:2:409:5888\n")
	require.NoError(t, runRestoreCmd(RestoreCmd, []string{path}))
	// bits outside the write mask are preserved
	assert.Equal(t, uint64(0xFF00000000000000|0x00DD8000005E8000), node.Get(4, 0x610))
	assert.Equal(t, uint64(5888), node.Get(2, 0x199))
}

func TestRestorePrompt(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		applied bool
	}{
		{"yes", "y\n", true},
		{"YES", "YES\n", true},
		{"no", "n\n", false},
		{"empty", "\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := platformtest.NewNode()
			out := withPlatform(t, node, tt.answer)
			path := writeFile(t, "3:2:409:5888\n")
			require.NoError(t, runRestoreCmd(RestoreCmd, []string{path}))
			assert.Contains(t, out.String(), "IA32_PERF_CTL")
			assert.Contains(t, out.String(), "Apply these register changes? [y/N]: ")
			if tt.applied {
				assert.Equal(t, uint64(5888), node.Get(2, 0x199))
				assert.Contains(t, out.String(), "Restored 1 registers.")
			} else {
				assert.Zero(t, node.Get(2, 0x199))
				assert.Contains(t, out.String(), "Restore cancelled.")
			}
		})
	}
}

func TestRestoreErrors(t *testing.T) {
	node := platformtest.NewNode()
	withPlatform(t, node, "")
	flagRestoreYes = true

	// malformed lines are rejected before anything is written
	path := writeFile(t, "3:2:409:5888\n3:2:409\n")
	assert.Error(t, runRestoreCmd(RestoreCmd, []string{path}))
	assert.Empty(t, node.Writes)

	// read-only register
	path = writeFile(t, "1:0:1553:1\n")
	assert.Error(t, runRestoreCmd(RestoreCmd, []string{path}))

	// offset not in the register map
	path = writeFile(t, "1:0:4096:1\n")
	assert.Error(t, runRestoreCmd(RestoreCmd, []string{path}))
}

func TestRestoreEmptyFile(t *testing.T) {
	out := withPlatform(t, platformtest.NewNode(), "")
	path := writeFile(t, "\n\n")
	require.NoError(t, runRestoreCmd(RestoreCmd, []string{path}))
	assert.Contains(t, out.String(), "No registers found in file.")
}

func TestValidateRestoreFlags(t *testing.T) {
	assert.Error(t, validateRestoreFlags(RestoreCmd, []string{filepath.Join(t.TempDir(), "missing.txt")}))
	assert.NoError(t, validateRestoreFlags(RestoreCmd, []string{writeFile(t, "")}))
}
