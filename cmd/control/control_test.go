package control

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"nodepower/internal/common"
	"nodepower/internal/msr/msrtest"
	"nodepower/internal/platform/platformtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withPlatform(t *testing.T, node *msrtest.Node, domain, index string) *bytes.Buffer {
	ctx := common.WithAppContext(context.Background(), common.AppContext{
		Selector: platformtest.Options(platformtest.HaswellSignature, node),
	})
	var out bytes.Buffer
	Cmd.SetContext(ctx)
	Cmd.SetOut(&out)
	flagDomain = common.DomainFlags{Domain: domain, Index: index}
	flagEncode = false
	t.Cleanup(func() {
		Cmd.SetContext(context.Background())
		Cmd.SetOut(nil)
	})
	return &out
}

const xeonStaticBits = 0x0007800000078000

func TestListControls(t *testing.T) {
	out := withPlatform(t, platformtest.NewNode(), "board", "all")
	require.NoError(t, runCmd(Cmd, nil))
	assert.Contains(t, out.String(), "POWER_PACKAGE_LIMIT")
	assert.Contains(t, out.String(), "POWER_DRAM_LIMIT")
	assert.Contains(t, out.String(), "FREQUENCY")
}

func TestWritePackagePowerLimit(t *testing.T) {
	node := platformtest.NewNode()
	withPlatform(t, node, "package", "all")
	require.NoError(t, runCmd(Cmd, []string{"POWER_PACKAGE_LIMIT", "150"}))
	want := uint64(1200) | uint64(1200)<<32 | xeonStaticBits
	// package 0 is CPU 0, package 1 is CPU 4
	assert.Equal(t, want, node.Get(0, 0x610))
	assert.Equal(t, want, node.Get(4, 0x610))
}

func TestWriteFrequencySelectedCPUs(t *testing.T) {
	node := platformtest.NewNode()
	withPlatform(t, node, "cpu", "0-1")
	require.NoError(t, runCmd(Cmd, []string{"FREQUENCY", "2100"}))
	assert.Equal(t, uint64(0x1500), node.Get(0, 0x199))
	assert.Equal(t, uint64(0x1500), node.Get(1, 0x199))
	assert.Zero(t, node.Get(2, 0x199))
}

func TestEncodeDoesNotWrite(t *testing.T) {
	node := platformtest.NewNode()
	out := withPlatform(t, node, "board", "all")
	flagEncode = true
	require.NoError(t, runCmd(Cmd, []string{"FREQUENCY", "2100"}))
	assert.Equal(t, "0x0000000000001500", strings.TrimSpace(out.String()))
	for _, w := range node.Writes {
		assert.NotEqual(t, uint64(0x199), w.Offset)
	}
}

func TestWriteControlErrors(t *testing.T) {
	withPlatform(t, platformtest.NewNode(), "package", "all")
	assert.Error(t, runCmd(Cmd, []string{"NOPE", "1"}))

	withPlatform(t, platformtest.NewNode(), "package", "0,5")
	assert.Error(t, runCmd(Cmd, []string{"POWER_PACKAGE_LIMIT", "150"}))
}

func TestValidateArgsAndFlags(t *testing.T) {
	assert.NoError(t, validateArgs(Cmd, nil))
	assert.NoError(t, validateArgs(Cmd, []string{"FREQUENCY", "2100"}))
	assert.Error(t, validateArgs(Cmd, []string{"FREQUENCY"}))

	flagDomain = common.DomainFlags{Domain: "package", Index: "all"}
	assert.Error(t, validateFlags(Cmd, []string{"FREQUENCY", "fast"}))
	assert.NoError(t, validateFlags(Cmd, []string{"FREQUENCY", "2100.5"}))
	flagDomain = common.DomainFlags{Domain: "node", Index: "all"}
	assert.Error(t, validateFlags(Cmd, nil))
}

func TestResetCounters(t *testing.T) {
	node := platformtest.NewNode()
	node.Set(0x309, 12345)
	out := withPlatform(t, node, "board", "all")
	require.NoError(t, runResetCmd(ResetCmd, nil))
	assert.Contains(t, out.String(), "Performance counters reset.")
	for cpu := 0; cpu < platformtest.CPUs; cpu++ {
		assert.Equal(t, uint64(0x333), node.Get(cpu, 0x38D))
		assert.Zero(t, node.Get(cpu, 0x309))
	}
}
