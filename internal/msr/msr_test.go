// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package msr_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"nodepower/internal/msr"
	"nodepower/internal/msr/msrtest"
	"nodepower/internal/topology"
)

func newTopology(t *testing.T) topology.Topology {
	topo, err := topology.New(2, 2, 2, 1)
	require.NoError(t, err)
	return topo
}

func TestReadWrite(t *testing.T) {
	node := msrtest.NewNode(8)
	acc, err := msr.Open(newTopology(t), node.Options())
	require.NoError(t, err)
	defer acc.Close()

	require.NoError(t, acc.Write(topology.DomainPackage, 1, 0x610, 0x1234))
	assert.Equal(t, uint64(0x1234), node.Get(4, 0x610))
	assert.Equal(t, uint64(0), node.Get(0, 0x610))

	value, err := acc.Read(topology.DomainPackage, 1, 0x610)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1234), value)

	value, err = acc.Read(topology.DomainCPU, 4, 0x610)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1234), value)
	assert.Equal(t, "/dev/cpu/4/msr", acc.Path(4))
	assert.False(t, acc.Safe())
}

func TestWriteMaskedRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		old   uint64
		mask  uint64
		value uint64
	}{
		{"low field", 0xFFFF_FFFF_FFFF_FFFF, 0x7FFF, 0x0123},
		{"split mask", 0x0123_4567_89AB_CDEF, 0x00FF_FFFF_00FF_FFFF, 0xFFFF_FFFF_FFFF_FFFF},
		{"empty mask", 0xDEAD_BEEF, 0, 0x1},
		{"full mask", 0xDEAD_BEEF, ^uint64(0), 0x42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := msrtest.NewNode(8)
			node.Set(0x618, tt.old)
			acc, err := msr.Open(newTopology(t), node.Options())
			require.NoError(t, err)
			defer acc.Close()

			require.NoError(t, acc.WriteMasked(topology.DomainPackage, 0, 0x618, tt.mask, tt.value))
			got, err := acc.Read(topology.DomainPackage, 0, 0x618)
			require.NoError(t, err)
			assert.Equal(t, tt.value&tt.mask, got&tt.mask)
			assert.Equal(t, tt.old&^tt.mask, got&^tt.mask)
		})
	}
}

func TestDomainOutOfRange(t *testing.T) {
	node := msrtest.NewNode(8)
	acc, err := msr.Open(newTopology(t), node.Options())
	require.NoError(t, err)
	defer acc.Close()

	_, err = acc.Read(topology.DomainPackage, 2, 0x611)
	var rangeErr *topology.DomainRangeError
	assert.True(t, errors.As(err, &rangeErr))
	_, err = acc.ReadCPU(8, 0x611)
	assert.True(t, errors.As(err, &rangeErr))
}

func TestOpenErrorClassification(t *testing.T) {
	tests := []struct {
		err  error
		kind msr.OpenErrorKind
	}{
		{unix.ENOENT, msr.DeviceAbsent},
		{unix.ENXIO, msr.DeviceAbsent},
		{unix.ENODEV, msr.DeviceAbsent},
		{unix.EPERM, msr.PermissionDenied},
		{unix.EACCES, msr.PermissionDenied},
		{unix.EIO, msr.OpenFailed},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String()+"-"+tt.err.Error(), func(t *testing.T) {
			node := msrtest.NewNode(8)
			node.FailOpen(5, tt.err)
			_, err := msr.Open(newTopology(t), node.Options())
			var openErr *msr.OpenError
			require.True(t, errors.As(err, &openErr))
			assert.Equal(t, tt.kind, openErr.Kind)
			assert.Equal(t, "/dev/cpu/5/msr", openErr.Path)
			assert.True(t, errors.Is(err, tt.err))
			// CPUs 0-4 were opened and must be released newest first
			assert.Equal(t, []int{4, 3, 2, 1, 0}, node.Closed)
		})
	}
}

func TestOpenRealDeviceMissing(t *testing.T) {
	topo, err := topology.New(1, 1, 1, 1)
	require.NoError(t, err)
	_, err = msr.Open(topo, msr.Options{DeviceRoot: t.TempDir()})
	var openErr *msr.OpenError
	require.True(t, errors.As(err, &openErr))
	assert.Equal(t, msr.DeviceAbsent, openErr.Kind)
	assert.Contains(t, err.Error(), "kernel module")
}

func TestPreferSafe(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "0"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "0", msr.SafeDeviceName), nil, 0600))

	node := msrtest.NewNode(8)
	acc, err := msr.Open(newTopology(t), msr.Options{DeviceRoot: root, PreferSafe: true, Open: node.Open})
	require.NoError(t, err)
	defer acc.Close()
	assert.True(t, acc.Safe())
	assert.Equal(t, filepath.Join(root, "7", "msr_safe"), acc.Path(7))

	// without msr_safe on CPU 0 the plain device is used
	acc2, err := msr.Open(newTopology(t), msr.Options{DeviceRoot: t.TempDir(), PreferSafe: true, Open: node.Open})
	require.NoError(t, err)
	defer acc2.Close()
	assert.False(t, acc2.Safe())
}

func TestShortTransfers(t *testing.T) {
	node := msrtest.NewNode(8)
	acc, err := msr.Open(newTopology(t), node.Options())
	require.NoError(t, err)
	defer acc.Close()

	node.Devices[0].ShortRead = true
	_, err = acc.Read(topology.DomainBoard, 0, 0x198)
	var readErr *msr.ReadError
	require.True(t, errors.As(err, &readErr))
	assert.Equal(t, 4, readErr.Count)
	assert.Equal(t, uint64(0x198), readErr.Offset)
	assert.Contains(t, err.Error(), "wrong byte count")

	node.Devices[2].ShortWrite = true
	err = acc.Write(topology.DomainCore, 1, 0x199, 0xA00)
	var writeErr *msr.WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, 4, writeErr.Count)
	assert.Equal(t, uint64(0xA00), writeErr.Value)

	node.Devices[3].ReadErr = unix.EIO
	_, err = acc.ReadCPU(3, 0x10)
	assert.True(t, errors.Is(err, unix.EIO))
}

func TestCloseReverseOrder(t *testing.T) {
	node := msrtest.NewNode(8)
	acc, err := msr.Open(newTopology(t), node.Options())
	require.NoError(t, err)
	require.NoError(t, acc.Close())
	assert.Equal(t, []int{7, 6, 5, 4, 3, 2, 1, 0}, node.Closed)
	require.NoError(t, acc.Close())
	assert.Len(t, node.Closed, 8)
}

func TestWriteAllowList(t *testing.T) {
	var buf bytes.Buffer
	err := msr.WriteAllowList(&buf, []msr.AllowEntry{
		{Offset: 0x610, WriteMask: 0x00FFFFFF00FFFFFF, Name: "PKG_POWER_LIMIT"},
		{Offset: 0x199, WriteMask: 0x000000010000FFFF, Name: "IA32_PERF_CTL"},
		{Offset: 0x610, WriteMask: 0, Name: "DUPLICATE"},
	})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "# MSR # Write Mask # Comment", lines[0])
	assert.Equal(t, "0x00000199 0x000000010000FFFF # IA32_PERF_CTL", lines[1])
	assert.Equal(t, "0x00000610 0x00FFFFFF00FFFFFF # PKG_POWER_LIMIT", lines[2])
}

func TestSnapshotCodec(t *testing.T) {
	entries := []msr.SnapshotEntry{
		{Domain: topology.DomainPackage, Index: 1, Offset: 0x610, Value: 0x0007800000078000},
		{Domain: topology.DomainCPU, Index: 3, Offset: 0x199, Value: 2560},
	}
	var buf bytes.Buffer
	require.NoError(t, msr.WriteSnapshot(&buf, entries))
	assert.Equal(t, "1:1:1552:2111062325821440\n3:3:409:2560\n", buf.String())

	var got []msr.SnapshotEntry
	err := msr.ReadSnapshot(&buf, func(e msr.SnapshotEntry) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestReadSnapshotMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		count int
		line  int
	}{
		{"too few fields", "1:0:1552:5\n1:0:1553\n1:0:1554:7\n", 1, 2},
		{"too many fields", "1:0:1552:5:9\n", 0, 1},
		{"not an integer", "1:0:1552:5\n\n3:x:409:1\n", 1, 3},
		{"unknown domain", "7:0:1552:5\n", 0, 1},
		{"negative value", "1:0:1552:-5\n", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applied := 0
			err := msr.ReadSnapshot(strings.NewReader(tt.input), func(msr.SnapshotEntry) error {
				applied++
				return nil
			})
			var parseErr *msr.SnapshotParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, tt.line, parseErr.Line)
			assert.Equal(t, tt.count, applied)
		})
	}
}
