// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package msrtest provides in-memory MSR devices for tests.
package msrtest

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strconv"

	"nodepower/internal/msr"
)

// Device is a fake per-CPU MSR device. Registers that were never set read as
// zero.
type Device struct {
	CPU        int
	Registers  map[uint64]uint64
	Writes     []Write
	ShortRead  bool
	ShortWrite bool
	ReadErr    error
	WriteErr   error
	closed     bool
	node       *Node
}

// Write records one register write.
type Write struct {
	CPU    int
	Offset uint64
	Value  uint64
}

// Node is a set of fake devices, one per logical CPU.
type Node struct {
	Devices    []*Device
	Closed     []int // CPUs in the order their devices were closed
	Writes     []Write
	openErrors map[int]error
}

// NewNode returns a node with numCPUs zeroed devices.
func NewNode(numCPUs int) *Node {
	n := &Node{openErrors: make(map[int]error)}
	for cpu := 0; cpu < numCPUs; cpu++ {
		n.Devices = append(n.Devices, &Device{CPU: cpu, Registers: make(map[uint64]uint64), node: n})
	}
	return n
}

// Set stores value in register offset on every CPU.
func (n *Node) Set(offset, value uint64) {
	for _, d := range n.Devices {
		d.Registers[offset] = value
	}
}

// SetCPU stores value in register offset on one CPU.
func (n *Node) SetCPU(cpu int, offset, value uint64) {
	n.Devices[cpu].Registers[offset] = value
}

// Get returns the value of register offset on one CPU.
func (n *Node) Get(cpu int, offset uint64) uint64 {
	return n.Devices[cpu].Registers[offset]
}

// FailOpen makes opening the device of cpu return err.
func (n *Node) FailOpen(cpu int, err error) {
	n.openErrors[cpu] = err
}

// Open implements msr.Opener. The CPU number is taken from the parent
// directory of path, so any device root can be used.
func (n *Node) Open(path string) (msr.Device, error) {
	cpu, err := strconv.Atoi(filepath.Base(filepath.Dir(path)))
	if err != nil {
		return nil, fmt.Errorf("bad device path %s: %w", path, err)
	}
	if err, ok := n.openErrors[cpu]; ok {
		return nil, err
	}
	if cpu < 0 || cpu >= len(n.Devices) {
		return nil, fmt.Errorf("no device for cpu %d", cpu)
	}
	d := n.Devices[cpu]
	d.closed = false
	return d, nil
}

// Options returns accessor options that open devices from n.
func (n *Node) Options() msr.Options {
	return msr.Options{DeviceRoot: "/dev/cpu", Open: n.Open}
}

func (d *Device) Pread(buf []byte, offset int64) (int, error) {
	if d.closed {
		return 0, fmt.Errorf("device closed")
	}
	if d.ReadErr != nil {
		return 0, d.ReadErr
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], d.Registers[uint64(offset)]) // #nosec G115
	if d.ShortRead {
		return copy(buf, b[:4]), nil
	}
	return copy(buf, b[:]), nil
}

func (d *Device) Pwrite(buf []byte, offset int64) (int, error) {
	if d.closed {
		return 0, fmt.Errorf("device closed")
	}
	if d.WriteErr != nil {
		return 0, d.WriteErr
	}
	if d.ShortWrite {
		return 4, nil
	}
	if len(buf) != 8 {
		return 0, fmt.Errorf("fake device only supports 8 byte writes")
	}
	value := binary.LittleEndian.Uint64(buf)
	d.Registers[uint64(offset)] = value // #nosec G115
	w := Write{CPU: d.CPU, Offset: uint64(offset), Value: value} // #nosec G115
	d.Writes = append(d.Writes, w)
	d.node.Writes = append(d.node.Writes, w)
	return len(buf), nil
}

func (d *Device) Close() error {
	d.closed = true
	d.node.Closed = append(d.node.Closed, d.CPU)
	return nil
}
