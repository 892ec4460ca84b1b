// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package msr reads and writes Model Specific Registers through the per-CPU
// msr_safe or msr character devices.
package msr

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"nodepower/internal/topology"
)

const (
	DefaultDeviceRoot = "/dev/cpu"
	SafeDeviceName    = "msr_safe"
	DeviceName        = "msr"
)

// Options controls how the per-CPU devices are located and opened.
type Options struct {
	DeviceRoot string // directory holding one sub-directory per CPU, default /dev/cpu
	PreferSafe bool   // use msr_safe when CPU 0 exposes it
	Open       Opener // default OpenDevice
}

// Accessor holds one open device per logical CPU. It performs no locking;
// callers own serialization.
type Accessor struct {
	topo    topology.Topology
	devices []Device
	paths   []string
	safe    bool
}

// DevicePath returns the device file for cpu.
func DevicePath(root string, cpu int, safe bool) string {
	name := DeviceName
	if safe {
		name = SafeDeviceName
	}
	return filepath.Join(root, fmt.Sprintf("%d", cpu), name)
}

// Open opens the device of every logical CPU in topo. The choice between
// msr_safe and msr is made once, from CPU 0. On failure every device opened
// so far is closed in reverse order.
func Open(topo topology.Topology, opts Options) (*Accessor, error) {
	if opts.DeviceRoot == "" {
		opts.DeviceRoot = DefaultDeviceRoot
	}
	if opts.Open == nil {
		opts.Open = OpenDevice
	}
	safe := false
	if opts.PreferSafe {
		if _, err := os.Stat(DevicePath(opts.DeviceRoot, 0, true)); err == nil {
			safe = true
		}
	}
	a := &Accessor{topo: topo, safe: safe}
	numCPUs := topo.LogicalCPUs()
	for cpu := 0; cpu < numCPUs; cpu++ {
		path := DevicePath(opts.DeviceRoot, cpu, safe)
		dev, err := opts.Open(path)
		if err != nil {
			openErr := newOpenError(path, err)
			if closeErr := a.Close(); closeErr != nil {
				slog.Warn("failed to close MSR devices", slog.String("error", closeErr.Error()))
			}
			return nil, openErr
		}
		a.devices = append(a.devices, dev)
		a.paths = append(a.paths, path)
	}
	slog.Debug("opened MSR devices", slog.Int("cpus", numCPUs), slog.Bool("msr_safe", safe), slog.String("root", opts.DeviceRoot))
	return a, nil
}

// Safe reports whether the msr_safe devices are in use.
func (a *Accessor) Safe() bool {
	return a.safe
}

// Topology returns the topology used to map domains to CPUs.
func (a *Accessor) Topology() topology.Topology {
	return a.topo
}

// Path returns the device file opened for cpu.
func (a *Accessor) Path(cpu int) string {
	if cpu < 0 || cpu >= len(a.paths) {
		return ""
	}
	return a.paths[cpu]
}

func (a *Accessor) device(cpu int) (Device, error) {
	if cpu < 0 || cpu >= len(a.devices) {
		return nil, &topology.DomainRangeError{Domain: topology.DomainCPU, Index: cpu, Count: len(a.devices)}
	}
	return a.devices[cpu], nil
}

// ReadCPU reads the register at offset on one logical CPU.
func (a *Accessor) ReadCPU(cpu int, offset uint64) (uint64, error) {
	dev, err := a.device(cpu)
	if err != nil {
		return 0, err
	}
	var buf [8]byte
	n, err := dev.Pread(buf[:], int64(offset)) // #nosec G115
	if err != nil || n != len(buf) {
		return 0, &ReadError{Path: a.paths[cpu], Offset: offset, Count: n, Err: err}
	}
	// x86 is little endian
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// WriteCPU writes all 64 bits of the register at offset on one logical CPU.
func (a *Accessor) WriteCPU(cpu int, offset uint64, value uint64) error {
	dev, err := a.device(cpu)
	if err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	n, err := dev.Pwrite(buf[:], int64(offset)) // #nosec G115
	if err != nil || n != len(buf) {
		return &WriteError{Path: a.paths[cpu], Offset: offset, Value: value, Count: n, Err: err}
	}
	return nil
}

// Read reads the register at offset on the CPU representing the domain
// instance.
func (a *Accessor) Read(domain topology.DomainType, index int, offset uint64) (uint64, error) {
	cpu, err := a.topo.FirstCPU(domain, index)
	if err != nil {
		return 0, err
	}
	return a.ReadCPU(cpu, offset)
}

// Write writes the register at offset on the CPU representing the domain
// instance.
func (a *Accessor) Write(domain topology.DomainType, index int, offset uint64, value uint64) error {
	cpu, err := a.topo.FirstCPU(domain, index)
	if err != nil {
		return err
	}
	return a.WriteCPU(cpu, offset, value)
}

// WriteMasked updates only the bits of the register selected by mask,
// preserving the others with a read-modify-write.
func (a *Accessor) WriteMasked(domain topology.DomainType, index int, offset uint64, mask uint64, value uint64) error {
	cpu, err := a.topo.FirstCPU(domain, index)
	if err != nil {
		return err
	}
	old, err := a.ReadCPU(cpu, offset)
	if err != nil {
		return err
	}
	return a.WriteCPU(cpu, offset, (old&^mask)|(value&mask))
}

// Close closes every device in reverse order of opening. It returns the
// first close error and is safe to call more than once.
func (a *Accessor) Close() error {
	var firstErr error
	for cpu := len(a.devices) - 1; cpu >= 0; cpu-- {
		if err := a.devices[cpu].Close(); err != nil {
			slog.Warn("failed to close MSR device", slog.String("path", a.paths[cpu]), slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	a.devices = nil
	a.paths = nil
	return firstErr
}
