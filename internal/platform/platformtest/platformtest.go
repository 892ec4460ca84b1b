// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package platformtest builds selector options backed by in-memory MSR
// devices, for tests of packages that open a platform.
package platformtest

import (
	"nodepower/internal/cpus"
	"nodepower/internal/msr/msrtest"
	"nodepower/internal/platform"
	"nodepower/internal/topology"
)

const (
	HaswellSignature        = cpus.Signature(0x000306F2)
	KnightsLandingSignature = cpus.Signature(0x00050671)

	// power unit 1/8 W, energy unit 2^-14 J, time unit 2^-10 s
	PowerUnit = 0x000A0E03
	// tdp 145 W, min 60 W, max 200 W
	PkgPowerInfo = uint64(1160) | uint64(480)<<16 | uint64(1600)<<32
	// min 10 W, max 50 W
	DramPowerInfo = uint64(80)<<16 | uint64(400)<<32
	// min ratio 12, base ratio 23
	PlatformInfo = uint64(12)<<40 | uint64(23)<<8
	// single core turbo ratio 36
	TurboRatio = 0x24

	Packages        = 2
	CoresPerPackage = 2
	ThreadsPerCore  = 2
	CPUs            = Packages * CoresPerPackage * ThreadsPerCore
)

// NewNode returns fake devices for CPUs logical CPUs with the calibration
// registers populated.
func NewNode() *msrtest.Node {
	node := msrtest.NewNode(CPUs)
	node.Set(0x606, PowerUnit)
	node.Set(0x614, PkgPowerInfo)
	node.Set(0x61C, DramPowerInfo)
	node.Set(0xCE, PlatformInfo)
	node.Set(0x1AD, TurboRatio)
	return node
}

// Options returns selector options that report sig and open devices from
// node on a Packages x CoresPerPackage x ThreadsPerCore topology.
func Options(sig cpus.Signature, node *msrtest.Node) platform.SelectorOptions {
	return platform.SelectorOptions{
		Probe: func() (cpus.Signature, error) { return sig, nil },
		Topology: func(coresPerTile int) (topology.Topology, error) {
			return topology.New(Packages, CoresPerPackage, ThreadsPerCore, coresPerTile)
		},
		Devices: node.Options(),
	}
}
