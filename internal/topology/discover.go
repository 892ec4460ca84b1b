// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package topology

import (
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/procfs/sysfs"
)

const DefaultSysfsRoot = "/sys"

// Discover builds a Topology from the CPU topology files under
// <sysfsRoot>/devices/system/cpu. coresPerTile is a property of the CPU model
// and is not exposed by sysfs.
func Discover(sysfsRoot string, coresPerTile int) (Topology, error) {
	fs, err := sysfs.NewFS(sysfsRoot)
	if err != nil {
		return Topology{}, errors.Wrapf(err, "failed to open sysfs at %s", sysfsRoot)
	}
	cpus, err := fs.CPUs()
	if err != nil {
		return Topology{}, errors.Wrap(err, "failed to list CPUs")
	}
	if len(cpus) == 0 {
		return Topology{}, errors.Errorf("no CPUs found under %s", sysfsRoot)
	}
	packages := mapset.NewThreadUnsafeSet[string]()
	cores := mapset.NewThreadUnsafeSet[string]()
	for _, cpu := range cpus {
		topo, err := cpu.Topology()
		if err != nil {
			return Topology{}, errors.Wrapf(err, "failed to read topology of cpu %s", cpu.Number())
		}
		packages.Add(topo.PhysicalPackageID)
		cores.Add(topo.PhysicalPackageID + ":" + topo.CoreID)
	}
	numPackages := packages.Cardinality()
	numCores := cores.Cardinality()
	if numCores%numPackages != 0 || len(cpus)%numCores != 0 {
		return Topology{}, errors.Errorf("asymmetric topology: %d cpus, %d cores, %d packages", len(cpus), numCores, numPackages)
	}
	slog.Debug("discovered topology", slog.Int("packages", numPackages), slog.Int("cores", numCores), slog.Int("cpus", len(cpus)))
	return New(numPackages, numCores/numPackages, len(cpus)/numCores, coresPerTile)
}
