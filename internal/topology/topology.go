// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package topology describes the hardware domains of a node (board, package,
// tile, core, logical CPU) and the arithmetic that maps a domain index to
// logical CPU indices.
package topology

import (
	"fmt"
	"strconv"
	"strings"
)

// DomainType is a hardware partition level. The integer values are part of
// the snapshot file format and must not change.
type DomainType int

const (
	DomainBoard DomainType = iota
	DomainPackage
	DomainCore
	DomainCPU
	DomainTile
)

var domainNames = map[DomainType]string{
	DomainBoard:   "board",
	DomainPackage: "package",
	DomainCore:    "core",
	DomainCPU:     "cpu",
	DomainTile:    "tile",
}

// coarseness orders domains from the whole board down to a logical CPU
var coarseness = map[DomainType]int{
	DomainBoard:   0,
	DomainPackage: 1,
	DomainTile:    2,
	DomainCore:    3,
	DomainCPU:     4,
}

func (d DomainType) String() string {
	if name, ok := domainNames[d]; ok {
		return name
	}
	return fmt.Sprintf("domain(%d)", int(d))
}

// Valid reports whether d is one of the defined domain types.
func (d DomainType) Valid() bool {
	_, ok := domainNames[d]
	return ok
}

// Contains reports whether every instance of other is nested inside an
// instance of d, e.g. a package contains cores. A domain does not contain
// itself.
func (d DomainType) Contains(other DomainType) bool {
	return coarseness[d] < coarseness[other]
}

// ParseDomainType accepts a domain name ("package") or its integer value ("1").
func ParseDomainType(s string) (DomainType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d, name := range domainNames {
		if name == s {
			return d, nil
		}
	}
	if v, err := strconv.Atoi(s); err == nil && DomainType(v).Valid() {
		return DomainType(v), nil
	}
	return 0, fmt.Errorf("unknown domain type: %q", s)
}

// DomainRangeError is returned when a domain index is not below the number
// of instances of that domain.
type DomainRangeError struct {
	Domain DomainType
	Index  int
	Count  int
}

func (e *DomainRangeError) Error() string {
	return fmt.Sprintf("%s index %d out of range, node has %d", e.Domain, e.Index, e.Count)
}

// Topology holds the domain counts of a node. Logical CPUs are assumed to be
// numbered so that every domain instance owns a contiguous block of CPUs.
type Topology struct {
	Packages        int
	CoresPerPackage int
	ThreadsPerCore  int
	CoresPerTile    int
}

// New validates and returns a Topology.
func New(packages, coresPerPackage, threadsPerCore, coresPerTile int) (Topology, error) {
	if packages < 1 || coresPerPackage < 1 || threadsPerCore < 1 || coresPerTile < 1 {
		return Topology{}, fmt.Errorf("invalid topology: %d packages, %d cores per package, %d threads per core, %d cores per tile",
			packages, coresPerPackage, threadsPerCore, coresPerTile)
	}
	if coresPerPackage%coresPerTile != 0 {
		return Topology{}, fmt.Errorf("invalid topology: %d cores per package is not a multiple of %d cores per tile", coresPerPackage, coresPerTile)
	}
	return Topology{
		Packages:        packages,
		CoresPerPackage: coresPerPackage,
		ThreadsPerCore:  threadsPerCore,
		CoresPerTile:    coresPerTile,
	}, nil
}

// LogicalCPUs returns the number of logical CPUs on the node.
func (t Topology) LogicalCPUs() int {
	return t.Packages * t.CoresPerPackage * t.ThreadsPerCore
}

// Count returns the number of instances of domain d.
func (t Topology) Count(d DomainType) int {
	switch d {
	case DomainBoard:
		return 1
	case DomainPackage:
		return t.Packages
	case DomainCore:
		return t.Packages * t.CoresPerPackage
	case DomainCPU:
		return t.LogicalCPUs()
	case DomainTile:
		if t.CoresPerTile == 0 {
			return 0
		}
		return t.Packages * t.CoresPerPackage / t.CoresPerTile
	}
	return 0
}

func (t Topology) checkIndex(d DomainType, index int) error {
	count := t.Count(d)
	if index < 0 || index >= count {
		return &DomainRangeError{Domain: d, Index: index, Count: count}
	}
	return nil
}

// FirstCPU returns the logical CPU that represents instance index of domain
// d: (logical CPUs / domain count) * index.
func (t Topology) FirstCPU(d DomainType, index int) (int, error) {
	if err := t.checkIndex(d, index); err != nil {
		return 0, err
	}
	return (t.LogicalCPUs() / t.Count(d)) * index, nil
}

// CPUs returns every logical CPU owned by instance index of domain d.
func (t Topology) CPUs(d DomainType, index int) ([]int, error) {
	first, err := t.FirstCPU(d, index)
	if err != nil {
		return nil, err
	}
	size := t.LogicalCPUs() / t.Count(d)
	cpus := make([]int, size)
	for i := range cpus {
		cpus[i] = first + i
	}
	return cpus, nil
}

// Indices returns the indices of the inner domain instances nested in
// instance index of outer. When inner is not finer than outer the result is
// the single outer index.
func (t Topology) Indices(outer DomainType, index int, inner DomainType) ([]int, error) {
	cpus, err := t.CPUs(outer, index)
	if err != nil {
		return nil, err
	}
	if !outer.Contains(inner) {
		if outer != inner {
			return nil, fmt.Errorf("%s is not nested in %s", inner, outer)
		}
		return []int{index}, nil
	}
	innerSize := t.LogicalCPUs() / t.Count(inner)
	var indices []int
	for _, cpu := range cpus {
		idx := cpu / innerSize
		if len(indices) == 0 || indices[len(indices)-1] != idx {
			indices = append(indices, idx)
		}
	}
	return indices, nil
}
