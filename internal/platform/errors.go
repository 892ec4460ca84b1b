// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package platform

import (
	"fmt"
)

// PlatformUnsupportedError is returned when no registered model supports the
// composite CPUID identifier of the running processor.
type PlatformUnsupportedError struct {
	ID uint32
}

func (e *PlatformUnsupportedError) Error() string {
	return fmt.Sprintf("no supported platform for CPUID 0x%X", e.ID)
}

// InconsistentUnitsError is returned when a package reports RAPL units that
// differ from those of package 0. Want and Got hold the unit fields only.
type InconsistentUnitsError struct {
	Package int
	Want    uint64
	Got     uint64
}

func (e *InconsistentUnitsError) Error() string {
	return fmt.Sprintf("RAPL units are not consistent across packages: package %d reports 0x%X, package 0 reports 0x%X", e.Package, e.Got, e.Want)
}

// InconsistentBoundsError is returned when a package reports power bounds that
// differ from those of package 0.
type InconsistentBoundsError struct {
	Register string
	Package  int
}

func (e *InconsistentBoundsError) Error() string {
	return fmt.Sprintf("%s power bounds are not consistent across packages: package %d differs from package 0", e.Register, e.Package)
}

// LogicError reports a request that can not be satisfied with the calibrated
// state, e.g. a time window outside the encodable range.
type LogicError struct {
	Msg string
}

func (e *LogicError) Error() string {
	return e.Msg
}

// UnknownSignalError is returned for a signal name the bound model does not
// provide.
type UnknownSignalError struct {
	Name string
}

func (e *UnknownSignalError) Error() string {
	return fmt.Sprintf("unknown signal: %s", e.Name)
}

// UnknownControlError is returned for a control name the bound model does
// not provide.
type UnknownControlError struct {
	Name string
}

func (e *UnknownControlError) Error() string {
	return fmt.Sprintf("unknown control: %s", e.Name)
}

// UnknownRegisterError is returned for a register name or offset missing from
// the bound register map.
type UnknownRegisterError struct {
	Name   string
	Offset uint64
}

func (e *UnknownRegisterError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("unknown register: %s", e.Name)
	}
	return fmt.Sprintf("unknown register offset: 0x%X", e.Offset)
}

// StateError is returned when a selector operation is called out of order.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s is not valid in state %s", e.Op, e.State)
}
