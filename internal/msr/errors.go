// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package msr

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// OpenErrorKind classifies why a device file could not be opened.
type OpenErrorKind int

const (
	OpenFailed OpenErrorKind = iota
	DeviceAbsent
	PermissionDenied
)

func (k OpenErrorKind) String() string {
	switch k {
	case DeviceAbsent:
		return "device absent"
	case PermissionDenied:
		return "permission denied"
	}
	return "open failed"
}

// OpenError is returned when the device file for a CPU cannot be opened.
type OpenError struct {
	Path string
	Kind OpenErrorKind
	Err  error
}

func (e *OpenError) Error() string {
	switch e.Kind {
	case DeviceAbsent:
		return fmt.Sprintf("MSR device %s is not present, load the msr or msr_safe kernel module: %v", e.Path, e.Err)
	case PermissionDenied:
		return fmt.Sprintf("permission denied opening MSR device %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("failed to open MSR device %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

func newOpenError(path string, err error) *OpenError {
	var openErr *OpenError
	if errors.As(err, &openErr) {
		return openErr
	}
	kind := OpenFailed
	switch {
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENXIO), errors.Is(err, unix.ENODEV):
		kind = DeviceAbsent
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
		kind = PermissionDenied
	}
	return &OpenError{Path: path, Kind: kind, Err: err}
}

// ReadError is returned when a pread of a register does not transfer
// exactly 8 bytes.
type ReadError struct {
	Path   string
	Offset uint64
	Count  int
	Err    error
}

func (e *ReadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to read MSR 0x%X from %s: %v", e.Offset, e.Path, e.Err)
	}
	return fmt.Sprintf("wrong byte count %d reading MSR 0x%X from %s", e.Count, e.Offset, e.Path)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError is returned when a pwrite of a register does not transfer
// exactly 8 bytes.
type WriteError struct {
	Path   string
	Offset uint64
	Value  uint64
	Count  int
	Err    error
}

func (e *WriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to write 0x%016X to MSR 0x%X on %s: %v", e.Value, e.Offset, e.Path, e.Err)
	}
	return fmt.Sprintf("wrong byte count %d writing MSR 0x%X on %s", e.Count, e.Offset, e.Path)
}

func (e *WriteError) Unwrap() error { return e.Err }
