// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package msr

import (
	"golang.org/x/sys/unix"
)

// Device is an open per-CPU MSR character device. The file offset of a
// transfer is the register address.
type Device interface {
	Pread(buf []byte, offset int64) (int, error)
	Pwrite(buf []byte, offset int64) (int, error)
	Close() error
}

// Opener opens the device file at path.
type Opener func(path string) (Device, error)

type fileDevice struct {
	fd   int
	path string
}

// OpenDevice opens a device file read-write.
func OpenDevice(path string) (Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, newOpenError(path, err)
	}
	return &fileDevice{fd: fd, path: path}, nil
}

func (d *fileDevice) Pread(buf []byte, offset int64) (int, error) {
	return unix.Pread(d.fd, buf, offset)
}

func (d *fileDevice) Pwrite(buf []byte, offset int64) (int, error) {
	return unix.Pwrite(d.fd, buf, offset)
}

func (d *fileDevice) Close() error {
	return unix.Close(d.fd)
}
