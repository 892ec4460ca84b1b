// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package cpus

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
)

const DefaultProcRoot = "/proc"

// Probe returns the CPUID leaf 1 signature of the running processor.
type Probe func() (Signature, error)

var errNoInstruction = errors.New("cpuid instruction not available on this architecture")

// InstructionProbe executes the cpuid instruction directly.
func InstructionProbe() (Signature, error) {
	return instructionSignature()
}

// CPUInfoProbe returns a Probe that rebuilds the signature from the first
// processor entry of <procRoot>/cpuinfo.
func CPUInfoProbe(procRoot string) Probe {
	return func() (Signature, error) {
		return signatureFromCPUInfo(procRoot)
	}
}

// NewProbe returns a Probe that prefers the cpuid instruction and falls back
// to cpuinfo when the instruction is unavailable.
func NewProbe(procRoot string) Probe {
	fallback := CPUInfoProbe(procRoot)
	return func() (Signature, error) {
		sig, err := InstructionProbe()
		if err == nil {
			return sig, nil
		}
		slog.Debug("falling back to cpuinfo for CPUID signature", slog.String("error", err.Error()), slog.String("proc", procRoot))
		return fallback()
	}
}

func signatureFromCPUInfo(procRoot string) (Signature, error) {
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open procfs at %s", procRoot)
	}
	infos, err := fs.CPUInfo()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read cpuinfo")
	}
	if len(infos) == 0 {
		return 0, errors.New("cpuinfo lists no processors")
	}
	info := infos[0]
	family, err := parseCPUInfoField("cpu family", info.CPUFamily)
	if err != nil {
		return 0, err
	}
	model, err := parseCPUInfoField("model", info.Model)
	if err != nil {
		return 0, err
	}
	stepping, err := parseCPUInfoField("stepping", info.Stepping)
	if err != nil {
		return 0, err
	}
	return EncodeSignature(family, model, stepping), nil
}

func parseCPUInfoField(name, value string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid cpuinfo %s %q", name, value)
	}
	return uint32(v), nil
}

// Vendor returns the processor vendor string as reported by CPUID leaf 0.
func Vendor() string {
	if cpuid.CPU.VendorID == cpuid.Intel {
		return IntelVendor
	}
	return cpuid.CPU.VendorID.String()
}

// IsIntel reports whether the running processor is an Intel part.
func IsIntel() bool {
	return cpuid.CPU.VendorID == cpuid.Intel
}

// BrandName returns the processor brand string, e.g. "Intel(R) Xeon(R) CPU E5-2699 v3".
func BrandName() string {
	return strings.TrimSpace(cpuid.CPU.BrandName)
}
