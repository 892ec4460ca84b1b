// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package cpus

// cpuidLeaf executes the CPUID instruction for the given leaf and subleaf,
// implemented in cpuid_amd64.s
func cpuidLeaf(eaxArg, ecxArg uint32) (eax, ebx, ecx, edx uint32)

func instructionSignature() (Signature, error) {
	eax, _, _, _ := cpuidLeaf(1, 0)
	return Signature(eax), nil
}
