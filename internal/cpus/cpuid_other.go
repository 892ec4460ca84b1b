// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

//go:build !amd64

package cpus

func instructionSignature() (Signature, error) {
	return 0, errNoInstruction
}
