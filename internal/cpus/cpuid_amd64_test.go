// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package cpus

import (
	"testing"

	"github.com/klauspost/cpuid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstructionProbe(t *testing.T) {
	sig, err := InstructionProbe()
	require.NoError(t, err)
	assert.NotZero(t, sig.Family())
	if cpuid.CPU.VendorID == cpuid.Intel && cpuid.CPU.Family == 6 {
		assert.Equal(t, uint32(cpuid.CPU.Model), sig.Model())
	}
}
