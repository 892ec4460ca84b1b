// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package cpus

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureDecode(t *testing.T) {
	tests := []struct {
		name     string
		eax      uint32
		family   uint32
		model    uint32
		stepping uint32
		id       uint32
	}{
		{
			name:     "haswell ep",
			eax:      0x000306F2, // family 6, model 0xF, extended model 0x3
			family:   6,
			model:    0x3F,
			stepping: 2,
			id:       0x63F,
		},
		{
			name:     "ivy bridge ep",
			eax:      0x000306E4, // family 6, model 0xE, extended model 0x3
			family:   6,
			model:    0x3E,
			stepping: 4,
			id:       0x63E,
		},
		{
			name:     "sandy bridge ep",
			eax:      0x000206D7,
			family:   6,
			model:    0x2D,
			stepping: 7,
			id:       0x62D,
		},
		{
			name:     "knights landing",
			eax:      0x00050671,
			family:   6,
			model:    0x57,
			stepping: 1,
			id:       0x657,
		},
		{
			name:     "family 15 adds extended family",
			eax:      0x00A20F10, // family 0xF + 0x0A, model 0x21
			family:   25,
			model:    0x21,
			stepping: 0,
			id:       (25 << 8) | 0x21,
		},
		{
			name:     "extended model ignored outside family 6 and 15",
			eax:      0x00030520,
			family:   5,
			model:    2,
			stepping: 0,
			id:       0x502,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := Signature(tt.eax)
			assert.Equal(t, tt.family, sig.Family())
			assert.Equal(t, tt.model, sig.Model())
			assert.Equal(t, tt.stepping, sig.Stepping())
			assert.Equal(t, tt.id, sig.ID())
		})
	}
}

func TestEncodeSignatureRoundTrip(t *testing.T) {
	tests := []struct {
		family, model, stepping uint32
	}{
		{6, 0x3F, 2},
		{6, 0x57, 1},
		{6, 0x2D, 7},
		{25, 0x21, 0},
		{5, 2, 1},
	}
	for _, tt := range tests {
		sig := EncodeSignature(tt.family, tt.model, tt.stepping)
		assert.Equal(t, tt.family, sig.Family())
		assert.Equal(t, tt.model, sig.Model())
		assert.Equal(t, tt.stepping, sig.Stepping())
	}
	assert.Equal(t, uint32(0x63F), EncodeSignature(6, 0x3F, 0).ID())
}

func TestGetCPU(t *testing.T) {
	cpu, err := GetCPU(0x63F)
	require.NoError(t, err)
	assert.Equal(t, UarchHSX, cpu.MicroArchitecture)

	cpu, err = GetCPU(0x657)
	require.NoError(t, err)
	assert.Equal(t, UarchKNL, cpu.MicroArchitecture)

	_, err = GetCPU(0xFFFF)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "CPU match not found")
}

const haswellCPUInfo = `processor	: 0
vendor_id	: GenuineIntel
cpu family	: 6
model		: 63
model name	: Intel(R) Xeon(R) CPU E5-2699 v3 @ 2.30GHz
stepping	: 2
microcode	: 0x44
cpu MHz		: 2300.000
cache size	: 46080 KB
physical id	: 0
siblings	: 36
core id		: 0
cpu cores	: 18
apicid		: 0
initial apicid	: 0
fpu		: yes
fpu_exception	: yes
cpuid level	: 15
wp		: yes
flags		: fpu vme de pse tsc msr
bogomips	: 4600.00
clflush size	: 64
cache_alignment	: 64
address sizes	: 46 bits physical, 48 bits virtual
power management:

`

func TestCPUInfoProbe(t *testing.T) {
	if runtime.GOARCH != "amd64" && runtime.GOARCH != "386" {
		t.Skip("cpuinfo layout is architecture specific")
	}
	procRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(procRoot, "cpuinfo"), []byte(haswellCPUInfo), 0644))

	sig, err := CPUInfoProbe(procRoot)()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x63F), sig.ID())
	assert.Equal(t, uint32(2), sig.Stepping())
}

func TestCPUInfoProbeMissing(t *testing.T) {
	_, err := CPUInfoProbe(filepath.Join(t.TempDir(), "missing"))()
	assert.Error(t, err)
}

func TestParseCPUInfoField(t *testing.T) {
	v, err := parseCPUInfoField("model", " 85 ")
	require.NoError(t, err)
	assert.Equal(t, uint32(85), v)

	_, err = parseCPUInfoField("model", "x")
	assert.ErrorContains(t, err, "invalid cpuinfo model")
}
