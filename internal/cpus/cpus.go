// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package cpus provides CPUID leaf 1 signature decoding and lookup utilities
// for the microarchitecture behind a composite family/model identifier.
package cpus

import (
	"fmt"
)

const IntelVendor = "GenuineIntel"

// Microarchitecture constants
const (
	UarchSNB = "SNB"
	UarchIVT = "IVT"
	UarchHSX = "HSX"
	UarchBDX = "BDX"
	UarchSKX = "SKX"
	UarchICX = "ICX"
	UarchSPR = "SPR"
	UarchEMR = "EMR"
	UarchGNR = "GNR"
	UarchKNL = "KNL"
	UarchKNM = "KNM"
)

// Signature is the raw EAX value returned by CPUID leaf 1.
type Signature uint32

// Stepping returns bits 3:0 of the signature.
func (s Signature) Stepping() uint32 {
	return uint32(s) & 0xF
}

// Family returns the displayed family. Family 15 parts add the extended
// family field, bits 27:20.
func (s Signature) Family() uint32 {
	family := (uint32(s) >> 8) & 0xF
	if family == 15 {
		family += (uint32(s) >> 20) & 0xFF
	}
	return family
}

// Model returns the displayed model. The extended model field, bits 19:16,
// only applies to family 6 and family 15 parts.
func (s Signature) Model() uint32 {
	family := (uint32(s) >> 8) & 0xF
	model := (uint32(s) >> 4) & 0xF
	if family == 6 || family == 15 {
		model |= ((uint32(s) >> 16) & 0xF) << 4
	}
	return model
}

// ID returns the composite identifier, (family << 8) | model, used to match
// platform models.
func (s Signature) ID() uint32 {
	return (s.Family() << 8) | s.Model()
}

func (s Signature) String() string {
	return fmt.Sprintf("0x%08X (family %d, model %d, stepping %d)", uint32(s), s.Family(), s.Model(), s.Stepping())
}

// EncodeSignature builds the leaf 1 EAX value for a displayed family, model
// and stepping. It is the inverse of Family, Model and Stepping.
func EncodeSignature(family, model, stepping uint32) Signature {
	var eax uint32
	eax |= stepping & 0xF
	eax |= (model & 0xF) << 4
	switch {
	case family >= 15:
		eax |= 0xF << 8
		eax |= ((family - 15) & 0xFF) << 20
		eax |= ((model >> 4) & 0xF) << 16
	case family == 6:
		eax |= 6 << 8
		eax |= ((model >> 4) & 0xF) << 16
	default:
		eax |= (family & 0xF) << 8
	}
	return Signature(eax)
}

type CPUCharacteristics struct {
	MicroArchitecture string
	Description       string
	ID                uint32
}

// cpuIdentifiers maps composite CPUID identifiers to microarchitecture names
var cpuIdentifiers = []CPUCharacteristics{
	{UarchSNB, "Sandy Bridge EP", 0x62D},
	{UarchSNB, "Sandy Bridge", 0x62A},
	{UarchIVT, "Ivy Bridge EP", 0x63E},
	{UarchIVT, "Ivy Bridge", 0x63A},
	{UarchHSX, "Haswell EP", 0x63F},
	{UarchBDX, "Broadwell EP", 0x64F},
	{UarchBDX, "Broadwell DE", 0x656},
	{UarchSKX, "Skylake SP", 0x655},
	{UarchICX, "Icelake SP", 0x66A},
	{UarchICX, "Icelake D", 0x66C},
	{UarchSPR, "Sapphire Rapids", 0x68F},
	{UarchEMR, "Emerald Rapids", 0x6CF},
	{UarchGNR, "Granite Rapids", 0x6AD},
	{UarchKNL, "Knights Landing", 0x657},
	{UarchKNM, "Knights Mill", 0x685},
}

// GetCPU retrieves the characteristics of the CPU with the given composite id
func GetCPU(id uint32) (CPUCharacteristics, error) {
	for _, cpu := range cpuIdentifiers {
		if cpu.ID == id {
			return cpu, nil
		}
	}
	return CPUCharacteristics{}, fmt.Errorf("CPU match not found for id 0x%X", id)
}
