// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package platform

import (
	"fmt"

	"nodepower/internal/topology"
)

// Register describes one MSR of a register map. A zero WriteMask marks a
// read-only register.
type Register struct {
	Name      string
	Offset    uint64
	WriteMask uint64
	Domain    topology.DomainType // domain at which the register is instantiated
}

// Writable reports whether any bit of the register may be written.
func (r Register) Writable() bool {
	return r.WriteMask != 0
}

// RegisterMap is an immutable, ordered set of registers addressable by name
// and by offset.
type RegisterMap struct {
	registers []Register
	byName    map[string]int
	byOffset  map[uint64]int
}

// NewRegisterMap builds a map from groups of registers. Register tables are
// compiled in, so a duplicate name or offset is a programming error and
// panics.
func NewRegisterMap(groups ...[]Register) *RegisterMap {
	m := &RegisterMap{
		byName:   make(map[string]int),
		byOffset: make(map[uint64]int),
	}
	for _, group := range groups {
		for _, r := range group {
			if _, ok := m.byName[r.Name]; ok {
				panic(fmt.Sprintf("duplicate register name %s", r.Name))
			}
			if _, ok := m.byOffset[r.Offset]; ok {
				panic(fmt.Sprintf("duplicate register offset 0x%X (%s)", r.Offset, r.Name))
			}
			m.byName[r.Name] = len(m.registers)
			m.byOffset[r.Offset] = len(m.registers)
			m.registers = append(m.registers, r)
		}
	}
	return m
}

// Lookup returns the register called name.
func (m *RegisterMap) Lookup(name string) (Register, error) {
	i, ok := m.byName[name]
	if !ok {
		return Register{}, &UnknownRegisterError{Name: name}
	}
	return m.registers[i], nil
}

// LookupOffset returns the register at offset.
func (m *RegisterMap) LookupOffset(offset uint64) (Register, error) {
	i, ok := m.byOffset[offset]
	if !ok {
		return Register{}, &UnknownRegisterError{Offset: offset}
	}
	return m.registers[i], nil
}

// Registers returns every register in table order.
func (m *RegisterMap) Registers() []Register {
	return append([]Register(nil), m.registers...)
}

// Len returns the number of registers in the map.
func (m *RegisterMap) Len() int {
	return len(m.registers)
}

// register names shared by every model
const (
	regPerfStatus        = "IA32_PERF_STATUS"
	regPerfCtl           = "IA32_PERF_CTL"
	regPlatformInfo      = "PLATFORM_INFO"
	regTurboRatioLimit   = "TURBO_RATIO_LIMIT"
	regRaplPowerUnit     = "RAPL_POWER_UNIT"
	regPkgPowerLimit     = "PKG_POWER_LIMIT"
	regPkgEnergyStatus   = "PKG_ENERGY_STATUS"
	regPkgPerfStatus     = "PKG_PERF_STATUS"
	regPkgPowerInfo      = "PKG_POWER_INFO"
	regDramPowerLimit    = "DRAM_POWER_LIMIT"
	regDramEnergyStatus  = "DRAM_ENERGY_STATUS"
	regDramPerfStatus    = "DRAM_PERF_STATUS"
	regDramPowerInfo     = "DRAM_POWER_INFO"
	regPP0PowerLimit     = "PP0_POWER_LIMIT"
	regPP0EnergyStatus   = "PP0_ENERGY_STATUS"
	regFixedCtr0         = "PERF_FIXED_CTR0"
	regFixedCtr1         = "PERF_FIXED_CTR1"
	regFixedCtr2         = "PERF_FIXED_CTR2"
	regFixedCtrCtrl      = "PERF_FIXED_CTR_CTRL"
	regPerfGlobalStatus  = "PERF_GLOBAL_STATUS"
	regPerfGlobalCtrl    = "PERF_GLOBAL_CTRL"
	regPerfGlobalOvfCtrl = "PERF_GLOBAL_OVF_CTRL"
)

const (
	perfCtlWriteMask       = 0x000000010000ffff
	pkgPowerLimitWriteMask = 0x00ffffff00ffffff
	dramPowerLimitMask     = 0x0000000000ffffff
	pp0PowerLimitMask      = 0x00000000ffffffff
	counter48Mask          = 0x0000ffffffffffff
	fixedCtrCtrlWriteMask  = 0x0000000000000bbb
	globalCtrlWriteMask    = 0x0000000700000003
	globalOvfCtrlWriteMask = 0xc000000700000003
)

var coreRegisters = []Register{
	{regPerfStatus, 0x198, 0, topology.DomainCPU},
	{regPerfCtl, 0x199, perfCtlWriteMask, topology.DomainCPU},
	{regFixedCtr0, 0x309, counter48Mask, topology.DomainCPU},
	{regFixedCtr1, 0x30A, counter48Mask, topology.DomainCPU},
	{regFixedCtr2, 0x30B, counter48Mask, topology.DomainCPU},
	{regFixedCtrCtrl, 0x38D, fixedCtrCtrlWriteMask, topology.DomainCPU},
	{regPerfGlobalStatus, 0x38E, 0, topology.DomainCPU},
	{regPerfGlobalCtrl, 0x38F, globalCtrlWriteMask, topology.DomainCPU},
	{regPerfGlobalOvfCtrl, 0x390, globalOvfCtrlWriteMask, topology.DomainCPU},
}

var packageRegisters = []Register{
	{regPlatformInfo, 0xCE, 0, topology.DomainPackage},
	{regTurboRatioLimit, 0x1AD, 0, topology.DomainPackage},
	{regRaplPowerUnit, 0x606, 0, topology.DomainPackage},
	{regPkgPowerLimit, 0x610, pkgPowerLimitWriteMask, topology.DomainPackage},
	{regPkgEnergyStatus, 0x611, 0, topology.DomainPackage},
	{regPkgPerfStatus, 0x613, 0, topology.DomainPackage},
	{regPkgPowerInfo, 0x614, 0, topology.DomainPackage},
	{regDramEnergyStatus, 0x619, 0, topology.DomainPackage},
	{regDramPerfStatus, 0x61B, 0, topology.DomainPackage},
	{regDramPowerInfo, 0x61C, 0, topology.DomainPackage},
	{regPP0EnergyStatus, 0x639, 0, topology.DomainPackage},
}

var xeonPackageRegisters = []Register{
	{regDramPowerLimit, 0x618, dramPowerLimitMask, topology.DomainPackage},
	{regPP0PowerLimit, 0x638, pp0PowerLimitMask, topology.DomainPackage},
}

// cboLayout places the uncore caching agent (CBo) performance monitoring
// registers of box n at base + n*stride.
type cboLayout struct {
	boxCtl  uint64
	ctl0    uint64
	ctr0    uint64
	filters []uint64 // first filter is programmed by Reset
	stride  uint64
}

const (
	cboBoxCtlWriteMask = 0x0000000000030103
	cboCtlWriteMask    = 0x00000000ffffffff
	cboFilterWriteMask = 0x00000000ffffffff
)

var snbCBo = cboLayout{boxCtl: 0xD04, ctl0: 0xD10, ctr0: 0xD16, filters: []uint64{0xD14}, stride: 0x20}

var hsxCBo = cboLayout{boxCtl: 0xE00, ctl0: 0xE01, ctr0: 0xE08, filters: []uint64{0xE05, 0xE06}, stride: 0x10}

func cboBoxCtl(box int) string { return fmt.Sprintf("C%d_MSR_PMON_BOX_CTL", box) }
func cboCtl0(box int) string   { return fmt.Sprintf("C%d_MSR_PMON_CTL0", box) }
func cboCtr0(box int) string   { return fmt.Sprintf("C%d_MSR_PMON_CTR0", box) }
func cboFilter(box, n int) string {
	if n == 0 {
		return fmt.Sprintf("C%d_MSR_PMON_BOX_FILTER", box)
	}
	return fmt.Sprintf("C%d_MSR_PMON_BOX_FILTER%d", box, n)
}

// registers returns the registers of boxes 0 through boxes-1.
func (l cboLayout) registers(boxes int) []Register {
	var regs []Register
	for box := range boxes {
		base := l.stride * uint64(box) // #nosec G115
		regs = append(regs,
			Register{cboBoxCtl(box), l.boxCtl + base, cboBoxCtlWriteMask, topology.DomainPackage},
			Register{cboCtl0(box), l.ctl0 + base, cboCtlWriteMask, topology.DomainPackage},
			Register{cboCtr0(box), l.ctr0 + base, counter48Mask, topology.DomainPackage},
		)
		for n, filter := range l.filters {
			regs = append(regs, Register{cboFilter(box, n), filter + base, cboFilterWriteMask, topology.DomainPackage})
		}
	}
	return regs
}
