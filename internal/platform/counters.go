// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package platform

import (
	"log/slog"

	"github.com/pkg/errors"

	"nodepower/internal/msr"
	"nodepower/internal/topology"
)

const (
	fixedCtrCtrlEnable = 0x333       // count in all rings, any thread, for the three fixed counters
	globalCtrlFixedEn  = 0x700000000 // enable fixed counters 0-2

	cboFreezeEnable = 1 << 16
	cboFreeze       = 1 << 8
	cboResetCtrs    = 1 << 1
	cboCtrEnable    = 1 << 22
	cboLLCVictims   = 0x37
	cboUmaskMESI    = 0x7 << 8
	cboFilterStates = 0x1F << 18
)

type registerWrite struct {
	name  string
	value uint64
}

// resetCounters programs the fixed counters of every CPU and, for models
// with a CBo layout, the LLC victim counters of every package.
func resetCounters(acc *msr.Accessor, m *Model) error {
	fixed := []registerWrite{
		{regFixedCtrCtrl, fixedCtrCtrlEnable},
		{regPerfGlobalCtrl, globalCtrlFixedEn},
		{regPerfGlobalOvfCtrl, 0},
		{regFixedCtr0, 0},
		{regFixedCtr1, 0},
		{regFixedCtr2, 0},
	}
	topo := acc.Topology()
	for cpu := 0; cpu < topo.Count(topology.DomainCPU); cpu++ {
		if err := writeSequence(acc, m, topology.DomainCPU, cpu, fixed); err != nil {
			return err
		}
	}
	if m.cbo == nil {
		slog.Debug("reset fixed counters", slog.String("model", m.Name))
		return nil
	}
	for pkg := 0; pkg < topo.Count(topology.DomainPackage); pkg++ {
		for box := range m.cboBoxes {
			// the reset is issued while the box is still frozen
			sequence := []registerWrite{
				{cboBoxCtl(box), cboFreezeEnable},
				{cboBoxCtl(box), cboFreezeEnable | cboFreeze},
				{cboCtl0(box), cboCtrEnable | cboLLCVictims | cboUmaskMESI},
				{cboBoxCtl(box), cboFreezeEnable | cboFreeze | cboResetCtrs},
				{cboFilter(box, 0), cboFilterStates},
				{cboBoxCtl(box), cboFreezeEnable},
			}
			if err := writeSequence(acc, m, topology.DomainPackage, pkg, sequence); err != nil {
				return err
			}
		}
	}
	slog.Debug("reset fixed and uncore counters", slog.String("model", m.Name), slog.Int("boxes", m.cboBoxes))
	return nil
}

func writeSequence(acc *msr.Accessor, m *Model, domain topology.DomainType, index int, writes []registerWrite) error {
	for _, w := range writes {
		reg, err := m.Registers.Lookup(w.name)
		if err != nil {
			return err
		}
		if err := acc.WriteMasked(domain, index, reg.Offset, reg.WriteMask, w.value); err != nil {
			return errors.Wrapf(err, "failed to program %s", reg.Name)
		}
	}
	return nil
}
