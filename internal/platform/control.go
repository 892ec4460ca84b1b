// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package platform

import (
	"fmt"
	"math"

	"nodepower/internal/topology"
)

// ControlKind selects the encoding rule of a control.
type ControlKind int

const (
	ControlPackagePowerLimit ControlKind = iota
	ControlDramPowerLimit
	ControlFrequency
)

func (k ControlKind) String() string {
	switch k {
	case ControlPackagePowerLimit:
		return "package power limit"
	case ControlDramPowerLimit:
		return "dram power limit"
	case ControlFrequency:
		return "frequency"
	}
	return fmt.Sprintf("control(%d)", int(k))
}

// Control is a named setting written to one register.
type Control struct {
	Name        string
	Description string
	Units       string
	Register    string
	Domain      topology.DomainType // native domain
	Kind        ControlKind
	Mask        uint64 // bits written, 0 means the register's write mask
}

type boundControl struct {
	Control
	register Register
	mask     uint64
}

const (
	powerLimitFieldMask = 0x7fff
	dramLimitStaticBits = 0x8000 // enable
	frequencyRatioMask  = 0xff
)

func bindControl(ctl Control, regs *RegisterMap) (*boundControl, error) {
	reg, err := regs.Lookup(ctl.Register)
	if err != nil {
		return nil, err
	}
	mask := ctl.Mask
	if mask == 0 {
		mask = reg.WriteMask
	}
	if mask == 0 {
		return nil, &LogicError{Msg: fmt.Sprintf("control %s targets read-only register %s", ctl.Name, reg.Name)}
	}
	return &boundControl{Control: ctl, register: reg, mask: mask}, nil
}

// clamp limits v to [lo, hi]; an upper bound of zero is treated as unset
func clamp(v, lo, hi float64) float64 {
	if hi > 0 && v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

// encode converts a value in the control's units to the raw register value,
// including the static bits, after clamping it to the calibrated bounds.
func (c *boundControl) encode(family Family, cal Calibration, value float64) (uint64, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, &LogicError{Msg: fmt.Sprintf("control %s: invalid value %v", c.Name, value)}
	}
	switch c.Kind {
	case ControlPackagePowerLimit:
		watts := clamp(value, cal.MinWatts, cal.MaxWatts)
		raw := cal.wattsToRaw(family, watts)
		if family == FamilyXeon {
			// same limit for both time windows
			raw |= raw << 32
		}
		return raw | cal.PkgStaticBits, nil
	case ControlDramPowerLimit:
		watts := clamp(value, cal.DramMinWatts, cal.DramMaxWatts)
		raw := cal.wattsToRaw(family, watts)
		return raw | dramLimitStaticBits, nil
	case ControlFrequency:
		mhz := clamp(value, cal.MinFreqMHz, cal.MaxFreqMHz)
		ratio := saturate(mhz/100, frequencyRatioMask)
		return ratio << 8, nil
	}
	return 0, &LogicError{Msg: fmt.Sprintf("control %s has unknown kind %d", c.Name, int(c.Kind))}
}
