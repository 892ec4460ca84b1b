// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package platform

import (
	"log/slog"
	"math"

	"nodepower/internal/msr"
	"nodepower/internal/topology"
)

// DefaultTimeWindow is the package power limit averaging window, in seconds,
// encoded for models that program it at calibration.
const DefaultTimeWindow = 0.015

const (
	// Xeon package power limit: enable and clamp for both windows, window
	// exponent 3 in each half
	xeonPkgStaticBits = 0x0007800000078000

	xeonTDPMask = 0x3fff
	knlTDPMask  = 0x7fff

	powerInfoMinShift = 16
	powerInfoMaxShift = 32

	pkgLimitEnable = 1 << 15
	pkgLimitClamp  = 1 << 16
	timeWindowY    = 17
	timeWindowZ    = 22
)

// Calibration holds the unit conversions and bounds computed when a model is
// bound. It is identical for every package and never changes afterwards.
type Calibration struct {
	EnergyUnits     float64 // joules per count
	DramEnergyUnits float64 // joules per count
	PowerUnits      float64 // counts per watt, Xeon convention, 0 on KNL
	PowerUnitsInv   float64 // counts per watt, KNL convention, 0 on Xeon
	TimeUnits       float64 // seconds per count
	TimeWindow      float64 // encoded package limit window in seconds, KNL only
	MinWatts        float64
	MaxWatts        float64
	TDPWatts        float64
	DramMinWatts    float64
	DramMaxWatts    float64
	MinFreqMHz      float64
	MaxFreqMHz      float64
	PkgStaticBits   uint64
}

// countsPerWatt returns the power unit of whichever convention is set
func (c Calibration) countsPerWatt() float64 {
	if c.PowerUnitsInv != 0 {
		return c.PowerUnitsInv
	}
	return c.PowerUnits
}

func (c Calibration) scale(src Source) float64 {
	switch src.Scale {
	case ScaleEnergy:
		return c.EnergyUnits
	case ScaleDramEnergy:
		return c.DramEnergyUnits
	case ScalePower:
		if pu := c.countsPerWatt(); pu != 0 {
			return 1 / pu
		}
		return 0
	}
	if src.Factor == 0 {
		return 1
	}
	return src.Factor
}

// time, energy and power unit fields of RAPL_POWER_UNIT
const raplUnitFields = 0x000F1F0F

// wattsToRaw truncates on Xeon and rounds on KNL. The result saturates at
// the width of the power limit field.
func (c Calibration) wattsToRaw(family Family, watts float64) uint64 {
	if family == FamilyKNL {
		return saturate(math.Round(watts*c.PowerUnitsInv), powerLimitFieldMask)
	}
	return saturate(watts*c.PowerUnits, powerLimitFieldMask)
}

// saturate truncates counts to an integer in [0, limit].
func saturate(counts float64, limit uint64) uint64 {
	if counts >= float64(limit) {
		return limit
	}
	if counts <= 0 {
		return 0
	}
	return uint64(counts)
}

// rawToWatts divides by the model's power unit.
func (c Calibration) rawToWatts(raw uint64) float64 {
	pu := c.countsPerWatt()
	if pu == 0 {
		return 0
	}
	return float64(raw) / pu
}

type powerBounds struct {
	min, max, tdp float64
}

func (c Calibration) bounds(raw uint64, tdpMask uint64) powerBounds {
	return powerBounds{
		min: c.rawToWatts((raw >> powerInfoMinShift) & powerLimitFieldMask),
		max: c.rawToWatts((raw >> powerInfoMaxShift) & powerLimitFieldMask),
		tdp: c.rawToWatts(raw & tdpMask),
	}
}

// calibrate reads the RAPL unit and power info registers of every package and
// derives the calibration of model. It only reads registers.
func calibrate(acc *msr.Accessor, m *Model, tau float64) (Calibration, error) {
	var cal Calibration
	packages := acc.Topology().Count(topology.DomainPackage)

	unitReg, err := m.Registers.Lookup(regRaplPowerUnit)
	if err != nil {
		return cal, err
	}
	units, err := acc.Read(topology.DomainPackage, 0, unitReg.Offset)
	if err != nil {
		return cal, err
	}
	units &= raplUnitFields
	for pkg := 1; pkg < packages; pkg++ {
		other, err := acc.Read(topology.DomainPackage, pkg, unitReg.Offset)
		if err != nil {
			return cal, err
		}
		if other&raplUnitFields != units {
			return cal, &InconsistentUnitsError{Package: pkg, Want: units, Got: other & raplUnitFields}
		}
	}
	cal.EnergyUnits = math.Pow(2, -float64((units>>8)&0x1F))
	cal.TimeUnits = math.Pow(2, -float64((units>>16)&0xF))
	powerUnit := math.Pow(2, float64(units&0xF))
	switch m.Family {
	case FamilyKNL:
		cal.PowerUnitsInv = powerUnit
	default:
		cal.PowerUnits = powerUnit
	}
	cal.DramEnergyUnits = cal.EnergyUnits
	if m.DramEnergyUnits != 0 {
		cal.DramEnergyUnits = m.DramEnergyUnits
	}

	tdpMask := uint64(xeonTDPMask)
	if m.Family == FamilyKNL {
		tdpMask = knlTDPMask
	}
	pkg, err := packageBounds(acc, m, regPkgPowerInfo, cal, tdpMask)
	if err != nil {
		return cal, err
	}
	cal.MinWatts, cal.MaxWatts, cal.TDPWatts = pkg.min, pkg.max, pkg.tdp

	if _, err := m.Registers.Lookup(regDramPowerLimit); err == nil {
		dram, err := packageBounds(acc, m, regDramPowerInfo, cal, tdpMask)
		if err != nil {
			return cal, err
		}
		cal.DramMinWatts, cal.DramMaxWatts = dram.min, dram.max
	}

	if err := frequencyBounds(acc, m, &cal); err != nil {
		return cal, err
	}

	switch m.Family {
	case FamilyKNL:
		bits, actual, err := timeWindow(tau, cal.TimeUnits)
		if err != nil {
			return cal, err
		}
		cal.TimeWindow = actual
		cal.PkgStaticBits = bits
	default:
		cal.PkgStaticBits = xeonPkgStaticBits
	}
	slog.Debug("calibrated platform", slog.String("model", m.Name),
		slog.Float64("energy_units", cal.EnergyUnits), slog.Float64("power_units", powerUnit),
		slog.Float64("tdp_watts", cal.TDPWatts), slog.Float64("min_mhz", cal.MinFreqMHz), slog.Float64("max_mhz", cal.MaxFreqMHz))
	return cal, nil
}

// packageBounds decodes a power info register on package 0 and verifies
// every other package reports the same bounds.
func packageBounds(acc *msr.Accessor, m *Model, name string, cal Calibration, tdpMask uint64) (powerBounds, error) {
	reg, err := m.Registers.Lookup(name)
	if err != nil {
		return powerBounds{}, err
	}
	var first powerBounds
	for pkg := 0; pkg < acc.Topology().Count(topology.DomainPackage); pkg++ {
		raw, err := acc.Read(topology.DomainPackage, pkg, reg.Offset)
		if err != nil {
			return powerBounds{}, err
		}
		b := cal.bounds(raw, tdpMask)
		if pkg == 0 {
			first = b
		} else if b != first {
			return powerBounds{}, &InconsistentBoundsError{Register: name, Package: pkg}
		}
	}
	return first, nil
}

func frequencyBounds(acc *msr.Accessor, m *Model, cal *Calibration) error {
	info, err := m.Registers.Lookup(regPlatformInfo)
	if err != nil {
		return err
	}
	raw, err := acc.Read(topology.DomainPackage, 0, info.Offset)
	if err != nil {
		return err
	}
	cal.MinFreqMHz = float64((raw>>40)&0xFF) * 100
	switch m.Family {
	case FamilyKNL:
		// low byte is forced on, so the bound is far above any real ratio
		cal.MaxFreqMHz = float64((raw>>8)|0xFF) * 100
	default:
		turbo, err := m.Registers.Lookup(regTurboRatioLimit)
		if err != nil {
			return err
		}
		limit, err := acc.Read(topology.DomainPackage, 0, turbo.Offset)
		if err != nil {
			return err
		}
		cal.MaxFreqMHz = float64(limit&0xFF) * 100
	}
	return nil
}

// timeWindow encodes tau as 2^y * (1 + z/4) time units and returns the
// package power limit static bits with the encoded window, enable and clamp
// set, along with the window actually encoded.
func timeWindow(tau, timeUnit float64) (uint64, float64, error) {
	if !(tau > 0) || !(timeUnit > 0) || math.IsInf(tau, 0) {
		return 0, 0, &LogicError{Msg: "invalid time window"}
	}
	y := int(math.Floor(math.Log2(tau / timeUnit)))
	z := int(math.Floor(4 * (tau/(math.Pow(2, float64(y))*timeUnit) - 1)))
	if y>>5 != 0 || z>>2 != 0 {
		return 0, 0, &LogicError{Msg: "time limit too large"}
	}
	actual := math.Pow(2, float64(y)) * (1 + float64(z)/4) * timeUnit
	if math.Abs(tau-actual) > tau/4 {
		return 0, 0, &LogicError{Msg: "time window calculation inaccurate"}
	}
	bits := uint64(y)<<timeWindowY | uint64(z)<<timeWindowZ | pkgLimitEnable | pkgLimitClamp // #nosec G115
	return bits, actual, nil
}
