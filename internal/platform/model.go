// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package platform

import (
	"fmt"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"nodepower/internal/cpus"
	"nodepower/internal/topology"
)

// ModelID enumerates the supported CPU models.
type ModelID int

const (
	ModelSNB ModelID = iota
	ModelIVT
	ModelHSX
	ModelBDX
	ModelKNL
)

// Family selects the RAPL conventions of a model.
type Family int

const (
	FamilyXeon Family = iota // power units divide, encode truncates, fixed time window
	FamilyKNL                // inverse power units multiply, encode rounds, computed time window
)

func (f Family) String() string {
	if f == FamilyKNL {
		return "knl"
	}
	return "xeon"
}

// Model is the register map, signal table and control table of a CPU model.
type Model struct {
	ID              ModelID
	Name            string
	Description     string
	Family          Family
	CPUIDs          []uint32 // composite (family << 8) | model identifiers
	CoresPerTile    int
	DramEnergyUnits float64 // fixed DRAM energy unit in joules, 0 uses the RAPL energy unit
	Registers       *RegisterMap
	Signals         []Signal
	Controls        []Control
	cbo             *cboLayout
	cboBoxes        int
}

// Supported reports whether the model handles the composite CPUID id.
func (m *Model) Supported(id uint32) bool {
	return slices.Contains(m.CPUIDs, id)
}

func (m *Model) String() string {
	ids := make([]string, len(m.CPUIDs))
	for i, id := range m.CPUIDs {
		ids[i] = fmt.Sprintf("0x%X", id)
	}
	return fmt.Sprintf("%s (%s, CPUID %s)", m.Name, m.Description, strings.Join(ids, ", "))
}

// Signal returns the named signal.
func (m *Model) Signal(name string) (Signal, error) {
	for _, s := range m.Signals {
		if s.Name == name {
			return s, nil
		}
	}
	return Signal{}, &UnknownSignalError{Name: name}
}

// Control returns the named control.
func (m *Model) Control(name string) (Control, error) {
	for _, c := range m.Controls {
		if c.Name == name {
			return c, nil
		}
	}
	return Control{}, &UnknownControlError{Name: name}
}

// Models returns a new instance of every supported model in registration
// order. When two models support the same id the first one wins.
func Models() []*Model {
	return []*Model{
		newKNL(),
		newXeon(ModelHSX, cpus.UarchHSX, []uint32{0x63F}, hsxCBo, 18, hsxDramEnergyUnits),
		newXeon(ModelBDX, cpus.UarchBDX, []uint32{0x64F}, hsxCBo, 22, hsxDramEnergyUnits),
		newXeon(ModelIVT, cpus.UarchIVT, []uint32{0x63E}, snbCBo, 15, 0),
		newXeon(ModelSNB, cpus.UarchSNB, []uint32{0x62D, 0x62A}, snbCBo, 8, 0),
	}
}

// FilterModels keeps the models whose names appear in names, preserving
// registration order. An empty names list keeps every model.
func FilterModels(models []*Model, names []string) ([]*Model, error) {
	if len(names) == 0 {
		return models, nil
	}
	wanted := mapset.NewThreadUnsafeSet[string]()
	for _, name := range names {
		wanted.Add(strings.ToUpper(strings.TrimSpace(name)))
	}
	known := mapset.NewThreadUnsafeSet[string]()
	var filtered []*Model
	for _, m := range models {
		known.Add(m.Name)
		if wanted.Contains(m.Name) {
			filtered = append(filtered, m)
		}
	}
	if unknown := wanted.Difference(known); unknown.Cardinality() > 0 {
		names := unknown.ToSlice()
		slices.Sort(names)
		return nil, fmt.Errorf("unknown model(s): %s", strings.Join(names, ", "))
	}
	return filtered, nil
}

// fixed DRAM energy unit of Haswell and later server parts
const hsxDramEnergyUnits = 1.0 / (1 << 16)

func describe(id uint32) string {
	if cpu, err := cpus.GetCPU(id); err == nil {
		return cpu.Description
	}
	return ""
}

func newXeon(id ModelID, name string, cpuids []uint32, cbo cboLayout, boxes int, dramEnergyUnits float64) *Model {
	m := &Model{
		ID:              id,
		Name:            name,
		Description:     describe(cpuids[0]),
		Family:          FamilyXeon,
		CPUIDs:          cpuids,
		CoresPerTile:    1,
		DramEnergyUnits: dramEnergyUnits,
		Registers:       NewRegisterMap(coreRegisters, packageRegisters, xeonPackageRegisters, cbo.registers(boxes)),
		cbo:             &cbo,
		cboBoxes:        boxes,
	}
	m.Signals = append(commonSignals(xeonTDPMask), xeonSignals(boxes)...)
	m.Controls = []Control{
		packagePowerLimitControl(0),
		{
			Name:        "POWER_DRAM_LIMIT",
			Description: "DRAM power limit",
			Units:       "watts",
			Register:    regDramPowerLimit,
			Domain:      topology.DomainPackage,
			Kind:        ControlDramPowerLimit,
		},
		frequencyControl(),
	}
	return m
}

func newKNL() *Model {
	return &Model{
		ID:              ModelKNL,
		Name:            cpus.UarchKNL,
		Description:     describe(0x657),
		Family:          FamilyKNL,
		CPUIDs:          []uint32{0x657},
		CoresPerTile:    2,
		DramEnergyUnits: hsxDramEnergyUnits,
		Registers:       NewRegisterMap(coreRegisters, packageRegisters),
		Signals:         commonSignals(knlTDPMask),
		Controls: []Control{
			// KNL programs a single time window
			packagePowerLimitControl(0x0000000000ffffff),
			frequencyControl(),
		},
	}
}

func packagePowerLimitControl(mask uint64) Control {
	return Control{
		Name:        "POWER_PACKAGE_LIMIT",
		Description: "package power limit",
		Units:       "watts",
		Register:    regPkgPowerLimit,
		Domain:      topology.DomainPackage,
		Kind:        ControlPackagePowerLimit,
		Mask:        mask,
	}
}

func frequencyControl() Control {
	return Control{
		Name:        "FREQUENCY",
		Description: "requested core frequency",
		Units:       "MHz",
		Register:    regPerfCtl,
		Domain:      topology.DomainCPU,
		Kind:        ControlFrequency,
	}
}

func energySource(register string, scale ScaleKind) Source {
	return Source{Register: register, BitWidth: 32, Scale: scale}
}

func counterSource(register, name string) Source {
	return Source{Register: register, Var: name, BitWidth: 48}
}

func commonSignals(tdpMask uint64) []Signal {
	tdpWidth := uint(14)
	if tdpMask == knlTDPMask {
		tdpWidth = 15
	}
	return []Signal{
		{
			Name:        "PKG_ENERGY",
			Description: "package energy consumed",
			Units:       "joules",
			Domain:      topology.DomainPackage,
			Sources:     []Source{energySource(regPkgEnergyStatus, ScaleEnergy)},
		},
		{
			Name:        "DRAM_ENERGY",
			Description: "DRAM energy consumed",
			Units:       "joules",
			Domain:      topology.DomainPackage,
			Sources:     []Source{energySource(regDramEnergyStatus, ScaleDramEnergy)},
		},
		{
			Name:        "PP0_ENERGY",
			Description: "core power plane energy consumed",
			Units:       "joules",
			Domain:      topology.DomainPackage,
			Sources:     []Source{energySource(regPP0EnergyStatus, ScaleEnergy)},
		},
		{
			Name:        "FREQUENCY",
			Description: "current core frequency",
			Units:       "MHz",
			Domain:      topology.DomainCPU,
			Aggregation: AggregateAverage,
			Sources:     []Source{{Register: regPerfStatus, RightShift: 8, BitWidth: 8, Factor: 100}},
		},
		{
			Name:        "INST_RETIRED",
			Description: "instructions retired",
			Units:       "instructions",
			Domain:      topology.DomainCPU,
			Sources:     []Source{counterSource(regFixedCtr0, "inst")},
		},
		{
			Name:        "CLK_UNHALTED_CORE",
			Description: "core cycles while not halted",
			Units:       "cycles",
			Domain:      topology.DomainCPU,
			Sources:     []Source{counterSource(regFixedCtr1, "core")},
		},
		{
			Name:        "CLK_UNHALTED_REF",
			Description: "reference cycles while not halted",
			Units:       "cycles",
			Domain:      topology.DomainCPU,
			Sources:     []Source{counterSource(regFixedCtr2, "ref")},
		},
		{
			Name:        "CLK_UNHALTED_RATIO",
			Description: "core cycles per reference cycle",
			Units:       "ratio",
			Domain:      topology.DomainCPU,
			Aggregation: AggregateAverage,
			Combinator:  CombineRatio,
			Sources:     []Source{counterSource(regFixedCtr1, "core"), counterSource(regFixedCtr2, "ref")},
		},
		{
			Name:        "ACTIVE_FREQUENCY",
			Description: "average frequency while not halted",
			Units:       "MHz",
			Domain:      topology.DomainCPU,
			Aggregation: AggregateAverage,
			Combinator:  CombineExpression,
			Expression:  "base * core / ref",
			Sources: []Source{
				{Register: regPlatformInfo, Var: "base", RightShift: 8, BitWidth: 8, Factor: 100},
				counterSource(regFixedCtr1, "core"),
				counterSource(regFixedCtr2, "ref"),
			},
		},
		{
			Name:        "POWER_PACKAGE_LIMIT",
			Description: "current package power limit",
			Units:       "watts",
			Domain:      topology.DomainPackage,
			Sources:     []Source{{Register: regPkgPowerLimit, BitWidth: 15, Scale: ScalePower}},
		},
		{
			Name:        "POWER_PACKAGE_TDP",
			Description: "package thermal design power",
			Units:       "watts",
			Domain:      topology.DomainPackage,
			Sources:     []Source{{Register: regPkgPowerInfo, BitWidth: tdpWidth, Scale: ScalePower}},
		},
	}
}

func xeonSignals(boxes int) []Signal {
	victims := make([]Source, boxes)
	for box := range boxes {
		victims[box] = Source{Register: cboCtr0(box), BitWidth: 48}
	}
	return []Signal{
		{
			Name:        "POWER_DRAM_LIMIT",
			Description: "current DRAM power limit",
			Units:       "watts",
			Domain:      topology.DomainPackage,
			Sources:     []Source{{Register: regDramPowerLimit, BitWidth: 15, Scale: ScalePower}},
		},
		{
			Name:        "PKG_NON_CORE_ENERGY",
			Description: "package energy not consumed by the core power plane",
			Units:       "joules",
			Domain:      topology.DomainPackage,
			Combinator:  CombineDifference,
			Sources:     []Source{energySource(regPkgEnergyStatus, ScaleEnergy), energySource(regPP0EnergyStatus, ScaleEnergy)},
		},
		{
			Name:        "LLC_VICTIMS",
			Description: "last level cache lines evicted",
			Units:       "lines",
			Domain:      topology.DomainPackage,
			Sources:     victims,
		},
	}
}
