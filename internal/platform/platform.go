// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package platform binds a CPU model's register map to the MSR devices of a
// node and exposes calibrated signals and controls.
package platform

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/pkg/errors"

	"nodepower/internal/cpus"
	"nodepower/internal/msr"
	"nodepower/internal/topology"
)

// Platform is a bound, calibrated model. It is not safe for concurrent use.
type Platform struct {
	selector  *Selector
	signature cpus.Signature
	model     *Model
	acc       *msr.Accessor
	cal       Calibration
	signals   map[string]*boundSignal
	controls  map[string]*boundControl
}

func newPlatform(s *Selector, m *Model, acc *msr.Accessor, cal Calibration) (*Platform, error) {
	p := &Platform{
		selector:  s,
		signature: s.signature,
		model:     m,
		acc:       acc,
		cal:       cal,
		signals:   make(map[string]*boundSignal),
		controls:  make(map[string]*boundControl),
	}
	for _, sig := range m.Signals {
		b, err := bindSignal(sig, m.Registers, cal)
		if err != nil {
			return nil, err
		}
		p.signals[sig.Name] = b
	}
	for _, ctl := range m.Controls {
		b, err := bindControl(ctl, m.Registers)
		if err != nil {
			return nil, err
		}
		p.controls[ctl.Name] = b
	}
	return p, nil
}

// Model returns the bound model.
func (p *Platform) Model() *Model {
	return p.model
}

// Signature returns the CPUID signature the model was selected for.
func (p *Platform) Signature() cpus.Signature {
	return p.signature
}

// Calibration returns the calibration computed at bind.
func (p *Platform) Calibration() Calibration {
	return p.cal
}

// Topology returns the node topology.
func (p *Platform) Topology() topology.Topology {
	return p.acc.Topology()
}

// Safe reports whether the msr_safe devices are in use.
func (p *Platform) Safe() bool {
	return p.acc.Safe()
}

// Signals returns the model's signals sorted by name.
func (p *Platform) Signals() []Signal {
	signals := make([]Signal, 0, len(p.signals))
	for _, b := range p.signals {
		signals = append(signals, b.Signal)
	}
	sort.Slice(signals, func(i, j int) bool { return signals[i].Name < signals[j].Name })
	return signals
}

// Controls returns the model's controls sorted by name.
func (p *Platform) Controls() []Control {
	controls := make([]Control, 0, len(p.controls))
	for _, b := range p.controls {
		controls = append(controls, b.Control)
	}
	sort.Slice(controls, func(i, j int) bool { return controls[i].Name < controls[j].Name })
	return controls
}

func (p *Platform) signal(name string) (*boundSignal, error) {
	b, ok := p.signals[name]
	if !ok {
		return nil, &UnknownSignalError{Name: name}
	}
	return b, nil
}

func (p *Platform) control(name string) (*boundControl, error) {
	b, ok := p.controls[name]
	if !ok {
		return nil, &UnknownControlError{Name: name}
	}
	return b, nil
}

// Decode converts raw register values, one per source of the signal, into
// the signal value.
func (p *Platform) Decode(name string, raw []uint64) (float64, error) {
	b, err := p.signal(name)
	if err != nil {
		return 0, err
	}
	return b.decode(raw)
}

// ReadSignal reads the named signal on one domain instance. A domain coarser
// than the signal's native domain aggregates every nested native instance; a
// finer domain reads the instance that encloses it.
func (p *Platform) ReadSignal(name string, domain topology.DomainType, index int) (float64, error) {
	b, err := p.signal(name)
	if err != nil {
		return 0, err
	}
	if !domain.Contains(b.Domain) {
		return p.readSignalAt(b, domain, index)
	}
	indices, err := p.Topology().Indices(domain, index, b.Domain)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, i := range indices {
		v, err := p.readSignalAt(b, b.Domain, i)
		if err != nil {
			return 0, err
		}
		total += v
	}
	if b.Aggregation == AggregateAverage {
		total /= float64(len(indices))
	}
	return total, nil
}

func (p *Platform) readSignalAt(b *boundSignal, domain topology.DomainType, index int) (float64, error) {
	raw := make([]uint64, len(b.sources))
	for i, src := range b.sources {
		v, err := p.acc.Read(domain, index, src.offset)
		if err != nil {
			return 0, err
		}
		raw[i] = v
	}
	return b.decode(raw)
}

// Encode returns the raw register value the named control would write for
// value, after clamping to the calibrated bounds.
func (p *Platform) Encode(name string, value float64) (uint64, error) {
	b, err := p.control(name)
	if err != nil {
		return 0, err
	}
	return b.encode(p.model.Family, p.cal, value)
}

// WriteControl sets the named control on one domain instance. A domain
// coarser than the control's native domain writes every nested native
// instance.
func (p *Platform) WriteControl(name string, domain topology.DomainType, index int, value float64) error {
	b, err := p.control(name)
	if err != nil {
		return err
	}
	raw, err := b.encode(p.model.Family, p.cal, value)
	if err != nil {
		return err
	}
	indices := []int{index}
	target := domain
	if domain.Contains(b.Domain) {
		if indices, err = p.Topology().Indices(domain, index, b.Domain); err != nil {
			return err
		}
		target = b.Domain
	}
	for _, i := range indices {
		if err := p.acc.WriteMasked(target, i, b.register.Offset, b.mask, raw); err != nil {
			return err
		}
	}
	slog.Debug("wrote control", slog.String("control", name), slog.String("domain", domain.String()), slog.Int("index", index),
		slog.Float64("value", value), slog.String("raw", fmt.Sprintf("0x%016X", raw)))
	return nil
}

// ReadRegister reads a register by name on one domain instance.
func (p *Platform) ReadRegister(name string, domain topology.DomainType, index int) (uint64, error) {
	reg, err := p.model.Registers.Lookup(name)
	if err != nil {
		return 0, err
	}
	return p.acc.Read(domain, index, reg.Offset)
}

// WriteRegister writes the writable bits of a register by name on one domain
// instance.
func (p *Platform) WriteRegister(name string, domain topology.DomainType, index int, value uint64) error {
	reg, err := p.model.Registers.Lookup(name)
	if err != nil {
		return err
	}
	if !reg.Writable() {
		return &LogicError{Msg: fmt.Sprintf("register %s is read-only", reg.Name)}
	}
	return p.acc.WriteMasked(domain, index, reg.Offset, reg.WriteMask, value)
}

// AllowList returns the msr_safe allow-list entries of the bound model. With
// all set, read-only registers are listed with a zero write mask.
func (p *Platform) AllowList(all bool) []msr.AllowEntry {
	return AllowList(p.model, all)
}

// AllowList returns the msr_safe allow-list entries of a model.
func AllowList(m *Model, all bool) []msr.AllowEntry {
	var entries []msr.AllowEntry
	for _, reg := range m.Registers.Registers() {
		if reg.Writable() || all {
			entries = append(entries, msr.AllowEntry{Offset: reg.Offset, WriteMask: reg.WriteMask, Name: reg.Name})
		}
	}
	return entries
}

// Reset programs the fixed and uncore performance counters used by the
// counter signals and zeroes them.
func (p *Platform) Reset() error {
	return errors.Wrap(resetCounters(p.acc, p.model), "failed to reset counters")
}

// Close releases the devices and returns the selector to Unbound.
func (p *Platform) Close() error {
	if p.selector == nil || p.selector.platform != p {
		return nil
	}
	return p.selector.Close()
}
