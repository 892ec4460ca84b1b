// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package platform

import (
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"nodepower/internal/cpus"
	"nodepower/internal/msr"
	"nodepower/internal/topology"
)

// State is the position of a Selector in the detection sequence.
type State int

const (
	StateUnbound State = iota
	StateProbed
	StateSelected
	StateCalibrated
	StateActive
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateProbed:
		return "probed"
	case StateSelected:
		return "selected"
	case StateCalibrated:
		return "calibrated"
	case StateActive:
		return "active"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// SelectorOptions configures platform detection. Zero values select the
// running system.
type SelectorOptions struct {
	Models     []*Model   // registration order, default Models()
	Probe      cpus.Probe // default cpus.NewProbe(cpus.DefaultProcRoot)
	Topology   func(coresPerTile int) (topology.Topology, error)
	Devices    msr.Options
	TimeWindow float64 // seconds, default DefaultTimeWindow
}

// Selector walks Unbound -> Probed -> Selected -> Calibrated -> Active and
// back to Unbound on Close. A failure while opening devices or calibrating
// releases everything acquired and returns to Unbound; no other model is
// tried.
type Selector struct {
	opts      SelectorOptions
	state     State
	signature cpus.Signature
	model     *Model
	acc       *msr.Accessor
	cal       Calibration
	platform  *Platform
}

// NewSelector returns an unbound selector.
func NewSelector(opts SelectorOptions) *Selector {
	if opts.Models == nil {
		opts.Models = Models()
	}
	if opts.Probe == nil {
		opts.Probe = cpus.NewProbe(cpus.DefaultProcRoot)
	}
	if opts.Topology == nil {
		opts.Topology = func(coresPerTile int) (topology.Topology, error) {
			return topology.Discover(topology.DefaultSysfsRoot, coresPerTile)
		}
	}
	if opts.TimeWindow == 0 {
		opts.TimeWindow = DefaultTimeWindow
	}
	return &Selector{opts: opts}
}

// State returns the current state.
func (s *Selector) State() State {
	return s.state
}

// Signature returns the probed CPUID signature.
func (s *Selector) Signature() cpus.Signature {
	return s.signature
}

// Model returns the selected model, nil before Match.
func (s *Selector) Model() *Model {
	return s.model
}

func (s *Selector) expect(op string, state State) error {
	if s.state != state {
		return &StateError{Op: op, State: s.state}
	}
	return nil
}

// Probe reads the CPUID signature.
func (s *Selector) Probe() (cpus.Signature, error) {
	if err := s.expect("probe", StateUnbound); err != nil {
		return 0, err
	}
	sig, err := s.opts.Probe()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read CPUID")
	}
	s.signature = sig
	s.state = StateProbed
	slog.Debug("probed CPU", slog.String("signature", sig.String()), slog.String("id", fmt.Sprintf("0x%X", sig.ID())))
	return sig, nil
}

// Match picks the first registered model that supports the probed id.
func (s *Selector) Match() (*Model, error) {
	if err := s.expect("match", StateProbed); err != nil {
		return nil, err
	}
	id := s.signature.ID()
	for _, m := range s.opts.Models {
		if m.Supported(id) {
			s.model = m
			s.state = StateSelected
			slog.Debug("selected platform model", slog.String("model", m.Name), slog.String("id", fmt.Sprintf("0x%X", id)))
			return m, nil
		}
	}
	s.reset()
	return nil, &PlatformUnsupportedError{ID: id}
}

// Calibrate discovers the topology, opens every CPU's device and computes
// the calibration of the selected model.
func (s *Selector) Calibrate() (Calibration, error) {
	if err := s.expect("calibrate", StateSelected); err != nil {
		return Calibration{}, err
	}
	topo, err := s.opts.Topology(s.model.CoresPerTile)
	if err != nil {
		s.reset()
		return Calibration{}, errors.Wrap(err, "failed to discover topology")
	}
	acc, err := msr.Open(topo, s.opts.Devices)
	if err != nil {
		s.reset()
		return Calibration{}, err
	}
	s.acc = acc
	cal, err := calibrate(acc, s.model, s.opts.TimeWindow)
	if err != nil {
		s.reset()
		return Calibration{}, err
	}
	s.cal = cal
	s.state = StateCalibrated
	return cal, nil
}

// Activate binds the signal and control tables to the calibration and
// returns the ready platform.
func (s *Selector) Activate() (*Platform, error) {
	if err := s.expect("activate", StateCalibrated); err != nil {
		return nil, err
	}
	p, err := newPlatform(s, s.model, s.acc, s.cal)
	if err != nil {
		s.reset()
		return nil, err
	}
	s.platform = p
	s.state = StateActive
	slog.Info("platform active", slog.String("model", s.model.Name), slog.Int("cpus", s.acc.Topology().LogicalCPUs()), slog.Bool("msr_safe", s.acc.Safe()))
	return p, nil
}

// Select runs the whole sequence from an unbound selector.
func (s *Selector) Select() (*Platform, error) {
	if _, err := s.Probe(); err != nil {
		return nil, err
	}
	if _, err := s.Match(); err != nil {
		return nil, err
	}
	if _, err := s.Calibrate(); err != nil {
		return nil, err
	}
	return s.Activate()
}

// Close releases the devices and returns the selector to Unbound.
func (s *Selector) Close() error {
	return s.reset()
}

func (s *Selector) reset() error {
	var err error
	if s.acc != nil {
		err = s.acc.Close()
	}
	s.acc = nil
	s.model = nil
	s.platform = nil
	s.cal = Calibration{}
	s.state = StateUnbound
	return err
}
