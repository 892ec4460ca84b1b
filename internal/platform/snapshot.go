// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package platform

import (
	"io"
	"log/slog"

	"nodepower/internal/msr"
)

// Snapshot captures the raw value of every writable register on every
// instance of the register's native domain.
func (p *Platform) Snapshot() ([]msr.SnapshotEntry, error) {
	topo := p.Topology()
	var entries []msr.SnapshotEntry
	for _, reg := range p.model.Registers.Registers() {
		if !reg.Writable() {
			continue
		}
		for index := 0; index < topo.Count(reg.Domain); index++ {
			value, err := p.acc.Read(reg.Domain, index, reg.Offset)
			if err != nil {
				return nil, err
			}
			entries = append(entries, msr.SnapshotEntry{Domain: reg.Domain, Index: index, Offset: reg.Offset, Value: value})
		}
	}
	slog.Debug("captured snapshot", slog.Int("entries", len(entries)))
	return entries, nil
}

// Restore writes each entry in order through the register's write mask. It
// stops at the first failure; entries already written stay applied.
func (p *Platform) Restore(entries []msr.SnapshotEntry) error {
	for _, e := range entries {
		if err := p.restoreEntry(e); err != nil {
			return err
		}
	}
	return nil
}

// RestoreFrom parses a snapshot file and applies each line as soon as it is
// parsed. A malformed line stops the restore; earlier lines stay applied.
func (p *Platform) RestoreFrom(r io.Reader) error {
	return msr.ReadSnapshot(r, p.restoreEntry)
}

func (p *Platform) restoreEntry(e msr.SnapshotEntry) error {
	reg, err := p.model.Registers.LookupOffset(e.Offset)
	if err != nil {
		return err
	}
	if !reg.Writable() {
		return &LogicError{Msg: "register " + reg.Name + " is read-only"}
	}
	return p.acc.WriteMasked(e.Domain, e.Index, reg.Offset, reg.WriteMask, e.Value)
}
