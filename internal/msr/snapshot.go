// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package msr

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"nodepower/internal/topology"
)

// SnapshotEntry is the raw value of one register on one domain instance.
type SnapshotEntry struct {
	Domain topology.DomainType
	Index  int
	Offset uint64
	Value  uint64
}

func (e SnapshotEntry) String() string {
	return fmt.Sprintf("%d:%d:%d:%d", int(e.Domain), e.Index, e.Offset, e.Value)
}

// SnapshotParseError is returned for a snapshot line that is not four
// colon-separated integers.
type SnapshotParseError struct {
	Line int
	Text string
	Err  error
}

func (e *SnapshotParseError) Error() string {
	return fmt.Sprintf("malformed snapshot line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *SnapshotParseError) Unwrap() error { return e.Err }

// WriteSnapshot writes one "<domain>:<index>:<offset>:<value>" line per entry.
func WriteSnapshot(w io.Writer, entries []SnapshotEntry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := fmt.Fprintln(bw, e.String()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ParseSnapshotLine parses a single snapshot line. lineNum is only used for
// error reporting.
func ParseSnapshotLine(line string, lineNum int) (SnapshotEntry, error) {
	fields := strings.Split(line, ":")
	if len(fields) != 4 {
		return SnapshotEntry{}, &SnapshotParseError{Line: lineNum, Text: line, Err: errors.Errorf("expected 4 fields, found %d", len(fields))}
	}
	domain, err := strconv.Atoi(fields[0])
	if err != nil {
		return SnapshotEntry{}, &SnapshotParseError{Line: lineNum, Text: line, Err: errors.Wrap(err, "domain type")}
	}
	if !topology.DomainType(domain).Valid() {
		return SnapshotEntry{}, &SnapshotParseError{Line: lineNum, Text: line, Err: errors.Errorf("unknown domain type %d", domain)}
	}
	index, err := strconv.Atoi(fields[1])
	if err != nil {
		return SnapshotEntry{}, &SnapshotParseError{Line: lineNum, Text: line, Err: errors.Wrap(err, "domain index")}
	}
	offset, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return SnapshotEntry{}, &SnapshotParseError{Line: lineNum, Text: line, Err: errors.Wrap(err, "offset")}
	}
	value, err := strconv.ParseUint(fields[3], 10, 64)
	if err != nil {
		return SnapshotEntry{}, &SnapshotParseError{Line: lineNum, Text: line, Err: errors.Wrap(err, "value")}
	}
	return SnapshotEntry{Domain: topology.DomainType(domain), Index: index, Offset: offset, Value: value}, nil
}

// ReadSnapshot parses r line by line and hands each entry to apply as soon as
// it is parsed. It stops at the first malformed line or apply error; entries
// already handed to apply are not undone. Blank lines are skipped.
func ReadSnapshot(r io.Reader, apply func(SnapshotEntry) error) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := ParseSnapshotLine(line, lineNum)
		if err != nil {
			return err
		}
		if err := apply(entry); err != nil {
			return errors.Wrapf(err, "snapshot line %d", lineNum)
		}
	}
	return scanner.Err()
}
