// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package msr

import (
	"fmt"
	"io"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

const allowListHeader = "# MSR # Write Mask # Comment"

// AllowEntry is one record of an msr_safe allow-list.
type AllowEntry struct {
	Offset    uint64
	WriteMask uint64
	Name      string
}

// WriteAllowList writes entries in the format read by the msr_safe kernel
// module, ordered by offset. When an offset appears more than once the first
// entry is kept.
func WriteAllowList(w io.Writer, entries []AllowEntry) error {
	seen := mapset.NewThreadUnsafeSet[uint64]()
	var unique []AllowEntry
	for _, e := range entries {
		if seen.Add(e.Offset) {
			unique = append(unique, e)
		}
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Offset < unique[j].Offset
	})
	if _, err := fmt.Fprintln(w, allowListHeader); err != nil {
		return err
	}
	for _, e := range unique {
		if _, err := fmt.Fprintf(w, "0x%08X 0x%016X # %s\n", e.Offset, e.WriteMask, e.Name); err != nil {
			return err
		}
	}
	return nil
}
