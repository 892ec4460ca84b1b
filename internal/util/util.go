/*
Package util includes path and parsing helpers shared by the commands.
*/
package util

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// ExpandUser replaces a leading "~" with the current user's home directory.
func ExpandUser(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~"+string(os.PathSeparator)) {
		return path
	}
	usr, err := user.Current()
	if err != nil {
		return path
	}
	return filepath.Join(usr.HomeDir, strings.TrimPrefix(path, "~"))
}

// AbsPath returns the absolute form of path after expanding "~".
func AbsPath(path string) (string, error) {
	return filepath.Abs(ExpandUser(path))
}

// FileExists reports whether a regular file exists at path. A path that
// exists but is not a regular file is an error.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() {
		return false, fmt.Errorf("%s is not a regular file", path)
	}
	return true, nil
}

// GetAppDir returns the directory holding the running executable
func GetAppDir() string {
	exePath, _ := os.Executable()
	return filepath.Dir(exePath)
}

var indexRangeRegex = regexp.MustCompile(`^(\d+)(?:-(\d+))?$`)

func parseIndexRange(r string) (first, last int, err error) {
	matches := indexRangeRegex.FindStringSubmatch(strings.TrimSpace(r))
	if matches == nil {
		return 0, 0, fmt.Errorf("invalid index range: %q", r)
	}
	if first, err = strconv.Atoi(matches[1]); err != nil {
		return 0, 0, fmt.Errorf("invalid index: %s", matches[1])
	}
	if matches[2] == "" {
		return first, first, nil
	}
	if last, err = strconv.Atoi(matches[2]); err != nil {
		return 0, 0, fmt.Errorf("invalid index: %s", matches[2])
	}
	if first > last {
		return 0, 0, fmt.Errorf("index range %q is reversed", r)
	}
	return first, last, nil
}

// ParseIndexList expands a comma separated list of indices and ranges,
// e.g. "0-3,6", into sorted distinct indices.
func ParseIndexList(input string) ([]int, error) {
	indices := mapset.NewThreadUnsafeSet[int]()
	for r := range strings.SplitSeq(input, ",") {
		first, last, err := parseIndexRange(r)
		if err != nil {
			return nil, err
		}
		for i := first; i <= last; i++ {
			indices.Add(i)
		}
	}
	list := indices.ToSlice()
	slices.Sort(list)
	return list, nil
}

// FormatIndexList is the inverse of ParseIndexList: consecutive indices
// collapse into ranges.
func FormatIndexList(indices []int) string {
	sorted := slices.Compact(slices.Sorted(slices.Values(indices)))
	var parts []string
	for i := 0; i < len(sorted); {
		j := i
		for j+1 < len(sorted) && sorted[j+1] == sorted[j]+1 {
			j++
		}
		if i == j {
			parts = append(parts, strconv.Itoa(sorted[i]))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", sorted[i], sorted[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}

// ParseUint64 parses a decimal or 0x-prefixed hexadecimal unsigned value.
func ParseUint64(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
