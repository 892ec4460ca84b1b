// Package snapshot is a subcommand of the root command. It saves the writable
// registers of the detected platform to a file and restores them later.
package snapshot

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"strings"

	"nodepower/internal/common"

	"github.com/spf13/cobra"
)

const cmdName = "snapshot"

var examples = []string{
	fmt.Sprintf("  Save the writable registers:                 $ %s %s %s before.txt", common.AppName, cmdName, saveCmdName),
	fmt.Sprintf("  Restore them after a job:                    $ %s %s %s before.txt --yes", common.AppName, cmdName, restoreCmdName),
}

var Cmd = &cobra.Command{
	Use:   cmdName,
	Short: "Save and restore the writable registers",
	Long: `Saves every writable register of the detected model, on every instance of
its domain, one "domain:index:offset:value" line per register, and restores
such a file.`,
	Example: strings.Join(examples, "\n"),
	GroupID: "primary",
}
