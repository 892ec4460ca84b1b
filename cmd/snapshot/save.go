package snapshot

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"nodepower/internal/common"
	"nodepower/internal/msr"

	"github.com/spf13/cobra"
)

const saveCmdName = "save"

var saveExamples = []string{
	fmt.Sprintf("  Save to a file:        $ %s %s %s before.txt", common.AppName, cmdName, saveCmdName),
	fmt.Sprintf("  Print to stdout:       $ %s %s %s", common.AppName, cmdName, saveCmdName),
}

var SaveCmd = &cobra.Command{
	Use:           saveCmdName + " [file]",
	Short:         "Save the writable registers to a file, or stdout",
	Example:       strings.Join(saveExamples, "\n"),
	RunE:          runSaveCmd,
	Args:          cobra.MaximumNArgs(1),
	SilenceErrors: true,
}

func init() {
	Cmd.AddCommand(SaveCmd)
	SaveCmd.SetUsageFunc(common.UsageFunc([]common.Flag{{Name: "file", Help: "path of the snapshot file, stdout when omitted"}}, nil))
}

func runSaveCmd(cmd *cobra.Command, args []string) error {
	p, err := common.OpenPlatform(cmd)
	if err != nil {
		return common.CommandError(cmd, err)
	}
	defer p.Close()
	entries, err := p.Snapshot()
	if err != nil {
		return common.CommandError(cmd, err)
	}
	var w io.Writer = cmd.OutOrStdout()
	path := ""
	if len(args) == 1 {
		path = args[0]
		f, err := os.Create(path) // #nosec G304
		if err != nil {
			return common.CommandError(cmd, fmt.Errorf("failed to create snapshot file: %v", err))
		}
		defer f.Close()
		w = f
	}
	if err := msr.WriteSnapshot(w, entries); err != nil {
		return common.CommandError(cmd, err)
	}
	slog.Info("saved snapshot", slog.String("path", path), slog.Int("entries", len(entries)))
	return nil
}
