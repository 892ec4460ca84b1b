package control

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"strings"

	"nodepower/internal/common"

	"github.com/spf13/cobra"
)

const resetCmdName = "reset"

var resetExamples = []string{
	fmt.Sprintf("  Zero and restart the performance counters:  $ %s %s %s", common.AppName, cmdName, resetCmdName),
}

var ResetCmd = &cobra.Command{
	Use:   resetCmdName,
	Short: "Program and zero the performance counters used by counter signals",
	Long: `Enables the fixed counters of every CPU and programs the CBo uncore counters
of every package to count LLC victims, then zeroes them.`,
	Example:       strings.Join(resetExamples, "\n"),
	RunE:          runResetCmd,
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

func init() {
	Cmd.AddCommand(ResetCmd)
	ResetCmd.SetUsageFunc(common.UsageFunc(nil, nil))
}

func runResetCmd(cmd *cobra.Command, args []string) error {
	p, err := common.OpenPlatform(cmd)
	if err != nil {
		return common.CommandError(cmd, err)
	}
	defer p.Close()
	if err := p.Reset(); err != nil {
		return common.CommandError(cmd, err)
	}
	slog.Info("reset performance counters", slog.String("model", p.Model().Name))
	fmt.Fprintln(cmd.OutOrStdout(), "Performance counters reset.")
	return nil
}
