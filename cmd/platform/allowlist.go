package platform

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
	"nodepower/internal/platform"

	"github.com/spf13/cobra"
)

const allowListCmdName = "allowlist"

var allowListExamples = []string{
	fmt.Sprintf("  Print the allow-list of this node:           $ %s %s %s", common.AppName, cmdName, allowListCmdName),
	fmt.Sprintf("  Install an allow-list for msr_safe:          $ %s %s %s --all --output /dev/cpu/msr_allowlist", common.AppName, cmdName, allowListCmdName),
	fmt.Sprintf("  Generate the allow-list of another model:    $ %s %s %s --model bdx", common.AppName, cmdName, allowListCmdName),
}

var AllowListCmd = &cobra.Command{
	Use:   allowListCmdName,
	Short: "Generate the msr_safe allow-list of the detected model",
	Long: `Writes the registers used by the detected model in the msr_safe allow-list
format: one line per register with its offset, its write mask and its name.

Only the CPUID is read, so the allow-list can be generated before msr_safe grants
access to any register.`,
	Example:       strings.Join(allowListExamples, "\n"),
	RunE:          runAllowListCmd,
	PreRunE:       validateAllowListFlags,
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

var (
	flagAllowListAll    bool
	flagAllowListOutput string
	flagAllowListModel  string
)

const (
	flagAllowListAllName    = "all"
	flagAllowListOutputName = "output"
	flagAllowListModelName  = "model"
)

func init() {
	Cmd.AddCommand(AllowListCmd)
	AllowListCmd.Flags().BoolVar(&flagAllowListAll, flagAllowListAllName, false, "include read-only registers with a zero write mask")
	AllowListCmd.Flags().StringVar(&flagAllowListOutput, flagAllowListOutputName, "", "write to this file instead of stdout")
	AllowListCmd.Flags().StringVar(&flagAllowListModel, flagAllowListModelName, "", "use the named model instead of detecting it")
	AllowListCmd.SetUsageFunc(common.UsageFunc(nil, allowListFlagGroups))
}

func allowListFlagGroups() []common.FlagGroup {
	return []common.FlagGroup{{
		GroupName: "General Options",
		Flags: []common.Flag{
			{Name: flagAllowListAllName, Help: "include read-only registers with a zero write mask"},
			{Name: flagAllowListOutputName, Help: "write to this file instead of stdout"},
			{Name: flagAllowListModelName, Help: "use the named model instead of detecting it"},
		},
	}}
}

func validateAllowListFlags(cmd *cobra.Command, args []string) error {
	if flagAllowListModel != "" {
		if _, err := platform.FilterModels(platform.Models(), []string{flagAllowListModel}); err != nil {
			return common.FlagValidationError(cmd, err.Error())
		}
	}
	return nil
}

// allowListModel returns the model named by --model or the model matching
// the running CPU.
func allowListModel(cmd *cobra.Command) (*platform.Model, error) {
	if flagAllowListModel != "" {
		models, err := platform.FilterModels(platform.Models(), []string{flagAllowListModel})
		if err != nil {
			return nil, err
		}
		return models[0], nil
	}
	appContext, err := common.GetAppContext(cmd)
	if err != nil {
		return nil, err
	}
	selector := platform.NewSelector(appContext.Selector)
	defer selector.Close()
	if _, err := selector.Probe(); err != nil {
		return nil, err
	}
	return selector.Match()
}

func runAllowListCmd(cmd *cobra.Command, args []string) error {
	m, err := allowListModel(cmd)
	if err != nil {
		return common.CommandError(cmd, err)
	}
	entries := platform.AllowList(m, flagAllowListAll)
	var w io.Writer = cmd.OutOrStdout()
	if flagAllowListOutput != "" {
		f, err := os.Create(flagAllowListOutput) // #nosec G304
		if err != nil {
			return common.CommandError(cmd, fmt.Errorf("failed to create allow-list file: %v", err))
		}
		defer f.Close()
		w = f
	}
	if err := msr.WriteAllowList(w, entries); err != nil {
		return common.CommandError(cmd, err)
	}
	slog.Info("wrote allow-list", slog.String("model", m.Name), slog.Int("entries", len(entries)), slog.String("output", flagAllowListOutput))
	return nil
}
