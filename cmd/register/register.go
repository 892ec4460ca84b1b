// Package register is a subcommand of the root command. It reads and writes
// raw registers of the detected model by name.
package register

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"nodepower/internal/common"
	"nodepower/internal/platform"
	"nodepower/internal/topology"
	"nodepower/internal/util"

	"github.com/spf13/cobra"
)

const cmdName = "register"

var examples = []string{
	fmt.Sprintf("  List the registers of the detected model:    $ %s %s", common.AppName, cmdName),
	fmt.Sprintf("  Read the package power limit:                $ %s %s PKG_POWER_LIMIT --domain package", common.AppName, cmdName),
	fmt.Sprintf("  Write the writable bits of a register:       $ %s %s IA32_PERF_CTL 0x1700 --domain cpu --index 0", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:   cmdName + " [name [value]]",
	Short: "Read or write a register, or list them when no name is given",
	Long: `Reads a register by name at every selected instance of a domain, or writes
value to it. Only the bits of the register's write mask are changed; the
others keep their current value.`,
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.MaximumNArgs(2),
	SilenceErrors: true,
}

var flagDomain common.DomainFlags

func init() {
	common.AddDomainFlags(Cmd, &flagDomain, topology.DomainCPU.String())
	Cmd.SetUsageFunc(common.UsageFunc(
		[]common.Flag{
			{Name: "name", Help: "register name, see the list printed without arguments"},
			{Name: "value", Help: "decimal or 0x-prefixed hexadecimal value to write"},
		},
		func() []common.FlagGroup { return []common.FlagGroup{common.DomainFlagGroup()} },
	))
}

func validateFlags(cmd *cobra.Command, args []string) error {
	if err := flagDomain.Validate(); err != nil {
		return common.FlagValidationError(cmd, err.Error())
	}
	if len(args) == 2 {
		if _, err := util.ParseUint64(args[1]); err != nil {
			return common.FlagValidationError(cmd, fmt.Sprintf("invalid register value %q", args[1]))
		}
	}
	return nil
}

func runCmd(cmd *cobra.Command, args []string) error {
	p, err := common.OpenPlatform(cmd)
	if err != nil {
		return common.CommandError(cmd, err)
	}
	defer p.Close()
	if len(args) == 0 {
		printRegisters(cmd.OutOrStdout(), p.Model().Registers.Registers())
		return nil
	}
	domain, err := flagDomain.ParseDomain()
	if err != nil {
		return common.FlagValidationError(cmd, err.Error())
	}
	indices, err := flagDomain.Indices(p.Topology(), domain)
	if err != nil {
		return common.FlagValidationError(cmd, err.Error())
	}
	name := args[0]
	if len(args) == 2 {
		value, err := util.ParseUint64(args[1])
		if err != nil {
			return common.FlagValidationError(cmd, err.Error())
		}
		for _, index := range indices {
			if err := p.WriteRegister(name, domain, index, value); err != nil {
				return common.CommandError(cmd, err)
			}
		}
		slog.Info("wrote register", slog.String("register", name), slog.String("domain", domain.String()), slog.String("indices", util.FormatIndexList(indices)), slog.String("value", fmt.Sprintf("0x%X", value)))
		return nil
	}
	for _, index := range indices {
		value, err := p.ReadRegister(name, domain, index)
		if err != nil {
			return common.CommandError(cmd, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-28s %s %-4d 0x%016X\n", name, domain, index, value)
	}
	return nil
}

func printRegisters(w io.Writer, registers []platform.Register) {
	for _, r := range registers {
		fmt.Fprintf(w, "%-28s 0x%08X %-8s 0x%016X\n", r.Name, r.Offset, r.Domain, r.WriteMask)
	}
}
