// Package control is a subcommand of the root command. It writes power and
// frequency controls of the detected platform.
package control

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"nodepower/internal/common"
	"nodepower/internal/platform"
	"nodepower/internal/topology"
	"nodepower/internal/util"

	"github.com/spf13/cobra"
)

const cmdName = "control"

var examples = []string{
	fmt.Sprintf("  List the controls of the detected model:     $ %s %s", common.AppName, cmdName),
	fmt.Sprintf("  Limit every package to 150 W:                $ %s %s POWER_PACKAGE_LIMIT 150 --domain package", common.AppName, cmdName),
	fmt.Sprintf("  Cap CPUs 0-7 at 2.1 GHz:                     $ %s %s FREQUENCY 2100 --domain cpu --index 0-7", common.AppName, cmdName),
	fmt.Sprintf("  Show the raw register value of a setting:    $ %s %s POWER_PACKAGE_LIMIT 150 --encode", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:   cmdName + " [name value]",
	Short: "Write a control, or list them when no name is given",
	Long: `Writes a control at every selected instance of a domain.

Values are clamped to the bounds read from the platform at startup. A control
written at a domain coarser than its native domain is written to every
contained instance.`,
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          validateArgs,
	SilenceErrors: true,
}

var (
	flagDomain common.DomainFlags
	flagEncode bool
)

const flagEncodeName = "encode"

func init() {
	common.AddDomainFlags(Cmd, &flagDomain, topology.DomainBoard.String())
	Cmd.Flags().BoolVar(&flagEncode, flagEncodeName, false, "print the encoded register value without writing it")
	Cmd.SetUsageFunc(common.UsageFunc(
		[]common.Flag{
			{Name: "name", Help: "control name, see the list printed without arguments"},
			{Name: "value", Help: "setting in the control's units, e.g. watts or MHz"},
		},
		func() []common.FlagGroup {
			return []common.FlagGroup{
				common.DomainFlagGroup(),
				{GroupName: "Other Options", Flags: []common.Flag{{Name: flagEncodeName, Help: "print the encoded register value without writing it"}}},
			}
		},
	))
}

func validateArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 0 && len(args) != 2 {
		return fmt.Errorf("accepts no arguments or a name and a value, received %d", len(args))
	}
	return nil
}

func validateFlags(cmd *cobra.Command, args []string) error {
	if err := flagDomain.Validate(); err != nil {
		return common.FlagValidationError(cmd, err.Error())
	}
	if len(args) == 2 {
		if _, err := strconv.ParseFloat(args[1], 64); err != nil {
			return common.FlagValidationError(cmd, fmt.Sprintf("invalid value %q for control %s", args[1], args[0]))
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
		printControls(cmd.OutOrStdout(), p.Controls())
		return nil
	}
	name := args[0]
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return common.FlagValidationError(cmd, err.Error())
	}
	if flagEncode {
		raw, err := p.Encode(name, value)
		if err != nil {
			return common.CommandError(cmd, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "0x%016X\n", raw)
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
	if err := writeControl(p, name, domain, indices, value); err != nil {
		return common.CommandError(cmd, err)
	}
	return nil
}

func printControls(w io.Writer, controls []platform.Control) {
	for _, c := range controls {
		fmt.Fprintf(w, "%-28s %-8s %-8s %s\n", c.Name, c.Domain, c.Units, c.Description)
	}
}

func writeControl(p *platform.Platform, name string, domain topology.DomainType, indices []int, value float64) error {
	for _, index := range indices {
		if err := p.WriteControl(name, domain, index, value); err != nil {
			return err
		}
	}
	slog.Info("wrote control", slog.String("control", name), slog.String("domain", domain.String()), slog.String("indices", util.FormatIndexList(indices)), slog.Float64("value", value))
	return nil
}
