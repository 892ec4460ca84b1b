// Package signal is a subcommand of the root command. It reads calibrated
// signals from the detected platform.
package signal

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"io"
	"math"
	"strings"

	"nodepower/internal/common"
	"nodepower/internal/platform"
	"nodepower/internal/topology"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const cmdName = "signal"

var examples = []string{
	fmt.Sprintf("  List the signals of the detected model:      $ %s %s", common.AppName, cmdName),
	fmt.Sprintf("  Read package energy of every package:        $ %s %s PKG_ENERGY --domain package", common.AppName, cmdName),
	fmt.Sprintf("  Read the frequency of CPUs 0-3:              $ %s %s FREQUENCY --domain cpu --index 0-3", common.AppName, cmdName),
	fmt.Sprintf("  Read several signals of the board:           $ %s %s PKG_ENERGY DRAM_ENERGY --domain board", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:   cmdName + " [name...]",
	Short: "Read signals, or list them when no name is given",
	Long: `Reads the named signals at every selected instance of a domain.

A signal read at a domain coarser than its native domain is aggregated over
the contained instances. A signal read at a finer domain reports the value
of the enclosing instance.`,
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	SilenceErrors: true,
}

var flagDomain common.DomainFlags

func init() {
	common.AddDomainFlags(Cmd, &flagDomain, topology.DomainBoard.String())
	Cmd.SetUsageFunc(common.UsageFunc(
		[]common.Flag{{Name: "name", Help: "signal name, see the list printed without arguments"}},
		func() []common.FlagGroup { return []common.FlagGroup{common.DomainFlagGroup()} },
	))
}

func validateFlags(cmd *cobra.Command, args []string) error {
	if err := flagDomain.Validate(); err != nil {
		return common.FlagValidationError(cmd, err.Error())
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
		printSignals(cmd.OutOrStdout(), p.Signals())
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
	if err := readSignals(cmd.OutOrStdout(), p, args, domain, indices); err != nil {
		return common.CommandError(cmd, err)
	}
	return nil
}

func printSignals(w io.Writer, signals []platform.Signal) {
	for _, s := range signals {
		units := s.Units
		if units == "" {
			units = "-"
		}
		fmt.Fprintf(w, "%-28s %-8s %-10s %s\n", s.Name, s.Domain, units, s.Description)
	}
}

// readSignals prints one line per signal and domain instance.
func readSignals(w io.Writer, p *platform.Platform, names []string, domain topology.DomainType, indices []int) error {
	printer := message.NewPrinter(language.English)
	for _, name := range names {
		sig, err := p.Model().Signal(name)
		if err != nil {
			return err
		}
		for _, index := range indices {
			value, err := p.ReadSignal(name, domain, index)
			if err != nil {
				return err
			}
			printer.Fprintf(w, "%-28s %s %-4d %s\n", name, domain, index, formatValue(printer, value, sig.Units))
		}
	}
	return nil
}

func formatValue(printer *message.Printer, value float64, units string) string {
	if math.IsNaN(value) {
		return "NaN"
	}
	var s string
	if value == math.Trunc(value) && math.Abs(value) < 1e15 {
		s = printer.Sprintf("%d", int64(value))
	} else {
		s = printer.Sprintf("%.6f", value)
	}
	if units != "" {
		s += " " + units
	}
	return s
}
