// Package platform is a subcommand of the root command. It reports the detected
// CPU model, node topology and calibration, and generates msr_safe allow-lists.
package platform

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"nodepower/internal/common"
	"nodepower/internal/cpus"
	"nodepower/internal/platform"
	"nodepower/internal/topology"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const cmdName = "platform"

var examples = []string{
	fmt.Sprintf("  Show the detected platform:       $ %s %s", common.AppName, cmdName),
	fmt.Sprintf("  Show the supported models:        $ %s %s --models", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Show the detected CPU model, topology and calibration",
	Long:          "",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

var flagModels bool

const flagModelsName = "models"

func init() {
	Cmd.Flags().BoolVar(&flagModels, flagModelsName, false, "list the supported models and exit")
	Cmd.SetUsageFunc(common.UsageFunc(nil, func() []common.FlagGroup {
		return []common.FlagGroup{{
			GroupName: "General Options",
			Flags:     []common.Flag{{Name: flagModelsName, Help: "list the supported models and exit"}},
		}}
	}))
}

func runCmd(cmd *cobra.Command, args []string) error {
	if flagModels {
		printModels(cmd.OutOrStdout(), platform.Models())
		return nil
	}
	p, err := common.OpenPlatform(cmd)
	if err != nil {
		if !cpus.IsIntel() {
			slog.Warn("processor vendor is not Intel", slog.String("vendor", cpus.Vendor()))
		}
		return common.CommandError(cmd, err)
	}
	defer p.Close()
	printPlatform(cmd.OutOrStdout(), p, cpus.Vendor(), cpus.BrandName())
	return nil
}

func printModels(w io.Writer, models []*platform.Model) {
	for _, m := range models {
		fmt.Fprintf(w, "%-6s %s\n", m.Name, m.String())
	}
}

func printPlatform(w io.Writer, p *platform.Platform, vendor, brand string) {
	printer := message.NewPrinter(language.English)
	m := p.Model()
	topo := p.Topology()
	cal := p.Calibration()
	sig := p.Signature()
	device := "msr"
	if p.Safe() {
		device = "msr_safe"
	}
	row := func(name, format string, a ...any) {
		printer.Fprintf(w, "%-22s "+format+"\n", append([]any{name + ":"}, a...)...)
	}
	row("Model", "%s", m.String())
	row("Family", "%s", m.Family)
	row("CPUID Signature", "%s (family %d, model 0x%X, stepping %d)", sig, sig.Family(), sig.Model(), sig.Stepping())
	if vendor != "" {
		row("Vendor", "%s", vendor)
	}
	if brand != "" {
		row("Brand", "%s", brand)
	}
	row("Device", "%s", device)
	row("Packages", "%d", topo.Count(topology.DomainPackage))
	row("Tiles", "%d", topo.Count(topology.DomainTile))
	row("Cores", "%d", topo.Count(topology.DomainCore))
	row("Logical CPUs", "%d", topo.Count(topology.DomainCPU))
	row("Energy Unit", "%.9f J", cal.EnergyUnits)
	row("DRAM Energy Unit", "%.9f J", cal.DramEnergyUnits)
	if cal.PowerUnitsInv != 0 {
		row("Power Unit", "%.3f W", 1/cal.PowerUnitsInv)
	} else if cal.PowerUnits != 0 {
		row("Power Unit", "%.3f W", 1/cal.PowerUnits)
	}
	row("Time Unit", "%.9f s", cal.TimeUnits)
	if cal.TimeWindow != 0 {
		row("Power Limit Window", "%.6f s", cal.TimeWindow)
	}
	row("Package Power", "min %.1f W, TDP %.1f W, max %.1f W", cal.MinWatts, cal.TDPWatts, cal.MaxWatts)
	if cal.DramMaxWatts != 0 || cal.DramMinWatts != 0 {
		row("DRAM Power", "min %.1f W, max %.1f W", cal.DramMinWatts, cal.DramMaxWatts)
	}
	row("Frequency", "min %.0f MHz, max %.0f MHz", cal.MinFreqMHz, cal.MaxFreqMHz)
	row("Signals", "%d", len(p.Signals()))
	row("Controls", "%d", len(p.Controls()))
}
