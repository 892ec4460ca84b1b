// Package export is a subcommand of the root command. It publishes the signals
// of the detected platform in the Prometheus exposition format.
package export

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"nodepower/internal/common"
	"nodepower/internal/export"
	"nodepower/internal/topology"

	"github.com/spf13/cobra"
)

const cmdName = "export"

var examples = []string{
	fmt.Sprintf("  Write a node exporter textfile:              $ %s %s --output /var/lib/node_exporter/nodepower.prom", common.AppName, cmdName),
	fmt.Sprintf("  Serve per-CPU signals on port 9101:          $ %s %s --listen :9101 --domain cpu", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:   cmdName,
	Short: "Export signals for Prometheus",
	Long: `Reads every signal of the detected model at every instance of a domain and
writes them as Prometheus gauges, either once to a textfile for the node
exporter or on each scrape of an HTTP endpoint. Signals whose native domain
is coarser than the requested domain are exported at their native domain.`,
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

var (
	flagOutput string
	flagListen string
	flagDomain string
)

const (
	flagOutputName = "output"
	flagListenName = "listen"
	flagDomainName = "domain"
)

func init() {
	Cmd.Flags().StringVar(&flagOutput, flagOutputName, "", "write one scrape to this textfile and exit")
	Cmd.Flags().StringVar(&flagListen, flagListenName, "", "serve /metrics on this address until interrupted, e.g. :9101")
	Cmd.Flags().StringVar(&flagDomain, flagDomainName, topology.DomainPackage.String(), "finest domain to export: board, package, core, cpu or tile")
	Cmd.SetUsageFunc(common.UsageFunc(nil, func() []common.FlagGroup {
		return []common.FlagGroup{{
			GroupName: "Output Options",
			Flags: []common.Flag{
				{Name: flagOutputName, Help: "write one scrape to this textfile and exit"},
				{Name: flagListenName, Help: "serve /metrics on this address until interrupted, e.g. :9101"},
				{Name: flagDomainName, Help: "finest domain to export: board, package, core, cpu or tile (default: package)"},
			},
		}}
	}))
}

func validateFlags(cmd *cobra.Command, args []string) error {
	if (flagOutput == "") == (flagListen == "") {
		return common.FlagValidationError(cmd, fmt.Sprintf("exactly one of --%s and --%s is required", flagOutputName, flagListenName))
	}
	if _, err := topology.ParseDomainType(flagDomain); err != nil {
		return common.FlagValidationError(cmd, err.Error())
	}
	return nil
}

func runCmd(cmd *cobra.Command, args []string) error {
	domain, err := topology.ParseDomainType(flagDomain)
	if err != nil {
		return common.FlagValidationError(cmd, err.Error())
	}
	p, err := common.OpenPlatform(cmd)
	if err != nil {
		return common.CommandError(cmd, err)
	}
	defer p.Close()
	if flagOutput != "" {
		if err := export.WriteTextfile(flagOutput, p, domain); err != nil {
			return common.CommandError(cmd, err)
		}
		return nil
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	fmt.Fprintf(cmd.OutOrStdout(), "Serving signals on %s/metrics, press Ctrl+C to stop.\n", flagListen)
	if err := export.Serve(ctx, flagListen, p, domain); err != nil {
		return common.CommandError(cmd, err)
	}
	return nil
}
