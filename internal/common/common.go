// Package common defines data structures and functions that are used by multiple
// application commands, e.g., signal, control, snapshot, export.
package common

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"nodepower/internal/config"
	"nodepower/internal/platform"
	"nodepower/internal/topology"
	"nodepower/internal/util"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

var AppName = filepath.Base(os.Args[0])

// AppContext represents the application context that can be accessed from all commands.
type AppContext struct {
	Config      config.Config            // Config is the loaded configuration file merged with flag overrides.
	Selector    platform.SelectorOptions // Selector is derived from Config and used to open the platform.
	LogFilePath string                   // LogFilePath is the path to the log file, empty when not logging to a file.
	Version     string                   // Version is the version of the application.
	Debug       bool                     // Debug is true when debug logging is enabled.
}

type appContextKey struct{}

// WithAppContext returns a copy of ctx carrying appContext.
func WithAppContext(ctx context.Context, appContext AppContext) context.Context {
	return context.WithValue(ctx, appContextKey{}, appContext)
}

type Flag struct {
	Name string
	Help string
}
type FlagGroup struct {
	GroupName string
	Flags     []Flag
}

// GetAppContext returns the AppContext stored on cmd or the nearest ancestor.
func GetAppContext(cmd *cobra.Command) (AppContext, error) {
	for c := cmd; c != nil; c = c.Parent() {
		ctx := c.Context()
		if ctx == nil {
			continue
		}
		if appContext, ok := ctx.Value(appContextKey{}).(AppContext); ok {
			return appContext, nil
		}
	}
	return AppContext{}, errors.New("application context not initialized")
}

// FlagValidationError is used to report an error with a flag
func FlagValidationError(cmd *cobra.Command, msg string) error {
	err := errors.New(msg)
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	fmt.Fprintf(os.Stderr, "See '%s --help' for usage details.\n", cmd.CommandPath())
	cmd.SilenceUsage = true
	return err
}

// CommandError reports a runtime failure of cmd and returns err.
func CommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	slog.Error(err.Error())
	cmd.SilenceUsage = true
	return err
}

// OpenPlatform detects the running CPU model and binds it. The caller must
// Close the returned platform.
func OpenPlatform(cmd *cobra.Command) (*platform.Platform, error) {
	appContext, err := GetAppContext(cmd)
	if err != nil {
		return nil, err
	}
	selector := platform.NewSelector(appContext.Selector)
	p, err := selector.Select()
	if err != nil {
		return nil, err
	}
	slog.Info("platform selected", slog.String("model", p.Model().Name), slog.Bool("msr_safe", p.Safe()))
	return p, nil
}

// Confirm asks prompt on out and reads the answer from in. Only "y" and
// "yes" confirm. A stdin that is not a terminal confirms without asking.
func Confirm(prompt string, in io.Reader, out io.Writer) (bool, error) {
	if f, ok := in.(*os.File); ok && !term.IsTerminal(int(f.Fd())) { // #nosec G115
		slog.Info("stdin is not a terminal, skipping confirmation")
		return true, nil
	}
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	reader := bufio.NewReader(in)
	response, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && response != "") {
		return false, fmt.Errorf("failed to read user input: %v", err)
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes", nil
}

// DomainFlags selects domain instances on the command line.
type DomainFlags struct {
	Domain string
	Index  string
}

const (
	FlagDomainName = "domain"
	FlagIndexName  = "index"
	IndexAll       = "all"
)

// AddDomainFlags registers --domain and --index on cmd.
func AddDomainFlags(cmd *cobra.Command, flags *DomainFlags, defaultDomain string) {
	cmd.Flags().StringVar(&flags.Domain, FlagDomainName, defaultDomain, "domain type: board, package, core, cpu or tile")
	cmd.Flags().StringVar(&flags.Index, FlagIndexName, IndexAll, "domain indices, e.g. 0, 0-3 or 0,2,4, or 'all'")
}

// DomainFlagGroup returns the help entries of the domain flags.
func DomainFlagGroup() FlagGroup {
	return FlagGroup{
		GroupName: "Domain Options",
		Flags: []Flag{
			{Name: FlagDomainName, Help: "domain type: board, package, core, cpu or tile"},
			{Name: FlagIndexName, Help: "domain indices, e.g. 0, 0-3 or 0,2,4, or 'all' (default: all)"},
		},
	}
}

// ParseDomain returns the domain type named by the flags.
func (f DomainFlags) ParseDomain() (topology.DomainType, error) {
	return topology.ParseDomainType(f.Domain)
}

// Indices expands the --index value for domain. "all" yields every
// instance in topo.
func (f DomainFlags) Indices(topo topology.Topology, domain topology.DomainType) ([]int, error) {
	count := topo.Count(domain)
	if strings.EqualFold(f.Index, IndexAll) || f.Index == "" {
		indices := make([]int, count)
		for i := range indices {
			indices[i] = i
		}
		return indices, nil
	}
	indices, err := util.ParseIndexList(f.Index)
	if err != nil {
		return nil, err
	}
	for _, index := range indices {
		if index >= count {
			return nil, &topology.DomainRangeError{Domain: domain, Index: index, Count: count}
		}
	}
	return indices, nil
}

// Validate checks the flag syntax without a topology.
func (f DomainFlags) Validate() error {
	if _, err := f.ParseDomain(); err != nil {
		return err
	}
	if strings.EqualFold(f.Index, IndexAll) || f.Index == "" {
		return nil
	}
	_, err := util.ParseIndexList(f.Index)
	return err
}

// UsageFunc returns a usage function that prints the command's arguments,
// its flag groups and the global flags.
func UsageFunc(arguments []Flag, groups func() []FlagGroup) func(cmd *cobra.Command) error {
	return func(cmd *cobra.Command) error {
		use := cmd.CommandPath()
		if i := strings.Index(cmd.Use, " "); i > 0 {
			use += cmd.Use[i:]
		}
		cmd.Printf("Usage: %s [flags]\n\n", use)
		if cmd.Example != "" {
			cmd.Printf("Examples:\n%s\n\n", cmd.Example)
		}
		if len(arguments) > 0 {
			cmd.Println("Arguments:")
			for _, arg := range arguments {
				cmd.Printf("  %s: %s\n", arg.Name, arg.Help)
			}
			cmd.Println()
		}
		if groups != nil {
			cmd.Println("Flags:")
			for _, group := range groups() {
				cmd.Printf("  %s:\n", group.GroupName)
				for _, flag := range group.Flags {
					cmd.Printf("    --%-20s %s\n", flag.Name, flag.Help)
				}
			}
		}
		cmd.Println("\nGlobal Flags:")
		cmd.Root().PersistentFlags().VisitAll(func(pf *pflag.Flag) {
			flagDefault := ""
			if pf.DefValue != "" {
				flagDefault = fmt.Sprintf(" (default: %s)", pf.DefValue)
			}
			cmd.Printf("  --%-20s %s%s\n", pf.Name, pf.Usage, flagDefault)
		})
		return nil
	}
}
