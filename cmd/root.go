// Package cmd provides the command line interface for the application.
package cmd

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"nodepower/cmd/control"
	"nodepower/cmd/export"
	"nodepower/cmd/platform"
	"nodepower/cmd/register"
	"nodepower/cmd/signal"
	"nodepower/cmd/snapshot"
	"nodepower/internal/common"
	"nodepower/internal/config"
	"nodepower/internal/util"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var gLogFile *os.File
var gVersion = "9.9.9" // set with -ldflags at build time

const (
	// LongAppName is the name of the application
	LongAppName = "NodePower"
)

var examples = []string{
	fmt.Sprintf("  Show the detected platform:                  $ %s platform", common.AppName),
	fmt.Sprintf("  Read package energy of every package:        $ %s signal PKG_ENERGY --domain package", common.AppName),
	fmt.Sprintf("  Limit package power to 150 W:                $ %s control POWER_PACKAGE_LIMIT 150 --domain package", common.AppName),
	fmt.Sprintf("  Save writable registers before a job:        $ %s snapshot save before.txt", common.AppName),
	fmt.Sprintf("  Use an alternate configuration file:         $ %s platform --config /etc/nodepower.yaml", common.AppName),
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:                common.AppName,
	Short:              common.AppName,
	Long:               fmt.Sprintf(`%s (%s) reads power, energy and performance counter signals and writes power and frequency controls through the Model Specific Registers of Intel Xeon and Xeon Phi nodes.`, LongAppName, common.AppName),
	Example:            strings.Join(examples, "\n"),
	PersistentPreRunE:  initializeApplication,
	PersistentPostRunE: terminateApplication,
	Version:            gVersion,
}

var (
	// logging
	flagDebug     bool
	flagSyslog    bool
	flagLogStdOut bool
	// platform access
	flagConfig     string
	flagDeviceRoot string
	flagNoMsrSafe  bool
	flagTimeWindow float64
)

const (
	flagDebugName      = "debug"
	flagSyslogName     = "syslog"
	flagLogStdOutName  = "log-stdout"
	flagConfigName     = "config"
	flagDeviceRootName = "device-root"
	flagNoMsrSafeName  = "no-msr-safe"
	flagTimeWindowName = "time-window"
)

func init() {
	rootCmd.SetUsageTemplate(`Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command] [flags]{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{range $group := .Groups}}

{{.Title}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) .IsAvailableCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}

Use "{{.CommandPath}} [command] --help" for more information about a command.
`)
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.AddGroup(&cobra.Group{ID: "primary", Title: "Commands:"})
	for _, cmd := range []*cobra.Command{platform.Cmd, signal.Cmd, control.Cmd, register.Cmd, snapshot.Cmd, export.Cmd} {
		rootCmd.AddCommand(cmd)
	}
	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&flagDebug, flagDebugName, false, "enable debug logging with source locations")
	flags.BoolVar(&flagSyslog, flagSyslogName, false, "write logs to syslog instead of a file")
	flags.BoolVar(&flagLogStdOut, flagLogStdOutName, false, "write JSON logs to stdout instead of a file")
	flags.StringVar(&flagConfig, flagConfigName, "", fmt.Sprintf("configuration file, %s beside the executable is used when present", config.DefaultFileName))
	flags.StringVar(&flagDeviceRoot, flagDeviceRootName, "", "override the MSR device directory")
	flags.BoolVar(&flagNoMsrSafe, flagNoMsrSafeName, false, "use the msr devices even when msr_safe is available")
	flags.Float64Var(&flagTimeWindow, flagTimeWindowName, 0, "override the package power limit time window in seconds (Xeon Phi)")
}

// Execute runs the root command and exits with status 1 on failure.
func Execute() {
	cobra.EnableCommandSorting = false
	cobra.EnableCaseInsensitive = true
	if err := rootCmd.Execute(); err != nil {
		if closeErr := terminateApplication(rootCmd, os.Args); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", closeErr)
		}
		os.Exit(1)
	}
}

// loadConfig reads the --config file, or the default file beside the
// executable when present, and applies the flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := configPath()
	if err != nil {
		return config.Config{}, err
	}
	cfg := config.Default()
	if path != "" {
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
		slog.Info("loaded configuration", slog.String("path", path))
	}
	flags := cmd.Root().PersistentFlags()
	if flags.Changed(flagDeviceRootName) {
		cfg.DeviceRoot = flagDeviceRoot
	}
	if flags.Changed(flagNoMsrSafeName) {
		cfg.PreferMsrSafe = !flagNoMsrSafe
	}
	if flags.Changed(flagTimeWindowName) {
		cfg.TimeWindowSeconds = flagTimeWindow
	}
	return cfg, cfg.Validate()
}

// configPath returns the configuration file to load, or "" to use the
// compiled-in defaults.
func configPath() (string, error) {
	if flagConfig != "" {
		return util.AbsPath(flagConfig)
	}
	defaultPath := filepath.Join(util.GetAppDir(), config.DefaultFileName)
	exists, err := util.FileExists(defaultPath)
	if err != nil || !exists {
		return "", err
	}
	return defaultPath, nil
}

func startupError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	cmd.SilenceUsage = true
	return err
}

func initializeApplication(cmd *cobra.Command, args []string) error {
	output, err := selectLogOutput(flagSyslog, flagLogStdOut)
	if err != nil {
		return startupError(cmd, err)
	}
	handler, logFile, err := newLogHandler(output, logOptions(flagDebug), common.AppName+".log")
	if err != nil {
		return startupError(cmd, err)
	}
	gLogFile = logFile
	slog.SetDefault(slog.New(handler))
	slog.Info("starting", slog.String("app", common.AppName), slog.String("version", gVersion), slog.Int("pid", os.Getpid()), slog.String("command", cmd.CommandPath()), slog.String("arguments", strings.Join(os.Args[1:], " ")))
	cfg, err := loadConfig(cmd)
	if err != nil {
		return common.CommandError(cmd, err)
	}
	selectorOpts, err := cfg.SelectorOptions()
	if err != nil {
		return common.CommandError(cmd, err)
	}
	appContext := common.AppContext{
		Config:   cfg,
		Selector: selectorOpts,
		Version:  gVersion,
		Debug:    flagDebug,
	}
	if gLogFile != nil {
		appContext.LogFilePath = gLogFile.Name()
	}
	cmd.Root().SetContext(common.WithAppContext(context.Background(), appContext))
	return nil
}

// terminateApplication closes the log file.
func terminateApplication(cmd *cobra.Command, args []string) error {
	if _, err := common.GetAppContext(cmd); err != nil {
		return nil
	}
	slog.Info("exiting", slog.String("app", common.AppName), slog.Int("pid", os.Getpid()))
	if gLogFile == nil {
		return nil
	}
	logFile := gLogFile
	gLogFile = nil
	if err := logFile.Close(); err != nil {
		return errors.Wrapf(err, "failed to close log file %s", logFile.Name())
	}
	return nil
}
