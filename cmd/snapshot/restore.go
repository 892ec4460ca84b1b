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
	"nodepower/internal/platform"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const restoreCmdName = "restore"

var restoreExamples = []string{
	fmt.Sprintf("  Restore from a file:                  $ %s %s %s before.txt", common.AppName, cmdName, restoreCmdName),
	fmt.Sprintf("  Restore without confirmation:         $ %s %s %s before.txt --yes", common.AppName, cmdName, restoreCmdName),
}

var RestoreCmd = &cobra.Command{
	Use:   restoreCmdName + " <file>",
	Short: "Restore registers from a previously saved snapshot",
	Long: `Restores registers from a file that was previously written by the save command.

Every line is checked against the detected model before it is written, and
only the writable bits of each register are changed. By default, you will be
prompted to confirm before applying changes.`,
	Example:       strings.Join(restoreExamples, "\n"),
	RunE:          runRestoreCmd,
	PreRunE:       validateRestoreFlags,
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
}

var (
	flagRestoreYes bool
)

const (
	flagRestoreYesName = "yes"
)

func init() {
	Cmd.AddCommand(RestoreCmd)
	RestoreCmd.Flags().BoolVar(&flagRestoreYes, flagRestoreYesName, false, "skip confirmation prompt")
	RestoreCmd.SetUsageFunc(common.UsageFunc(
		[]common.Flag{{Name: "file", Help: "path to the snapshot file to restore"}},
		func() []common.FlagGroup {
			return []common.FlagGroup{{
				GroupName: "General Options",
				Flags:     []common.Flag{{Name: flagRestoreYesName, Help: "skip confirmation prompt"}},
			}}
		},
	))
}

func validateRestoreFlags(cmd *cobra.Command, args []string) error {
	// validate that the file exists
	if len(args) != 1 {
		return common.FlagValidationError(cmd, "restore requires exactly one argument: the path to the snapshot file")
	}
	filePath := args[0]
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return common.FlagValidationError(cmd, fmt.Sprintf("snapshot file does not exist: %s", filePath))
	}
	return nil
}

// readEntries parses the whole snapshot before anything is written.
func readEntries(r io.Reader) ([]msr.SnapshotEntry, error) {
	var entries []msr.SnapshotEntry
	err := msr.ReadSnapshot(r, func(e msr.SnapshotEntry) error {
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

func printEntries(w io.Writer, m *platform.Model, entries []msr.SnapshotEntry) {
	printer := message.NewPrinter(language.English)
	for _, e := range entries {
		name := "unknown"
		if reg, err := m.Registers.LookupOffset(e.Offset); err == nil {
			name = reg.Name
		}
		printer.Fprintf(w, "  %-28s %s %-4d 0x%016X (%d)\n", name, e.Domain, e.Index, e.Value, e.Value)
	}
}

func runRestoreCmd(cmd *cobra.Command, args []string) error {
	snapshotPath := args[0]
	f, err := os.Open(snapshotPath) // #nosec G304
	if err != nil {
		return common.CommandError(cmd, fmt.Errorf("failed to open snapshot file: %v", err))
	}
	entries, err := readEntries(f)
	f.Close()
	if err != nil {
		return common.CommandError(cmd, fmt.Errorf("failed to parse snapshot file: %v", err))
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No registers found in file.")
		return nil
	}
	p, err := common.OpenPlatform(cmd)
	if err != nil {
		return common.CommandError(cmd, err)
	}
	defer p.Close()

	// show what will be restored
	fmt.Fprintf(cmd.OutOrStdout(), "Registers to restore from %s:\n", snapshotPath)
	printEntries(cmd.OutOrStdout(), p.Model(), entries)
	fmt.Fprintln(cmd.OutOrStdout())

	// prompt for confirmation unless --yes was specified
	if !flagRestoreYes {
		confirmed, err := common.Confirm("Apply these register changes?", cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return common.CommandError(cmd, err)
		}
		if !confirmed {
			fmt.Fprintln(cmd.OutOrStdout(), "Restore cancelled.")
			return nil
		}
	}
	if err := p.Restore(entries); err != nil {
		return common.CommandError(cmd, err)
	}
	slog.Info("restored snapshot", slog.String("path", snapshotPath), slog.Int("entries", len(entries)))
	fmt.Fprintf(cmd.OutOrStdout(), "Restored %d registers.\n", len(entries))
	return nil
}
