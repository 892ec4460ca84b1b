package cmd

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nodepower/cmd/platform"
	"nodepower/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetRootFlag(t *testing.T, name string) {
	t.Cleanup(func() {
		flag := rootCmd.PersistentFlags().Lookup(name)
		_ = flag.Value.Set(flag.DefValue)
		flag.Changed = false
	})
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodepower.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device_root: /tmp/cpu\nmodels: [hsx]\n"), 0644))
	require.NoError(t, rootCmd.PersistentFlags().Set(flagConfigName, path))
	resetRootFlag(t, flagConfigName)

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cpu", cfg.DeviceRoot)
	assert.Equal(t, []string{"hsx"}, cfg.Models)
	assert.True(t, cfg.PreferMsrSafe)
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodepower.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device_root: /tmp/cpu\ntime_window_seconds: 0.01\n"), 0644))
	require.NoError(t, rootCmd.PersistentFlags().Set(flagConfigName, path))
	resetRootFlag(t, flagConfigName)
	require.NoError(t, rootCmd.PersistentFlags().Set(flagDeviceRootName, "/dev/other"))
	resetRootFlag(t, flagDeviceRootName)
	require.NoError(t, rootCmd.PersistentFlags().Set(flagNoMsrSafeName, "true"))
	resetRootFlag(t, flagNoMsrSafeName)

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)
	assert.Equal(t, "/dev/other", cfg.DeviceRoot)
	assert.False(t, cfg.PreferMsrSafe)
	assert.Equal(t, 0.01, cfg.TimeWindowSeconds)
}

func TestLoadConfigErrors(t *testing.T) {
	require.NoError(t, rootCmd.PersistentFlags().Set(flagConfigName, filepath.Join(t.TempDir(), "missing.yaml")))
	resetRootFlag(t, flagConfigName)
	_, err := loadConfig(rootCmd)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "nodepower.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models: [skx]\n"), 0644))
	require.NoError(t, rootCmd.PersistentFlags().Set(flagConfigName, path))
	_, err = loadConfig(rootCmd)
	assert.Error(t, err)
}

func TestLoadConfigInvalidOverride(t *testing.T) {
	require.NoError(t, rootCmd.PersistentFlags().Set(flagTimeWindowName, "-1"))
	resetRootFlag(t, flagTimeWindowName)
	_, err := loadConfig(rootCmd)
	assert.ErrorContains(t, err, "time_window_seconds")
}

type syslogRecord struct {
	level string
	msg   string
}

type fakeSyslog struct {
	records []syslogRecord
}

func (f *fakeSyslog) record(level, msg string) error {
	f.records = append(f.records, syslogRecord{level, msg})
	return nil
}

func (f *fakeSyslog) Debug(m string) error   { return f.record("debug", m) }
func (f *fakeSyslog) Info(m string) error    { return f.record("info", m) }
func (f *fakeSyslog) Warning(m string) error { return f.record("warning", m) }
func (f *fakeSyslog) Err(m string) error     { return f.record("err", m) }

func TestSyslogHandlerFormat(t *testing.T) {
	h := NewSyslogHandler(&fakeSyslog{}, nil)
	r := slog.NewRecord(time.Now(), slog.LevelWarn, "failed to close MSR device", 0)
	r.AddAttrs(slog.String("path", "/dev/cpu/3/msr"))
	assert.Equal(t, `level=WARN msg="failed to close MSR device" path="/dev/cpu/3/msr"`, h.format(r))
	assert.False(t, h.Enabled(t.Context(), slog.LevelDebug))
	assert.True(t, h.Enabled(t.Context(), slog.LevelError))
}

func TestSyslogHandlerLevels(t *testing.T) {
	writer := &fakeSyslog{}
	logger := slog.New(NewSyslogHandler(writer, logOptions(false))).With(slog.Int("cpu", 2))
	logger.Debug("hidden")
	logger.Info("opened device")
	logger.Warn("short read")
	logger.Error("write failed", slog.String("register", "IA32_PERF_CTL"))
	require.Len(t, writer.records, 3)
	assert.Equal(t, syslogRecord{"info", `level=INFO msg="opened device" cpu="2"`}, writer.records[0])
	assert.Equal(t, "warning", writer.records[1].level)
	assert.Equal(t, syslogRecord{"err", `level=ERROR msg="write failed" cpu="2" register="IA32_PERF_CTL"`}, writer.records[2])
}

func TestSelectLogOutput(t *testing.T) {
	output, err := selectLogOutput(false, false)
	require.NoError(t, err)
	assert.Equal(t, logToFile, output)
	output, err = selectLogOutput(true, false)
	require.NoError(t, err)
	assert.Equal(t, logToSyslog, output)
	output, err = selectLogOutput(false, true)
	require.NoError(t, err)
	assert.Equal(t, logToStdout, output)
	_, err = selectLogOutput(true, true)
	assert.Error(t, err)
}

func TestNewLogHandlerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodepower.log")
	handler, logFile, err := newLogHandler(logToFile, logOptions(true), path)
	require.NoError(t, err)
	require.NotNil(t, logFile)
	slog.New(handler).Debug("calibrated", slog.Int("package", 1))
	require.NoError(t, logFile.Close())
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "msg=calibrated package=1")

	_, _, err = newLogHandler(logToFile, logOptions(false), filepath.Join(t.TempDir(), "missing", "nodepower.log"))
	assert.Error(t, err)
}

func TestExecutePlatformModels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodepower.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models: [hsx, knl]\n"), 0644))
	resetRootFlag(t, flagConfigName)
	resetRootFlag(t, flagLogStdOutName)
	t.Cleanup(func() {
		flag := platform.Cmd.Flags().Lookup("models")
		_ = flag.Value.Set(flag.DefValue)
		flag.Changed = false
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"platform", "--models", "--log-stdout", "--config", path})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "HSX")
	assert.Contains(t, out.String(), "KNL")

	appContext, err := common.GetAppContext(platform.Cmd)
	require.NoError(t, err)
	assert.Equal(t, []string{"hsx", "knl"}, appContext.Config.Models)
	require.Len(t, appContext.Selector.Models, 2)
	assert.Empty(t, appContext.LogFilePath)
}
