package cmd

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"fmt"
	"log/slog"
	"log/syslog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

type logOutput int

const (
	logToFile logOutput = iota
	logToSyslog
	logToStdout
)

func selectLogOutput(toSyslog, toStdout bool) (logOutput, error) {
	switch {
	case toSyslog && toStdout:
		return logToFile, fmt.Errorf("--%s and --%s cannot be combined", flagSyslogName, flagLogStdOutName)
	case toSyslog:
		return logToSyslog, nil
	case toStdout:
		return logToStdout, nil
	}
	return logToFile, nil
}

func logOptions(debug bool) *slog.HandlerOptions {
	if debug {
		return &slog.HandlerOptions{Level: slog.LevelDebug, AddSource: true}
	}
	return &slog.HandlerOptions{Level: slog.LevelInfo}
}

// newLogHandler builds the handler for output. When logging to a file the
// opened file is returned and must be closed by the caller.
func newLogHandler(output logOutput, opts *slog.HandlerOptions, logPath string) (slog.Handler, *os.File, error) {
	switch output {
	case logToSyslog:
		writer, err := syslog.New(syslog.LOG_INFO|syslog.LOG_USER, filepath.Base(os.Args[0]))
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to connect to syslog")
		}
		return NewSyslogHandler(writer, opts), nil, nil
	case logToStdout:
		return slog.NewJSONHandler(os.Stdout, opts), nil, nil
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644) // #nosec G302
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open log file")
	}
	return slog.NewTextHandler(logFile, opts), logFile, nil
}

// SyslogWriter is the subset of *syslog.Writer used by SyslogHandler.
type SyslogWriter interface {
	Debug(m string) error
	Info(m string) error
	Warning(m string) error
	Err(m string) error
}

// SyslogHandler is a slog.Handler that writes logfmt-style lines to syslog.
// Groups are flattened.
type SyslogHandler struct {
	writer    SyslogWriter
	level     slog.Leveler
	addSource bool
	attrs     []slog.Attr
}

func NewSyslogHandler(writer SyslogWriter, opts *slog.HandlerOptions) *SyslogHandler {
	h := &SyslogHandler{writer: writer, level: slog.LevelInfo}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.addSource = opts.AddSource
	}
	return h
}

func (h *SyslogHandler) format(r slog.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "level=%s", r.Level)
	if h.addSource && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		fmt.Fprintf(&b, " source=%s:%d", filepath.Base(frame.File), frame.Line)
	}
	fmt.Fprintf(&b, " msg=%q", r.Message)
	appendAttr := func(attr slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%q", attr.Key, attr.Value.String())
		return true
	}
	for _, attr := range h.attrs {
		appendAttr(attr)
	}
	r.Attrs(appendAttr)
	return b.String()
}

func (h *SyslogHandler) Handle(_ context.Context, r slog.Record) error {
	msg := h.format(r)
	switch {
	case r.Level >= slog.LevelError:
		return h.writer.Err(msg)
	case r.Level >= slog.LevelWarn:
		return h.writer.Warning(msg)
	case r.Level >= slog.LevelInfo:
		return h.writer.Info(msg)
	}
	return h.writer.Debug(msg)
}

func (h *SyslogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(slices.Clip(h.attrs), attrs...)
	return &clone
}

func (h *SyslogHandler) WithGroup(name string) slog.Handler {
	return h
}

func (h *SyslogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}
