// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package export publishes platform signals as Prometheus gauges.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nodepower/internal/platform"
	"nodepower/internal/topology"
)

const promMetricPrefix = "nodepower_"

// SignalReader is the part of a platform the collector reads from.
type SignalReader interface {
	Signals() []platform.Signal
	ReadSignal(name string, domain topology.DomainType, index int) (float64, error)
	Topology() topology.Topology
}

type exportedSignal struct {
	signal platform.Signal
	domain topology.DomainType
	desc   *prometheus.Desc
}

// Collector reads every signal on each scrape. It is not safe for concurrent
// scrapes because the underlying platform is not.
type Collector struct {
	reader  SignalReader
	signals []exportedSignal
}

// NewCollector exports each signal at domain, or at the signal's native
// domain when that is coarser than domain.
func NewCollector(reader SignalReader, domain topology.DomainType) *Collector {
	c := &Collector{reader: reader}
	for _, sig := range reader.Signals() {
		d := domain
		if sig.Domain.Contains(domain) {
			d = sig.Domain
		}
		help := sig.Description
		if sig.Units != "" {
			help = fmt.Sprintf("%s (%s)", sig.Description, sig.Units)
		}
		c.signals = append(c.signals, exportedSignal{
			signal: sig,
			domain: d,
			desc:   prometheus.NewDesc(metricName(sig.Name), help, []string{"domain", "index"}, nil),
		})
	}
	return c
}

func metricName(signal string) string {
	return promMetricPrefix + strings.ToLower(signal)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, s := range c.signals {
		ch <- s.desc
	}
}

// Collect implements prometheus.Collector. NaN values are skipped and read
// errors are reported as invalid metrics.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	topo := c.reader.Topology()
	for _, s := range c.signals {
		for index := 0; index < topo.Count(s.domain); index++ {
			value, err := c.reader.ReadSignal(s.signal.Name, s.domain, index)
			if err != nil {
				slog.Warn("failed to read signal", slog.String("signal", s.signal.Name), slog.Int("index", index), slog.String("error", err.Error()))
				ch <- prometheus.NewInvalidMetric(s.desc, err)
				continue
			}
			if math.IsNaN(value) {
				continue
			}
			ch <- prometheus.MustNewConstMetric(s.desc, prometheus.GaugeValue, value, s.domain.String(), strconv.Itoa(index))
		}
	}
}

// WriteTextfile writes one scrape of every signal to path in the text
// exposition format, for the node exporter textfile collector.
func WriteTextfile(path string, reader SignalReader, domain topology.DomainType) error {
	registry := prometheus.NewRegistry()
	if err := registry.Register(NewCollector(reader, domain)); err != nil {
		return errors.Wrap(err, "failed to register signal collector")
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	slog.Info("wrote signal textfile", slog.String("path", path))
	return nil
}

// lockedReader serializes signal reads from concurrent scrapes
type lockedReader struct {
	mu sync.Mutex
	SignalReader
}

func (r *lockedReader) ReadSignal(name string, domain topology.DomainType, index int) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.SignalReader.ReadSignal(name, domain, index)
}

// Handler returns an HTTP handler that reads every signal of reader at
// domain on each request.
func Handler(reader SignalReader, domain topology.DomainType) (http.Handler, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(NewCollector(&lockedReader{SignalReader: reader}, domain)); err != nil {
		return nil, errors.Wrap(err, "failed to register signal collector")
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError}), nil
}

// Serve serves the signals on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, reader SignalReader, domain topology.DomainType) error {
	handler, err := Handler(reader, domain)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()
	slog.Info("Starting Prometheus metrics server", slog.String("address", addr))
	select {
	case err := <-serveErr:
		return errors.Wrapf(err, "metrics server on %s", addr)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slog.Info("Stopping Prometheus metrics server", slog.String("address", addr))
		return server.Shutdown(shutdownCtx)
	}
}
