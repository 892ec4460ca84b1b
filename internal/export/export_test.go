// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package export

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodepower/internal/platform"
	"nodepower/internal/topology"
)

type fakeReader struct {
	topo    topology.Topology
	signals []platform.Signal
	values  map[string]float64 // "<signal>/<domain>/<index>"
	fail    string
}

func (f *fakeReader) Signals() []platform.Signal { return f.signals }

func (f *fakeReader) Topology() topology.Topology { return f.topo }

func (f *fakeReader) ReadSignal(name string, domain topology.DomainType, index int) (float64, error) {
	if name == f.fail {
		return 0, fmt.Errorf("read failed")
	}
	return f.values[fmt.Sprintf("%s/%s/%d", name, domain, index)], nil
}

func newFakeReader(t *testing.T) *fakeReader {
	topo, err := topology.New(2, 2, 1, 1)
	require.NoError(t, err)
	return &fakeReader{
		topo: topo,
		signals: []platform.Signal{
			{Name: "PKG_ENERGY", Description: "package energy consumed", Units: "joules", Domain: topology.DomainPackage},
			{Name: "FREQUENCY", Description: "current core frequency", Units: "MHz", Domain: topology.DomainCPU},
			{Name: "CLK_UNHALTED_RATIO", Description: "core cycles per reference cycle", Domain: topology.DomainCPU},
		},
		values: map[string]float64{
			"PKG_ENERGY/package/0":         1.5,
			"PKG_ENERGY/package/1":         2.5,
			"PKG_ENERGY/board/0":           4,
			"FREQUENCY/package/0":          2000,
			"FREQUENCY/package/1":          2100,
			"FREQUENCY/cpu/3":              2200,
			"CLK_UNHALTED_RATIO/package/0": math.NaN(),
			"CLK_UNHALTED_RATIO/package/1": 1.25,
		},
	}
}

func TestCollectorPackageDomain(t *testing.T) {
	c := NewCollector(newFakeReader(t), topology.DomainPackage)
	expected := `
# HELP nodepower_pkg_energy package energy consumed (joules)
# TYPE nodepower_pkg_energy gauge
nodepower_pkg_energy{domain="package",index="0"} 1.5
nodepower_pkg_energy{domain="package",index="1"} 2.5
# HELP nodepower_frequency current core frequency (MHz)
# TYPE nodepower_frequency gauge
nodepower_frequency{domain="package",index="0"} 2000
nodepower_frequency{domain="package",index="1"} 2100
# HELP nodepower_clk_unhalted_ratio core cycles per reference cycle
# TYPE nodepower_clk_unhalted_ratio gauge
nodepower_clk_unhalted_ratio{domain="package",index="1"} 1.25
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
}

func TestCollectorNativeDomainWhenCoarser(t *testing.T) {
	c := NewCollector(newFakeReader(t), topology.DomainCPU)
	// package signals stay per package, cpu signals are per cpu
	assert.Equal(t, 2, testutil.CollectAndCount(c, "nodepower_pkg_energy"))
	assert.Equal(t, 4, testutil.CollectAndCount(c, "nodepower_frequency"))
}

func TestCollectorReadError(t *testing.T) {
	reader := newFakeReader(t)
	reader.fail = "FREQUENCY"
	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(NewCollector(reader, topology.DomainPackage)))
	_, err := registry.Gather()
	assert.ErrorContains(t, err, "read failed")
}

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodepower.prom")
	require.NoError(t, WriteTextfile(path, newFakeReader(t), topology.DomainBoard))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	// board is coarser than every native domain, so every signal is aggregated to the board
	assert.Contains(t, string(content), `nodepower_pkg_energy{domain="board",index="0"} 4`)
	assert.NotContains(t, string(content), `domain="package"`)
	assert.Contains(t, string(content), "# TYPE nodepower_frequency gauge")
}

func TestHandler(t *testing.T) {
	reader := newFakeReader(t)
	reader.fail = "FREQUENCY"
	handler, err := Handler(reader, topology.DomainPackage)
	require.NoError(t, err)
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `nodepower_pkg_energy{domain="package",index="0"} 1.5`)
	assert.NotContains(t, string(body), "nodepower_frequency{")
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", newFakeReader(t), topology.DomainPackage)
	}()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
