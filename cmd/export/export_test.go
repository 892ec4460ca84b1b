package export

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"nodepower/internal/common"
	"nodepower/internal/platform/platformtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setFlags(t *testing.T, output, listen, domain string) {
	flagOutput, flagListen, flagDomain = output, listen, domain
	t.Cleanup(func() {
		flagOutput, flagListen, flagDomain = "", "", "package"
	})
}

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name   string
		output string
		listen string
		domain string
		valid  bool
	}{
		{"output", "nodepower.prom", "", "package", true},
		{"listen", "", ":9101", "cpu", true},
		{"neither", "", "", "package", false},
		{"both", "nodepower.prom", ":9101", "package", false},
		{"bad domain", "nodepower.prom", "", "socket", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setFlags(t, tt.output, tt.listen, tt.domain)
			err := validateFlags(Cmd, nil)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestWriteTextfile(t *testing.T) {
	node := platformtest.NewNode()
	node.SetCPU(4, 0x611, 32768)
	Cmd.SetContext(common.WithAppContext(context.Background(), common.AppContext{
		Selector: platformtest.Options(platformtest.HaswellSignature, node),
	}))
	t.Cleanup(func() { Cmd.SetContext(context.Background()) })
	path := filepath.Join(t.TempDir(), "nodepower.prom")
	setFlags(t, path, "", "package")

	require.NoError(t, runCmd(Cmd, nil))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `nodepower_pkg_energy{domain="package",index="1"} 2`)
	assert.Contains(t, string(content), `nodepower_power_package_tdp{domain="package",index="0"} 145`)
}
