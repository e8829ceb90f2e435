// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warpfusion/warpfusion/internal/alert"
	"github.com/warpfusion/warpfusion/internal/cep"
	"github.com/warpfusion/warpfusion/internal/registry"
	"github.com/warpfusion/warpfusion/internal/window"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	defs := []window.Def{
		{Name: "ssh_fail", Streams: []string{"syslog"}, TimeField: "ts"},
		{Name: "ssh_success", Streams: []string{"syslog"}, TimeField: "ts"},
	}
	reg, err := registry.Build(defs, time.Now)
	require.NoError(t, err)
	return reg
}

func TestBuildWindowSourcesGroupsAliasesByWindow(t *testing.T) {
	reg := testRegistry(t)
	plan := cep.RulePlan{
		RuleName: "brute_force",
		Binds: []cep.Bind{
			{Alias: "fail1", WindowName: "ssh_fail"},
			{Alias: "fail2", WindowName: "ssh_fail"},
			{Alias: "ok", WindowName: "ssh_success"},
		},
	}

	sources, err := buildWindowSources(plan, reg)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	require.Equal(t, "ssh_fail", sources[0].WindowName)
	require.Equal(t, []string{"fail1", "fail2"}, sources[0].Aliases)
	require.Equal(t, "ssh_success", sources[1].WindowName)
	require.Equal(t, []string{"ok"}, sources[1].Aliases)
}

func TestBuildWindowSourcesUnknownWindowErrors(t *testing.T) {
	reg := testRegistry(t)
	plan := cep.RulePlan{
		RuleName: "brute_force",
		Binds:    []cep.Bind{{Alias: "x", WindowName: "does_not_exist"}},
	}

	_, err := buildWindowSources(plan, reg)
	require.Error(t, err)
}

func TestBuildRuleTaskConstructsTask(t *testing.T) {
	reg := testRegistry(t)
	plan := cep.RulePlan{
		RuleName: "brute_force",
		Binds:    []cep.Bind{{Alias: "fail", WindowName: "ssh_fail"}},
	}
	alertCh := make(chan alert.Record, 1)

	task, err := buildRuleTask(plan, reg, alertCh, time.Second, 30*time.Second, testLogger())
	require.NoError(t, err)
	require.NotNil(t, task)
}
