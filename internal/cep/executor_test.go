// SPDX-License-Identifier: AGPL-3.0-or-later

package cep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warpfusion/warpfusion/internal/batch"
)

func TestExecuteMatchRejectsNonNumericScore(t *testing.T) {
	plan := bruteForcePlan()
	plan.ScoreExpr = Literal{Value: batch.StringValue("not-a-number")}
	exec := NewExecutor(plan, func() time.Time { return time.Unix(0, 0) })

	ctx := &MatchedContext{
		RuleName:    "brute_force",
		AliasEvents: map[string]batch.Event{"fail": {"sip": batch.StringValue("1.2.3.4")}},
	}
	rec, err := exec.ExecuteMatch(ctx)
	require.Error(t, err)
	require.Nil(t, rec)
}

func TestExecuteCloseSuppressesWhenCloseNotOK(t *testing.T) {
	exec := NewExecutor(dnsTimeoutPlan(), func() time.Time { return time.Unix(0, 0) })
	co := &CloseOutput{EventOK: true, CloseOK: false}
	rec, err := exec.ExecuteClose(co)
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestExecuteCloseSuppressesWhenEventNotOK(t *testing.T) {
	exec := NewExecutor(dnsTimeoutPlan(), func() time.Time { return time.Unix(0, 0) })
	co := &CloseOutput{EventOK: false, CloseOK: true}
	rec, err := exec.ExecuteClose(co)
	require.NoError(t, err)
	require.Nil(t, rec)
}
