// SPDX-License-Identifier: AGPL-3.0-or-later

package cep

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warpfusion/warpfusion/internal/batch"
)

const bruteForcePlanJSON = `
[
  {
    "rule_name": "ssh-brute-force",
    "binds": [
      {"alias": "fail", "window": "ssh_fail", "filter": null}
    ],
    "match": {
      "keys": [{"op": "field", "alias": "", "field": "sip"}],
      "window": "5m",
      "event_steps": [
        [
          {
            "source": "fail",
            "measure": "count",
            "cmp": ">=",
            "threshold": 5
          }
        ]
      ],
      "close_steps": []
    },
    "score": {"op": "lit", "value": 80},
    "entity_type": {"op": "lit", "value": "host"},
    "entity_id": {"op": "field", "alias": "", "field": "sip"},
    "yield": {"target": "ssh_fail"}
  }
]
`

func TestDecodeRulePlansParsesBruteForceRule(t *testing.T) {
	plans, err := DecodeRulePlans(strings.NewReader(bruteForcePlanJSON))
	require.NoError(t, err)
	require.Len(t, plans, 1)

	p := plans[0]
	require.Equal(t, "ssh-brute-force", p.RuleName)
	require.Len(t, p.Binds, 1)
	require.Equal(t, "fail", p.Binds[0].Alias)
	require.Equal(t, "ssh_fail", p.Binds[0].WindowName)
	require.Nil(t, p.Binds[0].Filter)

	require.Equal(t, 5*time.Minute, p.Match.Window)
	require.Len(t, p.Match.Keys, 1)
	require.Equal(t, FieldRef{Field: "sip"}, p.Match.Keys[0])

	require.Len(t, p.Match.EventSteps, 1)
	require.Len(t, p.Match.EventSteps[0], 1)
	branch := p.Match.EventSteps[0][0]
	require.Equal(t, "fail", branch.Source)
	require.Equal(t, MeasureCount, branch.Measure)
	require.Equal(t, CmpGte, branch.Cmp)
	require.Equal(t, 5.0, branch.Threshold)
	require.Empty(t, p.Match.CloseSteps)

	require.Equal(t, Literal{Value: batch.NumberValue(80)}, p.ScoreExpr)
	require.Equal(t, "ssh_fail", p.Yield.Target)
}

func TestDecodeRulePlansRejectsUnknownMeasure(t *testing.T) {
	const bad = `[{"rule_name":"r","binds":[],"match":{"keys":[],"window":"1s","event_steps":[[{"source":"a","measure":"bogus","cmp":">=","threshold":1}]],"close_steps":[]},"yield":{"target":"t"}}]`
	_, err := DecodeRulePlans(strings.NewReader(bad))
	require.Error(t, err)
}

func TestDecodeRulePlansRejectsBadWindowDuration(t *testing.T) {
	const bad = `[{"rule_name":"r","binds":[],"match":{"keys":[],"window":"not-a-duration","event_steps":[],"close_steps":[]},"yield":{"target":"t"}}]`
	_, err := DecodeRulePlans(strings.NewReader(bad))
	require.Error(t, err)
}

func TestDecodeRulePlansParsesNestedBinaryExpression(t *testing.T) {
	const doc = `
[
  {
    "rule_name": "r",
    "binds": [{"alias": "a", "window": "w", "filter": {
      "op": "&&",
      "left": {"op": ">=", "left": {"op": "field", "field": "n"}, "right": {"op": "lit", "value": 3}},
      "right": {"op": "not", "operand": {"op": "lit", "value": false}}
    }}],
    "match": {"keys": [], "window": "1s", "event_steps": [], "close_steps": []},
    "yield": {"target": "t"}
  }
]
`
	plans, err := DecodeRulePlans(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, plans, 1)

	filter, ok := plans[0].Binds[0].Filter.(BinaryExpr)
	require.True(t, ok)
	require.Equal(t, OpAnd, filter.Op)
	_, ok = filter.Right.(UnaryNot)
	require.True(t, ok)
}
