// SPDX-License-Identifier: AGPL-3.0-or-later

package alert

import (
	"strconv"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// CloseReason is the three-way reason a CEP instance closed (spec §3).
type CloseReason string

const (
	CloseReasonNone    CloseReason = ""
	CloseReasonTimeout CloseReason = "timeout"
	CloseReasonFlush   CloseReason = "flush"
	CloseReasonEOS     CloseReason = "eos"
)

// Record is the alert the rule executor hands to the dispatcher (spec §3,
// §6.3). MatchedRows and YieldTarget are excluded from the serialised form
// sent to sinks: MatchedRows is opaque/sink-specific, YieldTarget is used
// only for routing and must never be written downstream.
type Record struct {
	AlertID     string      `json:"alert_id"`
	RuleName    string      `json:"rule_name"`
	Score       float64     `json:"score"`
	EntityType  string      `json:"entity_type"`
	EntityID    string      `json:"entity_id"`
	CloseReason CloseReason `json:"close_reason,omitempty"`
	FiredAt     time.Time   `json:"fired_at"`
	Summary     string      `json:"summary,omitempty"`

	YieldTarget string `json:"-"`
	MatchedRows int64  `json:"-"`
}

// Serialize renders the record as the structured JSON object sinks
// receive (spec §4.7 step 1), using goccy/go-json for its drop-in speed
// advantage over encoding/json.
func (r *Record) Serialize() ([]byte, error) {
	return json.Marshal(r)
}

// MarshalJSON renders FiredAt in ISO-8601 UTC as spec §3 requires,
// regardless of the time.Time value's original location.
func (r Record) MarshalJSON() ([]byte, error) {
	type wire struct {
		AlertID     string      `json:"alert_id"`
		RuleName    string      `json:"rule_name"`
		Score       float64     `json:"score"`
		EntityType  string      `json:"entity_type"`
		EntityID    string      `json:"entity_id"`
		CloseReason CloseReason `json:"close_reason,omitempty"`
		FiredAt     string      `json:"fired_at"`
		Summary     string      `json:"summary,omitempty"`
	}
	return json.Marshal(wire{
		AlertID:     r.AlertID,
		RuleName:    r.RuleName,
		Score:       r.Score,
		EntityType:  r.EntityType,
		EntityID:    r.EntityID,
		CloseReason: r.CloseReason,
		FiredAt:     r.FiredAt.UTC().Format(time.RFC3339Nano),
		Summary:     r.Summary,
	})
}

// ClampScore clamps an out-of-range score to [0,100] (spec §7's
// "deliberate ergonomic choice for a value meant for humans").
func ClampScore(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

var alertSeq atomic.Uint64

// NextID produces the deterministic alert id string spec §3 mandates:
// "{rule_name}|{scope_key_encoded}|{fired_at_nanos}#{seq}", where seq is a
// process-wide monotonic counter disambiguating alerts that would
// otherwise share an identical (rule, scope_key, fired_at) triple.
func NextID(ruleName, scopeKeyEncoded string, firedAt time.Time) string {
	seq := alertSeq.Add(1) - 1
	return ruleName + "|" + scopeKeyEncoded + "|" + strconv.FormatInt(firedAt.UnixNano(), 10) + "#" + strconv.FormatUint(seq, 10)
}
