// Package summary implements the session-summary control message
// exchanged at client shutdown (spec section 4.4): a JSON report of
// per-channel sent counts, retransmitted by the client until
// acknowledged or its retry budget is exhausted, answered statelessly
// by the server with exactly one SSACK per well-formed report.
package summary

import (
	"encoding/json"
	"fmt"
)

// TypeSessionEnd is the value of the "type" discriminator (Report.Type)
// carried in every session-summary payload. Spec section 6 only names
// "SESSION_END"; the field exists so future message types don't require
// a wire-format change.
const TypeSessionEnd = "SESSION_END"

// Report is the JSON object sent as the channel-2 payload. Unknown keys
// in the wire JSON are ignored by encoding/json's default unmarshaling,
// satisfying spec section 6's "unknown keys are ignored" rule without
// extra code.
type Report struct {
	Type               string `json:"type"`
	TotalReliableSent   int    `json:"total_reliable_sent"`
	TotalUnreliableSent int    `json:"total_unreliable_sent"`
}

// NewReport builds the report the client sends at Close.
func NewReport(totalReliableSent, totalUnreliableSent int) Report {
	return Report{
		Type:                TypeSessionEnd,
		TotalReliableSent:   totalReliableSent,
		TotalUnreliableSent: totalUnreliableSent,
	}
}

// Encode marshals r to JSON bytes suitable for a channel-2 packet
// payload.
func (r Report) Encode() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("summary: encode: %w", err)
	}
	return b, nil
}

// Decode parses a channel-2 payload into a Report. A JSON decode
// failure is reported to the caller, who per spec section 4.4/7 must
// log it and skip the SSACK rather than treat it as a protocol error.
func Decode(payload []byte) (Report, error) {
	var r Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return Report{}, fmt.Errorf("summary: malformed session summary: %w", err)
	}
	return r, nil
}
