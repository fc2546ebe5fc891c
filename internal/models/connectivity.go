package models

import "time"

// ProbeResult is the outcome of probing a single target.
type ProbeResult struct {
	Target    string `json:"target"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// ConnectivityStatus captures the outcome of one connectivity check across all targets.
type ConnectivityStatus struct {
	Target    string        `json:"target"`
	OK        bool          `json:"ok"`
	LatencyMs int64         `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
	Probes    []ProbeResult `json:"probes,omitempty"`
}
