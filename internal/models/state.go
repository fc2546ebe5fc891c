package models

import "time"

// RebootReason records why the relay was pulsed.
type RebootReason string

const (
	RebootReasonConnectivity RebootReason = "connectivity"
	RebootReasonManual       RebootReason = "manual"
)

// RebootEvent describes one relay pulse.
type RebootEvent struct {
	At          time.Time    `json:"at"`
	Attempt     int          `json:"attempt"`
	Pin         int          `json:"pin"`
	PulseMillis int64        `json:"pulse_ms"`
	Reason      RebootReason `json:"reason"`
	Error       string       `json:"error,omitempty"`
}

// ConnectivityState is the control loop's view of the world.
// It only lives for the lifetime of the process.
type ConnectivityState struct {
	LastCheck           time.Time           `json:"last_check"`
	LastStatus          *ConnectivityStatus `json:"last_status,omitempty"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	LastReboot          time.Time           `json:"last_reboot"`
	RebootAttempts      int                 `json:"reboot_attempts"`
	LimitReached        bool                `json:"limit_reached"`
	NextCheck           time.Time           `json:"next_check"`
}
