package metrics

import (
	"math"
	"time"

	"routerrebooter/internal/models"
)

// Uptime summarises connectivity over a window of samples.
type Uptime struct {
	UptimePercent float64 `json:"uptime_percent"`
	TotalChecks   int     `json:"total_checks"`
	Passing       int     `json:"passing"`
	Failing       int     `json:"failing"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	Reboots       int     `json:"reboots"`
	LongestOutage string  `json:"longest_outage,omitempty"`
	LastState     string  `json:"last_state,omitempty"`
	LastUpdated   string  `json:"last_updated,omitempty"`
	WindowStart   string  `json:"window_start,omitempty"`

	longestOutage time.Duration
}

// ComputeUptime aggregates samples (oldest first) and counts reboots that fall in the same window.
func ComputeUptime(samples []models.ConnectivityStatus, reboots []models.RebootEvent) Uptime {
	var (
		result      Uptime
		latencySum  int64
		outageStart time.Time
		inOutage    bool
		lastTime    time.Time
	)
	for _, s := range samples {
		if s.OK {
			result.Passing++
			latencySum += s.LatencyMs
			if inOutage {
				result.recordOutage(s.CheckedAt.Sub(outageStart))
				inOutage = false
			}
		} else {
			result.Failing++
			if !inOutage {
				outageStart = s.CheckedAt
				inOutage = true
			}
		}
		lastTime = s.CheckedAt
	}
	if inOutage {
		result.recordOutage(lastTime.Sub(outageStart))
	}

	result.TotalChecks = result.Passing + result.Failing
	if result.TotalChecks == 0 {
		result.Reboots = len(reboots)
		return result
	}
	result.UptimePercent = round2(float64(result.Passing) / float64(result.TotalChecks) * 100)
	if result.Passing > 0 {
		result.AvgLatencyMs = round2(float64(latencySum) / float64(result.Passing))
	}

	windowStart := samples[0].CheckedAt
	for _, r := range reboots {
		if !r.At.Before(windowStart) {
			result.Reboots++
		}
	}

	last := samples[len(samples)-1]
	result.LastState = "online"
	if !last.OK {
		result.LastState = "offline"
	}
	result.LastUpdated = last.CheckedAt.UTC().Format(time.RFC3339)
	result.WindowStart = windowStart.UTC().Format(time.RFC3339)
	return result
}

func (u *Uptime) recordOutage(d time.Duration) {
	if d > u.longestOutage {
		u.longestOutage = d
		u.LongestOutage = d.String()
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
