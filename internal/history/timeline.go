package history

import (
	"sort"
	"time"

	"routerrebooter/internal/models"
)

const (
	// DefaultTimelinePoints controls how many buckets a timeline has.
	DefaultTimelinePoints = 80
	maxDetailsPerPoint    = 4
)

// Timeline classes, shared with the status page.
const (
	ClassOnline    = "state-success"
	ClassOffline   = "state-error"
	ClassRebooting = "state-warning"
	ClassMissing   = "state-missing"
)

// BuildTimeline reduces samples and reboots between start and end into
// points buckets. A bucket holding a reboot is marked rebooting; otherwise
// the newest sample in the bucket decides. Empty buckets inherit the previous
// sample while it is younger than the gap threshold.
func BuildTimeline(samples []models.ConnectivityStatus, reboots []models.RebootEvent, start, end time.Time, points int) []models.TimelinePoint {
	if points <= 0 {
		points = DefaultTimelinePoints
	}
	if !end.After(start) {
		end = start.Add(time.Minute)
	}

	sorted := make([]models.ConnectivityStatus, 0, len(samples))
	for _, s := range samples {
		if !s.CheckedAt.IsZero() {
			sorted = append(sorted, s)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CheckedAt.Before(sorted[j].CheckedAt)
	})

	bucketDuration := end.Sub(start) / time.Duration(points)
	if bucketDuration <= 0 {
		bucketDuration = time.Minute
	}
	gap := deriveGap(sorted)

	idx := 0
	var last *models.ConnectivityStatus
	for idx < len(sorted) && sorted[idx].CheckedAt.Before(start) {
		last = &sorted[idx]
		idx++
	}

	result := make([]models.TimelinePoint, 0, points)
	for i := 0; i < points; i++ {
		bucketStart := start.Add(time.Duration(i) * bucketDuration)
		bucketEnd := bucketStart.Add(bucketDuration)
		if i == points-1 {
			bucketEnd = end
		}
		point := models.TimelinePoint{
			ClassName: ClassMissing,
			Label:     "No data",
			Start:     bucketStart,
			End:       bucketEnd,
		}

		var inBucket []models.ConnectivityStatus
		for idx < len(sorted) && sorted[idx].CheckedAt.Before(bucketEnd) {
			inBucket = append(inBucket, sorted[idx])
			last = &sorted[idx]
			idx++
		}

		switch {
		case len(inBucket) > 0:
			point.ClassName, point.Label = sampleClass(inBucket[len(inBucket)-1])
			for _, s := range inBucket {
				if !s.OK && len(point.Details) < maxDetailsPerPoint {
					point.Details = append(point.Details, sampleDetail(s))
				}
			}
		case last != nil && bucketStart.Sub(last.CheckedAt) <= gap:
			point.ClassName, point.Label = sampleClass(*last)
		}

		for _, r := range reboots {
			if r.At.Before(bucketStart) || !r.At.Before(bucketEnd) {
				continue
			}
			point.ClassName, point.Label = ClassRebooting, "Rebooting"
			if len(point.Details) < maxDetailsPerPoint {
				point.Details = append(point.Details, models.TimelineDetail{
					Timestamp: r.At,
					State:     "reboot:" + string(r.Reason),
					Error:     r.Error,
				})
			}
		}

		result = append(result, point)
	}
	return result
}

// deriveGap is twice the median sampling interval, clamped to [1m, 2h].
func deriveGap(samples []models.ConnectivityStatus) time.Duration {
	const defaultGap = 5 * time.Minute
	if len(samples) < 2 {
		return defaultGap
	}
	diffs := make([]time.Duration, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		if d := samples[i].CheckedAt.Sub(samples[i-1].CheckedAt); d > 0 {
			diffs = append(diffs, d)
		}
	}
	if len(diffs) == 0 {
		return defaultGap
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i] < diffs[j] })
	gap := diffs[len(diffs)/2] * 2
	switch {
	case gap < time.Minute:
		return time.Minute
	case gap > 2*time.Hour:
		return 2 * time.Hour
	}
	return gap
}

func sampleDetail(s models.ConnectivityStatus) models.TimelineDetail {
	state := "online"
	if !s.OK {
		state = "offline"
	}
	return models.TimelineDetail{Timestamp: s.CheckedAt, State: state, Error: s.Error}
}

func sampleClass(s models.ConnectivityStatus) (className, label string) {
	if s.OK {
		return ClassOnline, "Online"
	}
	return ClassOffline, "Offline"
}
