// Package analytics derives dashboard metrics from tracker snapshots. Every
// function is pure: the same input always yields the same output, nothing
// reads the clock and nothing mutates its arguments.
package analytics

import (
	"time"

	"github.com/gosight/logflow/internal/event"
)

// Bucket counts the events whose timestamp falls in [Start, End)
type Bucket struct {
	Label       string    `json:"label"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Events      int       `json:"events"`
	Users       int       `json:"users"`
	Conversions int       `json:"conversions"`
}

// Buckets partitions events into n contiguous buckets of the given width
// starting at start. Buckets without events are reported with zero counts.
func Buckets(events []event.Event, start time.Time, width time.Duration, n int) []Bucket {
	if n <= 0 || width <= 0 {
		return []Bucket{}
	}
	bounds := make([]time.Time, n+1)
	for i := range bounds {
		bounds[i] = start.Add(time.Duration(i) * width)
	}
	return fill(events, bounds, func(t time.Time) string { return t.Format(time.RFC3339) })
}

// Hourly returns 24 one-hour buckets, the last one holding the hour that
// contains now. Hours start on the wall clock of loc, and labels are the
// hour of day there ("15:00").
func Hourly(events []event.Event, now time.Time, loc *time.Location) []Bucket {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	last := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
	start := last.Add(-23 * time.Hour)
	bounds := make([]time.Time, 25)
	for i := range bounds {
		bounds[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return fill(events, bounds, func(t time.Time) string { return t.Format("15:04") })
}

// Daily returns 7 calendar-day buckets in loc ending with the day that
// contains now. Labels are short weekday names.
func Daily(events []event.Event, now time.Time, loc *time.Location) []Bucket {
	if loc == nil {
		loc = time.Local
	}
	today := startOfDay(now, loc)
	bounds := make([]time.Time, 8)
	for i := range bounds {
		bounds[i] = today.AddDate(0, 0, i-6)
	}
	return fill(events, bounds, func(t time.Time) string { return t.Weekday().String()[:3] })
}

func fill(events []event.Event, bounds []time.Time, label func(time.Time) string) []Bucket {
	n := len(bounds) - 1
	buckets := make([]Bucket, n)
	users := make([]map[string]struct{}, n)
	for i := 0; i < n; i++ {
		buckets[i] = Bucket{Label: label(bounds[i]), Start: bounds[i], End: bounds[i+1]}
		users[i] = make(map[string]struct{})
	}

	for _, e := range events {
		i := bucketIndex(bounds, e.Timestamp)
		if i < 0 {
			continue
		}
		buckets[i].Events++
		users[i][e.SessionID] = struct{}{}
		if e.Type == event.TypeFormSubmit {
			buckets[i].Conversions++
		}
	}

	for i := range buckets {
		buckets[i].Users = len(users[i])
	}
	return buckets
}

// bucketIndex finds the bucket holding ts by binary search over the bounds
func bucketIndex(bounds []time.Time, ts int64) int {
	if ts < bounds[0].UnixMilli() || ts >= bounds[len(bounds)-1].UnixMilli() {
		return -1
	}
	lo, hi := 0, len(bounds)-1
	for lo < hi-1 {
		mid := (lo + hi) / 2
		if ts < bounds[mid].UnixMilli() {
			hi = mid
		} else {
			lo = mid
		}
	}
	return lo
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
