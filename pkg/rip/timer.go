package rip

import (
	"math/rand/v2"
	"time"
)

// UpdateTimer schedules unsolicited responses every interval +/- jitter. The
// jitter is redrawn on every reset so routers that booted together drift apart.
type UpdateTimer struct {
	interval time.Duration
	jitter   time.Duration
	rand     *rand.Rand
	deadline time.Time
}

func NewUpdateTimer(interval, jitter time.Duration, r *rand.Rand, now time.Time) *UpdateTimer {
	t := &UpdateTimer{interval: interval, jitter: jitter, rand: r}
	t.Reset(now)
	return t
}

// Reset restarts the timer and returns the duration it was set to.
func (t *UpdateTimer) Reset(now time.Time) time.Duration {
	d := t.interval
	if secs := int(t.jitter / time.Second); secs > 0 {
		d += time.Duration(t.rand.IntN(2*secs+1)-secs) * time.Second
	}
	t.deadline = now.Add(d)
	return d
}

func (t *UpdateTimer) Expired(now time.Time) bool { return !now.Before(t.deadline) }

func (t *UpdateTimer) Remaining(now time.Time) time.Duration { return t.deadline.Sub(now) }

func (t *UpdateTimer) Deadline() time.Time { return t.deadline }

// GarbageReport lists what a garbage collection sweep did.
type GarbageReport struct {
	Invalidated []Destination // route timer expired
	Removed     []Destination // garbage timer expired
}

func (r GarbageReport) Changed() bool {
	return len(r.Invalidated) > 0 || len(r.Removed) > 0
}

// CollectGarbage runs both per-route timers against now: routes whose timeout
// expired become unreachable and start garbage collection, and routes whose
// garbage timer expired are deleted.
func (rt *RoutingTable) CollectGarbage(now time.Time) GarbageReport {
	var report GarbageReport
	for _, dest := range rt.sortedDestinations() {
		entry := rt.Table[dest]
		switch {
		case entry.GarbageActive() && !now.Before(entry.GarbageAt):
			rt.Remove(dest)
			report.Removed = append(report.Removed, dest)
		case entry.TimeoutActive() && !now.Before(entry.TimeoutAt):
			rt.Invalidate(dest, now)
			report.Invalidated = append(report.Invalidated, dest)
		}
	}
	return report
}
