package rip

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrTableFull = errors.New("routing table full")

// RoutingTableEntry is one route. Each entry owns its timer state: TimeoutAt is
// the route timer deadline and GarbageAt the garbage collection deadline; a zero
// value means the timer is not running. At most one of them runs at a time.
type RoutingTableEntry struct {
	Destination Destination
	Metric      uint32
	NextHop     uint32 // 0 for local routes

	Local   bool // configured on this router, never ages out
	Changed bool // not yet advertised since its last change

	TimeoutAt time.Time
	GarbageAt time.Time
}

func (e *RoutingTableEntry) Reachable() bool { return e.Metric < INFINITY }

func (e *RoutingTableEntry) TimeoutActive() bool { return !e.TimeoutAt.IsZero() }

func (e *RoutingTableEntry) GarbageActive() bool { return !e.GarbageAt.IsZero() }

// ToRIPEntry projects the entry onto the wire.
func (e *RoutingTableEntry) ToRIPEntry() RIPEntry {
	return RIPEntry{
		AddressFamily: AF_INET,
		Address:       e.Destination.Address,
		Mask:          e.Destination.Mask,
		NextHop:       e.NextHop,
		Metric:        e.Metric,
	}
}

type UpsertResult int

const (
	Unchanged UpsertResult = iota
	Added
	Updated
)

func (r UpsertResult) String() string {
	switch r {
	case Added:
		return "added"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// RoutingTable maps destinations to routes. It has a single owner (the daemon
// loop) and is not safe for concurrent use.
type RoutingTable struct {
	Table          map[Destination]*RoutingTableEntry
	Capacity       int
	RouteTimeout   time.Duration
	GarbageTimeout time.Duration
}

func NewRoutingTable(capacity int, routeTimeout, garbageTimeout time.Duration) *RoutingTable {
	return &RoutingTable{
		Table:          make(map[Destination]*RoutingTableEntry),
		Capacity:       capacity,
		RouteTimeout:   routeTimeout,
		GarbageTimeout: garbageTimeout,
	}
}

func (rt *RoutingTable) Len() int { return len(rt.Table) }

// Lookup returns the live entry for dest; callers may read it but must mutate
// the table through its methods.
func (rt *RoutingTable) Lookup(dest Destination) (*RoutingTableEntry, bool) {
	entry, exists := rt.Table[dest]
	return entry, exists
}

// AddLocal seeds a locally originated route. Local routes have no next hop and
// no timers.
func (rt *RoutingTable) AddLocal(dest Destination, metric uint32) error {
	if metric < 1 || metric >= INFINITY {
		return fmt.Errorf("invalid metric %d for local route %s", metric, dest)
	}
	if _, exists := rt.Table[dest]; !exists && len(rt.Table) >= rt.Capacity {
		return fmt.Errorf("%w: cannot add %s", ErrTableFull, dest)
	}
	rt.Table[dest] = &RoutingTableEntry{
		Destination: dest,
		Metric:      metric,
		Local:       true,
		Changed:     true,
	}
	return nil
}

// Upsert installs or refreshes the route to dest via nextHop. A reachable metric
// restarts the route timer and cancels garbage collection; an unreachable metric
// starts garbage collection unless it is already running. A local entry passed
// to Upsert becomes a learned route.
func (rt *RoutingTable) Upsert(dest Destination, metric uint32, nextHop uint32, now time.Time) (UpsertResult, error) {
	if metric < 1 || metric > INFINITY {
		return Unchanged, fmt.Errorf("invalid metric %d for %s", metric, dest)
	}

	entry, exists := rt.Table[dest]
	if !exists {
		if len(rt.Table) >= rt.Capacity {
			return Unchanged, fmt.Errorf("%w: cannot add %s", ErrTableFull, dest)
		}
		entry = &RoutingTableEntry{Destination: dest, Metric: metric, NextHop: nextHop, Changed: true}
		rt.setTimers(entry, now)
		rt.Table[dest] = entry
		return Added, nil
	}

	changed := entry.Metric != metric || entry.NextHop != nextHop || entry.Local
	wasReachable := entry.Reachable()
	entry.Metric = metric
	entry.NextHop = nextHop
	entry.Local = false
	if entry.Reachable() || wasReachable {
		rt.setTimers(entry, now)
	}
	if !changed {
		return Unchanged, nil
	}
	entry.Changed = true
	return Updated, nil
}

func (rt *RoutingTable) setTimers(entry *RoutingTableEntry, now time.Time) {
	if entry.Local {
		return
	}
	if entry.Reachable() {
		entry.TimeoutAt = now.Add(rt.RouteTimeout)
		entry.GarbageAt = time.Time{}
	} else {
		entry.TimeoutAt = time.Time{}
		entry.GarbageAt = now.Add(rt.GarbageTimeout)
	}
}

// Invalidate marks the route to dest unreachable and starts its garbage timer.
// It reports false when there is no reachable route to dest.
func (rt *RoutingTable) Invalidate(dest Destination, now time.Time) bool {
	entry, exists := rt.Table[dest]
	if !exists || !entry.Reachable() {
		return false
	}
	entry.Metric = INFINITY
	entry.Changed = true
	entry.TimeoutAt = time.Time{}
	entry.GarbageAt = now.Add(rt.GarbageTimeout)
	return true
}

func (rt *RoutingTable) Remove(dest Destination) bool {
	if _, exists := rt.Table[dest]; !exists {
		return false
	}
	delete(rt.Table, dest)
	return true
}

func (rt *RoutingTable) sortedDestinations() []Destination {
	dests := make([]Destination, 0, len(rt.Table))
	for dest := range rt.Table {
		dests = append(dests, dest)
	}
	sort.Slice(dests, func(i, j int) bool { return dests[i].less(dests[j]) })
	return dests
}

// Snapshot returns a copy of every entry ordered by destination.
func (rt *RoutingTable) Snapshot() []RoutingTableEntry {
	entries := make([]RoutingTableEntry, 0, len(rt.Table))
	for _, dest := range rt.sortedDestinations() {
		entries = append(entries, *rt.Table[dest])
	}
	return entries
}

// RequestSubset answers a request for specific destinations, in request order.
// Unknown destinations are answered with metric INFINITY.
func (rt *RoutingTable) RequestSubset(dests []Destination) []RoutingTableEntry {
	entries := make([]RoutingTableEntry, 0, len(dests))
	for _, dest := range dests {
		if entry, exists := rt.Table[dest]; exists {
			entries = append(entries, *entry)
		} else {
			entries = append(entries, RoutingTableEntry{Destination: dest, Metric: INFINITY})
		}
	}
	return entries
}

func (rt *RoutingTable) ChangedEntries() []RoutingTableEntry {
	entries := make([]RoutingTableEntry, 0)
	for _, dest := range rt.sortedDestinations() {
		if entry := rt.Table[dest]; entry.Changed {
			entries = append(entries, *entry)
		}
	}
	return entries
}

func (rt *RoutingTable) ClearChanged() {
	for _, entry := range rt.Table {
		entry.Changed = false
	}
}

// NextDeadline returns the earliest running route or garbage timer deadline.
func (rt *RoutingTable) NextDeadline() (time.Time, bool) {
	var next time.Time
	for _, entry := range rt.Table {
		for _, deadline := range []time.Time{entry.TimeoutAt, entry.GarbageAt} {
			if !deadline.IsZero() && (next.IsZero() || deadline.Before(next)) {
				next = deadline
			}
		}
	}
	return next, !next.IsZero()
}
