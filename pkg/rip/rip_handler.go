package rip

import (
	"errors"
	"log/slog"
	"time"
)

// RipHandler applies received RIP messages to the routing table.
type RipHandler struct {
	log     *slog.Logger
	table   *RoutingTable
	metrics *Metrics
}

func NewRipHandler(log *slog.Logger, table *RoutingTable, metrics *Metrics) *RipHandler {
	return &RipHandler{log: log, table: table, metrics: metrics}
}

// HandleResponse merges a response received from neighbor src into the table,
// with a link cost of 1. It returns true when any entry changed and a triggered
// update should go out.
//
// D --> destination, C --> advertised cost + 1, N --> src, M --> current next hop
//   - D not in the table: add <D, C, N> unless C is INFINITY
//   - N == M: always take C, the neighbor is authoritative for its own routes
//   - N != M: take <D, C, N> only if C < C_old, local routes included
func (r *RipHandler) HandleResponse(msg *RIPMessage, src uint32, now time.Time) bool {
	triggered := false

	for _, newEntry := range msg.Entries {
		dest := newEntry.Destination()
		cost := newEntry.Metric + 1
		if cost > INFINITY {
			cost = INFINITY
		}

		oldEntry, exists := r.table.Lookup(dest)
		switch {
		case !exists:
			// never learn a route that is already unreachable
			if cost == INFINITY {
				continue
			}
			if _, err := r.table.Upsert(dest, cost, src, now); err != nil {
				if errors.Is(err, ErrTableFull) {
					r.metrics.tableFull()
				}
				r.log.Warn("rip.merge: dropping new route", "dest", dest, "next_hop", AddrNumToIP(src), "error", err)
				continue
			}
			r.metrics.routeChange(ChangeAdded, 1)
			triggered = true

		case oldEntry.Local && cost >= oldEntry.Metric:
			continue

		case oldEntry.NextHop == src:
			wasReachable := oldEntry.Reachable()
			res, err := r.table.Upsert(dest, cost, src, now)
			if err != nil {
				r.log.Warn("rip.merge: failed to refresh route", "dest", dest, "error", err)
				continue
			}
			if res != Updated {
				continue
			}
			if wasReachable && cost == INFINITY {
				r.metrics.routeChange(ChangeInvalidated, 1)
			} else {
				r.metrics.routeChange(ChangeUpdated, 1)
			}
			triggered = true

		case cost < oldEntry.Metric:
			// found a better route
			if _, err := r.table.Upsert(dest, cost, src, now); err != nil {
				r.log.Warn("rip.merge: failed to replace route", "dest", dest, "error", err)
				continue
			}
			r.metrics.routeChange(ChangeUpdated, 1)
			triggered = true
		}
	}

	return triggered
}

// HandleRequest builds the entries of the response to a request.
func (r *RipHandler) HandleRequest(msg *RIPMessage) []RoutingTableEntry {
	if msg.IsWholeTableRequest() {
		return r.table.Snapshot()
	}

	dests := make([]Destination, 0, len(msg.Entries))
	for _, e := range msg.Entries {
		dests = append(dests, e.Destination())
	}
	return r.table.RequestSubset(dests)
}
