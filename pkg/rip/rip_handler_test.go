package rip

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, capacity int) (*RipHandler, *RoutingTable, *Metrics) {
	t.Helper()
	rt := NewRoutingTable(capacity, ROUTE_TIMEOUT, GARBAGE_TIMEOUT)
	m := NewMetrics()
	return NewRipHandler(newTestLogger(t), rt, m), rt, m
}

func advert(dest Destination, metric uint32) RIPEntry {
	return RIPEntry{AddressFamily: AF_INET, Address: dest.Address, Mask: dest.Mask, Metric: metric}
}

func TestRIP_Handler_LearnsNewRoute(t *testing.T) {
	t.Parallel()
	h, rt, m := newTestHandler(t, RIP_ROUTE_TABLE_SIZE)
	now := time.Unix(1000, 0)
	dest := mustDest(t, "192.168.1.0/24")
	src := mustAddr(t, "10.0.0.1")

	triggered := h.HandleResponse(NewResponse([]RIPEntry{advert(dest, 1)}), src, now)
	require.True(t, triggered)

	e, ok := rt.Lookup(dest)
	require.True(t, ok)
	require.Equal(t, uint32(2), e.Metric)
	require.Equal(t, src, e.NextHop)
	require.True(t, e.Changed)
	require.Equal(t, 1.0, testutil.ToFloat64(m.RouteChanges.WithLabelValues(ChangeAdded)))
}

func TestRIP_Handler_AuthoritativeNextHopWorsensRoute(t *testing.T) {
	t.Parallel()
	h, rt, m := newTestHandler(t, RIP_ROUTE_TABLE_SIZE)
	now := time.Unix(1000, 0)
	dest := mustDest(t, "192.168.1.0/24")
	src := mustAddr(t, "10.0.0.1")

	require.True(t, h.HandleResponse(NewResponse([]RIPEntry{advert(dest, 1)}), src, now))
	rt.ClearChanged()

	t1 := now.Add(10 * time.Second)
	require.True(t, h.HandleResponse(NewResponse([]RIPEntry{advert(dest, INFINITY)}), src, t1))

	e, ok := rt.Lookup(dest)
	require.True(t, ok)
	require.Equal(t, uint32(INFINITY), e.Metric)
	require.True(t, e.Changed)
	require.False(t, e.TimeoutActive())
	require.Equal(t, t1.Add(GARBAGE_TIMEOUT), e.GarbageAt)
	require.Equal(t, 1.0, testutil.ToFloat64(m.RouteChanges.WithLabelValues(ChangeInvalidated)))

	// same advertisement again is not a change and does not restart garbage collection
	require.False(t, h.HandleResponse(NewResponse([]RIPEntry{advert(dest, INFINITY)}), src, t1.Add(time.Second)))
	require.Equal(t, t1.Add(GARBAGE_TIMEOUT), e.GarbageAt)
}

func TestRIP_Handler_AuthoritativeNextHopRefreshesTimer(t *testing.T) {
	t.Parallel()
	h, rt, _ := newTestHandler(t, RIP_ROUTE_TABLE_SIZE)
	now := time.Unix(1000, 0)
	dest := mustDest(t, "192.168.1.0/24")
	src := mustAddr(t, "10.0.0.1")

	require.True(t, h.HandleResponse(NewResponse([]RIPEntry{advert(dest, 3)}), src, now))
	rt.ClearChanged()

	t1 := now.Add(100 * time.Second)
	require.False(t, h.HandleResponse(NewResponse([]RIPEntry{advert(dest, 3)}), src, t1))
	e, _ := rt.Lookup(dest)
	require.False(t, e.Changed)
	require.Equal(t, t1.Add(ROUTE_TIMEOUT), e.TimeoutAt)
}

func TestRIP_Handler_BetterPathReplacesNextHop(t *testing.T) {
	t.Parallel()
	h, rt, _ := newTestHandler(t, RIP_ROUTE_TABLE_SIZE)
	now := time.Unix(1000, 0)
	dest := mustDest(t, "172.16.0.0/12")
	far := mustAddr(t, "10.0.0.1")
	near := mustAddr(t, "10.0.0.5")

	require.True(t, h.HandleResponse(NewResponse([]RIPEntry{advert(dest, 4)}), far, now))
	rt.ClearChanged()

	// equal cost from another neighbor is ignored
	require.False(t, h.HandleResponse(NewResponse([]RIPEntry{advert(dest, 4)}), near, now))
	e, _ := rt.Lookup(dest)
	require.Equal(t, far, e.NextHop)

	// worse cost from another neighbor is ignored
	require.False(t, h.HandleResponse(NewResponse([]RIPEntry{advert(dest, 9)}), near, now))
	require.Equal(t, far, e.NextHop)
	require.Equal(t, uint32(5), e.Metric)

	t1 := now.Add(time.Second)
	require.True(t, h.HandleResponse(NewResponse([]RIPEntry{advert(dest, 1)}), near, t1))
	require.Equal(t, near, e.NextHop)
	require.Equal(t, uint32(2), e.Metric)
	require.True(t, e.Changed)
	require.Equal(t, t1.Add(ROUTE_TIMEOUT), e.TimeoutAt)
}

func TestRIP_Handler_BetterPathRevivesUnreachableRoute(t *testing.T) {
	t.Parallel()
	h, rt, _ := newTestHandler(t, RIP_ROUTE_TABLE_SIZE)
	now := time.Unix(1000, 0)
	dest := mustDest(t, "172.16.0.0/12")
	oldHop := mustAddr(t, "10.0.0.1")
	newHop := mustAddr(t, "10.0.0.5")

	require.True(t, h.HandleResponse(NewResponse([]RIPEntry{advert(dest, 4)}), oldHop, now))
	require.True(t, rt.Invalidate(dest, now))

	require.True(t, h.HandleResponse(NewResponse([]RIPEntry{advert(dest, 7)}), newHop, now))
	e, _ := rt.Lookup(dest)
	require.Equal(t, uint32(8), e.Metric)
	require.Equal(t, newHop, e.NextHop)
	require.False(t, e.GarbageActive())
	require.True(t, e.TimeoutActive())
}

func TestRIP_Handler_IgnoresUnreachableNewRoute(t *testing.T) {
	t.Parallel()
	h, rt, _ := newTestHandler(t, RIP_ROUTE_TABLE_SIZE)
	dest := mustDest(t, "192.168.1.0/24")
	src := mustAddr(t, "10.0.0.1")

	require.False(t, h.HandleResponse(NewResponse([]RIPEntry{advert(dest, INFINITY)}), src, time.Unix(1000, 0)))
	require.False(t, h.HandleResponse(NewResponse([]RIPEntry{advert(dest, INFINITY-1)}), src, time.Unix(1000, 0)))
	require.Equal(t, 0, rt.Len())
}

func TestRIP_Handler_LocalRoutesAreNeverOverwritten(t *testing.T) {
	t.Parallel()
	h, rt, _ := newTestHandler(t, RIP_ROUTE_TABLE_SIZE)
	dest := mustDest(t, "10.0.0.2")
	require.NoError(t, rt.AddLocal(dest, 1))
	rt.ClearChanged()

	require.False(t, h.HandleResponse(NewResponse([]RIPEntry{advert(dest, 1)}), mustAddr(t, "10.0.0.1"), time.Unix(1000, 0)))
	require.False(t, h.HandleResponse(NewResponse([]RIPEntry{advert(dest, INFINITY)}), 0, time.Unix(1000, 0)))

	e, _ := rt.Lookup(dest)
	require.True(t, e.Local)
	require.Equal(t, uint32(1), e.Metric)
	require.Equal(t, uint32(0), e.NextHop)
}

func TestRIP_Handler_TableFullDropsNewRoutes(t *testing.T) {
	t.Parallel()
	h, rt, m := newTestHandler(t, 1)
	src := mustAddr(t, "10.0.0.1")
	a, b := mustDest(t, "10.1.0.0/16"), mustDest(t, "10.2.0.0/16")

	triggered := h.HandleResponse(NewResponse([]RIPEntry{advert(a, 1), advert(b, 1)}), src, time.Unix(1000, 0))
	require.True(t, triggered)
	require.Equal(t, 1, rt.Len())
	_, ok := rt.Lookup(b)
	require.False(t, ok)
	require.Equal(t, 1.0, testutil.ToFloat64(m.TableFullDrops))
}

func TestRIP_Handler_HandleRequest(t *testing.T) {
	t.Parallel()
	h, rt, _ := newTestHandler(t, RIP_ROUTE_TABLE_SIZE)
	now := time.Unix(1000, 0)
	src := mustAddr(t, "10.0.0.1")
	a, b := mustDest(t, "10.1.0.0/16"), mustDest(t, "10.2.0.0/16")

	require.True(t, h.HandleResponse(NewResponse([]RIPEntry{advert(b, 1), advert(a, 2)}), src, now))
	require.True(t, rt.Invalidate(b, now))

	whole := h.HandleRequest(NewWholeTableRequest())
	require.Len(t, whole, 2)
	require.Equal(t, a, whole[0].Destination)
	require.Equal(t, b, whole[1].Destination)
	require.Equal(t, uint32(INFINITY), whole[1].Metric)

	unknown := mustDest(t, "192.168.9.0/24")
	subset := h.HandleRequest(NewRequest([]RIPEntry{advert(unknown, 1), advert(a, 1)}))
	require.Len(t, subset, 2)
	require.Equal(t, unknown, subset[0].Destination)
	require.Equal(t, uint32(INFINITY), subset[0].Metric)
	require.Equal(t, uint32(3), subset[1].Metric)
}

func TestRIP_Handler_TracksNextHopAdvertisements(t *testing.T) {
	t.Parallel()
	h, rt, _ := newTestHandler(t, RIP_ROUTE_TABLE_SIZE)
	now := time.Unix(1000, 0)
	dest := mustDest(t, "10.20.0.0/16")
	src := mustAddr(t, "10.0.0.1")

	require.True(t, h.HandleResponse(NewResponse([]RIPEntry{advert(dest, 0)}), src, now))

	rng := rand.New(rand.NewPCG(7, 11))
	for i := range 500 {
		adv := uint32(rng.IntN(INFINITY + 1))
		now = now.Add(time.Second)
		h.HandleResponse(NewResponse([]RIPEntry{advert(dest, adv)}), src, now)

		e, ok := rt.Lookup(dest)
		require.True(t, ok, "step %d", i)
		require.Equal(t, min(adv+1, INFINITY), e.Metric, "step %d advertised %d", i, adv)
		require.Equal(t, src, e.NextHop)
		require.NotEqual(t, e.TimeoutActive(), e.GarbageActive(), "step %d", i)
	}
}

func TestRIP_Handler_BetterPathReplacesCostlyLocalRoute(t *testing.T) {
	t.Parallel()
	h, rt, m := newTestHandler(t, RIP_ROUTE_TABLE_SIZE)
	now := time.Unix(1000, 0)
	dest := mustDest(t, "10.50.0.0/16")
	src := mustAddr(t, "10.0.0.1")
	require.NoError(t, rt.AddLocal(dest, 5))
	rt.ClearChanged()

	// same cost is not better
	require.False(t, h.HandleResponse(NewResponse([]RIPEntry{advert(dest, 4)}), src, now))
	e, _ := rt.Lookup(dest)
	require.True(t, e.Local)
	require.Equal(t, uint32(5), e.Metric)

	require.True(t, h.HandleResponse(NewResponse([]RIPEntry{advert(dest, 1)}), src, now))
	e, _ = rt.Lookup(dest)
	require.False(t, e.Local)
	require.True(t, e.Changed)
	require.Equal(t, uint32(2), e.Metric)
	require.Equal(t, src, e.NextHop)
	require.Equal(t, now.Add(ROUTE_TIMEOUT), e.TimeoutAt)
	require.Equal(t, 1.0, testutil.ToFloat64(m.RouteChanges.WithLabelValues(ChangeUpdated)))
}
