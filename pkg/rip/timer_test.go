package rip

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRIP_UpdateTimer_JitterStaysInWholeSecondsWithinBounds(t *testing.T) {
	t.Parallel()
	now := time.Unix(1000, 0)
	timer := NewUpdateTimer(UPDATE_TIME, UPDATE_JITTER, rand.New(rand.NewPCG(1, 2)), now)

	seen := map[time.Duration]bool{}
	for i := 0; i < 2000; i++ {
		d := timer.Reset(now)
		require.True(t, d >= UPDATE_TIME-UPDATE_JITTER && d <= UPDATE_TIME+UPDATE_JITTER, "interval %s out of bounds", d)
		require.Zero(t, d%time.Second)
		require.Equal(t, now.Add(d), timer.Deadline())
		seen[d] = true
	}
	// 31 possible values; every one should come up in 2000 draws
	require.Len(t, seen, 31)
}

func TestRIP_UpdateTimer_NoJitter(t *testing.T) {
	t.Parallel()
	now := time.Unix(1000, 0)
	timer := NewUpdateTimer(10*time.Second, 0, rand.New(rand.NewPCG(1, 2)), now)

	require.Equal(t, now.Add(10*time.Second), timer.Deadline())
	require.False(t, timer.Expired(now.Add(9*time.Second)))
	require.Equal(t, time.Second, timer.Remaining(now.Add(9*time.Second)))
	require.True(t, timer.Expired(now.Add(10*time.Second)))
	require.True(t, timer.Expired(now.Add(11*time.Second)))
}

func TestRIP_CollectGarbage_TimeoutThenRemoval(t *testing.T) {
	t.Parallel()
	rt := NewRoutingTable(RIP_ROUTE_TABLE_SIZE, ROUTE_TIMEOUT, GARBAGE_TIMEOUT)
	now := time.Unix(1000, 0)
	dest := mustDest(t, "192.168.1.0/24")

	_, err := rt.Upsert(dest, 2, mustAddr(t, "10.0.0.1"), now)
	require.NoError(t, err)
	rt.ClearChanged()

	report := rt.CollectGarbage(now.Add(ROUTE_TIMEOUT - time.Millisecond))
	require.False(t, report.Changed())

	expiry := now.Add(ROUTE_TIMEOUT)
	report = rt.CollectGarbage(expiry)
	require.True(t, report.Changed())
	require.Equal(t, []Destination{dest}, report.Invalidated)
	require.Empty(t, report.Removed)

	e, ok := rt.Lookup(dest)
	require.True(t, ok)
	require.Equal(t, uint32(INFINITY), e.Metric)
	require.True(t, e.Changed)
	require.False(t, e.TimeoutActive())
	require.Equal(t, expiry.Add(GARBAGE_TIMEOUT), e.GarbageAt)

	report = rt.CollectGarbage(expiry.Add(GARBAGE_TIMEOUT - time.Millisecond))
	require.False(t, report.Changed())

	report = rt.CollectGarbage(expiry.Add(GARBAGE_TIMEOUT))
	require.Equal(t, []Destination{dest}, report.Removed)
	require.Empty(t, report.Invalidated)
	_, ok = rt.Lookup(dest)
	require.False(t, ok)
}

func TestRIP_CollectGarbage_LeavesLocalRoutes(t *testing.T) {
	t.Parallel()
	rt := NewRoutingTable(RIP_ROUTE_TABLE_SIZE, ROUTE_TIMEOUT, GARBAGE_TIMEOUT)
	dest := mustDest(t, "10.0.0.2")
	require.NoError(t, rt.AddLocal(dest, 1))

	report := rt.CollectGarbage(time.Unix(1000, 0).Add(24 * time.Hour))
	require.False(t, report.Changed())
	_, ok := rt.Lookup(dest)
	require.True(t, ok)
}

func TestRIP_CollectGarbage_SortedReport(t *testing.T) {
	t.Parallel()
	rt := NewRoutingTable(RIP_ROUTE_TABLE_SIZE, ROUTE_TIMEOUT, GARBAGE_TIMEOUT)
	now := time.Unix(1000, 0)
	dests := []Destination{mustDest(t, "10.3.0.0/16"), mustDest(t, "10.1.0.0/16"), mustDest(t, "10.2.0.0/16")}
	for _, d := range dests {
		_, err := rt.Upsert(d, 2, 1, now)
		require.NoError(t, err)
	}

	report := rt.CollectGarbage(now.Add(ROUTE_TIMEOUT))
	require.Equal(t, []Destination{dests[1], dests[2], dests[0]}, report.Invalidated)
}
