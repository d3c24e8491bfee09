package rip

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
)

// LocalRoute is a route originated by this router.
type LocalRoute struct {
	Destination Destination
	Metric      uint32
}

type Config struct {
	Logger    *slog.Logger
	Clock     clockwork.Clock
	Transport Transport

	// Updates go to every neighbor; datagrams from LocalAddrs are ignored.
	Neighbors   []Peer
	LocalAddrs  []uint32
	LocalRoutes []LocalRoute

	// Verbose logs every received message and hands the table to OnUpdate after
	// each periodic update and each processed response.
	Verbose  bool
	OnUpdate func(entries []RoutingTableEntry)

	// Optional.
	Metrics *Metrics
	Rand    *rand.Rand

	// Optional with defaults.
	UpdateInterval time.Duration
	// Nil means UPDATE_JITTER capped at half the update interval. Zero disables jitter.
	UpdateJitter   *time.Duration
	RouteTimeout   time.Duration
	GarbageTimeout time.Duration
	PollInterval   time.Duration
	TableSize      int
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Transport == nil {
		return errors.New("transport is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewPCG(uint64(c.Clock.Now().UnixNano()), 0x5249500a))
	}

	if c.UpdateInterval == 0 {
		c.UpdateInterval = UPDATE_TIME
	}
	if c.UpdateJitter == nil {
		jitter := min(UPDATE_JITTER, c.UpdateInterval/2)
		c.UpdateJitter = &jitter
	}
	if c.RouteTimeout == 0 {
		c.RouteTimeout = ROUTE_TIMEOUT
	}
	if c.GarbageTimeout == 0 {
		c.GarbageTimeout = GARBAGE_TIMEOUT
	}
	if c.PollInterval == 0 {
		c.PollInterval = MIN_TIMER
	}
	if c.TableSize == 0 {
		c.TableSize = RIP_ROUTE_TABLE_SIZE
	}

	if c.UpdateInterval <= 0 {
		return errors.New("update interval must be > 0")
	}
	if *c.UpdateJitter < 0 || *c.UpdateJitter >= c.UpdateInterval {
		return errors.New("update jitter must be >= 0 and below the update interval")
	}
	if c.RouteTimeout <= 0 {
		return errors.New("route timeout must be > 0")
	}
	if c.GarbageTimeout <= 0 {
		return errors.New("garbage timeout must be > 0")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be > 0")
	}
	if c.TableSize <= 0 {
		return errors.New("table size must be > 0")
	}
	if len(c.LocalRoutes) > c.TableSize {
		return fmt.Errorf("%d local routes do not fit in a table of %d", len(c.LocalRoutes), c.TableSize)
	}
	return nil
}
