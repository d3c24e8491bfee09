package rip

import "time"

const (
	INFINITY    = 16 // metric of an unreachable destination
	MAX_ENTRIES = 25 // route entries per datagram
	HEADER_SIZE = 4
	ENTRY_SIZE  = 20
	RIP_VERSION = 2
	AF_INET     = 2

	// default capacity of the routing table
	RIP_ROUTE_TABLE_SIZE = 256
)

const (
	UPDATE_TIME     = 30 * time.Second // base period of unsolicited responses
	UPDATE_JITTER   = 15 * time.Second // +/- randomisation of UPDATE_TIME
	ROUTE_TIMEOUT   = 180 * time.Second
	GARBAGE_TIMEOUT = 120 * time.Second
	MIN_TIMER       = 1 * time.Second // ceiling on a single receive wait

	minWait = time.Millisecond
)
