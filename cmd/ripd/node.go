package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/olekukonko/tablewriter"

	"ripd/pkg/link"
	"ripd/pkg/rip"
)

type Node struct {
	log    *slog.Logger
	clock  clockwork.Clock
	link   *link.VirtualLink
	daemon *rip.Daemon
}

/*
	bind the node's udp socket, create one link interface per neighbor line and
	wire the rip daemon on top
*/
func InitNodeFromLNX(log *slog.Logger, lnx *LNX, env EnvConfig, verbose bool, metrics *rip.Metrics, out io.Writer) (*Node, error) {
	conn, err := link.ListenUDP(lnx.BindAddr, lnx.BindPort)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s:%d: %w", lnx.BindAddr, lnx.BindPort, err)
	}

	ifaces := make([]*link.LinkInterface, 0, len(lnx.Interfaces))
	for i, ic := range lnx.Interfaces {
		iface, err := link.NewLinkInterface(i, ic.HostVIP, ic.NeighborVIP, ic.NeighborAddr, ic.NeighborPort)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("interface %d: %w", i, err)
		}
		ifaces = append(ifaces, iface)
	}
	vlink, err := link.NewVirtualLink(conn, ifaces)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	n := &Node{log: log, clock: clockwork.NewRealClock(), link: vlink}
	n.daemon, err = rip.NewDaemon(&rip.Config{
		Logger:         log,
		Clock:          n.clock,
		Transport:      vlink,
		Neighbors:      vlink.Neighbors(),
		LocalAddrs:     vlink.LocalAddrs(),
		LocalRoutes:    lnx.LocalRoutes(),
		Verbose:        verbose,
		OnUpdate:       func(entries []rip.RoutingTableEntry) { n.PrintRoutingTable(out, entries) },
		Metrics:        metrics,
		UpdateInterval: env.UpdateInterval,
		UpdateJitter:   env.UpdateJitter,
		RouteTimeout:   env.RouteTimeout,
		GarbageTimeout: env.GarbageTimeout,
		PollInterval:   env.PollInterval,
		TableSize:      env.TableSize,
	})
	if err != nil {
		_ = vlink.Close()
		return nil, err
	}

	for _, iface := range ifaces {
		log.Info("interface up", "interface", iface.String())
	}
	return n, nil
}

// Run blocks until ctx is done or the socket fails, then closes the socket.
func (n *Node) Run(ctx context.Context) error {
	defer n.link.Close()
	return n.daemon.Run(ctx)
}

/*
	print the current routing table
*/
func (n *Node) PrintRoutingTable(w io.Writer, entries []rip.RoutingTableEntry) {
	now := n.clock.Now()

	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetHeader([]string{"Destination", "Next Hop", "Metric", "State", "Expires"})

	for _, e := range entries {
		nextHop, state, expires := "-", "", "-"
		switch {
		case e.Local:
			state = "local"
		case e.Reachable():
			state = "up"
			expires = e.TimeoutAt.Sub(now).Truncate(time.Second).String()
		default:
			state = "garbage"
			expires = e.GarbageAt.Sub(now).Truncate(time.Second).String()
		}
		if !e.Local {
			nextHop = rip.AddrNumToIP(e.NextHop)
		}
		table.Append([]string{e.Destination.String(), nextHop, fmt.Sprintf("%d", e.Metric), state, expires})
	}

	fmt.Fprintf(w, "Current table (%d routes)\n", len(entries))
	table.Render()
}
