package rip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"syscall"
	"time"
)

// Peer is the address a datagram came from or is sent to.
type Peer struct {
	Addr uint32
	Port int
}

func (p Peer) String() string {
	if p.Port == 0 {
		return AddrNumToIP(p.Addr)
	}
	return fmt.Sprintf("%s:%d", AddrNumToIP(p.Addr), p.Port)
}

// Transport is the datagram channel the daemon runs over. Receive must return an
// error matching os.ErrDeadlineExceeded when nothing arrived within timeout.
type Transport interface {
	Send(dst Peer, b []byte) error
	Receive(buf []byte, timeout time.Duration) (int, Peer, error)
	Close() error
}

// Daemon drives the protocol from a single goroutine. Each Step runs four
// phases in order: periodic update, receive, dispatch, garbage collection.
type Daemon struct {
	log     *slog.Logger
	cfg     *Config
	table   *RoutingTable
	handler *RipHandler
	update  *UpdateTimer
	local   map[uint32]struct{}
	buf     []byte
}

func NewDaemon(cfg *Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	table := NewRoutingTable(cfg.TableSize, cfg.RouteTimeout, cfg.GarbageTimeout)
	for _, r := range cfg.LocalRoutes {
		if err := table.AddLocal(r.Destination, r.Metric); err != nil {
			return nil, err
		}
	}

	local := make(map[uint32]struct{}, len(cfg.LocalAddrs))
	for _, addr := range cfg.LocalAddrs {
		local[addr] = struct{}{}
	}

	d := &Daemon{
		log:     cfg.Logger,
		cfg:     cfg,
		table:   table,
		handler: NewRipHandler(cfg.Logger, table, cfg.Metrics),
		update:  NewUpdateTimer(cfg.UpdateInterval, *cfg.UpdateJitter, cfg.Rand, cfg.Clock.Now()),
		local:   local,
		buf:     make([]byte, HEADER_SIZE+MAX_ENTRIES*ENTRY_SIZE+1),
	}
	d.cfg.Metrics.routes(table.Len())
	return d, nil
}

func (d *Daemon) Table() *RoutingTable { return d.table }

func (d *Daemon) UpdateDeadline() time.Time { return d.update.Deadline() }

// Run asks every neighbor for its table, then steps until ctx is done or the
// transport fails.
func (d *Daemon) Run(ctx context.Context) error {
	d.log.Info("rip: daemon started", "neighbors", len(d.cfg.Neighbors), "routes", d.table.Len(), "next_update", d.update.Remaining(d.cfg.Clock.Now()))

	if err := d.RequestTables(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			d.log.Info("rip: daemon stopped", "reason", ctx.Err())
			return nil
		default:
		}

		if err := d.Step(); err != nil {
			select {
			case <-ctx.Done():
				// the transport was closed under us on shutdown
				d.log.Info("rip: daemon stopped", "reason", ctx.Err())
				return nil
			default:
			}
			d.log.Error("rip: fatal transport error", "error", err)
			return err
		}
	}
}

// Step runs one loop iteration. Only fatal transport errors are returned.
func (d *Daemon) Step() error {
	if err := d.phaseUpdateTimer(); err != nil {
		return err
	}

	n, src, ok, err := d.phaseReceive()
	if err != nil {
		return err
	}
	if ok {
		if err := d.phaseDispatch(d.buf[:n], src); err != nil {
			return err
		}
	}

	if err := d.phaseSweep(); err != nil {
		return err
	}
	d.cfg.Metrics.routes(d.table.Len())
	return nil
}

// RequestTables sends a whole-table request to every neighbor.
func (d *Daemon) RequestTables() error {
	b, err := NewWholeTableRequest().Marshal()
	if err != nil {
		return err
	}
	for _, neighbor := range d.cfg.Neighbors {
		if err := d.send(neighbor, REQUEST, b); err != nil {
			return err
		}
	}
	return nil
}

func (d *Daemon) phaseUpdateTimer() error {
	now := d.cfg.Clock.Now()
	if !d.update.Expired(now) {
		return nil
	}

	entries := d.table.Snapshot()
	d.table.ClearChanged()
	if err := d.broadcast(entries); err != nil {
		return err
	}
	d.cfg.Metrics.update("periodic")

	next := d.update.Reset(now)
	if d.cfg.Verbose {
		d.log.Info("rip.update: sent periodic update", "routes", len(entries), "next_update", next)
		d.dumpTable(entries)
	} else {
		d.log.Debug("rip.update: sent periodic update", "routes", len(entries), "next_update", next)
	}
	return nil
}

func (d *Daemon) dumpTable(entries []RoutingTableEntry) {
	if d.cfg.OnUpdate != nil {
		d.cfg.OnUpdate(entries)
	}
}

// nextWait bounds the receive wait by the next timer deadline and PollInterval.
func (d *Daemon) nextWait(now time.Time) time.Duration {
	wait := d.cfg.PollInterval
	if r := d.update.Remaining(now); r < wait {
		wait = r
	}
	if deadline, ok := d.table.NextDeadline(); ok {
		if r := deadline.Sub(now); r < wait {
			wait = r
		}
	}
	if wait < minWait {
		wait = minWait
	}
	return wait
}

func (d *Daemon) phaseReceive() (int, Peer, bool, error) {
	wait := d.nextWait(d.cfg.Clock.Now())
	n, src, err := d.cfg.Transport.Receive(d.buf, wait)
	if err == nil {
		return n, src, true, nil
	}
	if isTimeout(err) {
		return 0, Peer{}, false, nil
	}
	if isFatalNetErr(err) {
		return 0, Peer{}, false, fmt.Errorf("rip.recv: %w", err)
	}
	d.cfg.Metrics.readError()
	d.log.Debug("rip.recv: dropping datagram", "error", err)
	return 0, Peer{}, false, nil
}

func (d *Daemon) phaseDispatch(b []byte, src Peer) error {
	if _, own := d.local[src.Addr]; own {
		d.log.Debug("rip.recv: ignoring own datagram", "src", src)
		return nil
	}

	msg, err := UnmarshalRIPMessage(b)
	if err != nil {
		d.cfg.Metrics.packetInvalid(malformedReason(err))
		d.log.Warn("rip.recv: dropping malformed datagram", "src", src, "len", len(b), "error", err)
		return nil
	}
	d.cfg.Metrics.packetRX(msg.Command)

	if d.cfg.Verbose {
		d.log.Info("rip.recv: received packet", "src", src, "command", msg.Command, "version", msg.Version, "entries", len(msg.Entries))
		for _, e := range msg.Entries {
			d.log.Info("rip.recv: entry", "dest", e.Destination(), "next_hop", AddrNumToIP(e.NextHop), "metric", e.Metric, "tag", e.RouteTag)
		}
	}

	switch msg.Command {
	case RESPONSE:
		triggered := d.handler.HandleResponse(msg, src.Addr, d.cfg.Clock.Now())
		if d.cfg.Verbose {
			d.dumpTable(d.table.Snapshot())
		}
		if triggered {
			return d.sendTriggeredUpdate()
		}
	case REQUEST:
		entries := d.handler.HandleRequest(msg)
		if msg.IsWholeTableRequest() {
			d.log.Debug("rip.recv: request for whole table", "src", src, "routes", len(entries))
		} else {
			d.log.Debug("rip.recv: request for specific entries", "src", src, "routes", len(entries))
		}
		return d.sendEntries(src, entries)
	}
	return nil
}

func (d *Daemon) phaseSweep() error {
	report := d.table.CollectGarbage(d.cfg.Clock.Now())
	if !report.Changed() {
		return nil
	}
	d.cfg.Metrics.routeChange(ChangeInvalidated, len(report.Invalidated))
	d.cfg.Metrics.routeChange(ChangeRemoved, len(report.Removed))
	for _, dest := range report.Invalidated {
		d.log.Info("rip.gc: route timed out", "dest", dest)
	}
	for _, dest := range report.Removed {
		d.log.Info("rip.gc: route garbage collected", "dest", dest)
	}
	return d.sendTriggeredUpdate()
}

// sendTriggeredUpdate advertises only the entries changed since the last update.
func (d *Daemon) sendTriggeredUpdate() error {
	entries := d.table.ChangedEntries()
	d.table.ClearChanged()
	if len(entries) == 0 {
		return nil
	}
	d.log.Debug("rip.update: sending triggered update", "routes", len(entries))
	d.cfg.Metrics.update("triggered")
	return d.broadcast(entries)
}

func (d *Daemon) broadcast(entries []RoutingTableEntry) error {
	for _, neighbor := range d.cfg.Neighbors {
		if err := d.sendEntries(neighbor, entries); err != nil {
			return err
		}
	}
	return nil
}

// sendEntries sends entries as responses to dst, one datagram per MAX_ENTRIES.
func (d *Daemon) sendEntries(dst Peer, entries []RoutingTableEntry) error {
	ripEntries := make([]RIPEntry, 0, len(entries))
	for i := range entries {
		ripEntries = append(ripEntries, entries[i].ToRIPEntry())
	}

	for _, chunk := range ChunkEntries(ripEntries) {
		b, err := NewResponse(chunk).Marshal()
		if err != nil {
			return err
		}
		if err := d.send(dst, RESPONSE, b); err != nil {
			return err
		}
	}
	return nil
}

func (d *Daemon) send(dst Peer, cmd Command, b []byte) error {
	err := d.cfg.Transport.Send(dst, b)
	if err == nil {
		d.cfg.Metrics.packetTX(cmd)
		return nil
	}
	if isFatalNetErr(err) {
		return fmt.Errorf("rip.send: %w", err)
	}
	d.cfg.Metrics.writeError()
	d.log.Warn("rip.send: failed to send", "dst", dst, "command", cmd, "error", err)
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isFatalNetErr(err error) bool {
	// Closed socket.
	if errors.Is(err, net.ErrClosed) {
		return true
	}

	// A previous datagram bounced; the socket itself is fine.
	if errors.Is(err, syscall.ECONNREFUSED) {
		return false
	}

	var se syscall.Errno
	if errors.As(err, &se) {
		switch se {
		case syscall.EBADF, syscall.ENETDOWN, syscall.ENODEV, syscall.ENXIO:
			return true
		}
	}

	// Some platforms wrap the above in *net.OpError; treat non-temporary, non-timeout as fatal.
	var oe *net.OpError
	if errors.As(err, &oe) && !oe.Timeout() && !oe.Temporary() {
		return true
	}
	return false
}
