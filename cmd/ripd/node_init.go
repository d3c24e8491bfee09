package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"ripd/pkg/rip"
)

// InterfaceConfig is one neighbor line of a .lnx file.
type InterfaceConfig struct {
	NeighborAddr string
	NeighborPort int
	HostVIP      uint32
	NeighborVIP  uint32
}

// LNX is a parsed .lnx topology file.
type LNX struct {
	BindAddr   string
	BindPort   int
	Interfaces []InterfaceConfig
	Networks   []rip.LocalRoute
}

/*
	parse a .lnx file:

		<host_addr> <host_port>
		<neighbor_addr> <neighbor_port> <host_interface_addr> <neighbor_interface_addr>
		network <cidr> [metric]

	blank lines and lines starting with # are skipped
*/
func ParseLNX(r io.Reader) (*LNX, error) {
	lnx := &LNX{}
	scanner := bufio.NewScanner(r)

	l := 0
	seenHost := false
	for scanner.Scan() {
		l++
		line := strings.Fields(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line[0], "#") {
			continue
		}

		switch {
		case !seenHost:
			if len(line) != 2 {
				return nil, fmt.Errorf("line %d: first line must be <host_addr> <host_port>", l)
			}
			port, err := parsePort(line[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", l, err)
			}
			lnx.BindAddr, lnx.BindPort = line[0], port
			seenHost = true

		case line[0] == "network":
			route, err := parseNetwork(line[1:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", l, err)
			}
			lnx.Networks = append(lnx.Networks, route)

		default:
			iface, err := parseInterface(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", l, err)
			}
			lnx.Interfaces = append(lnx.Interfaces, iface)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !seenHost {
		return nil, fmt.Errorf("empty .lnx file")
	}
	return lnx, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}

func parseVIP(s string) (uint32, error) {
	addr, ok := rip.IPToAddrNum(net.ParseIP(s))
	if !ok {
		return 0, fmt.Errorf("invalid interface address %q", s)
	}
	return addr, nil
}

func parseInterface(line []string) (InterfaceConfig, error) {
	if len(line) != 4 {
		return InterfaceConfig{}, fmt.Errorf("line must be <neighbor_addr> <neighbor_port> <host_interface_addr> <neighbor_interface_addr>")
	}
	port, err := parsePort(line[1])
	if err != nil {
		return InterfaceConfig{}, err
	}
	hostVIP, err := parseVIP(line[2])
	if err != nil {
		return InterfaceConfig{}, err
	}
	neighborVIP, err := parseVIP(line[3])
	if err != nil {
		return InterfaceConfig{}, err
	}
	return InterfaceConfig{NeighborAddr: line[0], NeighborPort: port, HostVIP: hostVIP, NeighborVIP: neighborVIP}, nil
}

func parseNetwork(args []string) (rip.LocalRoute, error) {
	if len(args) < 1 || len(args) > 2 {
		return rip.LocalRoute{}, fmt.Errorf("line must be network <cidr> [metric]")
	}
	dest, err := rip.ParseDestination(args[0])
	if err != nil {
		return rip.LocalRoute{}, err
	}
	metric := uint64(1)
	if len(args) == 2 {
		metric, err = strconv.ParseUint(args[1], 10, 32)
		if err != nil || metric < 1 || metric >= rip.INFINITY {
			return rip.LocalRoute{}, fmt.Errorf("invalid metric %q", args[1])
		}
	}
	return rip.LocalRoute{Destination: dest, Metric: uint32(metric)}, nil
}

/*
	local routes for a node: every interface address as a host route, then the
	extra networks
*/
func (lnx *LNX) LocalRoutes() []rip.LocalRoute {
	routes := make([]rip.LocalRoute, 0, len(lnx.Interfaces)+len(lnx.Networks))
	seen := make(map[rip.Destination]bool)
	for _, iface := range lnx.Interfaces {
		dest := rip.Destination{Address: iface.HostVIP, Mask: 0xffffffff}
		if seen[dest] {
			continue
		}
		seen[dest] = true
		routes = append(routes, rip.LocalRoute{Destination: dest, Metric: 1})
	}
	for _, route := range lnx.Networks {
		if seen[route.Destination] {
			continue
		}
		seen[route.Destination] = true
		routes = append(routes, route)
	}
	return routes
}

// EnvConfig holds the daemon settings read from the environment. Unset values
// leave the daemon defaults in place.
type EnvConfig struct {
	UpdateInterval time.Duration  `env:"RIPD_UPDATE_INTERVAL"`
	UpdateJitter   *time.Duration `env:"RIPD_UPDATE_JITTER"`
	RouteTimeout   time.Duration  `env:"RIPD_ROUTE_TIMEOUT"`
	GarbageTimeout time.Duration  `env:"RIPD_GARBAGE_TIMEOUT"`
	PollInterval   time.Duration  `env:"RIPD_POLL_INTERVAL"`
	TableSize      int            `env:"RIPD_TABLE_SIZE"`
	MetricsAddr    string         `env:"RIPD_METRICS_ADDR"`
}

// loadEnvConfig reads EnvConfig from environ, or from the process environment
// when environ is nil.
func loadEnvConfig(environ map[string]string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return EnvConfig{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}
