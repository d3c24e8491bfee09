package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"ripd/pkg/rip"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "verbose mode - log every received message and print the table after each update")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [--verbose] <path to .lnx>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	log := newLogger(*verboseFlag)

	if flag.NArg() != 1 {
		flag.Usage()
		return errors.New("missing .lnx file")
	}

	// Load .env file if it exists
	_ = godotenv.Load()
	env, err := loadEnvConfig(nil)
	if err != nil {
		log.Error("invalid environment", "error", err)
		return err
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Error("failed to open .lnx file", "error", err)
		return err
	}
	lnx, err := ParseLNX(f)
	_ = f.Close()
	if err != nil {
		log.Error("failed to parse .lnx file", "path", flag.Arg(0), "error", err)
		return err
	}

	metrics := rip.NewMetrics()
	if env.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.Register(reg)
		buildInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ripd_build_info",
			Help: "Build information of the daemon.",
		}, []string{"version", "commit", "date"})
		reg.MustRegister(buildInfo)
		buildInfo.WithLabelValues(version, commit, date).Set(1)

		go func() {
			listener, err := net.Listen("tcp", env.MetricsAddr)
			if err != nil {
				log.Error("Failed to start prometheus metrics server listener", "error", err)
				os.Exit(1)
			}
			log.Info("Prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.Serve(listener, mux); err != nil {
				log.Error("Failed to start prometheus metrics server", "error", err)
				os.Exit(1)
			}
		}()
	}

	node, err := InitNodeFromLNX(log, lnx, env, *verboseFlag, metrics, os.Stdout)
	if err != nil {
		log.Error("failed to initialize node", "error", err)
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return node.Run(ctx)
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format("2006-01-02T15:04:05.000Z"))
			}
			return a
		},
	}))
}
