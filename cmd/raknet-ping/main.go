// Command raknet-ping connects to a RakNet server, completes the
// handshake, and reports round-trip time, wiring the config/metrics/
// client packages together behind a cobra CLI (grounded on
// CG-8663-shadowmesh's go.mod, which lists cobra/pflag without any
// package in that repo ever importing them — this command gives both
// an actual home).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"raknetclient/client"
	"raknetclient/config"
	"raknetclient/metrics"
	"raknetclient/pkg/logger"
)

var (
	configPath string
	targetAddr string
	pingCount  int
	interval   time.Duration
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		logger.Fatal("%v", err)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "raknet-ping",
		Short: "Connect to a RakNet server and measure round-trip time",
		RunE:  run,
	}
	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to a raknet-ping YAML config file")
	flags.StringVar(&targetAddr, "target", "", "target host:port, overrides the config file")
	flags.IntVar(&pingCount, "count", 4, "number of pings to send once connected")
	flags.DurationVar(&interval, "interval", time.Second, "delay between pings")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger.Banner("raknet-ping", "1.0.0")
	logger.SetJSON(cfg.Logging.JSON)
	switch cfg.Logging.Level {
	case "debug":
		logger.SetLevel(logger.LevelDebug)
	case "warn":
		logger.SetLevel(logger.LevelWarn)
	case "error":
		logger.SetLevel(logger.LevelError)
	default:
		logger.SetLevel(logger.LevelInfo)
	}

	collector := metrics.New()
	registry := prometheus.NewRegistry()
	if err := collector.Register(registry); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr, registry)
	}

	log := logger.New()
	peer, err := client.Dial(cfg.Target.Address,
		client.WithLogger(log),
		client.WithRecorder(collector),
		client.WithInitialMTU(uint16(cfg.Transport.InitialMTU)),
		client.WithOrderingQueueLimit(cfg.Transport.OrderingQueueLimit),
		client.WithFragmentsPerSplitLimit(cfg.Transport.FragmentsPerSplitMax),
	)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer peer.Close()

	logger.Section(fmt.Sprintf("Connecting to %s", cfg.Target.Address))
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Target.Timeout)
	defer cancel()
	if err := peer.Connect(ctx); err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}
	logger.InfoCyan("handshake established")

	go drainEvents(peer)

	for i := 0; i < pingCount; i++ {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), cfg.Target.Timeout)
		rtt, err := peer.Ping(pingCtx)
		pingCancel()
		if err != nil {
			logger.Warn("ping %d failed: %v", i+1, err)
			continue
		}
		logger.Info("ping %d: rtt=%s", i+1, rtt)
		time.Sleep(interval)
	}
	return nil
}

func drainEvents(peer *client.Peer) {
	for ev := range peer.Events() {
		switch ev.Kind {
		case client.EventDisconnect:
			logger.Warn("server disconnected")
		case client.EventEncapsulated:
			logger.Debug("encapsulated payload id=0x%02x len=%d", ev.Payload[0], len(ev.Payload))
		}
	}
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped: %v", err)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		if targetAddr == "" {
			return nil, fmt.Errorf("either --config or --target must be set")
		}
		cfg := &config.Config{Target: config.TargetConfig{Address: targetAddr}}
		cfg.ApplyDefaults()
		return cfg, nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if targetAddr != "" {
		cfg.Target.Address = targetAddr
	}
	return cfg, nil
}

func init() {
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "--help")
	}
}
