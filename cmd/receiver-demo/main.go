// Command receiver-demo is the server-side operational glue spec
// section 1 places out of scope for the core: binding a socket,
// wiring a delivery callback that logs, optionally serving Prometheus
// metrics, and handling shutdown signals. No protocol logic lives
// here — every arrival crosses into the core through receiver.Server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"telemetry-rudp-go/pkg/logger"
	"telemetry-rudp-go/source/config"
	"telemetry-rudp-go/source/metrics"
	"telemetry-rudp-go/source/receiver"
	"telemetry-rudp-go/source/transport"
	"telemetry-rudp-go/source/wire"
)

const version = "0.1.0"

var log = logger.For("receiver-demo")

var (
	listenAddr  string
	metricsAddr string
	statsEvery  time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "receiver-demo",
		Short: "Runs the server-side reliable/unreliable channel receiver",
		RunE:  run,
	}
	root.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:9000", "address to bind (host:port)")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9100)")
	root.Flags().DurationVar(&statsEvery, "stats-interval", 5*time.Second, "how often to print the running metrics summary")

	if err := root.Execute(); err != nil {
		logger.Fatal("receiver-demo: %v", err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger.Banner("telemetry-rudp receiver-demo", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("receiver-demo: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	socket, err := transport.Listen(listenAddr)
	if err != nil {
		return fmt.Errorf("receiver-demo: listen %s: %w", listenAddr, err)
	}
	defer socket.Close()

	recorder := metrics.NewRecorder()

	onDeliver := func(pkt wire.Packet, latencyMs float64) {
		log.WithField("channel", pkt.Channel).
			WithField("seq", pkt.SeqNum).
			WithField("latency_ms", latencyMs).
			Debug("delivered payload")
	}

	srv, err := receiver.New(socket, cfg, recorder, onDeliver)
	if err != nil {
		return fmt.Errorf("receiver-demo: %w", err)
	}

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewCollector(recorder))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		httpSrv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			log.WithField("addr", metricsAddr).Info("serving prometheus metrics")
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Warn("metrics server stopped")
			}
		}()
		defer httpSrv.Close()
	}

	logger.Section("running")
	ticker := time.NewTicker(statsEvery)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			recorder.WriteSummary(os.Stdout)
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig).Info("received shutdown signal")
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil {
			log.WithError(err).Warn("receive loop stopped")
		}
	}

	logger.Section("final summary")
	recorder.WriteSummary(os.Stdout)
	return nil
}
