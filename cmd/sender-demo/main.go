// Command sender-demo is the "application" side of the client: the
// operational glue spec section 1 places out of scope for the core
// (a file/stdin data source, CLI flags, signal handling). It owns no
// protocol logic of its own — every payload crosses into the core
// through a single sender.Send call.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"telemetry-rudp-go/pkg/logger"
	"telemetry-rudp-go/source/config"
	"telemetry-rudp-go/source/sender"
	"telemetry-rudp-go/source/transport"
	"telemetry-rudp-go/source/wire"
)

const version = "0.1.0"

var log = logger.For("sender-demo")

var (
	peerAddr string
	srcFile  string
)

func main() {
	root := &cobra.Command{
		Use:   "sender-demo",
		Short: "Drives the reliable/unreliable channels from a file or stdin",
		RunE:  run,
	}
	root.Flags().StringVar(&peerAddr, "peer", "127.0.0.1:9000", "server address (host:port)")
	root.Flags().StringVar(&srcFile, "file", "", "payload source file, one line per payload (default: stdin)")

	if err := root.Execute(); err != nil {
		logger.Fatal("sender-demo: %v", err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger.Banner("telemetry-rudp sender-demo", version)

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("sender-demo: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	socket, err := transport.Dial(peerAddr)
	if err != nil {
		return fmt.Errorf("sender-demo: dial %s: %w", peerAddr, err)
	}

	s, err := sender.New(socket, cfg)
	if err != nil {
		return fmt.Errorf("sender-demo: %w", err)
	}

	src := os.Stdin
	if srcFile != "" {
		f, err := os.Open(srcFile)
		if err != nil {
			return fmt.Errorf("sender-demo: open %s: %w", srcFile, err)
		}
		defer f.Close()
		src = f
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- pump(src, s) }()

	select {
	case err := <-done:
		if err != nil {
			log.WithError(err).Warn("payload source ended with an error")
		}
	case sig := <-sigCh:
		log.WithField("signal", sig).Info("received shutdown signal")
	}

	closeCtx, cancel := context.WithTimeout(ctx, 3*timeoutOrDefault(cfg))
	defer cancel()
	if err := s.Close(closeCtx); err != nil {
		log.WithError(err).Warn("session summary not fully acknowledged")
	}
	return nil
}

func timeoutOrDefault(cfg config.Config) time.Duration {
	if cfg.Timeout <= 0 {
		return 50 * time.Millisecond
	}
	return cfg.Timeout
}

// pump reads one payload per line and alternates it across the
// reliable and unreliable channels, exercising both sender paths.
func pump(f *os.File, s *sender.Sender) error {
	scanner := bufio.NewScanner(f)
	channel := wire.ChannelReliable
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := s.Send([]byte(line), channel); err != nil {
			return err
		}
		log.WithField("channel", channel).WithField("bytes", len(line)).Debug("sent payload")
		if channel == wire.ChannelReliable {
			channel = wire.ChannelUnreliable
		} else {
			channel = wire.ChannelReliable
		}
	}
	return scanner.Err()
}
