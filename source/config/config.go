// Package config loads the recognised options from spec section 6 from
// the process environment, with the spec's defaults baked in as
// struct-tag defaults for go-envconfig.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds the options both peers agree on. Peer addressing is
// supplied separately by the cmd/ binaries (CLI flags), since it is
// per-invocation rather than a shared protocol constant.
type Config struct {
	// WindowSize is SR_WINDOW_SIZE: the reliable window at sender and
	// receiver. Must satisfy 1 <= WindowSize <= SeqSpace/2.
	WindowSize int `env:"SR_WINDOW_SIZE,default=16"`

	// Timeout is the retransmit timer period (sender) and per-ACK wait
	// granularity during close.
	Timeout time.Duration `env:"TIMEOUT,default=50ms"`

	// RetransmissionStopThreshold bounds total time a reliable packet
	// may be retried before it is dropped, and doubles as the
	// receiver's gap-skip timeout (spec section 9).
	RetransmissionStopThreshold time.Duration `env:"RETRANSMISSION_STOP_THRESHOLD,default=200ms"`

	// LogLevel is one of logrus's level names.
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// MaxResends returns the sender's resend cap,
// floor(RetransmissionStopThreshold / Timeout), per spec section 4.2.
func (c Config) MaxResends() int {
	if c.Timeout <= 0 {
		return 0
	}
	return int(c.RetransmissionStopThreshold / c.Timeout)
}

// Validate enforces the window-size precondition from spec section 6/9:
// 1 <= W <= M/2, where M = wire.SeqSpace = 65536.
func (c Config) Validate() error {
	const maxWindow = 1 << 15
	if c.WindowSize < 1 || c.WindowSize > maxWindow {
		return fmt.Errorf("config: SR_WINDOW_SIZE=%d must be in [1, %d]", c.WindowSize, maxWindow)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config: TIMEOUT must be positive")
	}
	if c.RetransmissionStopThreshold <= 0 {
		return fmt.Errorf("config: RETRANSMISSION_STOP_THRESHOLD must be positive")
	}
	return nil
}

// Load populates a Config from the environment, applying spec defaults
// for any option left unset.
func Load(ctx context.Context) (Config, error) {
	var c Config
	if err := envconfig.Process(ctx, &c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
