package client

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultInitialDelay = 100 * time.Millisecond
	defaultMaxDelay     = 5 * time.Second
	defaultMultiplier   = 2.0
	defaultDialTimeout  = 10 * time.Second
	defaultCloseTimeout = 5 * time.Second
)

// ErrInvalidConfig wraps every Config validation failure.
var ErrInvalidConfig = errors.New("invalid client config")

// Config describes the server to connect to and the reconnection policy.
// The client copies it when it starts and never changes it afterwards.
type Config struct {
	// URL of the WebSocket endpoint (ws, wss, http or https).
	URL string
	// Header is sent with every handshake.
	Header http.Header

	// InitialDelay is the first backoff delay.
	InitialDelay time.Duration
	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
	// Multiplier grows the delay after every failed attempt.
	Multiplier float64
	// MaxAttempts bounds consecutive reconnect attempts. Zero means unbounded.
	MaxAttempts int
	// Jitter randomizes each delay by up to this fraction (0 to 1).
	Jitter float64

	// DialTimeout bounds a single handshake. Zero means no bound.
	DialTimeout time.Duration
	// CloseTimeout bounds the close handshake.
	CloseTimeout time.Duration
}

// DefaultConfig returns a config for url with the library's default policy:
// 100ms doubling up to 5s, unbounded attempts, no jitter.
func DefaultConfig(url string) Config {
	return Config{
		URL:          url,
		InitialDelay: defaultInitialDelay,
		MaxDelay:     defaultMaxDelay,
		Multiplier:   defaultMultiplier,
		DialTimeout:  defaultDialTimeout,
		CloseTimeout: defaultCloseTimeout,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("%w: url: %v", ErrInvalidConfig, err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("%w: unsupported url scheme %q", ErrInvalidConfig, u.Scheme)
	}
	if c.InitialDelay <= 0 {
		return fmt.Errorf("%w: initial delay must be positive", ErrInvalidConfig)
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("%w: max delay %v is below initial delay %v", ErrInvalidConfig, c.MaxDelay, c.InitialDelay)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("%w: multiplier must be at least 1", ErrInvalidConfig)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("%w: max attempts must not be negative", ErrInvalidConfig)
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("%w: jitter must be between 0 and 1", ErrInvalidConfig)
	}
	if c.DialTimeout < 0 || c.CloseTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}
	return nil
}

// NewBackOff returns a fresh backoff schedule for the config. NextBackOff
// returns backoff.Stop once MaxAttempts delays have been handed out.
func (c Config) NewBackOff() backoff.BackOff {
	eb := &backoff.ExponentialBackOff{
		InitialInterval:     c.InitialDelay,
		RandomizationFactor: c.Jitter,
		Multiplier:          c.Multiplier,
		MaxInterval:         c.MaxDelay,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	eb.Reset()
	if c.MaxAttempts > 0 {
		return backoff.WithMaxRetries(eb, uint64(c.MaxAttempts))
	}
	return eb
}

// Schedule returns up to n delays from a fresh schedule. It is shorter when
// MaxAttempts ends the schedule first.
func (c Config) Schedule(n int) []time.Duration {
	b := c.NewBackOff()
	out := make([]time.Duration, 0, n)
	for range n {
		d := b.NextBackOff()
		if d == backoff.Stop {
			break
		}
		out = append(out, d)
	}
	return out
}
