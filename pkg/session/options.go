package session

import (
	"context"
	"log/slog"

	"github.com/lightforgemedia/go-ezsockets/pkg/mailbox"
)

// FaultPolicy decides what a session does when its extension returns an error.
type FaultPolicy uint8

const (
	// FaultClose closes the connection with an internal-error status and
	// terminates the session.
	FaultClose FaultPolicy = iota
	// FaultContinue logs the error and keeps the session running.
	FaultContinue
)

type config struct {
	ctx     context.Context
	logger  *slog.Logger
	policy  FaultPolicy
	mailbox []mailbox.Option
}

func defaultConfig() config {
	return config{
		ctx:    context.Background(),
		logger: slog.Default(),
		policy: FaultClose,
	}
}

// Option configures a session.
type Option func(*config)

// WithLogger sets the logger for the session.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContext sets the context passed to extension callbacks. Cancelling it
// closes the session with a going-away status.
func WithContext(ctx context.Context) Option {
	return func(c *config) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}

// WithFaultPolicy sets how extension errors are handled.
func WithFaultPolicy(p FaultPolicy) Option {
	return func(c *config) {
		c.policy = p
	}
}

// WithMailbox configures the session's inbox, e.g. to bound it.
func WithMailbox(opts ...mailbox.Option) Option {
	return func(c *config) {
		c.mailbox = append(c.mailbox, opts...)
	}
}
