package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lightforgemedia/go-ezsockets/pkg/events"
	"github.com/lightforgemedia/go-ezsockets/pkg/mailbox"
)

// FaultHandler is called with every fault the server loop observes. Returning
// nil keeps the loop running; a non-nil error stops it and is reported by Wait.
type FaultHandler func(err error) error

type config struct {
	ctx          context.Context
	logger       *slog.Logger
	faultHandler FaultHandler
	events       *events.Bus
	mailbox      []mailbox.Option
	keepOnStop   bool
}

func defaultConfig() config {
	return config{
		ctx:    context.Background(),
		logger: slog.Default(),
	}
}

// Option configures a Server.
type Option func(*config)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContext sets the context passed to extension callbacks. Cancelling it
// stops the server.
func WithContext(ctx context.Context) Option {
	return func(c *config) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}

// WithFaultHandler replaces the default handler, which logs and continues.
func WithFaultHandler(h FaultHandler) Option {
	return func(c *config) {
		c.faultHandler = h
	}
}

// WithEvents publishes connected, disconnected and fault events on bus.
func WithEvents(bus *events.Bus) Option {
	return func(c *config) {
		c.events = bus
	}
}

// WithMailbox configures the server's inbox.
func WithMailbox(opts ...mailbox.Option) Option {
	return func(c *config) {
		c.mailbox = append(c.mailbox, opts...)
	}
}

// WithKeepSessionsOnStop leaves live sessions running when the server stops.
// By default they are closed with a going-away status.
func WithKeepSessionsOnStop() Option {
	return func(c *config) {
		c.keepOnStop = true
	}
}

// Options contains configuration values for creating a Server with
// CreateWithOptions. All fields have usable zero values except where noted.
type Options struct {
	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger

	// FaultHandler decides whether the loop survives a fault. Defaults to log and continue.
	FaultHandler FaultHandler

	// Events receives lifecycle events. Nil disables publishing.
	Events *events.Bus

	// MailboxCapacity bounds the inbox. Zero means unbounded; must not be negative.
	MailboxCapacity int

	// MailboxPolicy applies when a bounded inbox is full.
	MailboxPolicy mailbox.OverflowPolicy
}

// DefaultOptions returns an Options struct populated with library defaults.
func DefaultOptions() Options {
	return Options{
		Logger: slog.Default(),
	}
}

func validateOptions(opts Options) error {
	if opts.MailboxCapacity < 0 {
		return errors.New("mailbox capacity must not be negative")
	}
	if opts.MailboxPolicy > mailbox.Reject {
		return errors.New("unknown mailbox overflow policy")
	}
	return nil
}

func (o Options) toOptions() []Option {
	fns := []Option{
		WithLogger(o.Logger),
		WithFaultHandler(o.FaultHandler),
		WithEvents(o.Events),
	}
	if o.MailboxCapacity > 0 {
		fns = append(fns, WithMailbox(mailbox.WithCapacity(o.MailboxCapacity, o.MailboxPolicy)))
	}
	return fns
}
