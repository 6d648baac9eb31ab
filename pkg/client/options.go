package client

import (
	"context"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/lightforgemedia/go-ezsockets/pkg/events"
	"github.com/lightforgemedia/go-ezsockets/pkg/mailbox"
	"github.com/lightforgemedia/go-ezsockets/pkg/socket"
)

// Dialer opens the transport for one connection attempt.
type Dialer func(ctx context.Context, cfg Config) (*socket.Socket, error)

type options struct {
	logger  *slog.Logger
	dialer  Dialer
	events  *events.Bus
	mailbox []mailbox.Option
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDialer replaces the coder/websocket dialer.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithEvents publishes every state transition on bus.
func WithEvents(bus *events.Bus) Option {
	return func(o *options) {
		o.events = bus
	}
}

// WithMailbox configures the client's inbox.
func WithMailbox(opts ...mailbox.Option) Option {
	return func(o *options) {
		o.mailbox = append(o.mailbox, opts...)
	}
}

// dialCoder is the default Dialer.
func dialCoder(logger *slog.Logger) Dialer {
	return func(ctx context.Context, cfg Config) (*socket.Socket, error) {
		return socket.Dial(ctx, cfg.URL,
			&websocket.DialOptions{HTTPHeader: cfg.Header},
			socket.WithLogger(logger),
			socket.WithCloseTimeout(cfg.CloseTimeout))
	}
}
