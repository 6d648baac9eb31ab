// Package relay bridges NATS subjects and server calls so that several server
// instances can share broadcasts.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Subscriber is the part of *nats.Conn used for inbound subjects.
type Subscriber interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Publisher is the part of *nats.Conn used for outbound subjects.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// Caller receives decoded payloads. *server.Server satisfies it.
type Caller[P any] interface {
	Call(params P) error
}

// Options contains configuration for connecting to NATS.
type Options struct {
	// URL is the NATS server URL.
	URL string

	// Name identifies this connection to the NATS server.
	Name string

	// ConnectionOptions are additional options for the NATS connection.
	ConnectionOptions []nats.Option
}

// Connect opens a NATS connection. An empty URL uses nats.DefaultURL.
func Connect(opts Options) (*nats.Conn, error) {
	if opts.URL == "" {
		opts.URL = nats.DefaultURL
	}
	natsOpts := opts.ConnectionOptions
	if opts.Name != "" {
		natsOpts = append([]nats.Option{nats.Name(opts.Name)}, natsOpts...)
	}
	conn, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// Inbound subscribes to subject and forwards every decoded message to
// target.Call. Messages that fail to decode are logged and dropped. When the
// target has stopped the delivery is logged and dropped as well; the caller
// owns the returned subscription and unsubscribes it on shutdown.
func Inbound[P any](sub Subscriber, subject string, target Caller[P], decode func([]byte) (P, error), logger *slog.Logger) (*nats.Subscription, error) {
	if sub == nil || target == nil || decode == nil {
		return nil, errors.New("relay: subscriber, target and decode are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s, err := sub.Subscribe(subject, func(msg *nats.Msg) {
		params, err := decode(msg.Data)
		if err != nil {
			logger.Warn("Relay: dropping undecodable message", "subject", msg.Subject, "error", err)
			return
		}
		if err := target.Call(params); err != nil {
			logger.Debug("Relay: target refused message", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %q: %w", subject, err)
	}
	logger.Info("Relay: subscribed", "subject", subject)
	return s, nil
}

// Outbound returns a function publishing payloads to subject.
func Outbound(pub Publisher, subject string) func([]byte) error {
	return func(data []byte) error {
		if err := pub.Publish(subject, data); err != nil {
			return fmt.Errorf("failed to publish to %q: %w", subject, err)
		}
		return nil
	}
}

// JSON returns a decoder for JSON encoded payloads of type P.
func JSON[P any]() func([]byte) (P, error) {
	return func(data []byte) (P, error) {
		var p P
		if err := json.Unmarshal(data, &p); err != nil {
			return p, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		return p, nil
	}
}

// PublishJSON marshals v and hands it to publish.
func PublishJSON(publish func([]byte) error, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return publish(data)
}
