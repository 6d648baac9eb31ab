// pkg/client/client.go
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/lightforgemedia/go-ezsockets/pkg/mailbox"
	"github.com/lightforgemedia/go-ezsockets/pkg/socket"
)

var (
	// ErrClosed is returned by handle operations once the client has stopped.
	ErrClosed = errors.New("client closed")
	// ErrMaxAttempts is reported by Wait when the reconnect attempts ran out.
	ErrMaxAttempts = errors.New("reconnect attempts exhausted")
)

// State is the connection state of a client.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateBackoff
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Ext is the client-side application logic. Its methods run on the client's
// goroutine, one at a time.
type Ext[P any] interface {
	// Text handles an inbound text frame. A non-nil message is sent back.
	Text(ctx context.Context, text string) (*socket.Message, error)
	// Binary handles an inbound binary frame. A non-nil message is sent back.
	Binary(ctx context.Context, data []byte) (*socket.Message, error)
	// Call handles an application-defined request.
	Call(ctx context.Context, params P) error
	// Connecting is called before every connection attempt. attempt is 0 only
	// for the very first attempt; after a connection drops the next attempt is 1.
	Connecting(ctx context.Context, attempt int) error
}

// Client is the handle to a running client actor. It is safe for concurrent use.
type Client[P any] struct {
	id    string
	inbox *mailbox.Mailbox[event]
	state atomic.Int32
	done  chan struct{}
	err   error
}

// Connect validates cfg and starts a client that keeps one connection to
// cfg.URL alive. The first dial happens on the client's goroutine, so Connect
// does not wait for it. Cancelling ctx closes the client.
func Connect[P any, E Ext[P]](ctx context.Context, cfg Config, create func(*Client[P]) E, opts ...Option) (*Client[P], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dialer == nil {
		o.dialer = dialCoder(o.logger)
	}

	c := &Client[P]{
		id:    uuid.NewString(),
		inbox: mailbox.New[event](o.mailbox...),
		done:  make(chan struct{}),
	}
	ext := create(c)

	cfg.Header = cfg.Header.Clone()
	a := &actor[P]{
		c:      c,
		ext:    ext,
		cfg:    cfg,
		dial:   o.dialer,
		events: o.events,
		logger: o.logger.With("client", c.id, "url", cfg.URL),
	}
	go a.run(ctx)
	return c, nil
}

// ID returns the client's random instance id.
func (c *Client[P]) ID() string {
	return c.id
}

// State returns the current connection state.
func (c *Client[P]) State() State {
	return State(c.state.Load())
}

// Text queues a text frame. While disconnected it is held until the next
// successful connection. A frame queued while the client is stopping may be
// discarded even though Text returned nil; Done reports when it has stopped.
func (c *Client[P]) Text(text string) error {
	return c.push(sendRequest{msg: socket.NewText(text)})
}

// Binary queues a binary frame.
func (c *Client[P]) Binary(data []byte) error {
	return c.push(sendRequest{msg: socket.NewBinary(data)})
}

// Send queues any message. A Close message closes the client with its frame.
func (c *Client[P]) Send(msg socket.Message) error {
	if msg.Type == socket.Close {
		return c.closeWith(msg.Close)
	}
	return c.push(sendRequest{msg: msg})
}

// Call submits application-defined parameters to the extension.
func (c *Client[P]) Call(params P) error {
	return c.push(callRequest[P]{params: params})
}

// Close stops the client from any state, cancelling a pending dial or backoff.
func (c *Client[P]) Close() error {
	return c.closeWith(nil)
}

// Done is closed once the client has stopped.
func (c *Client[P]) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the client stops. It returns nil after Close, otherwise
// the fault that stopped it (ErrMaxAttempts when reconnecting gave up).
func (c *Client[P]) Wait() error {
	<-c.done
	return c.err
}

func (c *Client[P]) closeWith(frame *socket.CloseFrame) error {
	err := c.inbox.ForcePush(closeRequest{frame: frame})
	if errors.Is(err, mailbox.ErrClosed) {
		return ErrClosed
	}
	return err
}

func (c *Client[P]) push(ev event) error {
	err := c.inbox.Push(ev)
	if errors.Is(err, mailbox.ErrClosed) {
		return ErrClosed
	}
	return err
}
