// pkg/socket/socket.go
package socket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrClosed is returned when writing to a socket whose close negotiation has started.
	ErrClosed = errors.New("socket closed")
)

// Conn is the duplex transport underneath a Socket.
//
// Read must deliver a peer's close frame as a Close message before it starts
// returning errors. Close performs the close handshake and releases the
// transport; it may be called while a Read is in progress.
type Conn interface {
	Read(ctx context.Context) (Message, error)
	Write(ctx context.Context, msg Message) error
	Close(code CloseCode, reason string) error
	RemoteAddr() string
}

// Options configures a Socket.
type Options struct {
	// CloseTimeout bounds how long Close waits for the read pump to finish.
	CloseTimeout time.Duration
	// WriteTimeout bounds every write. Zero means only the caller's context applies.
	WriteTimeout time.Duration
}

// DefaultOptions returns the defaults used by New.
func DefaultOptions() Options {
	return Options{
		CloseTimeout: 5 * time.Second,
	}
}

// Option configures a Socket.
type Option func(*Socket)

// WithLogger sets the logger for the socket.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Socket) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCloseTimeout sets how long Close waits for the peer.
func WithCloseTimeout(d time.Duration) Option {
	return func(s *Socket) {
		if d > 0 {
			s.opts.CloseTimeout = d
		}
	}
}

// WithWriteTimeout bounds every write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Socket) {
		if d > 0 {
			s.opts.WriteTimeout = d
		}
	}
}

// Socket couples an inbound stream of frames with an outbound sink.
//
// The stream is finite: it is closed once the peer closes, the transport
// fails or Close completes, and it cannot be restarted. Send and Close are
// meant to be called by a single owner.
type Socket struct {
	conn   Conn
	opts   Options
	logger *slog.Logger

	stream chan Message
	ctx    context.Context
	cancel context.CancelFunc
	pumped chan struct{}

	mu      sync.Mutex
	err     error
	closing bool

	closeOnce sync.Once
	closeErr  error
}

// New wraps conn and starts reading from it.
func New(conn Conn, opts ...Option) *Socket {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Socket{
		conn:   conn,
		opts:   DefaultOptions(),
		logger: slog.Default(),
		stream: make(chan Message),
		ctx:    ctx,
		cancel: cancel,
		pumped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.readPump()
	return s
}

// Stream returns the inbound frames. The channel is closed when the stream ends.
func (s *Socket) Stream() <-chan Message {
	return s.stream
}

// Err reports why the stream ended: nil for a clean close, otherwise the
// transport error.
func (s *Socket) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// RemoteAddr returns the peer address reported by the transport.
func (s *Socket) RemoteAddr() string {
	return s.conn.RemoteAddr()
}

func (s *Socket) readPump() {
	defer close(s.pumped)
	defer close(s.stream)

	for {
		msg, err := s.conn.Read(s.ctx)
		if err != nil {
			s.mu.Lock()
			if !s.closing && s.ctx.Err() == nil {
				s.err = fmt.Errorf("read: %w", err)
			}
			s.mu.Unlock()
			return
		}
		select {
		case s.stream <- msg:
		case <-s.ctx.Done():
			return
		}
		if msg.Type == Close {
			return
		}
	}
}

// Send writes msg to the peer. A Close message starts close negotiation and
// behaves like Close.
func (s *Socket) Send(ctx context.Context, msg Message) error {
	if msg.Type == Close {
		return s.Close(ctx, msg.Close)
	}

	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		return ErrClosed
	}

	if s.opts.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.WriteTimeout)
		defer cancel()
	}
	return s.conn.Write(ctx, msg)
}

// Close sends a Close frame, waits for the peer to answer (bounded by the close
// timeout and ctx) and tears the transport down. Only the first call has an
// effect; later calls return the first call's result.
func (s *Socket) Close(ctx context.Context, frame *CloseFrame) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()

		code, reason := CloseNormal, ""
		if frame != nil {
			code, reason = frame.Code, frame.Reason
		}
		s.logger.Debug("Socket: closing", "addr", s.conn.RemoteAddr(), "code", code, "reason", reason)

		done := make(chan error, 1)
		go func() { done <- s.conn.Close(code, reason) }()

		timer := time.NewTimer(s.opts.CloseTimeout)
		defer timer.Stop()
		select {
		case err := <-done:
			s.closeErr = err
		case <-timer.C:
			s.closeErr = fmt.Errorf("close: peer did not answer within %s", s.opts.CloseTimeout)
		case <-ctx.Done():
			s.closeErr = ctx.Err()
		}

		s.cancel()
		select {
		case <-s.pumped:
		case <-time.After(s.opts.CloseTimeout):
			s.logger.Warn("Socket: read pump did not stop", "addr", s.conn.RemoteAddr())
		case <-ctx.Done():
		}
	})
	return s.closeErr
}
