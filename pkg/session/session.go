// pkg/session/session.go
package session

import (
	"context"
	"errors"

	"github.com/lightforgemedia/go-ezsockets/pkg/mailbox"
	"github.com/lightforgemedia/go-ezsockets/pkg/socket"
)

// ErrClosed is returned by handle operations once the session has terminated.
var ErrClosed = errors.New("session closed")

// Ext is the per-connection application logic. Its methods run on the
// session's goroutine, one at a time.
type Ext[ID comparable] interface {
	// ID identifies the session. It is read once, when the session is created.
	ID() ID
	// Text handles an inbound text frame. A non-nil message is sent back.
	Text(ctx context.Context, text string) (*socket.Message, error)
	// Binary handles an inbound binary frame. A non-nil message is sent back.
	Binary(ctx context.Context, data []byte) (*socket.Message, error)
}

// Session is the handle to a running session actor. It is safe for concurrent
// use and may be shared freely.
type Session[ID comparable] struct {
	id    ID
	inbox *mailbox.Mailbox[event]
	done  chan struct{}
	err   error
}

// Create starts a session over sock. create receives the handle before the
// actor starts so the extension can keep it; the handle's ID is not valid until
// create returns.
func Create[ID comparable, E Ext[ID]](create func(*Session[ID]) E, sock *socket.Socket, opts ...Option) *Session[ID] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &Session[ID]{
		inbox: mailbox.New[event](cfg.mailbox...),
		done:  make(chan struct{}),
	}
	ext := create(h)
	h.id = ext.ID()

	a := &actor[ID]{
		h:      h,
		ext:    ext,
		sock:   sock,
		policy: cfg.policy,
		logger: cfg.logger.With("id", h.id, "addr", sock.RemoteAddr()),
	}
	go a.run(cfg.ctx)
	return h
}

// ID returns the session's identity.
func (s *Session[ID]) ID() ID {
	return s.id
}

// Text queues a text frame for the peer. A frame queued while the session is
// terminating may be discarded even though Text returned nil; Done reports
// when the session has terminated.
func (s *Session[ID]) Text(text string) error {
	return s.push(sendRequest{msg: socket.NewText(text)})
}

// Binary queues a binary frame for the peer.
func (s *Session[ID]) Binary(data []byte) error {
	return s.push(sendRequest{msg: socket.NewBinary(data)})
}

// Send queues any message. Sending a Close message is the same as calling Close.
func (s *Session[ID]) Send(msg socket.Message) error {
	if msg.Type == socket.Close {
		return s.Close(msg.Close)
	}
	return s.push(sendRequest{msg: msg})
}

// Close asks the session to send frame (nil means a normal close) and terminate.
// Messages queued before Close are written first.
func (s *Session[ID]) Close(frame *socket.CloseFrame) error {
	err := s.inbox.ForcePush(closeRequest{frame: frame})
	if errors.Is(err, mailbox.ErrClosed) {
		return ErrClosed
	}
	return err
}

// Done is closed when the session has terminated.
func (s *Session[ID]) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session terminated: nil for a normal close, otherwise a
// transport or extension fault. It returns nil while the session is running.
func (s *Session[ID]) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait blocks until the session terminates or ctx is done.
func (s *Session[ID]) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session[ID]) push(ev event) error {
	err := s.inbox.Push(ev)
	if errors.Is(err, mailbox.ErrClosed) {
		return ErrClosed
	}
	return err
}
