// pkg/server/server.go
package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lightforgemedia/go-ezsockets/pkg/mailbox"
	"github.com/lightforgemedia/go-ezsockets/pkg/session"
	"github.com/lightforgemedia/go-ezsockets/pkg/socket"
)

var (
	// ErrClosed is returned by handle operations once the server has stopped.
	ErrClosed = errors.New("server closed")
	// ErrDuplicateID is reported when Accept yields a session whose id is still live.
	ErrDuplicateID = errors.New("duplicate session id")
	// ErrNilSession is reported when Accept returns neither a session nor an error.
	ErrNilSession = errors.New("accept returned no session")
)

// Ext is the server-wide application logic. All methods run on the server's
// goroutine, one at a time, so the extension may keep plain maps without locks.
type Ext[ID comparable, P any, A any] interface {
	// Accept creates a session for a new socket. args are the per-connection
	// parameters supplied by the caller of Server.Accept.
	Accept(ctx context.Context, sock *socket.Socket, addr string, args A) (*session.Session[ID], error)
	// Disconnected is called once for every accepted session after it terminated.
	Disconnected(ctx context.Context, id ID) error
	// Call handles an application-defined request.
	Call(ctx context.Context, params P) error
}

// Server is the handle to a running server actor. It is safe for concurrent
// use; copies of the pointer share the same actor.
type Server[ID comparable, P any, A any] struct {
	inbox  *mailbox.Mailbox[request]
	done   chan struct{}
	err    error
	logger *slog.Logger
}

// Create builds the handle, passes it to create so the extension can keep a
// reference to its own server, and starts the actor.
func Create[ID comparable, P any, A any, E Ext[ID, P, A]](create func(*Server[ID, P, A]) E, opts ...Option) *Server[ID, P, A] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server[ID, P, A]{
		inbox:  mailbox.New[request](cfg.mailbox...),
		done:   make(chan struct{}),
		logger: cfg.logger,
	}
	ext := create(s)

	a := &actor[ID, P, A]{
		s:      s,
		ext:    ext,
		cfg:    cfg,
		logger: cfg.logger,
		live:   make(map[ID]*session.Session[ID]),
	}
	go a.run(cfg.ctx)
	return s
}

// CreateWithOptions validates opts and calls Create. Additional functional
// options override values from the struct.
func CreateWithOptions[ID comparable, P any, A any, E Ext[ID, P, A]](create func(*Server[ID, P, A]) E, opts Options, extra ...Option) (*Server[ID, P, A], error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	return Create(create, append(opts.toOptions(), extra...)...), nil
}

// Accept hands a new socket to the server without waiting for the result.
// On error the caller still owns sock.
func (s *Server[ID, P, A]) Accept(sock *socket.Socket, addr string, args A) error {
	return s.push(acceptRequest[ID, A]{sock: sock, addr: addr, args: args})
}

// AcceptWait hands a new socket to the server and waits for the extension's
// decision. When the extension fails the server closes sock itself. After
// ErrClosed the socket may or may not have been closed; Socket.Close is
// idempotent so callers can close it again.
func (s *Server[ID, P, A]) AcceptWait(ctx context.Context, sock *socket.Socket, addr string, args A) (*session.Session[ID], error) {
	reply := make(chan acceptResult[ID], 1)
	if err := s.push(acceptRequest[ID, A]{sock: sock, addr: addr, args: args, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.sess, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Call submits application-defined parameters to the extension.
func (s *Server[ID, P, A]) Call(params P) error {
	return s.push(callRequest[P]{params: params})
}

// Close stops accepting requests. Requests already queued are still handled,
// then the loop exits.
func (s *Server[ID, P, A]) Close() {
	s.inbox.Close()
}

// Done is closed once the loop has exited.
func (s *Server[ID, P, A]) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the loop exits and returns the error that stopped it, if any.
func (s *Server[ID, P, A]) Wait() error {
	<-s.done
	return s.err
}

func (s *Server[ID, P, A]) push(req request) error {
	err := s.inbox.Push(req)
	if errors.Is(err, mailbox.ErrClosed) {
		return ErrClosed
	}
	return err
}
