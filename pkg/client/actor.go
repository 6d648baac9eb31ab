package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lightforgemedia/go-ezsockets/internal/dispatch"
	"github.com/lightforgemedia/go-ezsockets/pkg/events"
	"github.com/lightforgemedia/go-ezsockets/pkg/fault"
	"github.com/lightforgemedia/go-ezsockets/pkg/socket"
)

var (
	errStop       = errors.New("client stopping")
	errPeerClosed = errors.New("connection closed by peer")
)

type event interface{ clientEvent() }

// frame and stream events carry the generation of the connection they came
// from so events of a replaced connection can be told apart.
type frameArrived struct {
	gen uint64
	msg socket.Message
}

type streamEnded struct {
	gen uint64
	err error
}

type sendRequest struct{ msg socket.Message }
type callRequest[P any] struct{ params P }
type closeRequest struct{ frame *socket.CloseFrame }

func (frameArrived) clientEvent()   {}
func (streamEnded) clientEvent()    {}
func (sendRequest) clientEvent()    {}
func (callRequest[P]) clientEvent() {}
func (closeRequest) clientEvent()   {}

type dialResult struct {
	sock *socket.Socket
	err  error
}

type actor[P any] struct {
	c      *Client[P]
	ext    Ext[P]
	cfg    Config
	dial   Dialer
	events *events.Bus
	logger *slog.Logger

	gen     uint64
	pending []socket.Message
}

func (a *actor[P]) run(ctx context.Context) {
	err := a.loop(ctx)
	a.c.inbox.Close()
	if n := a.c.inbox.Discard(); n > 0 {
		a.logger.Debug("Client: discarded queued requests", "count", n)
	}

	if err != nil {
		a.logger.Error("Client: stopped", "error", err)
		a.setState(StateFailed, 0, err)
	} else {
		a.logger.Info("Client: closed")
		a.setState(StateClosed, 0, nil)
	}
	a.c.err = err
	close(a.c.done)
}

func (a *actor[P]) setState(s State, delay time.Duration, err error) {
	a.c.state.Store(int32(s))
	a.events.Publish(events.Event{
		Topic: events.TopicClientState,
		ID:    a.c.id,
		State: s.String(),
		Delay: delay,
		Err:   err,
	})
}

func (a *actor[P]) loop(ctx context.Context) error {
	bo := a.cfg.NewBackOff()
	attempt := 0

	for {
		a.setState(StateConnecting, 0, nil)
		if err := a.ext.Connecting(ctx, attempt); err != nil {
			return fault.Extension("connecting", err)
		}

		sock, err := a.connect(ctx)
		if err == nil {
			bo.Reset()
			attempt = 0
			a.setState(StateConnected, 0, nil)
			a.logger.Info("Client: connected")
			err = a.connected(ctx, sock)
		}
		if errors.Is(err, errStop) {
			return nil
		}
		if fault.IsExtension(err) {
			return err
		}

		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttempts, attempt, err)
		}
		attempt++
		a.logger.Warn("Client: connection failed, backing off", "error", err, "attempt", attempt, "delay", delay)
		a.setState(StateBackoff, delay, err)

		if err := a.sleep(ctx, delay); err != nil {
			if errors.Is(err, errStop) {
				return nil
			}
			return err
		}
	}
}

// connect dials while still serving the inbox, so Close and Call are not held
// up by a slow handshake.
func (a *actor[P]) connect(ctx context.Context) (*socket.Socket, error) {
	var (
		dctx   context.Context
		cancel context.CancelFunc
	)
	if a.cfg.DialTimeout > 0 {
		dctx, cancel = context.WithTimeout(ctx, a.cfg.DialTimeout)
	} else {
		dctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	res := make(chan dialResult, 1)
	go func() {
		sock, err := a.dial(dctx, a.cfg)
		res <- dialResult{sock: sock, err: err}
	}()

	for {
		select {
		case r := <-res:
			if r.err != nil {
				return nil, fault.Transport("dial", r.err)
			}
			return r.sock, nil
		case <-a.c.inbox.Ready():
			if err := a.drain(ctx); err != nil {
				cancel()
				abandon(res)
				return nil, err
			}
		case <-ctx.Done():
			cancel()
			abandon(res)
			return nil, errStop
		}
	}
}

// abandon closes the socket of a dial whose result is no longer wanted.
func abandon(res <-chan dialResult) {
	go func() {
		if r := <-res; r.sock != nil {
			_ = r.sock.Close(context.Background(), &socket.CloseFrame{Code: socket.CloseGoingAway})
		}
	}()
}

func (a *actor[P]) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return nil
		case <-a.c.inbox.Ready():
			if err := a.drain(ctx); err != nil {
				return err
			}
		case <-ctx.Done():
			return errStop
		}
	}
}

// drain handles everything queued while there is no connection.
func (a *actor[P]) drain(ctx context.Context) error {
	for {
		ev, ok := a.c.inbox.TryRecv()
		if !ok {
			return nil
		}
		switch e := ev.(type) {
		case sendRequest:
			a.pending = append(a.pending, e.msg)
		case callRequest[P]:
			if err := a.ext.Call(ctx, e.params); err != nil {
				return fault.Extension("call", err)
			}
		case closeRequest:
			return errStop
		}
	}
}

func (a *actor[P]) forward(gen uint64, sock *socket.Socket) {
	for msg := range sock.Stream() {
		_ = a.c.inbox.Push(frameArrived{gen: gen, msg: msg})
	}
	_ = a.c.inbox.ForcePush(streamEnded{gen: gen, err: sock.Err()})
}

func (a *actor[P]) connected(ctx context.Context, sock *socket.Socket) error {
	a.gen++
	gen := a.gen
	go a.forward(gen, sock)

	for len(a.pending) > 0 {
		if err := sock.Send(ctx, a.pending[0]); err != nil {
			a.closeSocket(sock, nil)
			return fault.Transport("write", err)
		}
		a.pending = a.pending[1:]
	}
	a.pending = nil

	for {
		ev, err := a.c.inbox.Recv(ctx)
		if err != nil {
			a.closeSocket(sock, &socket.CloseFrame{Code: socket.CloseGoingAway})
			return errStop
		}

		switch e := ev.(type) {
		case frameArrived:
			if e.gen != gen {
				continue
			}
			out, err := dispatch.Frame(ctx, sock, a.ext, e.msg)
			if err != nil {
				a.closeSocket(sock, closeFrameFor(err))
				return err
			}
			if out == dispatch.Closed {
				a.closeSocket(sock, nil)
				return fault.Transport("read", errPeerClosed)
			}

		case streamEnded:
			if e.gen != gen {
				continue
			}
			a.closeSocket(sock, nil)
			if e.err == nil {
				e.err = errPeerClosed
			}
			return fault.Transport("read", e.err)

		case sendRequest:
			if err := sock.Send(ctx, e.msg); err != nil {
				// resend after reconnecting
				a.pending = append(a.pending, e.msg)
				a.closeSocket(sock, nil)
				return fault.Transport("write", err)
			}

		case callRequest[P]:
			if err := a.ext.Call(ctx, e.params); err != nil {
				err = fault.Extension("call", err)
				a.closeSocket(sock, closeFrameFor(err))
				return err
			}

		case closeRequest:
			a.closeSocket(sock, e.frame)
			return errStop
		}
	}
}

func (a *actor[P]) closeSocket(sock *socket.Socket, frame *socket.CloseFrame) {
	if err := sock.Close(context.Background(), frame); err != nil {
		a.logger.Debug("Client: close handshake incomplete", "error", err)
	}
}

func closeFrameFor(err error) *socket.CloseFrame {
	switch {
	case errors.Is(err, fault.ErrUnsupported):
		return &socket.CloseFrame{Code: socket.CloseUnsupported, Reason: "unsupported"}
	case fault.IsExtension(err):
		return &socket.CloseFrame{Code: socket.CloseInternalError, Reason: "internal error"}
	default:
		return nil
	}
}
