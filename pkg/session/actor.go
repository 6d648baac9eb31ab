package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lightforgemedia/go-ezsockets/internal/dispatch"
	"github.com/lightforgemedia/go-ezsockets/pkg/fault"
	"github.com/lightforgemedia/go-ezsockets/pkg/socket"
)

type event interface{ sessionEvent() }

type frameArrived struct{ msg socket.Message }
type streamEnded struct{ err error }
type sendRequest struct{ msg socket.Message }
type closeRequest struct{ frame *socket.CloseFrame }

func (frameArrived) sessionEvent() {}
func (streamEnded) sessionEvent()  {}
func (sendRequest) sessionEvent()  {}
func (closeRequest) sessionEvent() {}

type actor[ID comparable] struct {
	h      *Session[ID]
	ext    Ext[ID]
	sock   *socket.Socket
	policy FaultPolicy
	logger *slog.Logger

	closeFrame *socket.CloseFrame
}

func (a *actor[ID]) run(ctx context.Context) {
	go a.forward()

	err := a.loop(ctx)
	a.h.inbox.Close()
	if n := a.h.inbox.Discard(); n > 0 {
		a.logger.Debug("Session: discarded queued events", "count", n)
	}

	if cerr := a.sock.Close(context.Background(), a.closeFrame); cerr != nil {
		a.logger.Debug("Session: close handshake incomplete", "error", cerr)
	}
	if err != nil {
		a.logger.Warn("Session: terminated", "error", err)
	} else {
		a.logger.Debug("Session: terminated")
	}

	a.h.err = err
	close(a.h.done)
}

// forward moves frames from the socket into the inbox. It keeps draining the
// stream after the inbox closes so the read pump never blocks.
func (a *actor[ID]) forward() {
	for msg := range a.sock.Stream() {
		_ = a.h.inbox.Push(frameArrived{msg: msg})
	}
	_ = a.h.inbox.ForcePush(streamEnded{err: a.sock.Err()})
}

func (a *actor[ID]) loop(ctx context.Context) error {
	for {
		ev, err := a.h.inbox.Recv(ctx)
		if err != nil {
			a.closeFrame = &socket.CloseFrame{Code: socket.CloseGoingAway}
			return nil
		}

		switch e := ev.(type) {
		case frameArrived:
			out, err := dispatch.Frame(ctx, a.sock, a.ext, e.msg)
			if err != nil {
				if !fault.IsExtension(err) {
					return err
				}
				if a.policy == FaultContinue {
					a.logger.Warn("Session: extension error", "error", err)
					continue
				}
				a.closeFrame = closeFrameFor(err)
				return err
			}
			if out == dispatch.Closed {
				return nil
			}

		case streamEnded:
			return fault.Transport("read", e.err)

		case sendRequest:
			if err := a.sock.Send(ctx, e.msg); err != nil {
				return fault.Transport("write", err)
			}

		case closeRequest:
			a.closeFrame = e.frame
			return nil
		}
	}
}

func closeFrameFor(err error) *socket.CloseFrame {
	if errors.Is(err, fault.ErrUnsupported) {
		return &socket.CloseFrame{Code: socket.CloseUnsupported, Reason: "unsupported"}
	}
	return &socket.CloseFrame{Code: socket.CloseInternalError, Reason: "internal error"}
}
