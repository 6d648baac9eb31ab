package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lightforgemedia/go-ezsockets/pkg/events"
	"github.com/lightforgemedia/go-ezsockets/pkg/fault"
	"github.com/lightforgemedia/go-ezsockets/pkg/mailbox"
	"github.com/lightforgemedia/go-ezsockets/pkg/session"
	"github.com/lightforgemedia/go-ezsockets/pkg/socket"
)

type request interface{ serverRequest() }

type acceptRequest[ID comparable, A any] struct {
	sock  *socket.Socket
	addr  string
	args  A
	reply chan<- acceptResult[ID]
}

type acceptResult[ID comparable] struct {
	sess *session.Session[ID]
	err  error
}

type callRequest[P any] struct{ params P }

type disconnected[ID comparable] struct {
	id  ID
	err error
}

func (acceptRequest[ID, A]) serverRequest() {}
func (callRequest[P]) serverRequest()       {}
func (disconnected[ID]) serverRequest()     {}

func (r acceptRequest[ID, A]) respond(sess *session.Session[ID], err error) {
	if r.reply != nil {
		r.reply <- acceptResult[ID]{sess: sess, err: err}
	}
}

type actor[ID comparable, P any, A any] struct {
	s      *Server[ID, P, A]
	ext    Ext[ID, P, A]
	cfg    config
	logger *slog.Logger

	// live holds every accepted session whose termination has not been processed yet.
	live map[ID]*session.Session[ID]
}

func (a *actor[ID, P, A]) run(ctx context.Context) {
	a.logger.Debug("Server: running")
	err := a.loop(ctx)
	a.s.inbox.Close()

	// the loop may stop on a fault with requests still queued
	for {
		req, ok := a.s.inbox.TryRecv()
		if !ok {
			break
		}
		if r, ok := req.(acceptRequest[ID, A]); ok {
			go r.sock.Close(context.Background(), &socket.CloseFrame{Code: socket.CloseGoingAway, Reason: "server stopped"})
			r.respond(nil, ErrClosed)
		}
	}

	if !a.cfg.keepOnStop {
		for _, sess := range a.live {
			_ = sess.Close(&socket.CloseFrame{Code: socket.CloseGoingAway, Reason: "server stopped"})
		}
	}

	if err != nil {
		a.logger.Error("Server: stopped", "error", err, "live", len(a.live))
	} else {
		a.logger.Info("Server: stopped", "live", len(a.live))
	}
	a.s.err = err
	close(a.s.done)
}

func (a *actor[ID, P, A]) loop(ctx context.Context) error {
	for {
		req, err := a.s.inbox.Recv(ctx)
		if err != nil {
			// inbox closed and drained, or ctx done
			return nil
		}

		var ferr error
		switch r := req.(type) {
		case acceptRequest[ID, A]:
			ferr = a.accept(ctx, r)
		case callRequest[P]:
			ferr = fault.Extension("call", a.ext.Call(ctx, r.params))
		case disconnected[ID]:
			ferr = a.disconnected(ctx, r)
		}

		if ferr != nil {
			a.cfg.events.Publish(events.Event{Topic: events.TopicFault, Err: ferr})
			if err := a.handleFault(ferr); err != nil {
				return err
			}
		}
	}
}

func (a *actor[ID, P, A]) handleFault(err error) error {
	if a.cfg.faultHandler != nil {
		return a.cfg.faultHandler(err)
	}
	a.logger.Error("Server: fault", "error", err)
	return nil
}

func (a *actor[ID, P, A]) accept(ctx context.Context, r acceptRequest[ID, A]) error {
	sess, err := a.ext.Accept(ctx, r.sock, r.addr, r.args)
	if err == nil && sess == nil {
		err = ErrNilSession
	}
	if err != nil {
		go r.sock.Close(context.Background(), &socket.CloseFrame{Code: socket.CloseInternalError, Reason: "accept failed"})
		err = fault.Extension("accept", err)
		r.respond(nil, err)
		return err
	}

	id := sess.ID()
	if _, dup := a.live[id]; dup {
		_ = sess.Close(&socket.CloseFrame{Code: socket.CloseInternalError, Reason: "duplicate id"})
		err := fault.Extension("accept", fmt.Errorf("%w: %v", ErrDuplicateID, id))
		r.respond(nil, err)
		return err
	}

	a.live[id] = sess
	go a.watch(sess)

	a.logger.Info("Server: session accepted", "id", id, "addr", r.addr, "live", len(a.live))
	a.cfg.events.Publish(events.Event{Topic: events.TopicConnected, ID: id, Addr: r.addr})
	r.respond(sess, nil)
	return nil
}

// watch reports the session's termination back to the loop. Lifecycle events
// bypass the inbox bound so they are never dropped.
func (a *actor[ID, P, A]) watch(sess *session.Session[ID]) {
	<-sess.Done()
	err := a.s.inbox.ForcePush(disconnected[ID]{id: sess.ID(), err: sess.Err()})
	if err != nil && !errors.Is(err, mailbox.ErrClosed) {
		a.logger.Error("Server: lost disconnect", "id", sess.ID(), "error", err)
	}
}

func (a *actor[ID, P, A]) disconnected(ctx context.Context, r disconnected[ID]) error {
	delete(a.live, r.id)
	if r.err != nil {
		a.logger.Info("Server: session disconnected", "id", r.id, "error", r.err, "live", len(a.live))
	} else {
		a.logger.Info("Server: session disconnected", "id", r.id, "live", len(a.live))
	}
	a.cfg.events.Publish(events.Event{Topic: events.TopicDisconnected, ID: r.id, Err: r.err})
	return fault.Extension("disconnected", a.ext.Disconnected(ctx, r.id))
}
