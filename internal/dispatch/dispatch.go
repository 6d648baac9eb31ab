// Package dispatch routes inbound frames to extension callbacks. It is shared
// by the session and client loops so both treat frames identically.
package dispatch

import (
	"context"

	"github.com/lightforgemedia/go-ezsockets/pkg/fault"
	"github.com/lightforgemedia/go-ezsockets/pkg/socket"
)

// Handler receives text and binary frames. A non-nil returned message is
// written back to the peer.
type Handler interface {
	Text(ctx context.Context, text string) (*socket.Message, error)
	Binary(ctx context.Context, data []byte) (*socket.Message, error)
}

// Outcome tells the loop whether it may keep reading.
type Outcome uint8

const (
	Continue Outcome = iota
	Closed
)

// Frame handles one inbound message. Errors are classified with the fault
// package: extension errors are wrapped with fault.Extension and failed writes
// with fault.Transport.
func Frame(ctx context.Context, sock *socket.Socket, h Handler, msg socket.Message) (Outcome, error) {
	var (
		reply *socket.Message
		err   error
	)
	switch msg.Type {
	case socket.Text:
		reply, err = h.Text(ctx, msg.Text())
		err = fault.Extension("text", err)
	case socket.Binary:
		reply, err = h.Binary(ctx, msg.Data)
		err = fault.Extension("binary", err)
	case socket.Close:
		return Closed, nil
	default:
		// ping and pong are answered by the transport
		return Continue, nil
	}
	if err != nil {
		return Continue, err
	}
	if reply != nil {
		if err := sock.Send(ctx, *reply); err != nil {
			return Continue, fault.Transport("write", err)
		}
		if reply.Type == socket.Close {
			return Closed, nil
		}
	}
	return Continue, nil
}
