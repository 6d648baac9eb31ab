package socket

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

type coderConn struct {
	conn *websocket.Conn
	addr string
}

// FromCoder adapts a coder/websocket connection. addr is reported by RemoteAddr
// since the library does not expose the peer address.
func FromCoder(conn *websocket.Conn, addr string) Conn {
	return &coderConn{conn: conn, addr: addr}
}

// Accept upgrades an HTTP request and wraps the resulting connection in a Socket.
func Accept(w http.ResponseWriter, r *http.Request, opts *websocket.AcceptOptions, sockOpts ...Option) (*Socket, error) {
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		return nil, fmt.Errorf("accept: %w", err)
	}
	return New(FromCoder(conn, r.RemoteAddr), sockOpts...), nil
}

// Dial connects to a WebSocket server and wraps the connection in a Socket.
func Dial(ctx context.Context, url string, opts *websocket.DialOptions, sockOpts ...Option) (*Socket, error) {
	conn, resp, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return New(FromCoder(conn, url), sockOpts...), nil
}

func (c *coderConn) Read(ctx context.Context) (Message, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		var ce websocket.CloseError
		if errors.As(err, &ce) {
			return NewClose(&CloseFrame{Code: CloseCode(ce.Code), Reason: ce.Reason}), nil
		}
		return Message{}, err
	}
	if typ == websocket.MessageText {
		return Message{Type: Text, Data: data}, nil
	}
	return Message{Type: Binary, Data: data}, nil
}

func (c *coderConn) Write(ctx context.Context, msg Message) error {
	switch msg.Type {
	case Text:
		return c.conn.Write(ctx, websocket.MessageText, msg.Data)
	case Binary:
		return c.conn.Write(ctx, websocket.MessageBinary, msg.Data)
	case Ping:
		return c.conn.Ping(ctx)
	case Pong:
		// answered by the library
		return nil
	case Close:
		code, reason := CloseNormal, ""
		if msg.Close != nil {
			code, reason = msg.Close.Code, msg.Close.Reason
		}
		return c.Close(code, reason)
	default:
		return fmt.Errorf("write: unknown message type %s", msg.Type)
	}
}

func (c *coderConn) Close(code CloseCode, reason string) error {
	return c.conn.Close(websocket.StatusCode(code), reason)
}

func (c *coderConn) RemoteAddr() string {
	return c.addr
}
