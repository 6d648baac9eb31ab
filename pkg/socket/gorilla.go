package socket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
)

const gorillaControlTimeout = time.Second

type gorillaConn struct {
	conn      *gws.Conn
	closeWait time.Duration

	writeMu  sync.Mutex
	readDone chan struct{}
	readOnce sync.Once
}

// FromGorilla adapts a connection that was upgraded by gorilla/websocket.
// closeWait bounds how long Close waits for the peer's close frame.
func FromGorilla(conn *gws.Conn, closeWait time.Duration) Conn {
	if closeWait <= 0 {
		closeWait = DefaultOptions().CloseTimeout
	}
	return &gorillaConn{
		conn:      conn,
		closeWait: closeWait,
		readDone:  make(chan struct{}),
	}
}

func (c *gorillaConn) Read(ctx context.Context) (Message, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	}
	typ, data, err := c.conn.ReadMessage()
	if err != nil {
		c.readOnce.Do(func() { close(c.readDone) })
		var ce *gws.CloseError
		if errors.As(err, &ce) {
			return NewClose(&CloseFrame{Code: CloseCode(ce.Code), Reason: ce.Text}), nil
		}
		return Message{}, err
	}
	if typ == gws.TextMessage {
		return Message{Type: Text, Data: data}, nil
	}
	return Message{Type: Binary, Data: data}, nil
}

func (c *gorillaConn) Write(ctx context.Context, msg Message) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(gorillaControlTimeout)
	}

	switch msg.Type {
	case Text, Binary:
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		if ok {
			_ = c.conn.SetWriteDeadline(deadline)
		} else {
			_ = c.conn.SetWriteDeadline(time.Time{})
		}
		typ := gws.TextMessage
		if msg.Type == Binary {
			typ = gws.BinaryMessage
		}
		return c.conn.WriteMessage(typ, msg.Data)
	case Ping:
		return c.conn.WriteControl(gws.PingMessage, msg.Data, deadline)
	case Pong:
		return c.conn.WriteControl(gws.PongMessage, msg.Data, deadline)
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

// Close writes the close frame, waits for the reader to observe the peer's
// answer and then closes the network connection.
func (c *gorillaConn) Close(code CloseCode, reason string) error {
	werr := c.conn.WriteControl(gws.CloseMessage,
		gws.FormatCloseMessage(int(code), reason),
		time.Now().Add(gorillaControlTimeout))
	if werr == nil {
		select {
		case <-c.readDone:
		case <-time.After(c.closeWait):
		}
	}
	cerr := c.conn.Close()
	if errors.Is(werr, gws.ErrCloseSent) {
		werr = nil
	}
	return errors.Join(werr, cerr)
}

func (c *gorillaConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
