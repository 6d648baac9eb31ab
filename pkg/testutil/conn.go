package testutil

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/lightforgemedia/go-ezsockets/pkg/socket"
)

type readResult struct {
	msg socket.Message
	err error
}

// Conn is an in-memory socket.Conn. The test plays the peer: it injects
// inbound frames and failures and inspects what the runtime wrote.
type Conn struct {
	addr    string
	inbound chan readResult
	written chan socket.Message

	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	closes []socket.CloseFrame
}

// NewConn returns a Conn reporting addr as its remote address.
func NewConn(addr string) *Conn {
	return &Conn{
		addr:    addr,
		inbound: make(chan readResult, 256),
		written: make(chan socket.Message, 256),
		closed:  make(chan struct{}),
	}
}

// Inject queues a frame as if the peer had sent it.
func (c *Conn) Inject(msg socket.Message) {
	c.inbound <- readResult{msg: msg}
}

// InjectText queues a text frame from the peer.
func (c *Conn) InjectText(text string) {
	c.Inject(socket.NewText(text))
}

// Fail makes the next read fail with err, ending the stream.
func (c *Conn) Fail(err error) {
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	c.inbound <- readResult{err: err}
}

// Written returns the frames written by the runtime, Close frames included.
func (c *Conn) Written() <-chan socket.Message {
	return c.written
}

// Next returns the next written frame or fails the test.
func (c *Conn) Next(t *testing.T, timeout time.Duration) socket.Message {
	t.Helper()
	select {
	case msg := <-c.written:
		return msg
	case <-time.After(timeout):
		t.Fatalf("%s: nothing written within %v", c.addr, timeout)
		return socket.Message{}
	}
}

// Closed is closed once the runtime has closed the connection.
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

// CloseCalls returns the close frames passed to Close, one per call.
func (c *Conn) CloseCalls() []socket.CloseFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]socket.CloseFrame(nil), c.closes...)
}

func (c *Conn) Read(ctx context.Context) (socket.Message, error) {
	select {
	case r := <-c.inbound:
		return r.msg, r.err
	case <-c.closed:
		return socket.Message{}, io.EOF
	case <-ctx.Done():
		return socket.Message{}, ctx.Err()
	}
}

func (c *Conn) Write(ctx context.Context, msg socket.Message) error {
	select {
	case <-c.closed:
		return errors.New("write on closed connection")
	default:
	}
	select {
	case c.written <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) Close(code socket.CloseCode, reason string) error {
	frame := socket.CloseFrame{Code: code, Reason: reason}
	c.mu.Lock()
	c.closes = append(c.closes, frame)
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		select {
		case c.written <- socket.NewClose(&frame):
		default:
		}
		close(c.closed)
	})
	return nil
}

func (c *Conn) RemoteAddr() string {
	return c.addr
}
