package server_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lightforgemedia/go-ezsockets/pkg/fault"
	"github.com/lightforgemedia/go-ezsockets/pkg/server"
	"github.com/lightforgemedia/go-ezsockets/pkg/session"
	"github.com/lightforgemedia/go-ezsockets/pkg/socket"
	"github.com/lightforgemedia/go-ezsockets/pkg/testutil"
)

const waitTimeout = 2 * time.Second

type broadcast struct {
	text   string
	except []int
}

type chatServer struct {
	handle       *server.Server[int, broadcast, struct{}]
	sessions     *server.IntRegistry
	disconnected chan int
}

func (c *chatServer) Accept(_ context.Context, sock *socket.Socket, _ string, _ struct{}) (*session.Session[int], error) {
	id := c.sessions.NextID()
	sess := session.Create(func(*session.Session[int]) *chatSession {
		return &chatSession{id: id, server: c.handle}
	}, sock, session.WithLogger(testutil.Logger))
	if err := c.sessions.Insert(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (c *chatServer) Disconnected(_ context.Context, id int) error {
	c.sessions.Remove(id)
	c.disconnected <- id
	return nil
}

func (c *chatServer) Call(_ context.Context, b broadcast) error {
	_, _ = c.sessions.Broadcast(socket.NewText(b.text), b.except...)
	return nil
}

type chatSession struct {
	id     int
	server *server.Server[int, broadcast, struct{}]
}

func (s *chatSession) ID() int { return s.id }

func (s *chatSession) Text(_ context.Context, text string) (*socket.Message, error) {
	return nil, s.server.Call(broadcast{text: text, except: []int{s.id}})
}

func (s *chatSession) Binary(context.Context, []byte) (*socket.Message, error) {
	return nil, fault.ErrUnsupported
}

func newChat(t *testing.T, opts ...server.Option) (*chatServer, *server.Server[int, broadcast, struct{}]) {
	t.Helper()
	chat := &chatServer{
		sessions:     server.NewIntRegistry(),
		disconnected: make(chan int, 16),
	}
	opts = append([]server.Option{server.WithLogger(testutil.Logger)}, opts...)
	srv := server.Create(func(h *server.Server[int, broadcast, struct{}]) *chatServer {
		chat.handle = h
		return chat
	}, opts...)
	t.Cleanup(srv.Close)
	return chat, srv
}

func acceptConn(t *testing.T, srv *server.Server[int, broadcast, struct{}], addr string) (*session.Session[int], *testutil.Conn) {
	t.Helper()
	conn := testutil.NewConn(addr)
	sock := socket.New(conn, socket.WithLogger(testutil.Logger), socket.WithCloseTimeout(100*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	sess, err := srv.AcceptWait(ctx, sock, addr, struct{}{})
	require.NoError(t, err)
	return sess, conn
}

func expectDisconnected(t *testing.T, chat *chatServer, id int) {
	t.Helper()
	got, err := testutil.Recv(t, chat.disconnected, waitTimeout)
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func expectSilence(t *testing.T, conn *testutil.Conn) {
	t.Helper()
	select {
	case msg := <-conn.Written():
		t.Fatalf("unexpected frame %s", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

var errBoom = errors.New("boom")
