package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightforgemedia/go-ezsockets/pkg/client"
	"github.com/lightforgemedia/go-ezsockets/pkg/server"
	"github.com/lightforgemedia/go-ezsockets/pkg/session"
	"github.com/lightforgemedia/go-ezsockets/pkg/socket"
	"github.com/lightforgemedia/go-ezsockets/pkg/testutil"
)

// echoServer echoes text and closes a session when asked to via Call.
type echoServer struct {
	sessions *server.IntRegistry
}

func (e *echoServer) Accept(_ context.Context, sock *socket.Socket, _ string, _ struct{}) (*session.Session[int], error) {
	id := e.sessions.NextID()
	sess := session.Create(func(*session.Session[int]) echoSession { return echoSession{id: id} }, sock,
		session.WithLogger(testutil.Logger))
	return sess, e.sessions.Insert(sess)
}

func (e *echoServer) Disconnected(_ context.Context, id int) error {
	e.sessions.Remove(id)
	return nil
}

func (e *echoServer) Call(_ context.Context, kick int) error {
	if s, ok := e.sessions.Get(kick); ok {
		return s.Close(&socket.CloseFrame{Code: socket.CloseGoingAway, Reason: "kicked"})
	}
	return nil
}

type echoSession struct{ id int }

func (s echoSession) ID() int { return s.id }

func (s echoSession) Text(_ context.Context, text string) (*socket.Message, error) {
	reply := socket.NewText(text)
	return &reply, nil
}

func (s echoSession) Binary(_ context.Context, data []byte) (*socket.Message, error) {
	reply := socket.NewBinary(data)
	return &reply, nil
}

func TestClientAgainstServer(t *testing.T) {
	srv := server.Create(func(*server.Server[int, int, struct{}]) *echoServer {
		return &echoServer{sessions: server.NewIntRegistry()}
	}, server.WithLogger(testutil.Logger))
	defer srv.Close()
	ts := testutil.NewTestServer(t, server.UpgradeHandler(srv, nil, nil))

	cfg := client.DefaultConfig(ts.WSURL)
	cfg.InitialDelay = 20 * time.Millisecond
	cfg.CloseTimeout = time.Second

	rec := newRecorder()
	c, err := client.Connect(context.Background(), cfg, func(*client.Client[string]) *recorder { return rec },
		client.WithLogger(testutil.Logger))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Text("hello"))
	got, err := testutil.Recv(t, rec.texts, waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, client.StateConnected, c.State())

	require.NoError(t, srv.Call(0))
	require.NoError(t, testutil.WaitFor(t, "reconnect attempt", waitTimeout, func() bool {
		return len(rec.attempts) >= 2
	}))

	require.NoError(t, c.Text("again"))
	got, err = testutil.Recv(t, rec.texts, waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, "again", got)

	require.NoError(t, c.Close())
	assert.NoError(t, c.Wait())
}
