package ezsockets_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ezsockets "github.com/lightforgemedia/go-ezsockets"
	"github.com/lightforgemedia/go-ezsockets/pkg/client"
	"github.com/lightforgemedia/go-ezsockets/pkg/server"
	"github.com/lightforgemedia/go-ezsockets/pkg/session"
	"github.com/lightforgemedia/go-ezsockets/pkg/testutil"
)

type shoutServer struct {
	sessions *ezsockets.Registry
}

func (s *shoutServer) Accept(_ context.Context, sock *ezsockets.Socket, _ string, _ struct{}) (*ezsockets.Session[int], error) {
	id := s.sessions.NextID()
	sess := session.Create(func(*ezsockets.Session[int]) *shoutSession {
		return &shoutSession{id: id}
	}, sock, session.WithLogger(testutil.Logger))
	return sess, s.sessions.Insert(sess)
}

func (s *shoutServer) Disconnected(_ context.Context, id int) error {
	s.sessions.Remove(id)
	return nil
}

func (s *shoutServer) Call(context.Context, struct{}) error { return nil }

type shoutSession struct{ id int }

func (s *shoutSession) ID() int { return s.id }

func (s *shoutSession) Text(_ context.Context, text string) (*ezsockets.Message, error) {
	msg := ezsockets.NewText(strings.ToUpper(text))
	return &msg, nil
}

func (s *shoutSession) Binary(context.Context, []byte) (*ezsockets.Message, error) {
	return nil, ezsockets.ErrUnsupported
}

type inbox struct {
	texts chan string
}

func (i *inbox) Text(_ context.Context, text string) (*ezsockets.Message, error) {
	i.texts <- text
	return nil, nil
}

func (i *inbox) Binary(context.Context, []byte) (*ezsockets.Message, error) { return nil, nil }
func (i *inbox) Call(context.Context, struct{}) error                       { return nil }
func (i *inbox) Connecting(context.Context, int) error                      { return nil }

var (
	_ ezsockets.ServerExt[int, struct{}, struct{}] = (*shoutServer)(nil)
	_ ezsockets.SessionExt[int]                    = (*shoutSession)(nil)
	_ ezsockets.ClientExt[struct{}]                = (*inbox)(nil)
)

func TestRoundTripThroughReexports(t *testing.T) {
	var srv *ezsockets.Server[int, struct{}, struct{}] = server.Create(func(*ezsockets.Server[int, struct{}, struct{}]) *shoutServer {
		return &shoutServer{sessions: ezsockets.NewRegistry()}
	}, server.WithLogger(testutil.Logger))
	defer srv.Close()

	ts := testutil.NewTestServer(t, server.UpgradeHandler(srv, nil, nil))

	in := &inbox{texts: make(chan string, 4)}
	c, err := client.Connect(context.Background(), ezsockets.DefaultClientConfig(ts.WSURL), func(*ezsockets.Client[struct{}]) *inbox {
		return in
	}, client.WithLogger(testutil.Logger))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Text("hello"))
	got, err := testutil.Recv(t, in.texts, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", got)
}

func TestMessageHelpers(t *testing.T) {
	assert.Equal(t, ezsockets.Text, ezsockets.NewText("x").Type)
	assert.Equal(t, ezsockets.Binary, ezsockets.NewBinary([]byte{1}).Type)

	closeMsg := ezsockets.NewClose(&ezsockets.CloseFrame{Code: ezsockets.CloseNormal, Reason: "bye"})
	assert.Equal(t, ezsockets.Close, closeMsg.Type)
	require.NotNil(t, closeMsg.Close)
	assert.Equal(t, ezsockets.CloseNormal, closeMsg.Close.Code)

	cfg := ezsockets.DefaultClientConfig("ws://localhost/ws")
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.NoError(t, cfg.Validate())
}
