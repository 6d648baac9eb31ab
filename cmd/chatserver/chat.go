package main

import (
	"context"
	"log/slog"

	"github.com/lightforgemedia/go-ezsockets/pkg/fault"
	"github.com/lightforgemedia/go-ezsockets/pkg/relay"
	"github.com/lightforgemedia/go-ezsockets/pkg/server"
	"github.com/lightforgemedia/go-ezsockets/pkg/session"
	"github.com/lightforgemedia/go-ezsockets/pkg/socket"
)

// Broadcast is the chat server's call. Origin is empty for messages typed on
// this instance and carries the sending instance's id for relayed ones.
type Broadcast struct {
	Origin string `json:"origin"`
	Text   string `json:"text"`
	Except []int  `json:"-"`
}

type chatServer struct {
	handle   *server.Server[int, Broadcast, struct{}]
	sessions *server.IntRegistry
	origin   string
	publish  func([]byte) error
	logger   *slog.Logger
}

func newChatServer(origin string, publish func([]byte) error, logger *slog.Logger) func(*server.Server[int, Broadcast, struct{}]) *chatServer {
	return func(h *server.Server[int, Broadcast, struct{}]) *chatServer {
		return &chatServer{
			handle:   h,
			sessions: server.NewIntRegistry(),
			origin:   origin,
			publish:  publish,
			logger:   logger,
		}
	}
}

func (c *chatServer) Accept(_ context.Context, sock *socket.Socket, addr string, _ struct{}) (*session.Session[int], error) {
	id := c.sessions.NextID()
	sess := session.Create(func(*session.Session[int]) *chatSession {
		return &chatSession{id: id, server: c.handle}
	}, sock, session.WithLogger(c.logger))
	if err := c.sessions.Insert(sess); err != nil {
		return nil, err
	}
	c.logger.Info("Chat: user joined", "id", id, "addr", addr, "online", c.sessions.Len())
	return sess, nil
}

func (c *chatServer) Disconnected(_ context.Context, id int) error {
	c.sessions.Remove(id)
	c.logger.Info("Chat: user left", "id", id, "online", c.sessions.Len())
	return nil
}

func (c *chatServer) Call(_ context.Context, b Broadcast) error {
	relayed := b.Origin != ""
	if relayed && b.Origin == c.origin {
		return nil
	}

	n, err := c.sessions.Broadcast(socket.NewText(b.Text), b.Except...)
	if err != nil {
		c.logger.Debug("Chat: broadcast missed sessions", "error", err)
	}
	c.logger.Debug("Chat: broadcast", "recipients", n, "relayed", relayed)

	if !relayed && c.publish != nil {
		if err := relay.PublishJSON(c.publish, Broadcast{Origin: c.origin, Text: b.Text}); err != nil {
			c.logger.Warn("Chat: relay publish failed", "error", err)
		}
	}
	return nil
}

type chatSession struct {
	id     int
	server *server.Server[int, Broadcast, struct{}]
}

func (s *chatSession) ID() int { return s.id }

func (s *chatSession) Text(_ context.Context, text string) (*socket.Message, error) {
	return nil, s.server.Call(Broadcast{Text: text, Except: []int{s.id}})
}

func (s *chatSession) Binary(context.Context, []byte) (*socket.Message, error) {
	return nil, fault.ErrUnsupported
}
