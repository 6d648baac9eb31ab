// ezsockets.go
package ezsockets

import (
	"github.com/lightforgemedia/go-ezsockets/pkg/client"
	"github.com/lightforgemedia/go-ezsockets/pkg/fault"
	"github.com/lightforgemedia/go-ezsockets/pkg/server"
	"github.com/lightforgemedia/go-ezsockets/pkg/session"
	"github.com/lightforgemedia/go-ezsockets/pkg/socket"
)

// Re-export core types
type (
	Message      = socket.Message
	MessageType  = socket.MessageType
	CloseFrame   = socket.CloseFrame
	CloseCode    = socket.CloseCode
	Socket       = socket.Socket
	Conn         = socket.Conn
	ClientConfig = client.Config
	ClientState  = client.State
	Registry     = server.IntRegistry
)

// Generic handles
type (
	Session[ID comparable]                 = session.Session[ID]
	SessionExt[ID comparable]              = session.Ext[ID]
	Server[ID comparable, P any, A any]    = server.Server[ID, P, A]
	ServerExt[ID comparable, P any, A any] = server.Ext[ID, P, A]
	Client[P any]                          = client.Client[P]
	ClientExt[P any]                       = client.Ext[P]
)

// Frame kinds
const (
	Text   = socket.Text
	Binary = socket.Binary
	Ping   = socket.Ping
	Pong   = socket.Pong
	Close  = socket.Close
)

// Frequently used close codes
const (
	CloseNormal        = socket.CloseNormal
	CloseGoingAway     = socket.CloseGoingAway
	CloseUnsupported   = socket.CloseUnsupported
	CloseInternalError = socket.CloseInternalError
)

// Re-export error types
var (
	ErrUnsupported   = fault.ErrUnsupported
	ErrSocketClosed  = socket.ErrClosed
	ErrSessionClosed = session.ErrClosed
	ErrServerClosed  = server.ErrClosed
	ErrClientClosed  = client.ErrClosed
	ErrMaxAttempts   = client.ErrMaxAttempts
	ErrDuplicateID   = server.ErrDuplicateID
)

// NewText creates a text message.
func NewText(text string) Message {
	return socket.NewText(text)
}

// NewBinary creates a binary message.
func NewBinary(data []byte) Message {
	return socket.NewBinary(data)
}

// NewClose creates a close message. A nil frame closes without a status.
func NewClose(frame *CloseFrame) Message {
	return socket.NewClose(frame)
}

// NewRegistry creates a session registry handing out the lowest free int id.
func NewRegistry() *Registry {
	return server.NewIntRegistry()
}

// DefaultClientConfig returns the default reconnect policy for url.
func DefaultClientConfig(url string) ClientConfig {
	return client.DefaultConfig(url)
}
