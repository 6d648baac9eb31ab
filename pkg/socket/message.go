// pkg/socket/message.go
package socket

import "fmt"

// MessageType identifies the kind of a frame. Values follow the RFC 6455 opcodes.
type MessageType uint8

const (
	Text   MessageType = 0x1
	Binary MessageType = 0x2
	Close  MessageType = 0x8
	Ping   MessageType = 0x9
	Pong   MessageType = 0xA
)

func (t MessageType) String() string {
	switch t {
	case Text:
		return "text"
	case Binary:
		return "binary"
	case Close:
		return "close"
	case Ping:
		return "ping"
	case Pong:
		return "pong"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// CloseCode is a WebSocket close status code.
type CloseCode uint16

const (
	CloseNormal          CloseCode = 1000
	CloseGoingAway       CloseCode = 1001
	CloseProtocolError   CloseCode = 1002
	CloseUnsupported     CloseCode = 1003
	CloseNoStatus        CloseCode = 1005
	CloseAbnormal        CloseCode = 1006
	CloseInvalidPayload  CloseCode = 1007
	ClosePolicyViolation CloseCode = 1008
	CloseTooBig          CloseCode = 1009
	CloseMandatoryExt    CloseCode = 1010
	CloseInternalError   CloseCode = 1011
	CloseServiceRestart  CloseCode = 1012
	CloseTryAgainLater   CloseCode = 1013
	CloseBadGateway      CloseCode = 1014
	CloseTLS             CloseCode = 1015
)

// CloseFrame is the payload of a Close message.
type CloseFrame struct {
	Code   CloseCode
	Reason string
}

func (f CloseFrame) String() string {
	if f.Reason == "" {
		return fmt.Sprintf("%d", f.Code)
	}
	return fmt.Sprintf("%d (%s)", f.Code, f.Reason)
}

// Message is a single frame travelling through a Socket.
// Close is only set for Close messages and may be nil when the peer sent no status.
type Message struct {
	Type  MessageType
	Data  []byte
	Close *CloseFrame
}

// NewText builds a text message.
func NewText(text string) Message {
	return Message{Type: Text, Data: []byte(text)}
}

// NewBinary builds a binary message.
func NewBinary(data []byte) Message {
	return Message{Type: Binary, Data: data}
}

// NewClose builds a close message. A nil frame means "no status".
func NewClose(frame *CloseFrame) Message {
	return Message{Type: Close, Close: frame}
}

// Text returns the payload as a string.
func (m Message) Text() string {
	return string(m.Data)
}

func (m Message) String() string {
	switch m.Type {
	case Close:
		if m.Close == nil {
			return "close"
		}
		return "close " + m.Close.String()
	case Text:
		return fmt.Sprintf("text %q", m.Data)
	default:
		return fmt.Sprintf("%s [%d bytes]", m.Type, len(m.Data))
	}
}
