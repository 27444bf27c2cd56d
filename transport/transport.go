// Package transport defines the envelope exchanged with the assistant
// process and the interface a delivery mechanism implements.
package transport

import (
	"context"

	"github.com/effective-security/toolgate/toolcall"
)

type MessageType string

const (
	MessageTypeRequest  MessageType = "request"
	MessageTypeResponse MessageType = "response"
)

// RequestID correlates a response with its request on one connection.
type RequestID int64

// Message is the wire envelope. A request carries Call; a response
// carries Result.
type Message struct {
	Type      MessageType       `json:"type"`
	ID        RequestID         `json:"id"`
	SessionID string            `json:"session_id,omitempty"`
	Call      *toolcall.Request `json:"call,omitempty"`
	Result    *toolcall.Result  `json:"result,omitempty"`
}

func NewRequestMessage(id RequestID, sessionID string, call *toolcall.Request) *Message {
	return &Message{
		Type:      MessageTypeRequest,
		ID:        id,
		SessionID: sessionID,
		Call:      call,
	}
}

func NewResponseMessage(id RequestID, sessionID string, res *toolcall.Result) *Message {
	return &Message{
		Type:      MessageTypeResponse,
		ID:        id,
		SessionID: sessionID,
		Result:    res,
	}
}

// Transport moves envelopes between the assistant process and the
// runtime.
type Transport interface {
	Start(ctx context.Context) error
	Close() error

	// Send sends a response envelope back to the requesting side.
	Send(ctx context.Context, message *Message) error

	// SetMessageHandler sets the callback for when a message is
	// received over the connection.
	SetMessageHandler(handler func(ctx context.Context, message *Message))
	// SetErrorHandler sets the callback for when an error occurs.
	// Errors are not necessarily fatal; they report exceptional
	// conditions out of band.
	SetErrorHandler(handler func(error))
	// SetCloseHandler sets the callback for when the connection is
	// closed for any reason. This should be invoked when Close() is
	// called as well.
	SetCloseHandler(handler func())
}

// Dispatcher executes decoded tool requests.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *toolcall.Request) *toolcall.Result
}

// Serve wires a dispatcher as the transport's message handler: every
// request envelope is dispatched and its result sent back with the
// same correlation ID.
func Serve(t Transport, d Dispatcher) {
	t.SetMessageHandler(func(ctx context.Context, message *Message) {
		if message.Type != MessageTypeRequest || message.Call == nil {
			return
		}
		res := d.Dispatch(ctx, message.Call)
		_ = t.Send(ctx, NewResponseMessage(message.ID, message.SessionID, res))
	})
}
