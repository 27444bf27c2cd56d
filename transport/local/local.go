// Package local provides an in-process transport for embedding the
// runtime in the same process as the caller.
package local

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/toolcall"
	"github.com/effective-security/toolgate/transport"
	"github.com/google/uuid"
)

type Transport struct {
	sessionID      string
	messageHandler func(ctx context.Context, message *transport.Message)
	errorHandler   func(error)
	closeHandler   func()
	mu             sync.RWMutex
	responseMap    map[int64]chan *transport.Message
	atomicCounter  int64
}

func New() *Transport {
	return &Transport{
		sessionID:   uuid.NewString(),
		responseMap: make(map[int64]chan *transport.Message),
	}
}

// SessionID identifies this connection; it doubles as the client ID
// for requests that do not carry one.
func (s *Transport) SessionID() string {
	return s.sessionID
}

func (s *Transport) Start(ctx context.Context) error {
	// Does nothing in the stateless local transport
	return nil
}

// Close closes the connection.
func (s *Transport) Close() error {
	if s.closeHandler != nil {
		s.closeHandler()
	}
	return nil
}

// SetErrorHandler implements Transport.SetErrorHandler
func (s *Transport) SetErrorHandler(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandler = handler
}

// SetCloseHandler implements Transport.SetCloseHandler
func (s *Transport) SetCloseHandler(handler func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeHandler = handler
}

// SetMessageHandler implements Transport.SetMessageHandler
func (s *Transport) SetMessageHandler(handler func(ctx context.Context, message *transport.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageHandler = handler
}

// Send delivers a response envelope to the caller blocked in
// HandleMessage with the matching correlation ID.
func (s *Transport) Send(ctx context.Context, message *transport.Message) error {
	key := int64(message.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	responseChannel := s.responseMap[key]
	if responseChannel == nil {
		return errors.Newf("no response channel found for key: %d", key)
	}
	responseChannel <- message
	return nil
}

// HandleMessage processes an incoming envelope and returns its
// response. The caller's envelope ID is restored on the way out.
func (s *Transport) HandleMessage(ctx context.Context, body []byte) (*transport.Message, error) {
	var request transport.Message
	if err := json.Unmarshal(body, &request); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal message")
	}
	if request.Type != transport.MessageTypeRequest || request.Call == nil {
		return nil, errors.New("message is not a request")
	}

	s.mu.Lock()
	key := atomic.AddInt64(&s.atomicCounter, 1)
	// buffered so a synchronous handler can Send before we block
	ch := make(chan *transport.Message, 1)
	s.responseMap[key] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.responseMap, key)
		s.mu.Unlock()
	}()

	prevID := request.ID
	request.ID = transport.RequestID(key)
	request.SessionID = s.sessionID
	if request.Call.ClientID == "" {
		request.Call.ClientID = s.sessionID
	}

	s.mu.RLock()
	handler := s.messageHandler
	s.mu.RUnlock()
	if handler == nil {
		return nil, errors.New("no message handler set")
	}
	handler(ctx, &request)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case response := <-ch:
		response.ID = prevID
		return response, nil
	}
}

// Call sends one tool request through the transport and waits for its
// result.
func (s *Transport) Call(ctx context.Context, req *toolcall.Request) (*toolcall.Result, error) {
	key := atomic.AddInt64(&s.atomicCounter, 1)
	body, err := json.Marshal(transport.NewRequestMessage(transport.RequestID(key), s.sessionID, req))
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	response, err := s.HandleMessage(ctx, body)
	if err != nil {
		return nil, err
	}
	if response.Result == nil {
		return nil, errors.New("response carries no result")
	}
	return response.Result, nil
}
