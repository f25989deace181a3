package server

import (
	"encoding/json"
	"time"

	"github.com/lox/celojack/internal/session"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// withRequestID returns a copy of the message answering a client request
func (m *Message) withRequestID(id string) *Message {
	reply := *m
	reply.RequestID = id
	return &reply
}

// Client → Server Messages

// IntentData is the payload of an intent message
type IntentData = session.Request

// Server → Client Messages

// StateData is sent after every successful intent and on sync
type StateData struct {
	Intent session.Intent `json:"intent,omitempty"`
	View   session.View   `json:"view"`
}

// SettlingData acknowledges an on-chain intent that is now in flight
type SettlingData struct {
	Intent session.Intent `json:"intent"`
}

type ErrorData struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Intent  session.Intent `json:"intent,omitempty"`
	// View is the unchanged session state after a rejected intent
	View *session.View `json:"view,omitempty"`
}
