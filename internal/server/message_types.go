package server

// MessageType represents a WebSocket message type with type safety
type MessageType string

// WebSocket message type constants
const (
	// Client to server messages
	MessageTypeIntent MessageType = "intent"
	MessageTypeSync   MessageType = "sync"

	// Server to client messages
	MessageTypeSession  MessageType = "session"
	MessageTypeState    MessageType = "state"
	MessageTypeSettling MessageType = "settling"
	MessageTypeError    MessageType = "error"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}
