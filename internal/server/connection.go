package server

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/celojack/internal/session"
	"github.com/lox/celojack/internal/settlement"
)

// Connection represents a WebSocket connection bound to one session
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	session   *session.Session
	hub       *Server
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	// settling is set while this connection waits on an on-chain intent
	settling atomic.Bool
	// work tracks settlement goroutines so shutdown can wait for them
	work sync.WaitGroup
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, sess *session.Session, hub *Server, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:    conn,
		send:    make(chan *Message, 64),
		session: sess,
		hub:     hub,
		logger:  logger.WithPrefix("conn").With("session", sess.ID()),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// Session returns the session this connection plays
func (c *Connection) Session() *session.Session {
	return c.session
}

// SendMessage queues a message for the client
func (c *Connection) SendMessage(msg *Message) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

var (
	ErrConnectionClosed = websocket.ErrCloseSent
)

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "requestId", msg.RequestID)

	switch msg.Type {
	case MessageTypeIntent:
		var data IntentData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg.RequestID, CodeInvalidMessage, "Failed to parse intent data", "")
			return
		}
		c.handleIntent(msg.RequestID, data)

	case MessageTypeSync:
		c.sendState(msg.RequestID, "", c.session.View())

	default:
		c.sendError(msg.RequestID, CodeUnknownMessageType, "Unknown message type: "+msg.Type.String(), "")
	}
}

// handleIntent runs quick intents inline so their replies keep the
// client's order. Intents that wait on the chain run in the background and
// any intent arriving meanwhile is rejected.
func (c *Connection) handleIntent(requestID string, req IntentData) {
	if c.settling.Load() {
		view := c.session.View()
		c.sendIntentError(requestID, req.Intent, session.ErrSettlementPending, &view)
		return
	}

	if !c.onChain(req.Intent) {
		c.dispatch(c.ctx, requestID, req)
		return
	}

	c.settling.Store(true)
	c.reply(requestID, MessageTypeSettling, SettlingData{Intent: req.Intent})

	c.work.Add(1)
	go func() {
		defer c.work.Done()
		defer c.settling.Store(false)
		// The round is already submitted; a closed socket must not lose it
		c.dispatch(context.WithoutCancel(c.ctx), requestID, req)
	}()
}

func (c *Connection) onChain(intent session.Intent) bool {
	if !c.session.OnChainAvailable() {
		return false
	}
	switch intent {
	case session.IntentPlayOnChain, session.IntentRecover:
		return true
	case session.IntentNewGame:
		return c.session.Mode() == settlement.ModeOnChain
	}
	return false
}

func (c *Connection) dispatch(ctx context.Context, requestID string, req IntentData) {
	view, err := c.session.Dispatch(ctx, req)
	if err != nil {
		c.logger.Debug("Intent rejected", "intent", req.Intent, "error", err)
		c.sendIntentError(requestID, req.Intent, err, &view)
		return
	}

	msg, err := NewMessage(MessageTypeState, StateData{Intent: req.Intent, View: view})
	if err != nil {
		c.logger.Error("Failed to create state message", "error", err)
		return
	}
	_ = c.SendMessage(msg.withRequestID(requestID))
	c.hub.BroadcastToSession(c.session.ID(), msg, c)
}

func (c *Connection) sendState(requestID string, intent session.Intent, view session.View) {
	c.reply(requestID, MessageTypeState, StateData{Intent: intent, View: view})
}

func (c *Connection) reply(requestID string, messageType MessageType, data any) {
	msg, err := NewMessage(messageType, data)
	if err != nil {
		c.logger.Error("Failed to create message", "type", messageType, "error", err)
		return
	}
	_ = c.SendMessage(msg.withRequestID(requestID))
}

func (c *Connection) sendIntentError(requestID string, intent session.Intent, err error, view *session.View) {
	code := ErrorCode(err)
	if code == CodeInternal {
		c.logger.Error("Intent failed", "intent", intent, "error", err)
	}
	c.reply(requestID, MessageTypeError, ErrorData{
		Code:    code,
		Message: err.Error(),
		Intent:  intent,
		View:    view,
	})
}

// sendError sends an error message to the client
func (c *Connection) sendError(requestID, code, message string, intent session.Intent) {
	c.reply(requestID, MessageTypeError, ErrorData{
		Code:    code,
		Message: message,
		Intent:  intent,
	})
}
