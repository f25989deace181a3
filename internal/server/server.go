// Package server exposes blackjack sessions over WebSocket and a small JSON
// HTTP API.
//
// A client connects to /ws?session=<id>&player=<address>. The server replies
// with a session message holding the current view, then answers every intent
// message with either a state or an error message. Every connection on the
// same session sees the resulting state.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/lox/celojack/internal/session"
	"github.com/lox/celojack/internal/store"
)

// Server represents the WebSocket server
type Server struct {
	manager     *session.Manager
	upgrader    websocket.Upgrader
	router      chi.Router
	httpServer  *http.Server
	connections map[*Connection]bool
	register    chan *Connection
	unregister  chan *Connection
	logger      *log.Logger
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	startedAt   time.Time
}

// Option configures a Server
type Option func(*Server)

// WithOriginCheck replaces the default same-origin check on upgrades
func WithOriginCheck(check func(*http.Request) bool) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = check
	}
}

// NewServer creates a new server and starts its connection loop
func NewServer(manager *session.Manager, logger *log.Logger, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		logger:      logger.WithPrefix("server"),
		ctx:         ctx,
		cancel:      cancel,
		startedAt:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()

	go s.run()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWebSocket)
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/rules", s.handleRules)
		r.Post("/verify", s.handleVerify)
		r.Get("/sessions/{id}", s.handleSession)
		r.Get("/sessions/{id}/rounds", s.handleRounds)
	})
	return r
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("Starting server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, closes live ones and waits for
// in-flight settlements until ctx is done
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	srv := s.httpServer
	conns := make([]*Connection, 0, len(s.connections))
	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}

	settled := make(chan struct{})
	go func() {
		for _, conn := range conns {
			conn.work.Wait()
		}
		close(settled)
	}()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	select {
	case <-settled:
	case <-ctx.Done():
		s.logger.Warn("Shutdown with settlements still in flight")
	}
	return err
}

// run handles connection lifecycle
func (s *Server) run() {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.connections[conn] = true
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("Client connected", "session", conn.session.ID(), "total", total)

		case conn := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.connections[conn]; ok {
				delete(s.connections, conn)
				_ = conn.Close()
			}
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("Client disconnected", "session", conn.session.ID(), "total", total)

			go s.release(conn)

		case <-s.ctx.Done():
			return
		}
	}
}

// release returns the connection's session reference once its settlement
// work is done
func (s *Server) release(conn *Connection) {
	conn.work.Wait()
	s.manager.Release(conn.session.ID())
}

// handleWebSocket handles WebSocket upgrade requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")
	player := r.URL.Query().Get("player")
	if id != "" {
		if err := store.ValidateKey(id); err != nil {
			http.Error(w, "invalid session id", http.StatusBadRequest)
			return
		}
	}

	sess, err := s.manager.Open(r.Context(), id, player)
	if err != nil {
		s.logger.Error("Failed to open session", "session", id, "error", err)
		http.Error(w, "failed to open session", http.StatusInternalServerError)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		s.manager.Release(sess.ID())
		return
	}

	client := NewConnection(conn, sess, s, s.logger)
	select {
	case s.register <- client:
	case <-s.ctx.Done():
		_ = client.Close()
		s.manager.Release(sess.ID())
		return
	}
	client.Start()
	client.reply("", MessageTypeSession, StateData{View: sess.View()})

	go func() {
		<-client.ctx.Done()
		select {
		case s.unregister <- client:
		case <-s.ctx.Done():
		}
	}()
}

// BroadcastToSession sends a message to every connection on a session
// except the sender
func (s *Server) BroadcastToSession(sessionID string, msg *Message, except *Connection) {
	count := 0
	for _, conn := range s.SessionConnections(sessionID) {
		if conn == except {
			continue
		}
		if err := conn.SendMessage(msg); err != nil {
			s.logger.Debug("Failed to send message to client", "error", err, "session", sessionID)
			continue
		}
		count++
	}
	if count > 0 {
		s.logger.Debug("Broadcasted message to session", "session", sessionID, "type", msg.Type, "recipients", count)
	}
}

// SessionConnections returns the live connections playing a session
func (s *Server) SessionConnections(sessionID string) []*Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conns []*Connection
	for conn := range s.connections {
		if conn.session.ID() == sessionID {
			conns = append(conns, conn)
		}
	}
	return conns
}

// ConnectionCount returns the number of live connections
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}
