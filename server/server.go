// Package server exposes the protocol core over HTTP: enrollment and
// message endpoints for an external transport to call, read-only history
// and timeline views, and a WebSocket stream of live message events.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/candelahq/trellis/engine"
	"github.com/candelahq/trellis/logger"
	"github.com/candelahq/trellis/store"
)

// Options configures the HTTP listener
type Options struct {
	Host string
	Port int
}

// Server wires the HTTP API and the WebSocket hub over one engine and
// store. Lifecycle: New, Start, Shutdown.
type Server struct {
	db     *sql.DB
	store  *store.Store
	engine *engine.Engine
	logger *zap.SugaredLogger

	httpServer   *http.Server
	eventsPoller *MessageEventsPoller

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// MaxClients caps concurrent WebSocket connections
const MaxClients = 256

// New creates a server over an opened database and a running engine
func New(opts Options, db *sql.DB, s *store.Store, e *engine.Engine, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = logger.ComponentLogger("server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		db:         db,
		store:      s,
		engine:     e,
		logger:     log,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
	}
	srv.eventsPoller = NewMessageEventsPoller(db, srv, log)

	srv.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:      srv.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return srv
}

// Handler returns the HTTP handler, for tests driving the API through
// httptest without a listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/projects", s.handleProjects)
	mux.HandleFunc("/api/projects/", s.handleProjectByID)
	mux.HandleFunc("/api/participants", s.handleEnrollParticipant)
	mux.HandleFunc("/api/participants/", s.handleParticipantSubtree)
	mux.HandleFunc("/ws/participants/", s.handleWebSocket)
	return mux
}

// Start begins serving and launches the hub and events poller. Returns
// once the listener is up; ListenAndServe errors other than a clean
// shutdown are logged from the serving goroutine.
func (s *Server) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runHub()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.eventsPoller.Start(s.ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorw("HTTP server error", "error", err)
		}
	}()

	s.logger.Infow("HTTP server started", "addr", s.httpServer.Addr)
}

// Shutdown stops the listener, disconnects every client and waits for
// the hub and poller goroutines to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	s.cancel()

	s.mu.Lock()
	for client := range s.clients {
		client.close()
		delete(s.clients, client)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Infow("HTTP server stopped")
	return err
}

// runHub serializes client registration and unregistration
func (s *Server) runHub() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		}
	}
}

func (s *Server) handleClientRegister(client *Client) {
	s.mu.Lock()
	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Max clients reached, rejecting connection",
			"client_id", client.id, "max_clients", MaxClients)
		client.close()
		return
	}
	s.clients[client] = true
	total := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client connected",
		"client_id", client.id,
		logger.FieldParticipantID, client.participantID,
		"total_clients", total)
}

func (s *Server) handleClientUnregister(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		client.close()
	}
	total := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client disconnected",
		"client_id", client.id, "total_clients", total)
}

// broadcastToParticipant delivers an event to every client subscribed to
// the participant. Slow clients drop the event rather than block the hub.
func (s *Server) broadcastToParticipant(participantID string, msg interface{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		if client.participantID != participantID {
			continue
		}
		select {
		case client.send <- msg:
		default:
			s.logger.Warnw("Client send channel full, dropping event",
				"client_id", client.id)
		}
	}
}
