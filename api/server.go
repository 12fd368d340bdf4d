// Package api exposes the HTTP surface: health probes, search, conversation
// CRUD, and the streaming chat endpoint that runs the full
// enhance-search-generate pipeline.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/wcallahan/searchai/internal/enhance"
	"github.com/wcallahan/searchai/internal/generate"
	"github.com/wcallahan/searchai/internal/log"
	"github.com/wcallahan/searchai/internal/queue"
	"github.com/wcallahan/searchai/internal/scrape"
	"github.com/wcallahan/searchai/internal/search"
	"github.com/wcallahan/searchai/internal/store"
	"github.com/wcallahan/searchai/internal/stream"
)

// ServerConfig carries the server's collaborators. Engine, Search, Scraper,
// and Chain are required. Store may be nil, which disables persistence and
// the conversation endpoints.
type ServerConfig struct {
	Engine  *enhance.Engine
	Search  *search.Client
	Scraper *scrape.Scraper
	Chain   *generate.Chain
	Store   *store.Store

	// InactivityTimeout and KeepaliveInterval govern each chat stream.
	InactivityTimeout time.Duration
	KeepaliveInterval time.Duration

	Logger log.Logger
}

func (c *ServerConfig) validate() error {
	if c.Engine == nil {
		return errors.New("api: rule engine is required")
	}
	if c.Search == nil {
		return errors.New("api: search client is required")
	}
	if c.Scraper == nil {
		return errors.New("api: scraper is required")
	}
	if c.Chain == nil {
		return errors.New("api: provider chain is required")
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = 2 * time.Minute
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	return nil
}

// Server is the HTTP API.
type Server struct {
	cfg    ServerConfig
	sends  *queue.Queue
	logger log.Logger
}

// NewServer creates the API server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Server{
		cfg:    cfg,
		sends:  queue.New(cfg.Logger),
		logger: cfg.Logger,
	}, nil
}

// Handler returns the routed and middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)

	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("POST /api/conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.handleListMessages)

	return chain(mux, withLogging(s.logger), withRecovery(s.logger))
}

// newLifecycle builds a stream lifecycle bound to one response.
func (s *Server) newLifecycle(w *stream.Writer, onTimeout func()) *stream.Lifecycle {
	return stream.NewLifecycle(stream.LifecycleConfig{
		Writer:            w,
		InactivityTimeout: s.cfg.InactivityTimeout,
		KeepaliveInterval: s.cfg.KeepaliveInterval,
		OnTimeout:         onTimeout,
		Logger:            s.logger,
	})
}
