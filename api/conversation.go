package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/wcallahan/searchai/internal/store"
)

// requireStore guards the persistence endpoints when the server runs
// without a database.
func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.cfg.Store == nil {
		writeError(w, s.logger, http.StatusServiceUnavailable, "persistence is not configured")
		return false
	}
	return true
}

func (s *Server) conversationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid conversation id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	conv, err := s.cfg.Store.CreateConversation(r.Context(), strings.TrimSpace(body.Title))
	if err != nil {
		s.logger.Error("create conversation", "error", err)
		writeError(w, s.logger, http.StatusInternalServerError, "could not create conversation")
		return
	}
	writeJSON(w, s.logger, http.StatusCreated, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	conversations, err := s.cfg.Store.ListConversations(r.Context(), 50)
	if err != nil {
		s.logger.Error("list conversations", "error", err)
		writeError(w, s.logger, http.StatusInternalServerError, "could not list conversations")
		return
	}
	if conversations == nil {
		conversations = []store.Conversation{}
	}
	writeJSON(w, s.logger, http.StatusOK, conversations)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id, ok := s.conversationID(w, r)
	if !ok {
		return
	}
	conv, err := s.cfg.Store.GetConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, s.logger, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.logger.Error("get conversation", "error", err)
		writeError(w, s.logger, http.StatusInternalServerError, "could not load conversation")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id, ok := s.conversationID(w, r)
	if !ok {
		return
	}
	err := s.cfg.Store.DeleteConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, s.logger, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.logger.Error("delete conversation", "error", err)
		writeError(w, s.logger, http.StatusInternalServerError, "could not delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id, ok := s.conversationID(w, r)
	if !ok {
		return
	}
	if _, err := s.cfg.Store.GetConversation(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		writeError(w, s.logger, http.StatusNotFound, "conversation not found")
		return
	} else if err != nil {
		s.logger.Error("get conversation", "error", err)
		writeError(w, s.logger, http.StatusInternalServerError, "could not load conversation")
		return
	}
	messages, err := s.cfg.Store.ListMessages(r.Context(), id)
	if err != nil {
		s.logger.Error("list messages", "error", err)
		writeError(w, s.logger, http.StatusInternalServerError, "could not list messages")
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	writeJSON(w, s.logger, http.StatusOK, messages)
}
