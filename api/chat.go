package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/wcallahan/searchai/internal/enhance"
	"github.com/wcallahan/searchai/internal/generate"
	"github.com/wcallahan/searchai/internal/observability"
	"github.com/wcallahan/searchai/internal/search"
	"github.com/wcallahan/searchai/internal/store"
	"github.com/wcallahan/searchai/internal/stream"
)

// maxHistoryTurns caps how much stored history feeds the prompt.
const maxHistoryTurns = 20

type chatRequest struct {
	ConversationID string             `json:"conversationId"`
	Message        string             `json:"message"`
	History        []generate.Message `json:"history"`
}

// handleChatStream runs the full pipeline for one message and streams the
// answer. Input validation happens before any pipeline work; after the
// stream headers go out, all failures are expressed as stream events, never
// as HTTP errors.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, s.logger, http.StatusBadRequest, "message must not be empty")
		return
	}

	conversationID, history, ok := s.resolveConversation(w, r, req)
	if !ok {
		return
	}

	sw, err := stream.NewWriter(w)
	if err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// The lifecycle's inactivity timeout cancels this context so the
	// provider read loop stops when the timer forces termination.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	lc := s.newLifecycle(sw, cancel)
	// Start before queue admission: keepalives must flow while this send
	// waits for a predecessor in the same conversation.
	lc.Start()

	err = s.sends.Enqueue(ctx, conversationID, func(ctx context.Context) error {
		return s.runChatPipeline(ctx, lc, conversationID, history, req.Message)
	})
	if err != nil {
		// Cancelled while queued or aborted mid-stream. Not an error state;
		// the caller is simply gone.
		lc.Abort()
		s.logger.Info("chat stream ended early",
			"conversation_id", conversationID, "reason", err)
	}
}

// resolveConversation maps the request to a conversation id and its prior
// history. Without persistence, the id is only a queue key and history comes
// from the request body alone.
func (s *Server) resolveConversation(w http.ResponseWriter, r *http.Request, req chatRequest) (string, []generate.Message, bool) {
	if s.cfg.Store == nil {
		id := req.ConversationID
		if id == "" {
			id = uuid.NewString()
		}
		return id, req.History, true
	}

	if req.ConversationID == "" {
		conv, err := s.cfg.Store.CreateConversation(r.Context(), truncateForLog(req.Message))
		if err != nil {
			s.logger.Error("create conversation", "error", err)
			writeError(w, s.logger, http.StatusInternalServerError, "could not create conversation")
			return "", nil, false
		}
		return conv.ID.String(), req.History, true
	}

	id, err := uuid.Parse(req.ConversationID)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid conversation id")
		return "", nil, false
	}
	if _, err := s.cfg.Store.GetConversation(r.Context(), id); err != nil {
		writeError(w, s.logger, http.StatusNotFound, "conversation not found")
		return "", nil, false
	}

	history := req.History
	if len(history) == 0 {
		history = s.loadHistory(r.Context(), id)
	}
	return id.String(), history, true
}

// loadHistory converts stored messages into prompt history. Failures mean
// answering without history, not failing the request.
func (s *Server) loadHistory(ctx context.Context, conversationID uuid.UUID) []generate.Message {
	messages, err := s.cfg.Store.ListMessages(ctx, conversationID)
	if err != nil {
		s.logger.Warn("load history failed", "conversation_id", conversationID, "error", err)
		return nil
	}
	var history []generate.Message
	for _, m := range messages {
		if m.IsStreaming || m.Content == "" {
			continue
		}
		history = append(history, generate.Message{Role: m.Role, Content: m.Content})
	}
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	return history
}

// runChatPipeline executes enhance, search, merge, scrape, and generation
// for one message, streaming through lc. It owns the terminal transition for
// every path except the inactivity timeout, which the lifecycle handles
// itself.
func (s *Server) runChatPipeline(ctx context.Context, lc *stream.Lifecycle, conversationID string, history []generate.Message, message string) error {
	ctx, span := observability.StartSpan(ctx, "chat")
	defer span.End()

	// Admitted: the inactivity clock starts now, not at enqueue time.
	lc.BeginActivity()

	placeholder := s.persistUserTurn(ctx, conversationID, message)

	enh := s.enhance(ctx, message)
	results := s.searchAndMerge(ctx, enh)
	results = s.scrapeSources(ctx, results)

	req := generate.Request{
		ConversationID:       conversationID,
		UserMessage:          message,
		SystemPromptAddition: enh.SystemPromptAddition,
		Context:              enh.Context,
		History:              history,
		SearchResults:        results,
		SourceURLs:           enh.PriorityURLs,
	}

	genCtx, genSpan := observability.StartSpan(ctx, "generate")
	defer genSpan.End()

	// Track totals locally so an aborted stream can still be finalized with
	// whatever content made it out.
	var partialContent, partialReasoning strings.Builder
	outcome, err := s.cfg.Chain.Generate(genCtx, req, func(c generate.Chunk) error {
		partialContent.WriteString(c.Content)
		partialReasoning.WriteString(c.Reasoning)
		return lc.Send(c)
	})
	if err != nil {
		timedOut := lc.State() == stream.StateError
		lc.Abort()
		s.finalizePartial(conversationID, placeholder, partialContent.String(), partialReasoning.String())
		if timedOut {
			// The lifecycle already emitted the error terminal; nothing
			// further to report.
			return nil
		}
		return err
	}

	lc.Done()
	s.persistOutcome(conversationID, placeholder, outcome)
	return nil
}

func (s *Server) enhance(ctx context.Context, message string) *enhance.Enhancement {
	_, span := observability.StartSpan(ctx, "enhance")
	defer span.End()
	return s.cfg.Engine.Apply(message, enhance.AllOptions())
}

// searchAndMerge runs the enhanced query, falling back to the first extra
// search term when the main query returns nothing, then merges with injected
// results. Provider failure degrades to injected results alone.
func (s *Server) searchAndMerge(ctx context.Context, enh *enhance.Enhancement) []search.Result {
	ctx, span := observability.StartSpan(ctx, "search")
	defer span.End()

	resp, err := s.cfg.Search.Search(ctx, enh.Query, 0)
	if err != nil {
		s.logger.Error("search provider failed",
			"query", truncateForLog(enh.Query), "error", err)
		resp = &search.Response{SearchMethod: search.MethodNone}
	}
	if len(resp.Results) == 0 && len(enh.SearchTerms) > 0 {
		retry, err := s.cfg.Search.Search(ctx, enh.SearchTerms[0], 0)
		if err != nil {
			s.logger.Error("search term retry failed",
				"query", truncateForLog(enh.SearchTerms[0]), "error", err)
		} else {
			resp = retry
		}
	}

	return search.Merge(enh.InjectedResults, resp.Results, enh.PriorityURLs)
}

func (s *Server) scrapeSources(ctx context.Context, results []search.Result) []search.Result {
	_, span := observability.StartSpan(ctx, "scrape")
	defer span.End()
	return s.cfg.Scraper.Enrich(results)
}

// persistUserTurn appends the user message and opens a streaming placeholder
// for the answer. Store failures are logged and skipped; persistence never
// blocks answering.
func (s *Server) persistUserTurn(ctx context.Context, conversationID, message string) uuid.UUID {
	if s.cfg.Store == nil {
		return uuid.Nil
	}
	convID, err := uuid.Parse(conversationID)
	if err != nil {
		return uuid.Nil
	}
	if _, err := s.cfg.Store.AppendMessage(ctx, store.Message{
		ConversationID: convID,
		Role:           "user",
		Content:        message,
	}); err != nil {
		s.logger.Error("persist user message", "error", err)
	}
	placeholder, err := s.cfg.Store.BeginStreaming(ctx, convID)
	if err != nil {
		s.logger.Error("open streaming placeholder", "error", err)
		return uuid.Nil
	}
	return placeholder
}

// persistOutcome finalizes the placeholder with the completed answer.
// Persistence runs on the background context: the request context is often
// already canceled once streaming ends.
func (s *Server) persistOutcome(conversationID string, placeholder uuid.UUID, outcome *generate.Outcome) {
	if s.cfg.Store == nil || placeholder == uuid.Nil {
		return
	}
	if err := s.cfg.Store.FinishStreaming(context.Background(), placeholder,
		outcome.Content, outcome.Reasoning, outcome.Provider, outcome.Model); err != nil {
		s.logger.Error("finalize streamed message",
			"conversation_id", conversationID, "error", err)
	}
}

// finalizePartial resolves the placeholder after an abort or timeout: keep
// whatever content streamed, or discard the placeholder when nothing did.
func (s *Server) finalizePartial(conversationID string, placeholder uuid.UUID, content, reasoning string) {
	if s.cfg.Store == nil || placeholder == uuid.Nil {
		return
	}
	ctx := context.Background()
	if strings.TrimSpace(content) == "" {
		if err := s.cfg.Store.DiscardStreaming(ctx, placeholder); err != nil {
			s.logger.Error("discard streaming placeholder",
				"conversation_id", conversationID, "error", err)
		}
		return
	}
	if err := s.cfg.Store.FinishStreaming(ctx, placeholder, content, reasoning, "", ""); err != nil {
		s.logger.Error("finalize partial message",
			"conversation_id", conversationID, "error", err)
	}
}
