package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/peiban-ai/peiban/pkg/dispatch"
	"github.com/peiban-ai/peiban/pkg/logger"
	"github.com/peiban-ai/peiban/pkg/router"
	"github.com/peiban-ai/peiban/pkg/store"
)

// Server is the narrow JSON surface a UI collaborator talks to. It never
// mutates conversation state itself; every write goes through the
// dispatcher.
type Server struct {
	dispatcher *dispatch.Dispatcher
	store      store.Store
	httpServer *http.Server
}

func NewServer(host string, port int, d *dispatch.Dispatcher, st store.Store) *Server {
	s := &Server{dispatcher: d, store: st}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe() error {
	logger.InfoCF("gateway", "Gateway listening", map[string]interface{}{"addr": s.httpServer.Addr})
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Reply     string `json:"reply"`
	Persona   string `json:"persona"`
	PersonaCN string `json:"persona_display"`
	Rationale string `json:"rationale,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

type historyEntry struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Tags      map[string]string `json:"tags,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "session_id and message are required")
		return
	}

	result, err := s.dispatcher.Turn(r.Context(), req.SessionID, req.Message)
	if err != nil && result == nil {
		status := http.StatusBadGateway
		if errors.Is(err, dispatch.ErrStoreLoad) {
			status = http.StatusInternalServerError
		}
		writeError(w, status, err.Error())
		return
	}

	resp := chatResponse{
		Reply:     result.Reply.Content,
		Persona:   result.Decision.Target,
		PersonaCN: router.DisplayName(result.Decision.Target),
		Rationale: result.Decision.Rationale,
	}
	// Save failed after the reply was computed: hand the reply over anyway
	// and tell the caller persistence is behind.
	if err != nil {
		resp.Warning = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	state, err := s.store.Load(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, []historyEntry{})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	entries := make([]historyEntry, 0, len(state.History))
	for _, msg := range state.History {
		entries = append(entries, historyEntry{
			Role:      string(msg.Role),
			Content:   msg.Content,
			Tags:      msg.Tags,
			CreatedAt: msg.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"parse_failures": s.dispatcher.ParseFailures(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
