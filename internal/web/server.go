// Package web serves the read-only JSON API over the chat store:
// chat listings, sanitized message history, apply and remediation
// history, per-app stats, and a live SSE message stream.
package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/blazelab/blaze/internal/analytics"
	"github.com/blazelab/blaze/internal/report"
	"github.com/blazelab/blaze/internal/store"
	"github.com/blazelab/blaze/internal/stream"
)

// Server is the read-only API server.
type Server struct {
	store  *store.Store
	port   int
	logger *zap.Logger
}

// NewServer creates a Server. logger may be nil.
func NewServer(st *store.Store, port int, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{store: st, port: port, logger: logger}
}

// Handler builds the route mux. Split out from Start for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/apps/", s.routeApps)
	mux.HandleFunc("/api/chats/", s.routeChats)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Start registers routes and starts listening.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("api listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) routeApps(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/apps/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	appID := parts[0]
	switch parts[1] {
	case "chats":
		s.handleChats(w, r, appID)
	case "applies":
		s.handleApplies(w, r, appID)
	case "fixes":
		s.handleFixes(w, r, appID)
	case "stats":
		s.handleStats(w, r, appID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) routeChats(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/chats/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	chatID := parts[0]
	switch parts[1] {
	case "messages":
		s.handleMessages(w, r, chatID)
	case "stream":
		s.handleMessageStream(w, r, chatID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request, appID string) {
	chats, err := s.store.ListChats(appID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, chats)
}

// messageView is a Message with the display text pre-sanitized: control
// tags never leave the API raw.
type messageView struct {
	ID        int    `json:"id"`
	Role      string `json:"role"`
	Display   string `json:"display"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, chatID string) {
	msgs, err := s.store.GetMessages(chatID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		display := stream.Sanitize(m.Content)
		if display == "" && m.Role == "assistant" {
			display = report.ActionsOnlyPlaceholder
		}
		views = append(views, messageView{
			ID:        m.ID,
			Role:      m.Role,
			Display:   display,
			CreatedAt: m.CreatedAt,
		})
	}
	writeJSON(w, views)
}

func (s *Server) handleApplies(w http.ResponseWriter, r *http.Request, appID string) {
	records, err := s.store.GetApplyHistory(appID, 100)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, records)
}

func (s *Server) handleFixes(w http.ResponseWriter, r *http.Request, appID string) {
	attempts, err := s.store.GetFixAttempts(appID, 100)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, attempts)
}

type statsView struct {
	Stats   *analytics.AppStats       `json:"stats"`
	Sources []analytics.SourceCount   `json:"sources"`
	Daily   []analytics.DailyActivity `json:"daily"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, appID string) {
	stats, err := analytics.QueryAppStats(s.store, appID, r.URL.Query().Get("since"))
	if err != nil {
		s.serverError(w, err)
		return
	}
	sources, err := analytics.QueryFixSources(s.store, appID, r.URL.Query().Get("since"))
	if err != nil {
		s.serverError(w, err)
		return
	}
	daily, err := analytics.QueryDailyActivity(s.store, appID, 30)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, statsView{Stats: stats, Sources: sources, Daily: daily})
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if v == nil {
		w.Write([]byte("[]"))
		return
	}
	json.NewEncoder(w).Encode(v)
}
