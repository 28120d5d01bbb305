package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
	"github.com/mottobotto/testflight-bot/internal/biz/usecase"
)

// RecordReader is the read side of the record store used by the API
type RecordReader interface {
	ListRequests(ctx context.Context, filter domain.RequestFilter) ([]*domain.TestingRequest, error)
	FindTester(ctx context.Context, discordID string) (*domain.Tester, error)
	FetchApp(ctx context.Context, id string) (*domain.App, error)
}

// Server is the admin HTTP API used by operators and bot-mcp
type Server struct {
	records RecordReader
	cache   *usecase.ConfigCache
	logger  *slog.Logger

	server *http.Server
	addr   string
}

// NewServer creates a new API server
func NewServer(records RecordReader, cache *usecase.ConfigCache, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		records: records,
		cache:   cache,
		addr:    addr,
		logger:  logger.With("component", "api"),
	}
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/requests", s.handleListRequests)
	mux.HandleFunc("GET /api/testers/{discord_id}", s.handleGetTester)
	mux.HandleFunc("GET /api/apps/{id}", s.handleGetApp)

	mux.HandleFunc("GET /api/cache", s.handleCacheSnapshot)
	mux.HandleFunc("POST /api/cache/refresh", s.handleCacheRefresh)

	return mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// ============ Requests ============

func parseRequestFilter(r *http.Request) (domain.RequestFilter, error) {
	q := r.URL.Query()
	filter := domain.RequestFilter{
		TesterDiscordID: q.Get("tester"),
		ExcludeRemoved:  true,
	}
	if app := q.Get("app"); app != "" {
		filter.AppIDs = []string{app}
	}

	if status := strings.ToUpper(q.Get("status")); status != "" {
		if !domain.RequestStatus(status).Valid() {
			return filter, errors.New("invalid status: " + q.Get("status"))
		}
		filter.Approval = domain.ApprovalFilter(status)
	}

	if raw := q.Get("include_removed"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errors.New("invalid include_removed: " + raw)
		}
		filter.ExcludeRemoved = !include
	}
	return filter, nil
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRequestFilter(r)
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, err)
		return
	}

	requests, err := s.records.ListRequests(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"requests": ConvertRequests(requests)})
}

// ============ Records ============

func (s *Server) handleGetTester(w http.ResponseWriter, r *http.Request) {
	tester, err := s.records.FindTester(r.Context(), r.PathValue("discord_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if tester == nil {
		s.writeStatus(w, http.StatusNotFound, errors.New("tester not found"))
		return
	}
	s.writeJSON(w, ConvertTester(tester))
}

func (s *Server) handleGetApp(w http.ResponseWriter, r *http.Request) {
	app, err := s.records.FetchApp(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if app == nil {
		s.writeStatus(w, http.StatusNotFound, errors.New("app not found"))
		return
	}
	s.writeJSON(w, ConvertApp(app))
}

// ============ Cache ============

func (s *Server) handleCacheSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, ConvertSnapshot(s.cache.Snapshot()))
}

func (s *Server) handleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.cache.Refresh(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("config cache refreshed on request",
		"watched_messages", len(snap.WatchedMessageIDs),
		"approval_channels", len(snap.ApprovalChannelIDs))
	s.writeJSON(w, map[string]any{
		"watched_messages":  len(snap.WatchedMessageIDs),
		"approval_channels": len(snap.ApprovalChannelIDs),
		"refreshed_at":      snap.RefreshedAt,
	})
}

// ============ Helpers ============

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", "error", err)
	s.writeStatus(w, http.StatusInternalServerError, err)
}

func (s *Server) writeStatus(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
