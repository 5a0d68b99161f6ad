// Package server exposes the HTTP surface: mutation endpoints that
// persist and then publish change events, the SSE stream that fans
// those events out to connected clients, the bulk init fetch, and the
// presence endpoints.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/ldi/boardsync/internal/auth"
	"github.com/ldi/boardsync/internal/bus"
	"github.com/ldi/boardsync/internal/config"
	"github.com/ldi/boardsync/internal/db"
	"github.com/ldi/boardsync/pkg/models"
)

type Server struct {
	db     *db.DB
	bus    *bus.Bus
	auth   *auth.Provider
	cfg    config.Config
	server *http.Server
}

// New wires the server. The bus is owned by the caller and injected so
// its lifetime is explicit rather than ambient.
func New(database *db.DB, b *bus.Bus, provider *auth.Provider, cfg config.Config) *Server {
	return &Server{db: database, bus: b, auth: provider, cfg: cfg}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, req)
			slog.Info("handled", "method", req.Method, "url", req.URL.Path, "duration", m.Duration, "status", m.Code)
		})
	})
	r.Use(s.auth.Middleware)

	r.Methods(http.MethodPost).Path("/api/login").HandlerFunc(s.handleLogin)
	r.Methods(http.MethodGet).Path("/api/stream").HandlerFunc(s.handleStream)
	r.Methods(http.MethodGet).Path("/api/init").HandlerFunc(s.handleInit)

	r.Methods(http.MethodGet).Path("/api/tasks").HandlerFunc(s.handleListTasks)
	r.Methods(http.MethodPost).Path("/api/tasks").HandlerFunc(s.handleCreateTask)
	r.Methods(http.MethodPatch).Path("/api/tasks/{id}").HandlerFunc(s.handleUpdateTask)
	r.Methods(http.MethodDelete).Path("/api/tasks/{id}").HandlerFunc(s.handleDeleteTask)

	r.Methods(http.MethodGet).Path("/api/events").HandlerFunc(s.handleListEvents)
	r.Methods(http.MethodPost).Path("/api/events").HandlerFunc(s.handleCreateEvent)
	r.Methods(http.MethodPatch).Path("/api/events/{id}").HandlerFunc(s.handleUpdateEvent)
	r.Methods(http.MethodDelete).Path("/api/events/{id}").HandlerFunc(s.handleDeleteEvent)

	r.Methods(http.MethodGet).Path("/api/notes").HandlerFunc(s.handleListNotes)
	r.Methods(http.MethodPost).Path("/api/notes").HandlerFunc(s.handleCreateNote)
	r.Methods(http.MethodGet).Path("/api/notes/{id}").HandlerFunc(s.handleGetNote)
	r.Methods(http.MethodDelete).Path("/api/notes/{id}").HandlerFunc(s.handleDeleteNote)

	r.Methods(http.MethodPost).Path("/api/user/heartbeat").HandlerFunc(s.handleHeartbeat)
	r.Methods(http.MethodGet).Path("/api/users/online").HandlerFunc(s.handleOnlineUsers)

	return r
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{Addr: addr, Handler: s.Handler()}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// session returns the caller's session, writing a 401 when absent.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *auth.Session {
	sess := auth.FromContext(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return nil
	}
	return sess
}

// writer returns the caller's session when it may mutate the board,
// writing 401/403 otherwise.
func (s *Server) writer(w http.ResponseWriter, r *http.Request) *auth.Session {
	sess := s.session(w, r)
	if sess == nil {
		return nil
	}
	if !sess.Role.CanWrite() {
		writeError(w, http.StatusForbidden, "Forbidden")
		return nil
	}
	return sess
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// purgeAsync runs the opportunistic retention pass off the request
// path. Failures are logged and swallowed; the next read retries.
func (s *Server) purgeAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		cutoff := time.Now().UTC().Add(-s.cfg.PurgeHorizon)
		if _, err := s.db.PurgeTasksDeletedBefore(ctx, cutoff); err != nil {
			slog.Error("task purge failed", "err", err)
		}
		if _, err := s.db.PurgeEventsDeletedBefore(ctx, cutoff); err != nil {
			slog.Error("event purge failed", "err", err)
		}
	}()
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	token, user, err := s.auth.Login(r.Context(), input.Name, input.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	// A fresh login changes the online set; nudge connected clients to
	// refresh it ahead of their next poll.
	if err := s.db.TouchUser(r.Context(), user.ID); err != nil {
		slog.Warn("failed to stamp login activity", "err", err)
	}
	s.bus.Publish(models.UsersUpdated())

	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

// handleInit serves the bulk fetch used at synchronizer startup and as
// the periodic backstop: all collections in one round trip.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}

	type initPayload struct {
		Tasks       []*models.Task          `json:"tasks"`
		Events      []*models.CalendarEvent `json:"events"`
		Notes       []*models.Note          `json:"notes"`
		OnlineUsers []models.OnlineUser     `json:"onlineUsers"`
	}

	if !sess.Role.CanWrite() {
		writeJSON(w, http.StatusOK, initPayload{
			Tasks:       []*models.Task{},
			Events:      []*models.CalendarEvent{},
			Notes:       []*models.Note{},
			OnlineUsers: []models.OnlineUser{},
		})
		return
	}

	s.purgeAsync()

	ctx := r.Context()
	tasks, err := s.db.AllTasks(ctx)
	if err != nil {
		slog.Error("failed to load tasks", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load data")
		return
	}
	events, err := s.db.AllEvents(ctx)
	if err != nil {
		slog.Error("failed to load events", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load data")
		return
	}
	notes, err := s.db.AllNotes(ctx)
	if err != nil {
		slog.Error("failed to load notes", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load data")
		return
	}
	online, err := s.db.OnlineUsers(ctx, s.cfg.OnlineWindow)
	if err != nil {
		slog.Error("failed to load online users", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load data")
		return
	}

	if tasks == nil {
		tasks = []*models.Task{}
	}
	if events == nil {
		events = []*models.CalendarEvent{}
	}
	if notes == nil {
		notes = []*models.Note{}
	}
	writeJSON(w, http.StatusOK, initPayload{Tasks: tasks, Events: events, Notes: notes, OnlineUsers: online})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	if err := s.db.TouchUser(r.Context(), sess.UserID); err != nil {
		slog.Error("heartbeat failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleOnlineUsers(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	online, err := s.db.OnlineUsers(r.Context(), s.cfg.OnlineWindow)
	if err != nil {
		slog.Error("failed to load online users", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal Error")
		return
	}
	writeJSON(w, http.StatusOK, online)
}
