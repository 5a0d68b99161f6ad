package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ldi/boardsync/pkg/models"
)

// handleListTasks returns live tasks, or the trash view with ?trash=true.
// Guests get an empty list rather than a 403, matching the UI contract.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	if !sess.Role.CanWrite() {
		writeJSON(w, http.StatusOK, []*models.Task{})
		return
	}

	s.purgeAsync()

	tasks, err := s.db.ListTasks(r.Context(), r.URL.Query().Get("trash") == "true")
	if err != nil {
		slog.Error("failed to list tasks", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load tasks")
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

type createTaskInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      models.Status   `json:"status"`
	Priority    models.Priority `json:"priority"`
	DueDate     *time.Time      `json:"dueDate"`
	Category    string          `json:"category"`
	TempID      string          `json:"tempId"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	sess := s.writer(w, r)
	if sess == nil {
		return
	}

	var input createTaskInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if input.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if input.Status == "" {
		input.Status = models.StatusTodo
	}
	if input.Priority == "" {
		input.Priority = models.PriorityMedium
	}
	if input.Category == "" {
		input.Category = "Work"
	}
	if !input.Status.Valid() || !input.Priority.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status or priority")
		return
	}

	task := &models.Task{
		Title:       input.Title,
		Description: input.Description,
		Status:      input.Status,
		Priority:    input.Priority,
		DueDate:     input.DueDate,
		Category:    input.Category,
	}
	if input.Status.Completed() {
		now := time.Now().UTC()
		task.CompletedAt = &now
	}

	created, err := s.db.CreateTask(r.Context(), task, sess.UserID)
	if err != nil {
		slog.Error("failed to create task", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	s.bus.Publish(models.TaskChange(models.ChangeTaskCreated, created, input.TempID))
	writeJSON(w, http.StatusCreated, created)
}

// updateTaskInput distinguishes absent fields from zero values so a
// PATCH only touches what the client sent.
type updateTaskInput struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Status      *models.Status   `json:"status"`
	Priority    *models.Priority `json:"priority"`
	DueDate     json.RawMessage  `json:"dueDate"`
	Category    *string          `json:"category"`
	DeletedAt   json.RawMessage  `json:"deletedAt"`
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	sess := s.writer(w, r)
	if sess == nil {
		return
	}
	id := mux.Vars(r)["id"]

	existing, err := s.db.GetTask(r.Context(), id)
	if err != nil {
		slog.Error("failed to load task", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	var input updateTaskInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if input.Title != nil {
		existing.Title = *input.Title
	}
	if input.Description != nil {
		existing.Description = *input.Description
	}
	if input.Priority != nil {
		if !input.Priority.Valid() {
			writeError(w, http.StatusBadRequest, "invalid priority")
			return
		}
		existing.Priority = *input.Priority
	}
	if input.Category != nil {
		existing.Category = *input.Category
	}
	if input.DueDate != nil {
		due, err := parseNullableTime(input.DueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid dueDate")
			return
		}
		existing.DueDate = due
	}

	if input.Status != nil {
		if !input.Status.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		// completedAt is stamped on entry into a completed status and
		// cleared on exit.
		if input.Status.Completed() && !existing.Status.Completed() {
			now := time.Now().UTC()
			existing.CompletedAt = &now
		} else if !input.Status.Completed() {
			existing.CompletedAt = nil
		}
		existing.Status = *input.Status
	}

	if input.DeletedAt != nil {
		deletedAt, err := parseNullableTime(input.DeletedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid deletedAt")
			return
		}
		// deletedAt: null restores the task from trash.
		existing.DeletedAt = deletedAt
	}

	updated, err := s.db.UpdateTask(r.Context(), existing, sess.UserID)
	if err != nil {
		slog.Error("failed to update task", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	s.bus.Publish(models.TaskChange(models.ChangeTaskUpdated, updated, ""))
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	sess := s.writer(w, r)
	if sess == nil {
		return
	}
	id := mux.Vars(r)["id"]

	existing, err := s.db.GetTask(r.Context(), id)
	if err != nil {
		slog.Error("failed to load task", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	if r.URL.Query().Get("hard") == "true" {
		if err := s.db.HardDeleteTask(r.Context(), id); err != nil {
			slog.Error("failed to delete task", "err", err)
			writeError(w, http.StatusInternalServerError, "failed to delete task")
			return
		}
		s.bus.Publish(models.HardDelete(models.ChangeTaskDeleted, id))
		writeJSON(w, http.StatusOK, map[string]bool{"success": true, "hardDelete": true})
		return
	}

	deleted, err := s.db.SoftDeleteTask(r.Context(), id, sess.UserID)
	if err != nil {
		slog.Error("failed to delete task", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}
	s.bus.Publish(models.TaskChange(models.ChangeTaskDeleted, deleted, ""))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true, "softDelete": true})
}

// parseNullableTime decodes a JSON value that is either null or an
// RFC3339 timestamp.
func parseNullableTime(raw json.RawMessage) (*time.Time, error) {
	var t *time.Time
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return t, nil
}
