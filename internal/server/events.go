package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ldi/boardsync/pkg/models"
)

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	if !sess.Role.CanWrite() {
		writeJSON(w, http.StatusOK, []*models.CalendarEvent{})
		return
	}

	s.purgeAsync()

	events, err := s.db.ListEvents(r.Context(), r.URL.Query().Get("trash") == "true")
	if err != nil {
		slog.Error("failed to list events", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}
	if events == nil {
		events = []*models.CalendarEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

type createEventInput struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Dates       []time.Time       `json:"dates"`
	StartTime   string            `json:"startTime"`
	EndTime     string            `json:"endTime"`
	Color       models.EventColor `json:"color"`
	TempID      string            `json:"tempId"`
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	sess := s.writer(w, r)
	if sess == nil {
		return
	}

	var input createEventInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if input.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if len(input.Dates) == 0 {
		writeError(w, http.StatusBadRequest, "at least one date is required")
		return
	}
	if input.Color == "" {
		input.Color = models.ColorBlue
	}
	if !input.Color.Valid() {
		writeError(w, http.StatusBadRequest, "invalid color")
		return
	}

	event := &models.CalendarEvent{
		Title:       input.Title,
		Description: input.Description,
		Dates:       input.Dates,
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
		Color:       input.Color,
	}
	created, err := s.db.CreateEvent(r.Context(), event, sess.UserID)
	if err != nil {
		slog.Error("failed to create event", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	s.bus.Publish(models.EventChange(models.ChangeEventCreated, created, input.TempID))
	writeJSON(w, http.StatusCreated, created)
}

type updateEventInput struct {
	Title       *string            `json:"title"`
	Description *string            `json:"description"`
	Dates       *[]time.Time       `json:"dates"`
	StartTime   *string            `json:"startTime"`
	EndTime     *string            `json:"endTime"`
	Color       *models.EventColor `json:"color"`
	DeletedAt   json.RawMessage    `json:"deletedAt"`
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	sess := s.writer(w, r)
	if sess == nil {
		return
	}
	id := mux.Vars(r)["id"]

	existing, err := s.db.GetEvent(r.Context(), id)
	if err != nil {
		slog.Error("failed to load event", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load event")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	var input updateEventInput
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
	if input.StartTime != nil {
		existing.StartTime = *input.StartTime
	}
	if input.EndTime != nil {
		existing.EndTime = *input.EndTime
	}
	if input.Color != nil {
		if !input.Color.Valid() {
			writeError(w, http.StatusBadRequest, "invalid color")
			return
		}
		existing.Color = *input.Color
	}
	if input.DeletedAt != nil {
		deletedAt, err := parseNullableTime(input.DeletedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid deletedAt")
			return
		}
		existing.DeletedAt = deletedAt
	}

	if input.Dates != nil {
		// Removing the last date deletes the event outright; an event
		// is never persisted with zero dates.
		if len(*input.Dates) == 0 {
			if err := s.db.HardDeleteEvent(r.Context(), id); err != nil {
				slog.Error("failed to delete emptied event", "err", err)
				writeError(w, http.StatusInternalServerError, "failed to update event")
				return
			}
			s.bus.Publish(models.HardDelete(models.ChangeEventDeleted, id))
			writeJSON(w, http.StatusOK, map[string]bool{"success": true, "hardDelete": true})
			return
		}
		existing.Dates = *input.Dates
	}

	updated, err := s.db.UpdateEvent(r.Context(), existing)
	if err != nil {
		slog.Error("failed to update event", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	s.bus.Publish(models.EventChange(models.ChangeEventUpdated, updated, ""))
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	sess := s.writer(w, r)
	if sess == nil {
		return
	}
	id := mux.Vars(r)["id"]

	existing, err := s.db.GetEvent(r.Context(), id)
	if err != nil {
		slog.Error("failed to load event", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load event")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	if r.URL.Query().Get("hard") == "true" {
		if err := s.db.HardDeleteEvent(r.Context(), id); err != nil {
			slog.Error("failed to delete event", "err", err)
			writeError(w, http.StatusInternalServerError, "failed to delete event")
			return
		}
		s.bus.Publish(models.HardDelete(models.ChangeEventDeleted, id))
		writeJSON(w, http.StatusOK, map[string]bool{"success": true, "hardDelete": true})
		return
	}

	deleted, err := s.db.SoftDeleteEvent(r.Context(), id)
	if err != nil {
		slog.Error("failed to delete event", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}
	s.bus.Publish(models.EventChange(models.ChangeEventDeleted, deleted, ""))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true, "softDelete": true})
}
