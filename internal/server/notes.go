package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ldi/boardsync/internal/db"
	"github.com/ldi/boardsync/pkg/models"
)

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	notes, total, err := s.db.ListNotes(r.Context(), db.NoteFilter{
		Trash: q.Get("trash") == "true",
		Query: q.Get("q"),
		Page:  page,
		Limit: limit,
	})
	if err != nil {
		slog.Error("failed to list notes", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load notes")
		return
	}
	if notes == nil {
		notes = []*models.Note{}
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": notes,
		"page":  page,
		"limit": limit,
		"total": total,
	})
}

type createNoteInput struct {
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Date       *time.Time `json:"date"`
	AuthorName string     `json:"authorName"`
	NotionURL  string     `json:"notionUrl"`
}

// handleCreateNote accepts a note from any authenticated user; notes
// are intentionally more permissive than tasks and events.
func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}

	var input createNoteInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if input.Title == "" && input.Content == "" {
		writeError(w, http.StatusBadRequest, "Title or content is required")
		return
	}
	if input.Title == "" {
		input.Title = "Untitled"
	}
	if input.AuthorName == "" {
		input.AuthorName = sess.Name
	}

	note := &models.Note{
		Title:      input.Title,
		Content:    input.Content,
		AuthorName: input.AuthorName,
		NotionURL:  input.NotionURL,
	}
	if input.Date != nil {
		note.Date = *input.Date
	}

	created, err := s.db.CreateNote(r.Context(), note, sess.UserID)
	if err != nil {
		slog.Error("failed to create note", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create note")
		return
	}

	s.bus.Publish(models.NoteChange(models.ChangeNoteCreated, created))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	note, err := s.db.GetNote(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		slog.Error("failed to get note", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load note")
		return
	}
	if note == nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	sess := s.writer(w, r)
	if sess == nil {
		return
	}
	id := mux.Vars(r)["id"]

	existing, err := s.db.GetNote(r.Context(), id)
	if err != nil {
		slog.Error("failed to load note", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load note")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	if r.URL.Query().Get("hard") == "true" {
		if err := s.db.HardDeleteNote(r.Context(), id); err != nil {
			slog.Error("failed to delete note", "err", err)
			writeError(w, http.StatusInternalServerError, "failed to delete note")
			return
		}
		s.bus.Publish(models.HardDelete(models.ChangeNoteDeleted, id))
		writeJSON(w, http.StatusOK, map[string]bool{"success": true, "hardDelete": true})
		return
	}

	deleted, err := s.db.SoftDeleteNote(r.Context(), id)
	if err != nil {
		slog.Error("failed to delete note", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to delete note")
		return
	}
	s.bus.Publish(models.NoteChange(models.ChangeNoteDeleted, deleted))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true, "softDelete": true})
}
