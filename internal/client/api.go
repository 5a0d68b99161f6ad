// Package client implements the synchronizing board client: an HTTP
// API wrapper, a stream reader for server-pushed change events, and a
// Synchronizer that keeps an eventually-consistent local mirror of the
// board while reconciling optimistic local edits.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ldi/boardsync/pkg/models"
)

// API is a thin typed wrapper over the board's HTTP surface.
type API struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewAPI(baseURL, token string) *API {
	return &API{BaseURL: baseURL, Token: token, HTTP: &http.Client{}}
}

// InitData is the bulk fetch payload seeding all collections in one
// round trip.
type InitData struct {
	Tasks       []*models.Task          `json:"tasks"`
	Events      []*models.CalendarEvent `json:"events"`
	Notes       []*models.Note          `json:"notes"`
	OnlineUsers []models.OnlineUser     `json:"onlineUsers"`
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (a *API) Init(ctx context.Context) (*InitData, error) {
	var data InitData
	if err := a.do(ctx, http.MethodGet, "/api/init", nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// TaskDraft is the client-supplied portion of a new or updated task.
type TaskDraft struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      models.Status   `json:"status,omitempty"`
	Priority    models.Priority `json:"priority,omitempty"`
	DueDate     *time.Time      `json:"dueDate,omitempty"`
	Category    string          `json:"category,omitempty"`
}

func (a *API) CreateTask(ctx context.Context, draft TaskDraft, tempID string) (*models.Task, error) {
	body := struct {
		TaskDraft
		TempID string `json:"tempId,omitempty"`
	}{TaskDraft: draft, TempID: tempID}

	var t models.Task
	if err := a.do(ctx, http.MethodPost, "/api/tasks", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTask sends a partial update. The patch is a plain map so
// explicit nulls (clear dueDate, restore from trash) survive encoding.
func (a *API) UpdateTask(ctx context.Context, id string, patch map[string]any) (*models.Task, error) {
	var t models.Task
	if err := a.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(id), patch, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (a *API) DeleteTask(ctx context.Context, id string, hard bool) error {
	path := "/api/tasks/" + url.PathEscape(id)
	if hard {
		path += "?hard=true"
	}
	return a.do(ctx, http.MethodDelete, path, nil, nil)
}

// EventDraft is the client-supplied portion of a calendar event.
type EventDraft struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Dates       []time.Time       `json:"dates"`
	StartTime   string            `json:"startTime,omitempty"`
	EndTime     string            `json:"endTime,omitempty"`
	Color       models.EventColor `json:"color,omitempty"`
}

func (a *API) CreateEvent(ctx context.Context, draft EventDraft, tempID string) (*models.CalendarEvent, error) {
	body := struct {
		EventDraft
		TempID string `json:"tempId,omitempty"`
	}{EventDraft: draft, TempID: tempID}

	var e models.CalendarEvent
	if err := a.do(ctx, http.MethodPost, "/api/events", body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (a *API) UpdateEvent(ctx context.Context, id string, patch map[string]any) (*models.CalendarEvent, error) {
	var e models.CalendarEvent
	if err := a.do(ctx, http.MethodPatch, "/api/events/"+url.PathEscape(id), patch, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (a *API) DeleteEvent(ctx context.Context, id string, hard bool) error {
	path := "/api/events/" + url.PathEscape(id)
	if hard {
		path += "?hard=true"
	}
	return a.do(ctx, http.MethodDelete, path, nil, nil)
}

// NoteDraft is the client-supplied portion of a note.
type NoteDraft struct {
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Date       *time.Time `json:"date,omitempty"`
	AuthorName string     `json:"authorName,omitempty"`
	NotionURL  string     `json:"notionUrl,omitempty"`
}

func (a *API) CreateNote(ctx context.Context, draft NoteDraft) (*models.Note, error) {
	var n models.Note
	if err := a.do(ctx, http.MethodPost, "/api/notes", draft, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (a *API) DeleteNote(ctx context.Context, id string, hard bool) error {
	path := "/api/notes/" + url.PathEscape(id)
	if hard {
		path += "?hard=true"
	}
	return a.do(ctx, http.MethodDelete, path, nil, nil)
}

func (a *API) Heartbeat(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/api/user/heartbeat", nil, nil)
}

func (a *API) OnlineUsers(ctx context.Context) ([]models.OnlineUser, error) {
	var users []models.OnlineUser
	if err := a.do(ctx, http.MethodGet, "/api/users/online", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Login trades credentials for a bearer token and stores it on the
// API for subsequent calls.
func (a *API) Login(ctx context.Context, name, password string) (*models.User, error) {
	var out struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	body := map[string]string{"name": name, "password": password}
	if err := a.do(ctx, http.MethodPost, "/api/login", body, &out); err != nil {
		return nil, err
	}
	a.Token = out.Token
	return &out.User, nil
}
