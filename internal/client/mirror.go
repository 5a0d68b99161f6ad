package client

import (
	"sort"
	"time"

	"github.com/ldi/boardsync/pkg/models"
)

// Mirror is the in-memory copy of the board's collections. It is owned
// by the synchronizer's event loop and never touched concurrently, so
// it carries no locks. All apply operations are idempotent: replaying
// a change event converges to the same state.
type Mirror struct {
	Tasks  []*models.Task
	Events []*models.CalendarEvent
	Notes  []*models.Note
	Online []models.OnlineUser
}

// Seed replaces every collection wholesale from a bulk fetch.
func (m *Mirror) Seed(data *InitData) {
	m.Tasks = data.Tasks
	m.Events = data.Events
	m.Notes = data.Notes
	m.Online = data.OnlineUsers
}

// UpsertTask applies a task-created or task-updated payload. A record
// matching tempID is replaced first (optimistic placeholder), then one
// matching the real id; otherwise the task is inserted at the front.
func (m *Mirror) UpsertTask(incoming *models.Task, tempID string) {
	if tempID != "" {
		for i, t := range m.Tasks {
			if t.ID == tempID {
				m.Tasks[i] = incoming
				return
			}
		}
	}
	for i, t := range m.Tasks {
		if t.ID == incoming.ID {
			m.Tasks[i] = incoming
			return
		}
	}
	m.Tasks = append([]*models.Task{incoming}, m.Tasks...)
}

// DeleteTask applies a task-deleted payload. A record body with
// deletedAt set is a soft delete: the task stays in the mirror (trash
// view) and is updated in place. A bare id is a hard delete.
func (m *Mirror) DeleteTask(incoming *models.Task) {
	if incoming.DeletedAt != nil {
		m.UpsertTask(incoming, "")
		return
	}
	m.RemoveTask(incoming.ID)
}

func (m *Mirror) RemoveTask(id string) {
	for i, t := range m.Tasks {
		if t.ID == id {
			m.Tasks = append(m.Tasks[:i], m.Tasks[i+1:]...)
			return
		}
	}
}

func (m *Mirror) FindTask(id string) *models.Task {
	for _, t := range m.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// ReplaceTask swaps the record under oldID for the authoritative one,
// dropping any duplicate of the new id that a concurrent broadcast
// already inserted.
func (m *Mirror) ReplaceTask(oldID string, incoming *models.Task) {
	if oldID != incoming.ID {
		m.RemoveTask(incoming.ID)
	}
	for i, t := range m.Tasks {
		if t.ID == oldID {
			m.Tasks[i] = incoming
			return
		}
	}
	m.Tasks = append([]*models.Task{incoming}, m.Tasks...)
}

// UpsertEvent mirrors UpsertTask for calendar events; new events go to
// the back to keep chronological insertion order.
func (m *Mirror) UpsertEvent(incoming *models.CalendarEvent, tempID string) {
	if tempID != "" {
		for i, e := range m.Events {
			if e.ID == tempID {
				m.Events[i] = incoming
				return
			}
		}
	}
	for i, e := range m.Events {
		if e.ID == incoming.ID {
			m.Events[i] = incoming
			return
		}
	}
	m.Events = append(m.Events, incoming)
}

func (m *Mirror) DeleteEvent(incoming *models.CalendarEvent) {
	if incoming.DeletedAt != nil {
		m.UpsertEvent(incoming, "")
		return
	}
	m.RemoveEvent(incoming.ID)
}

func (m *Mirror) RemoveEvent(id string) {
	for i, e := range m.Events {
		if e.ID == id {
			m.Events = append(m.Events[:i], m.Events[i+1:]...)
			return
		}
	}
}

func (m *Mirror) FindEvent(id string) *models.CalendarEvent {
	for _, e := range m.Events {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (m *Mirror) ReplaceEvent(oldID string, incoming *models.CalendarEvent) {
	if oldID != incoming.ID {
		m.RemoveEvent(incoming.ID)
	}
	for i, e := range m.Events {
		if e.ID == oldID {
			m.Events[i] = incoming
			return
		}
	}
	m.Events = append(m.Events, incoming)
}

// UpsertNote inserts or replaces a note; duplicates from the
// optimistic path and the broadcast path converge to one record.
func (m *Mirror) UpsertNote(incoming *models.Note) {
	for i, n := range m.Notes {
		if n.ID == incoming.ID {
			m.Notes[i] = incoming
			return
		}
	}
	m.Notes = append([]*models.Note{incoming}, m.Notes...)
}

func (m *Mirror) DeleteNote(incoming *models.Note) {
	if incoming.DeletedAt != nil {
		m.UpsertNote(incoming)
		return
	}
	m.RemoveNote(incoming.ID)
}

func (m *Mirror) RemoveNote(id string) {
	for i, n := range m.Notes {
		if n.ID == id {
			m.Notes = append(m.Notes[:i], m.Notes[i+1:]...)
			return
		}
	}
}

func (m *Mirror) FindNote(id string) *models.Note {
	for _, n := range m.Notes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// TasksForDate returns live, unfinished tasks due on the given day.
func (m *Mirror) TasksForDate(date time.Time) []*models.Task {
	var out []*models.Task
	for _, t := range m.Tasks {
		if t.Deleted() || t.Status.Completed() || t.DueDate == nil {
			continue
		}
		if sameDay(*t.DueDate, date) {
			out = append(out, t)
		}
	}
	return out
}

// EventsForDate returns live events occurring on the given day,
// ordered by start time with untimed events last.
func (m *Mirror) EventsForDate(date time.Time) []*models.CalendarEvent {
	var out []*models.CalendarEvent
	for _, e := range m.Events {
		if e.Deleted() {
			continue
		}
		if e.OccursOn(date) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return startKey(out[i]) < startKey(out[j])
	})
	return out
}

func startKey(e *models.CalendarEvent) string {
	if e.StartTime == "" {
		return "99:99"
	}
	return e.StartTime
}

// NotesForDate returns live notes dated on the given day.
func (m *Mirror) NotesForDate(date time.Time) []*models.Note {
	var out []*models.Note
	for _, n := range m.Notes {
		if n.Deleted() {
			continue
		}
		if sameDay(n.Date, date) {
			out = append(out, n)
		}
	}
	return out
}

// ActiveTasks returns live tasks that are not archived.
func (m *Mirror) ActiveTasks() []*models.Task {
	var out []*models.Task
	for _, t := range m.Tasks {
		if !t.Deleted() && t.Status != models.StatusDone {
			out = append(out, t)
		}
	}
	return out
}

// ArchivedTasks returns live done tasks, most recently updated first.
func (m *Mirror) ArchivedTasks() []*models.Task {
	var out []*models.Task
	for _, t := range m.Tasks {
		if !t.Deleted() && t.Status == models.StatusDone {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// DeletedTasks returns the trash view, newest deletion first.
func (m *Mirror) DeletedTasks() []*models.Task {
	var out []*models.Task
	for _, t := range m.Tasks {
		if t.Deleted() {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DeletedAt.After(*out[j].DeletedAt)
	})
	return out
}

// DeletedEvents returns trashed events, newest deletion first.
func (m *Mirror) DeletedEvents() []*models.CalendarEvent {
	var out []*models.CalendarEvent
	for _, e := range m.Events {
		if e.Deleted() {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DeletedAt.After(*out[j].DeletedAt)
	})
	return out
}

// Stats summarizes live tasks per status plus overdue count.
type Stats struct {
	Total      int
	Backlog    int
	Todo       int
	InProgress int
	Test       int
	Complete   int
	Done       int
	Overdue    int
}

func (m *Mirror) Stats(now time.Time) Stats {
	var s Stats
	for _, t := range m.Tasks {
		if t.Deleted() {
			continue
		}
		s.Total++
		switch t.Status {
		case models.StatusBacklog:
			s.Backlog++
		case models.StatusTodo:
			s.Todo++
		case models.StatusInProgress:
			s.InProgress++
		case models.StatusTest:
			s.Test++
		case models.StatusComplete:
			s.Complete++
		case models.StatusDone:
			s.Done++
		}
		if !t.Status.Completed() && t.Status != models.StatusBacklog && t.DueDate != nil && t.DueDate.Before(now) {
			s.Overdue++
		}
	}
	return s
}
