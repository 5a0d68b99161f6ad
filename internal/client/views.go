package client

import (
	"time"

	"github.com/ldi/boardsync/pkg/models"
)

// Snapshot accessors. Each one runs on the event loop and copies the
// records out, so callers never observe a half-applied change and
// never share structs with the loop.

func (s *Synchronizer) Tasks() []models.Task {
	var out []models.Task
	s.call(func(m *Mirror) {
		for _, t := range m.Tasks {
			out = append(out, *t)
		}
	})
	return out
}

func (s *Synchronizer) TasksForDate(date time.Time) []models.Task {
	var out []models.Task
	s.call(func(m *Mirror) {
		for _, t := range m.TasksForDate(date) {
			out = append(out, *t)
		}
	})
	return out
}

func (s *Synchronizer) ActiveTasks() []models.Task {
	var out []models.Task
	s.call(func(m *Mirror) {
		for _, t := range m.ActiveTasks() {
			out = append(out, *t)
		}
	})
	return out
}

func (s *Synchronizer) ArchivedTasks() []models.Task {
	var out []models.Task
	s.call(func(m *Mirror) {
		for _, t := range m.ArchivedTasks() {
			out = append(out, *t)
		}
	})
	return out
}

func (s *Synchronizer) DeletedTasks() []models.Task {
	var out []models.Task
	s.call(func(m *Mirror) {
		for _, t := range m.DeletedTasks() {
			out = append(out, *t)
		}
	})
	return out
}

func (s *Synchronizer) Events() []models.CalendarEvent {
	var out []models.CalendarEvent
	s.call(func(m *Mirror) {
		for _, e := range m.Events {
			out = append(out, *e)
		}
	})
	return out
}

func (s *Synchronizer) EventsForDate(date time.Time) []models.CalendarEvent {
	var out []models.CalendarEvent
	s.call(func(m *Mirror) {
		for _, e := range m.EventsForDate(date) {
			out = append(out, *e)
		}
	})
	return out
}

func (s *Synchronizer) DeletedEvents() []models.CalendarEvent {
	var out []models.CalendarEvent
	s.call(func(m *Mirror) {
		for _, e := range m.DeletedEvents() {
			out = append(out, *e)
		}
	})
	return out
}

func (s *Synchronizer) Notes() []models.Note {
	var out []models.Note
	s.call(func(m *Mirror) {
		for _, n := range m.Notes {
			out = append(out, *n)
		}
	})
	return out
}

func (s *Synchronizer) NotesForDate(date time.Time) []models.Note {
	var out []models.Note
	s.call(func(m *Mirror) {
		for _, n := range m.NotesForDate(date) {
			out = append(out, *n)
		}
	})
	return out
}

func (s *Synchronizer) Online() []models.OnlineUser {
	var out []models.OnlineUser
	s.call(func(m *Mirror) {
		out = append(out, m.Online...)
	})
	return out
}

func (s *Synchronizer) BoardStats(now time.Time) Stats {
	var out Stats
	s.call(func(m *Mirror) { out = m.Stats(now) })
	return out
}
