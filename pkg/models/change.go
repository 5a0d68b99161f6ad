package models

import "encoding/json"

// ChangeType tags a ChangeEvent. Clients must tolerate tags they do
// not recognize and treat them as a signal to re-fetch.
type ChangeType string

const (
	ChangeConnected ChangeType = "connected"
	ChangePing      ChangeType = "ping"

	ChangeTaskCreated ChangeType = "task-created"
	ChangeTaskUpdated ChangeType = "task-updated"
	ChangeTaskDeleted ChangeType = "task-deleted"

	ChangeEventCreated ChangeType = "event-created"
	ChangeEventUpdated ChangeType = "event-updated"
	ChangeEventDeleted ChangeType = "event-deleted"

	ChangeNoteCreated ChangeType = "note-created"
	ChangeNoteDeleted ChangeType = "note-deleted"

	ChangeUsersUpdated ChangeType = "users-updated"
)

// ChangeEvent is the unit relayed from mutation endpoints to connected
// clients. Data carries the full entity payload, or just {id} for hard
// deletes. TempID correlates a server-confirmed entity back to a
// client-side optimistic placeholder. Events are ephemeral and never
// persisted.
type ChangeEvent struct {
	Type   ChangeType      `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`
	TempID string          `json:"tempId,omitempty"`
}

func newChange(t ChangeType, payload any, tempID string) ChangeEvent {
	raw, err := json.Marshal(payload)
	if err != nil {
		// Domain types marshal without error; a failure here is a
		// programming bug and the event degrades to a bare tag, which
		// clients answer with a re-fetch.
		raw = nil
	}
	return ChangeEvent{Type: t, Data: raw, TempID: tempID}
}

func TaskChange(t ChangeType, task *Task, tempID string) ChangeEvent {
	return newChange(t, task, tempID)
}

func EventChange(t ChangeType, ev *CalendarEvent, tempID string) ChangeEvent {
	return newChange(t, ev, tempID)
}

func NoteChange(t ChangeType, n *Note) ChangeEvent {
	return newChange(t, n, "")
}

// HardDelete builds a *-deleted event carrying only the record id,
// which clients interpret as full removal rather than a trash move.
func HardDelete(t ChangeType, id string) ChangeEvent {
	return newChange(t, struct {
		ID string `json:"id"`
	}{ID: id}, "")
}

func UsersUpdated() ChangeEvent {
	return ChangeEvent{Type: ChangeUsersUpdated}
}

// Legacy wraps a bare string payload as {type: s}. It exists solely
// for wire compatibility with pre-typed publishers that emitted plain
// strings on the bus; nothing in this module emits one. Receivers
// treat the unknown tag as a re-fetch signal, so such events degrade
// gracefully.
func Legacy(tag string) ChangeEvent {
	return ChangeEvent{Type: ChangeType(tag)}
}

// DecodeTask unpacks the payload of a task-* event.
func (e ChangeEvent) DecodeTask() (*Task, error) {
	var t Task
	if err := json.Unmarshal(e.Data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DecodeCalendarEvent unpacks the payload of an event-* event.
func (e ChangeEvent) DecodeCalendarEvent() (*CalendarEvent, error) {
	var ev CalendarEvent
	if err := json.Unmarshal(e.Data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// DecodeNote unpacks the payload of a note-* event.
func (e ChangeEvent) DecodeNote() (*Note, error) {
	var n Note
	if err := json.Unmarshal(e.Data, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// PayloadID extracts the id field from the payload without decoding
// the full entity. Used for hard-delete events carrying only {id}.
func (e ChangeEvent) PayloadID() string {
	var p struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(e.Data, &p)
	return p.ID
}
