package models

import "time"

type EventColor string

const (
	ColorBlue   EventColor = "blue"
	ColorRed    EventColor = "red"
	ColorGreen  EventColor = "green"
	ColorPurple EventColor = "purple"
	ColorOrange EventColor = "orange"
)

func (c EventColor) Valid() bool {
	switch c {
	case ColorBlue, ColorRed, ColorGreen, ColorPurple, ColorOrange:
		return true
	}
	return false
}

// CalendarEvent is a calendar entry that may span several individual
// days. Dates holds day instants; order is kept as stored for stable
// display but has no semantic meaning. An event is never persisted
// with an empty Dates set.
type CalendarEvent struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Dates       []time.Time `json:"dates"`
	StartTime   string      `json:"startTime,omitempty"` // "HH:mm", no timezone
	EndTime     string      `json:"endTime,omitempty"`   // "HH:mm", no timezone
	Color       EventColor  `json:"color"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	DeletedAt   *time.Time  `json:"deletedAt"`
	CreatedBy   *UserRef    `json:"createdBy,omitempty"`
}

func (e *CalendarEvent) Deleted() bool {
	return e.DeletedAt != nil
}

// OccursOn reports whether the event has a date on the same calendar
// day as d.
func (e *CalendarEvent) OccursOn(d time.Time) bool {
	y, m, day := d.Date()
	for _, ed := range e.Dates {
		ey, em, eday := ed.Date()
		if ey == y && em == m && eday == day {
			return true
		}
	}
	return false
}
